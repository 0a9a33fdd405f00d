package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var emailPattern = regexp.MustCompile(`^[\w-]+(\.[\w-]+)*@([\w-]+\.)+[a-zA-Z]{2,7}$`)

// ValidEmail reports whether s looks like a deliverable address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Claims is the token body: sub carries the user id as a decimal string.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type AuthService struct {
	users  domain.UserRepository
	secret []byte
	ttl    time.Duration
	logger *zerolog.Logger
	now    func() time.Time
}

func NewAuthService(users domain.UserRepository, secret string, ttl time.Duration, logger *zerolog.Logger) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func (s *AuthService) Secret() []byte {
	return s.secret
}

// Register creates a regular active account and returns it with a token.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	verr := &domain.ValidationError{}
	if len(in.Username) < 3 {
		verr.Add("username", "must be at least 3 characters")
	}
	if in.Email != "" && !ValidEmail(in.Email) {
		verr.Add("email", "invalid format")
	}
	if len(in.Password) < 6 {
		verr.Add("password", "must be at least 6 characters")
	}
	if !verr.Empty() {
		return nil, "", verr
	}

	user, err := s.createUser(ctx, in, models.RoleUser)
	if err != nil {
		return nil, "", err
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return user, token, nil
}

// Login accepts a username or an email. Suspended accounts are refused.
func (s *AuthService) Login(ctx context.Context, login, password string) (*models.User, string, error) {
	user, err := s.users.GetUserByLogin(ctx, strings.TrimSpace(login))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, "", fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	if !user.IsActive() {
		return nil, "", domain.ErrAccountSuspended
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *AuthService) IssueToken(user *models.User) (string, error) {
	now := s.now()
	claims := &Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *AuthService) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("invalid token: %w", domain.ErrUnauthorized)
	}
	return claims, nil
}

// Authenticate turns verified claims into a caller. The role comes from the
// stored account, not the token, so demotions apply immediately.
func (s *AuthService) Authenticate(ctx context.Context, claims *Claims) (*domain.Caller, *models.User, error) {
	id, err := claims.UserID()
	if err != nil {
		return nil, nil, fmt.Errorf("bad subject: %w", domain.ErrUnauthorized)
	}

	user, err := s.users.GetUserByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil, fmt.Errorf("account gone: %w", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive() {
		return nil, nil, domain.ErrAccountSuspended
	}

	return &domain.Caller{UserID: user.ID, Role: user.Role}, user, nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) (*models.User, error) {
	existing, err := s.users.GetUserByLogin(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if password == "" {
		return nil, errors.New("admin password is required to bootstrap the admin account")
	}

	user, err := s.createUser(ctx, RegisterInput{Username: username, Email: email, Password: password}, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("admin account created")
	return user, nil
}

func (s *AuthService) createUser(ctx context.Context, in RegisterInput, role string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         role,
		Status:       models.UserStatusActive,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
