package service

import (
	"context"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/events"
	"urbanharvest/internal/models"

	"github.com/rs/zerolog"
)

// UserService is the admin user directory.
type UserService struct {
	repo     domain.UserRepository
	bookings *BookingService
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewUserService(repo domain.UserRepository, bookings *BookingService, eventBus domain.EventPublisher, logger *zerolog.Logger) *UserService {
	return &UserService{
		repo:     repo,
		bookings: bookings,
		eventBus: eventBus,
		logger:   logger,
	}
}

// List returns accounts matching search on username or email, newest first,
// each with its pending+confirmed booking count.
func (s *UserService) List(ctx context.Context, caller *domain.Caller, search string) ([]models.UserSummary, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}

	users, err := s.repo.ListUsers(ctx, search)
	if err != nil {
		return nil, err
	}

	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		count, err := s.bookings.CountActive(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.UserSummary{User: *u, ActiveBookings: count})
	}
	return out, nil
}

func (s *UserService) Get(ctx context.Context, caller *domain.Caller, id int64) (*models.User, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	return s.repo.GetUserByID(ctx, id)
}

// Delete removes an account. Its bookings remain as guest records.
func (s *UserService) Delete(ctx context.Context, caller *domain.Caller, id int64) error {
	if err := domain.RequireAdmin(caller); err != nil {
		return err
	}
	if caller.UserID == id {
		return domain.ErrSelfAction
	}

	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}

	s.publish(events.EventUserDeleted, events.UserEventPayload{
		UserID:      user.ID,
		Username:    user.Username,
		ChangedByID: caller.UserID,
	})
	s.logger.Info().Int64("user_id", id).Int64("admin_id", caller.UserID).Msg("user deleted")
	return nil
}

func (s *UserService) UpdateStatus(ctx context.Context, caller *domain.Caller, id int64, status string) (*models.User, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if !models.ValidUserStatus(status) {
		return nil, domain.NewValidationError("status", "must be active or suspended")
	}
	if caller.UserID == id && status == models.UserStatusSuspended {
		return nil, domain.ErrSelfAction
	}

	if err := s.repo.UpdateUserStatus(ctx, id, status); err != nil {
		return nil, err
	}
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publish(events.EventUserStatusChanged, events.UserEventPayload{
		UserID:      user.ID,
		Username:    user.Username,
		Status:      status,
		ChangedByID: caller.UserID,
	})
	s.logger.Info().Int64("user_id", id).Str("status", status).Int64("admin_id", caller.UserID).Msg("user status changed")
	return user, nil
}

func (s *UserService) UpdateRole(ctx context.Context, caller *domain.Caller, id int64, role string) (*models.User, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if !models.ValidRole(role) {
		return nil, domain.NewValidationError("role", "must be user or admin")
	}
	if caller.UserID == id && role != models.RoleAdmin {
		return nil, domain.ErrSelfAction
	}

	if err := s.repo.UpdateUserRole(ctx, id, role); err != nil {
		return nil, err
	}
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publish(events.EventUserRoleChanged, events.UserEventPayload{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        role,
		ChangedByID: caller.UserID,
	})
	s.logger.Info().Int64("user_id", id).Str("role", role).Int64("admin_id", caller.UserID).Msg("user role changed")
	return user, nil
}

// Bookings lists one user's bookings for an admin, narrowed by filter.
func (s *UserService) Bookings(ctx context.Context, caller *domain.Caller, id int64, filter models.BookingFilter) ([]models.BookingView, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetUserByID(ctx, id); err != nil {
		return nil, err
	}
	return s.bookings.ListForUserFiltered(ctx, id, filter)
}

func (s *UserService) publish(eventType string, payload events.UserEventPayload) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
