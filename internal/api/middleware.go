package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/metrics"
	"urbanharvest/internal/models"
	"urbanharvest/internal/service"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	ctxTokenKey  = "token"
	ctxCallerKey = "caller"
	ctxUserKey   = "account"
)

// requestLogger writes one access log line per request.
func requestLogger(logger *zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler settle the status before we log it
				c.Error(err)
			}
			dur := time.Since(start)

			req := c.Request()
			res := c.Response()
			ev := logger.Info()
			if res.Status >= http.StatusInternalServerError {
				ev = logger.Error()
			}
			ev.Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Int("status", res.Status).
				Str("remote", c.RealIP()).
				Dur("duration", dur).
				Msg("http request")

			metrics.ObserveHTTP(routeLabel(c), res.Status, dur)
			return nil
		}
	}
}

func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return c.Request().Method + " " + p
	}
	return c.Request().Method + " unmatched"
}

// rateLimit throttles per client IP. Request headers are caller-controlled
// and never pick the bucket.
func rateLimit(l *rateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.enabled() {
				return next(c)
			}
			if !l.allow(c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// requestTimeout bounds the handler context.
func requestTimeout(d time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if d <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), d)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// jwtMiddleware verifies the bearer token. With optional set, a request
// without an Authorization header passes through as a guest; a header that
// is present must still carry a valid token.
func jwtMiddleware(auth *service.AuthService, optional bool) echo.MiddlewareFunc {
	cfg := echojwt.Config{
		SigningKey:    auth.Secret(),
		SigningMethod: jwt.SigningMethodHS256.Alg(),
		ContextKey:    ctxTokenKey,
		TokenLookup:   "header:Authorization:Bearer ",
		NewClaimsFunc: func(echo.Context) jwt.Claims {
			return new(service.Claims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return domain.ErrUnauthorized
		},
	}
	if optional {
		cfg.Skipper = func(c echo.Context) bool {
			return strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization)) == ""
		}
	}
	return echojwt.WithConfig(cfg)
}

// authenticate loads the account behind a verified token and stores the
// caller. Suspended accounts are rejected on every request.
func authenticate(auth *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok, ok := c.Get(ctxTokenKey).(*jwt.Token)
			if !ok || tok == nil {
				// optional auth skipped verification: guest request
				return next(c)
			}
			claims, ok := tok.Claims.(*service.Claims)
			if !ok {
				return domain.ErrUnauthorized
			}

			caller, user, err := auth.Authenticate(c.Request().Context(), claims)
			if err != nil {
				return err
			}
			c.Set(ctxCallerKey, caller)
			c.Set(ctxUserKey, user)
			return next(c)
		}
	}
}

// requireAdmin rejects authenticated non-admin callers with 403.
func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := domain.RequireAdmin(callerFrom(c)); err != nil {
			return err
		}
		return next(c)
	}
}

// callerFrom returns nil for guests.
func callerFrom(c echo.Context) *domain.Caller {
	caller, _ := c.Get(ctxCallerKey).(*domain.Caller)
	return caller
}

func accountFrom(c echo.Context) (*models.User, error) {
	user, ok := c.Get(ctxUserKey).(*models.User)
	if !ok || user == nil {
		return nil, errors.New("no account on an authenticated route")
	}
	return user, nil
}
