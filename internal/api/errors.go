package api

import (
	"errors"
	"net/http"

	"urbanharvest/internal/domain"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// statusFor maps a domain error onto its HTTP status and stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrSelfAction):
		return http.StatusBadRequest, "self_action_denied"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrAccountSuspended):
		return http.StatusForbidden, "account_suspended"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	return http.StatusText(status)
}

// newErrorHandler renders every error a handler returns as the JSON envelope.
func newErrorHandler(logger *zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		resp := errorResponse{}
		var status int

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			resp.Error = codeForStatus(status)
			resp.Message = http.StatusText(status)
			if m, ok := he.Message.(string); ok {
				resp.Message = m
			}
		} else {
			status, resp.Error = statusFor(err)
			resp.Message = err.Error()

			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				resp.Fields = verr.Fields
			}
		}

		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("request failed")
			resp.Message = "internal server error"
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, resp)
	}
}
