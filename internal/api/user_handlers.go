package api

import (
	"net/http"
	"strconv"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"

	"github.com/labstack/echo/v4"
)

type userStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended"`
}

type userRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

func userIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}

func (s *HTTPServer) handleListUsers(c echo.Context) error {
	users, err := s.svc.Users.List(c.Request().Context(), callerFrom(c), c.QueryParam("search"))
	if err != nil {
		return err
	}
	if users == nil {
		users = []models.UserSummary{}
	}
	return c.JSON(http.StatusOK, users)
}

func (s *HTTPServer) handleDeleteUser(c echo.Context) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	if err := s.svc.Users.Delete(c.Request().Context(), callerFrom(c), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "User deleted"})
}

func (s *HTTPServer) handleUpdateUserStatus(c echo.Context) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	var req userStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := s.svc.Users.UpdateStatus(c.Request().Context(), callerFrom(c), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (s *HTTPServer) handleUpdateUserRole(c echo.Context) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	var req userRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := s.svc.Users.UpdateRole(c.Request().Context(), callerFrom(c), id, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// handleUserBookings supports itemType, location and status filters.
func (s *HTTPServer) handleUserBookings(c echo.Context) error {
	id, err := userIDParam(c)
	if err != nil {
		return err
	}
	filter := models.BookingFilter{
		ItemType: models.ItemType(c.QueryParam("itemType")),
		Status:   c.QueryParam("status"),
		Location: c.QueryParam("location"),
	}

	views, err := s.svc.Users.Bookings(c.Request().Context(), callerFrom(c), id, filter)
	if err != nil {
		return err
	}
	if views == nil {
		views = []models.BookingView{}
	}
	return c.JSON(http.StatusOK, views)
}
