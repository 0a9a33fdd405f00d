package api

import (
	"fmt"
	"net/http"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/export"
	"urbanharvest/internal/models"
	"urbanharvest/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type createBookingRequest struct {
	ItemID    string `json:"itemId" validate:"required"`
	ItemType  string `json:"itemType" validate:"required,oneof=product workshop event"`
	UserName  string `json:"userName" validate:"required"`
	UserEmail string `json:"userEmail" validate:"required"`
	Quantity  int    `json:"quantity" validate:"omitempty,min=1,max=99"`
}

type updateBookingRequest struct {
	Status string `json:"status" validate:"required"`
}

type paymentRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleCreateBooking answers 201 for a new booking and 200 when the caller
// already holds a pending booking for the same item.
func (s *HTTPServer) handleCreateBooking(c echo.Context) error {
	var req createBookingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	view, created, err := s.svc.Bookings.Create(c.Request().Context(), service.CreateBookingInput{
		ItemID:    req.ItemID,
		ItemType:  models.ItemType(req.ItemType),
		UserName:  req.UserName,
		UserEmail: req.UserEmail,
		Quantity:  req.Quantity,
	}, callerFrom(c))
	if err != nil {
		return err
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, view)
}

func (s *HTTPServer) handleMyBookings(c echo.Context) error {
	caller := callerFrom(c)
	if caller == nil {
		return domain.ErrUnauthorized
	}
	views, err := s.svc.Bookings.ListForUser(c.Request().Context(), caller.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

func (s *HTTPServer) handleListBookings(c echo.Context) error {
	views, err := s.svc.Bookings.ListAll(c.Request().Context(), callerFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

func (s *HTTPServer) handleGetBooking(c echo.Context) error {
	view, err := s.svc.Bookings.Get(c.Request().Context(), c.Param("id"), callerFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) handleUpdateBooking(c echo.Context) error {
	var req updateBookingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	view, err := s.svc.Bookings.UpdateStatus(c.Request().Context(), c.Param("id"), req.Status, callerFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *HTTPServer) handleDeleteBooking(c echo.Context) error {
	if err := s.svc.Bookings.Delete(c.Request().Context(), c.Param("id"), callerFrom(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Booking deleted"})
}

func (s *HTTPServer) handleExportBookings(c echo.Context) error {
	views, err := s.svc.Bookings.ListAll(c.Request().Context(), callerFrom(c))
	if err != nil {
		return err
	}

	name := fmt.Sprintf("bookings_%s.xlsx", time.Now().Format("2006-01-02"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	c.Response().Header().Set(echo.HeaderContentType, xlsxContentType)
	c.Response().WriteHeader(http.StatusOK)
	return export.WriteBookings(c.Response(), views)
}

func (s *HTTPServer) handleProcessPayment(c echo.Context) error {
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return domain.NewValidationError("amount", "must be a number")
	}
	if req.Amount == nil {
		return domain.NewValidationError("amount", "is required")
	}

	result, err := s.svc.Payments.Process(c.Request().Context(), *req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
