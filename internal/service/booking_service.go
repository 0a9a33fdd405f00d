package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/events"
	"urbanharvest/internal/metrics"
	"urbanharvest/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CreateBookingInput is the contact and item data of a new reservation.
type CreateBookingInput struct {
	ItemID    string
	ItemType  models.ItemType
	UserName  string
	UserEmail string
	Quantity  int
}

// BookingService is the booking ledger and its lifecycle rules.
type BookingService struct {
	repo         domain.BookingRepository
	catalog      domain.CatalogResolver
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	logger       *zerolog.Logger
	now          func() time.Time
}

func NewBookingService(repo domain.BookingRepository, catalog domain.CatalogResolver, eventBus domain.EventPublisher, sheetsWorker domain.SyncWorker, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		repo:         repo,
		catalog:      catalog,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		logger:       logger,
		now:          time.Now,
	}
}

// Create records a pending booking priced from the current catalog record.
// The bool result is false when an authenticated caller already holds a
// pending booking for the same item and that booking is returned instead.
func (s *BookingService) Create(ctx context.Context, in CreateBookingInput, caller *domain.Caller) (*models.BookingView, bool, error) {
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if err := validateBookingInput(in); err != nil {
		return nil, false, err
	}

	item, err := s.catalog.Resolve(ctx, in.ItemType, in.ItemID)
	if err != nil {
		return nil, false, err
	}

	if caller != nil {
		existing, err := s.repo.FindPendingBooking(ctx, caller.UserID, in.ItemType, in.ItemID)
		if err == nil {
			view := models.NewBookingView(*existing, item)
			return &view, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, err
		}
	}

	now := s.now()
	booking := &models.Booking{
		ID:          uuid.NewString(),
		ItemID:      in.ItemID,
		ItemType:    in.ItemType,
		Quantity:    in.Quantity,
		TotalPrice:  item.Price.Mul(decimal.NewFromInt(int64(in.Quantity))),
		Status:      models.StatusPending,
		BookingDate: now,
		UserName:    strings.TrimSpace(in.UserName),
		UserEmail:   strings.TrimSpace(in.UserEmail),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if caller != nil {
		uid := caller.UserID
		booking.UserID = &uid
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		if errors.Is(err, domain.ErrConflict) && caller != nil {
			// lost a race against a concurrent create for the same item
			existing, ferr := s.repo.FindPendingBooking(ctx, caller.UserID, in.ItemType, in.ItemID)
			if ferr == nil {
				view := models.NewBookingView(*existing, item)
				return &view, false, nil
			}
		}
		return nil, false, err
	}

	view := models.NewBookingView(*booking, item)
	metrics.IncBookingCreated(string(booking.ItemType), booking.IsGuest())
	s.publishEvent(ctx, events.EventBookingCreated, view, "", 0)
	s.enqueueSync(ctx, view, models.SyncTaskUpsert)

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("item", string(booking.ItemType)+"/"+booking.ItemID).
		Bool("guest", booking.IsGuest()).
		Msg("booking created")

	return &view, true, nil
}

// ListForUser returns the user's bookings, newest first, with items resolved now.
func (s *BookingService) ListForUser(ctx context.Context, userID int64) ([]models.BookingView, error) {
	bookings, err := s.repo.ListBookingsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, bookings)
}

func (s *BookingService) ListForUserFiltered(ctx context.Context, userID int64, filter models.BookingFilter) ([]models.BookingView, error) {
	if filter.ItemType != "" && !filter.ItemType.Valid() {
		return nil, domain.NewValidationError("itemType", "must be one of product, workshop, event")
	}
	if filter.Status != "" && !models.ValidBookingStatus(filter.Status) {
		return nil, domain.NewValidationError("status", "must be one of pending, confirmed, cancelled")
	}

	views, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.BookingView, 0, len(views))
	for _, v := range views {
		if filter.Match(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *BookingService) ListAll(ctx context.Context, caller *domain.Caller) ([]models.BookingView, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	bookings, err := s.repo.ListBookings(ctx)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, bookings)
}

func (s *BookingService) Get(ctx context.Context, id string, caller *domain.Caller) (*models.BookingView, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	view, err := s.view(ctx, *booking)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// UpdateStatus overwrites the status. Any of the three statuses may follow
// any other; concurrent admins resolve by last write.
func (s *BookingService) UpdateStatus(ctx context.Context, id, status string, caller *domain.Caller) (*models.BookingView, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if !models.ValidBookingStatus(status) {
		return nil, domain.NewValidationError("status", "must be one of pending, confirmed, cancelled")
	}

	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := booking.Status

	if err := s.repo.UpdateBookingStatus(ctx, id, status); err != nil {
		return nil, err
	}
	booking.Status = status
	booking.UpdatedAt = s.now()

	view, err := s.view(ctx, *booking)
	if err != nil {
		return nil, err
	}

	metrics.IncStatusChange(status)
	s.publishEvent(ctx, events.EventBookingStatusChanged, view, previous, caller.UserID)
	s.enqueueSync(ctx, view, models.SyncTaskUpdateStatus)

	s.logger.Info().
		Str("booking_id", id).
		Str("from", previous).
		Str("to", status).
		Int64("admin_id", caller.UserID).
		Msg("booking status changed")

	return &view, nil
}

func (s *BookingService) Delete(ctx context.Context, id string, caller *domain.Caller) error {
	if err := domain.RequireAdmin(caller); err != nil {
		return err
	}

	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteBooking(ctx, id); err != nil {
		return err
	}

	view, err := s.view(ctx, *booking)
	if err != nil {
		view = models.NewBookingView(*booking, nil)
	}
	s.publishEvent(ctx, events.EventBookingDeleted, view, "", caller.UserID)
	s.enqueueSync(ctx, view, models.SyncTaskDelete)

	s.logger.Info().Str("booking_id", id).Int64("admin_id", caller.UserID).Msg("booking deleted")
	return nil
}

func (s *BookingService) CountActive(ctx context.Context, userID int64) (int, error) {
	return s.repo.CountActiveBookings(ctx, userID)
}

func (s *BookingService) enrich(ctx context.Context, bookings []*models.Booking) ([]models.BookingView, error) {
	out := make([]models.BookingView, 0, len(bookings))
	for _, b := range bookings {
		view, err := s.view(ctx, *b)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// view resolves the booked item. A missing record yields a nil item.
func (s *BookingService) view(ctx context.Context, b models.Booking) (models.BookingView, error) {
	item, err := s.catalog.Resolve(ctx, b.ItemType, b.ItemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
			return models.NewBookingView(b, nil), nil
		}
		return models.BookingView{}, err
	}
	return models.NewBookingView(b, item), nil
}

func validateBookingInput(in CreateBookingInput) error {
	verr := &domain.ValidationError{}
	if strings.TrimSpace(in.ItemID) == "" {
		verr.Add("itemId", "required")
	}
	if !in.ItemType.Valid() {
		verr.Add("itemType", "must be one of product, workshop, event")
	}
	if strings.TrimSpace(in.UserName) == "" {
		verr.Add("userName", "required")
	}
	if strings.TrimSpace(in.UserEmail) == "" {
		verr.Add("userEmail", "required")
	}
	if in.Quantity < 1 || in.Quantity > models.MaxCartQuantity {
		verr.Add("quantity", "must be between 1 and 99")
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

func (s *BookingService) publishEvent(ctx context.Context, eventType string, view models.BookingView, previous string, changedByID int64) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:      view.ID,
		UserID:         view.UserID,
		UserName:       view.UserName,
		UserEmail:      view.UserEmail,
		ItemID:         view.ItemID,
		ItemType:       string(view.ItemType),
		ItemTitle:      view.ItemTitle,
		Quantity:       view.Quantity,
		TotalPrice:     view.TotalPrice.StringFixed(2),
		Status:         view.Status,
		PreviousStatus: previous,
		BookingDate:    view.BookingDate,
		ChangedByID:    changedByID,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", view.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, view models.BookingView, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var status string
	if taskType == models.SyncTaskUpdateStatus {
		status = view.Status
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, view.ID, &view, status); err != nil {
		s.logger.Error().Err(err).Str("booking_id", view.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
