package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/events"
	"urbanharvest/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type bookingFixture struct {
	svc     *BookingService
	repo    *mockBookingRepo
	catalog *CatalogService
	items   *fakeCatalog
	bus     *mockPublisher
	sync    *mockSyncWorker
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	logger := zerolog.Nop()
	catalog, items := newTestCatalogService(tomatoBox, compostWorkshop, harvestFair)
	f := &bookingFixture{
		repo:    new(mockBookingRepo),
		catalog: catalog,
		items:   items,
		bus:     new(mockPublisher),
		sync:    new(mockSyncWorker),
	}
	f.svc = NewBookingService(f.repo, catalog, f.bus, f.sync, &logger)
	f.svc.now = func() time.Time { return time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC) }
	return f
}

func pendingBooking(id string, userID *int64, item models.CatalogItem, qty int) *models.Booking {
	return &models.Booking{
		ID:          id,
		UserID:      userID,
		ItemID:      item.ID,
		ItemType:    item.Type,
		Quantity:    qty,
		TotalPrice:  item.Price.Mul(decimal.NewFromInt(int64(qty))),
		Status:      models.StatusPending,
		BookingDate: time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC),
		UserName:    "Ada",
		UserEmail:   "ada@example.com",
	}
}

func TestBookingService_CreateGuest(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	f.repo.On("CreateBooking", ctx, mock.AnythingOfType("*models.Booking")).Return(nil).Once()
	f.bus.On("PublishJSON", events.EventBookingCreated, mock.Anything).Return(nil).Once()
	f.sync.On("EnqueueTask", ctx, models.SyncTaskUpsert, mock.Anything, mock.Anything, "").Return(nil).Once()

	view, created, err := f.svc.Create(ctx, CreateBookingInput{
		ItemID: "wk-1", ItemType: models.ItemTypeWorkshop,
		UserName: "Ada", UserEmail: "ada@example.com", Quantity: 2,
	}, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Nil(t, view.UserID)
	assert.Equal(t, models.StatusPending, view.Status)
	assert.True(t, decimal.RequireFromString("60").Equal(view.TotalPrice))
	assert.Equal(t, "Composting 101", view.ItemTitle)
	assert.NotEmpty(t, view.ID)

	f.repo.AssertExpectations(t)
	f.bus.AssertExpectations(t)
	f.sync.AssertExpectations(t)
}

func TestBookingService_CreateAuthenticated(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	f.repo.On("FindPendingBooking", ctx, customer.UserID, models.ItemTypeEvent, "evt-1").Return(nil, domain.ErrNotFound).Once()
	f.repo.On("CreateBooking", ctx, mock.MatchedBy(func(b *models.Booking) bool {
		return b.UserID != nil && *b.UserID == customer.UserID && b.Quantity == 1
	})).Return(nil).Once()
	f.bus.On("PublishJSON", events.EventBookingCreated, mock.Anything).Return(nil)
	f.sync.On("EnqueueTask", ctx, models.SyncTaskUpsert, mock.Anything, mock.Anything, "").Return(nil)

	view, created, err := f.svc.Create(ctx, CreateBookingInput{
		ItemID: "evt-1", ItemType: models.ItemTypeEvent, UserName: "Ada", UserEmail: "ada@example.com",
	}, customer)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, view.UserID)
	assert.Equal(t, customer.UserID, *view.UserID)
	assert.True(t, decimal.NewFromInt(5).Equal(view.TotalPrice))
	f.repo.AssertExpectations(t)
}

func TestBookingService_CreateReturnsExistingPending(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	uid := customer.UserID
	existing := pendingBooking("b-1", &uid, compostWorkshop, 1)
	f.repo.On("FindPendingBooking", ctx, uid, models.ItemTypeWorkshop, "wk-1").Return(existing, nil).Once()

	view, created, err := f.svc.Create(ctx, CreateBookingInput{
		ItemID: "wk-1", ItemType: models.ItemTypeWorkshop, UserName: "Ada", UserEmail: "ada@example.com",
	}, customer)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "b-1", view.ID)
	f.repo.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	f.bus.AssertNotCalled(t, "PublishJSON", mock.Anything, mock.Anything)
}

func TestBookingService_CreateRaceFallsBackToExisting(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	uid := customer.UserID
	existing := pendingBooking("b-race", &uid, compostWorkshop, 1)
	f.repo.On("FindPendingBooking", ctx, uid, models.ItemTypeWorkshop, "wk-1").Return(nil, domain.ErrNotFound).Once()
	f.repo.On("CreateBooking", ctx, mock.Anything).Return(domain.ErrConflict).Once()
	f.repo.On("FindPendingBooking", ctx, uid, models.ItemTypeWorkshop, "wk-1").Return(existing, nil).Once()

	view, created, err := f.svc.Create(ctx, CreateBookingInput{
		ItemID: "wk-1", ItemType: models.ItemTypeWorkshop, UserName: "Ada", UserEmail: "ada@example.com",
	}, customer)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "b-race", view.ID)
}

func TestBookingService_CreateErrors(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.Create(ctx, CreateBookingInput{
		ItemID: "wk-404", ItemType: models.ItemTypeWorkshop, UserName: "Ada", UserEmail: "ada@example.com",
	}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = f.svc.Create(ctx, CreateBookingInput{ItemID: "wk-1", ItemType: models.ItemTypeWorkshop}, nil)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "userName")
	assert.Contains(t, verr.Fields, "userEmail")

	_, _, err = f.svc.Create(ctx, CreateBookingInput{
		ItemID: "wk-1", ItemType: "course", UserName: "Ada", UserEmail: "ada@example.com",
	}, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, _, err = f.svc.Create(ctx, CreateBookingInput{
		ItemID: "wk-1", ItemType: models.ItemTypeWorkshop, UserName: "Ada", UserEmail: "ada@example.com", Quantity: -3,
	}, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	f.repo.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestBookingService_ListForUserWithDanglingItem(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	uid := customer.UserID
	live := pendingBooking("b-live", &uid, harvestFair, 1)
	gone := pendingBooking("b-gone", &uid, compostWorkshop, 1)
	f.repo.On("ListBookingsByUser", ctx, uid).Return([]*models.Booking{live, gone}, nil)

	require.NoError(t, f.catalog.Delete(ctx, admin, models.ItemTypeWorkshop, "wk-1"))

	views, err := f.svc.ListForUser(ctx, uid)
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, "Harvest Fair", views[0].ItemTitle)
	require.NotNil(t, views[0].Item)

	assert.Nil(t, views[1].Item)
	assert.Equal(t, models.DeletedItemTitle, views[1].ItemTitle)
	assert.Equal(t, "b-gone", views[1].ID)
}

func TestBookingService_ListReflectsCurrentCatalog(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	uid := customer.UserID
	f.repo.On("ListBookingsByUser", ctx, uid).Return([]*models.Booking{pendingBooking("b-1", &uid, harvestFair, 2)}, nil)

	renamed := harvestFair
	renamed.Title = "Winter Fair"
	renamed.Price = decimal.NewFromInt(50)
	require.NoError(t, f.catalog.Update(ctx, admin, &renamed))

	views, err := f.svc.ListForUser(ctx, uid)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Winter Fair", views[0].ItemTitle)
	// price is frozen at creation
	assert.True(t, decimal.NewFromInt(10).Equal(views[0].TotalPrice))
}

func TestBookingService_ListForUserFiltered(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	uid := customer.UserID
	wk := pendingBooking("b-wk", &uid, compostWorkshop, 1)
	ev := pendingBooking("b-ev", &uid, harvestFair, 1)
	ev.Status = models.StatusConfirmed
	f.repo.On("ListBookingsByUser", ctx, uid).Return([]*models.Booking{wk, ev}, nil)

	views, err := f.svc.ListForUserFiltered(ctx, uid, models.BookingFilter{Location: "leeds"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "b-wk", views[0].ID)

	views, err = f.svc.ListForUserFiltered(ctx, uid, models.BookingFilter{Status: models.StatusConfirmed})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "b-ev", views[0].ID)

	views, err = f.svc.ListForUserFiltered(ctx, uid, models.BookingFilter{ItemType: models.ItemTypeEvent, Location: "square"})
	require.NoError(t, err)
	assert.Len(t, views, 1)

	_, err = f.svc.ListForUserFiltered(ctx, uid, models.BookingFilter{Status: "archived"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBookingService_ListAllRequiresAdmin(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListAll(ctx, customer)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	f.repo.On("ListBookings", ctx).Return([]*models.Booking{pendingBooking("b-1", nil, tomatoBox, 3)}, nil)
	views, err := f.svc.ListAll(ctx, admin)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, decimal.RequireFromString("37.5").Equal(views[0].TotalPrice))
}

func TestBookingService_UpdateStatusForbiddenLeavesRecord(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, "b-1", models.StatusConfirmed, customer)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.UpdateStatus(ctx, "b-1", models.StatusConfirmed, nil)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	f.repo.AssertNotCalled(t, "GetBooking", mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "UpdateBookingStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_UpdateStatus(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	t.Run("invalid status", func(t *testing.T) {
		_, err := f.svc.UpdateStatus(ctx, "b-1", "completed", admin)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("missing booking", func(t *testing.T) {
		f.repo.On("GetBooking", ctx, "b-404").Return(nil, domain.ErrNotFound).Once()
		_, err := f.svc.UpdateStatus(ctx, "b-404", models.StatusConfirmed, admin)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("cancelled may return to pending", func(t *testing.T) {
		b := pendingBooking("b-1", nil, harvestFair, 1)
		b.Status = models.StatusCancelled
		f.repo.On("GetBooking", ctx, "b-1").Return(b, nil).Once()
		f.repo.On("UpdateBookingStatus", ctx, "b-1", models.StatusPending).Return(nil).Once()
		f.bus.On("PublishJSON", events.EventBookingStatusChanged, mock.MatchedBy(func(p events.BookingEventPayload) bool {
			return p.PreviousStatus == models.StatusCancelled && p.Status == models.StatusPending && p.ChangedByID == admin.UserID
		})).Return(nil).Once()
		f.sync.On("EnqueueTask", ctx, models.SyncTaskUpdateStatus, "b-1", mock.Anything, models.StatusPending).Return(nil).Once()

		view, err := f.svc.UpdateStatus(ctx, "b-1", models.StatusPending, admin)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, view.Status)
	})

	t.Run("event bus failure does not fail the update", func(t *testing.T) {
		b := pendingBooking("b-2", nil, harvestFair, 1)
		f.repo.On("GetBooking", ctx, "b-2").Return(b, nil).Once()
		f.repo.On("UpdateBookingStatus", ctx, "b-2", models.StatusConfirmed).Return(nil).Once()
		f.bus.On("PublishJSON", events.EventBookingStatusChanged, mock.Anything).Return(errors.New("bus down")).Once()
		f.sync.On("EnqueueTask", ctx, models.SyncTaskUpdateStatus, "b-2", mock.Anything, models.StatusConfirmed).Return(nil).Once()

		view, err := f.svc.UpdateStatus(ctx, "b-2", models.StatusConfirmed, admin)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, view.Status)
	})
}

func TestBookingService_Delete(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Delete(ctx, "b-1", customer), domain.ErrForbidden)

	f.repo.On("GetBooking", ctx, "b-404").Return(nil, domain.ErrNotFound).Once()
	assert.ErrorIs(t, f.svc.Delete(ctx, "b-404", admin), domain.ErrNotFound)

	f.repo.On("GetBooking", ctx, "b-1").Return(pendingBooking("b-1", nil, tomatoBox, 1), nil).Once()
	f.repo.On("DeleteBooking", ctx, "b-1").Return(nil).Once()
	f.bus.On("PublishJSON", events.EventBookingDeleted, mock.Anything).Return(nil).Once()
	f.sync.On("EnqueueTask", ctx, models.SyncTaskDelete, "b-1", mock.Anything, "").Return(nil).Once()

	require.NoError(t, f.svc.Delete(ctx, "b-1", admin))
	f.repo.AssertExpectations(t)
}
