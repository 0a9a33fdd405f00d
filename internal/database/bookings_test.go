package database

import (
	"context"
	"testing"
	"time"

	"urbanharvest/internal/domain"
	"urbanharvest/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestUser(t *testing.T, db *DB, username string) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", PasswordHash: "x", Role: models.RoleUser, Status: models.UserStatusActive}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func newBooking(userID *int64, itemType models.ItemType, itemID string, at time.Time) *models.Booking {
	return &models.Booking{
		ID:          uuid.NewString(),
		UserID:      userID,
		ItemID:      itemID,
		ItemType:    itemType,
		Quantity:    2,
		TotalPrice:  decimal.NewFromInt(100),
		Status:      models.StatusPending,
		BookingDate: at,
		UserName:    "Jane Doe",
		UserEmail:   "jane@example.com",
	}
}

func TestBookingCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "jane")

	base := time.Now().Add(-time.Hour)
	older := newBooking(&user.ID, models.ItemTypeWorkshop, "wk-1", base)
	newer := newBooking(&user.ID, models.ItemTypeEvent, "evt-1", base.Add(time.Minute))
	guest := newBooking(nil, models.ItemTypeEvent, "evt-1", base.Add(2*time.Minute))

	for _, b := range []*models.Booking{older, newer, guest} {
		require.NoError(t, db.CreateBooking(ctx, b))
	}

	got, err := db.GetBooking(ctx, older.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UserID)
	assert.Equal(t, user.ID, *got.UserID)
	assert.Equal(t, models.ItemTypeWorkshop, got.ItemType)
	assert.True(t, decimal.NewFromInt(100).Equal(got.TotalPrice))

	g, err := db.GetBooking(ctx, guest.ID)
	require.NoError(t, err)
	assert.Nil(t, g.UserID)

	all, err := db.ListBookings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, guest.ID, all[0].ID)
	assert.Equal(t, older.ID, all[2].ID)

	mine, err := db.ListBookingsByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	count, err := db.CountActiveBookings(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, db.UpdateBookingStatus(ctx, older.ID, models.StatusCancelled))
	count, err = db.CountActiveBookings(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, db.DeleteBooking(ctx, newer.ID))
	_, err = db.GetBooking(ctx, newer.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, db.DeleteBooking(ctx, newer.ID), domain.ErrNotFound)
	assert.ErrorIs(t, db.UpdateBookingStatus(ctx, "missing", models.StatusConfirmed), domain.ErrNotFound)
}

func TestBooking_PendingUniqueness(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "sam")
	now := time.Now()

	first := newBooking(&user.ID, models.ItemTypeWorkshop, "wk-1", now)
	require.NoError(t, db.CreateBooking(ctx, first))

	dup := newBooking(&user.ID, models.ItemTypeWorkshop, "wk-1", now)
	assert.ErrorIs(t, db.CreateBooking(ctx, dup), domain.ErrConflict)

	found, err := db.FindPendingBooking(ctx, user.ID, models.ItemTypeWorkshop, "wk-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	// guests are not constrained
	require.NoError(t, db.CreateBooking(ctx, newBooking(nil, models.ItemTypeWorkshop, "wk-1", now)))
	require.NoError(t, db.CreateBooking(ctx, newBooking(nil, models.ItemTypeWorkshop, "wk-1", now)))

	// once confirmed, a new pending booking is allowed again
	require.NoError(t, db.UpdateBookingStatus(ctx, first.ID, models.StatusConfirmed))
	again := newBooking(&user.ID, models.ItemTypeWorkshop, "wk-1", now)
	require.NoError(t, db.CreateBooking(ctx, again))

	// moving the confirmed one back to pending would duplicate
	assert.ErrorIs(t, db.UpdateBookingStatus(ctx, first.ID, models.StatusPending), domain.ErrConflict)
}

func TestBooking_SurvivesUserDeletion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, "gone")

	b := newBooking(&user.ID, models.ItemTypeEvent, "evt-9", time.Now())
	require.NoError(t, db.CreateBooking(ctx, b))
	require.NoError(t, db.DeleteUser(ctx, user.ID))

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got.UserID)
}

func TestBooking_InvalidStatusRejectedByStore(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	b := newBooking(nil, models.ItemTypeEvent, "evt-1", time.Now())
	require.NoError(t, db.CreateBooking(ctx, b))

	assert.Error(t, db.UpdateBookingStatus(ctx, b.ID, "completed"))
}
