package worker

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"urbanharvest/internal/config"
	"urbanharvest/internal/database"
	"urbanharvest/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testView(id string) *models.BookingView {
	v := models.NewBookingView(models.Booking{
		ID:          id,
		ItemID:      "wk-1",
		ItemType:    models.ItemTypeWorkshop,
		Quantity:    1,
		TotalPrice:  decimal.NewFromInt(30),
		Status:      models.StatusPending,
		BookingDate: time.Now(),
		UserName:    "tester",
		UserEmail:   "tester@example.com",
	}, &models.CatalogItem{ID: "wk-1", Type: models.ItemTypeWorkshop, Title: "Composting 101"})
	return &v
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, TaskUpsert, "b-1", testView("b-1"), ""))

	task, ok := worker.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusCompleted, status)
	assert.Zero(t, retryCount)
	assert.False(t, nextRetry.Valid, "next_retry_at must be NULL on success")
	assert.Equal(t, 1, sheets.upsertCalls)
	assert.Equal(t, "Composting 101", sheets.lastUpsert.ItemTitle)
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, Jitter: 0.5}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, TaskUpsert, "b-2", testView("b-2"), ""))

	task, ok := worker.tryLocalQueue()
	require.True(t, ok)
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusRetry, status)
	assert.Equal(t, 1, retryCount)
	require.True(t, nextRetry.Valid)
	assert.True(t, nextRetry.Time.After(time.Now()), "next_retry_at must be in the future")
}

func TestProcessTaskFailGoesToDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewSheetsWorker(db, sheets, rdb, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, TaskUpsert, "b-3", testView("b-3"), ""))

	// with redis configured the task goes there, not to the local channel
	_, ok := worker.tryLocalQueue()
	assert.False(t, ok)
	task, ok := worker.tryRedis(ctx)
	require.True(t, ok)
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)

	dead, err := rdb.LLen(ctx, "sheets:deadletter").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), dead)

	n, err := worker.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b-3", pending[0].BookingID)
}

func TestSheetsWorker_Resync(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3}, nil)
	ctx := context.Background()

	require.NoError(t, worker.EnqueueResync(ctx))
	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskResync, tasks[0].TaskType)

	// no snapshot source yet
	worker.processTask(ctx, &tasks[0])
	status, _, _ := loadTaskStatus(t, db, tasks[0].ID)
	assert.Equal(t, models.SyncStatusRetry, status)

	worker.SetSnapshot(func(context.Context) ([]models.BookingView, error) {
		return []models.BookingView{*testView("b-1"), *testView("b-2")}, nil
	})
	require.NoError(t, worker.handleSheetTask(ctx, TaskResync, sheetTaskPayload{}))
	assert.Equal(t, 2, sheets.replaced)
}

func TestSheetsWorker_HandleSheetTask(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3}, nil)

	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		require.NoError(t, worker.handleSheetTask(ctx, TaskUpsert, sheetTaskPayload{Booking: testView("b-1")}))
		assert.Equal(t, 1, sheets.upsertCalls)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, worker.handleSheetTask(ctx, TaskDelete, sheetTaskPayload{BookingID: "b-123"}))
		assert.Equal(t, 1, sheets.deleteCalls)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		require.NoError(t, worker.handleSheetTask(ctx, TaskUpdateStatus, sheetTaskPayload{BookingID: "b-123", Status: "confirmed"}))
		assert.Equal(t, 1, sheets.statusCalls)
	})

	t.Run("MissingFields", func(t *testing.T) {
		assert.Error(t, worker.handleSheetTask(ctx, TaskUpsert, sheetTaskPayload{}))
		assert.Error(t, worker.handleSheetTask(ctx, TaskDelete, sheetTaskPayload{}))
		assert.Error(t, worker.handleSheetTask(ctx, TaskUpdateStatus, sheetTaskPayload{BookingID: "b-1"}))
		assert.Error(t, worker.handleSheetTask(ctx, "bogus", sheetTaskPayload{}))
	})
}

func TestSheetsWorker_StartDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, worker.EnqueueTask(ctx, TaskDelete, "b-9", nil, ""))

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		tasks, err := db.GetPendingSyncTasks(context.Background(), 10)
		return err == nil && len(tasks) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{60, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicy_Jitter(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 4 * time.Second, MaxDelay: time.Minute, Jitter: 0.25}

	policy.random = func() float64 { return 0 }
	assert.Equal(t, 3*time.Second, policy.Delay(1))
	policy.random = func() float64 { return 0.5 }
	assert.Equal(t, 4*time.Second, policy.Delay(1))
	policy.random = func() float64 { return 0.999 }
	assert.InDelta(t, float64(5*time.Second), float64(policy.Delay(1)), float64(10*time.Millisecond))

	policy.random = nil
	for i := 0; i < 50; i++ {
		d := policy.Delay(2)
		assert.GreaterOrEqual(t, d, 6*time.Second)
		assert.LessOrEqual(t, d, 10*time.Second)
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	policy := RetryPolicyFromConfig(config.GoogleSyncConfig{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 3 * time.Second, Jitter: 0.1})
	assert.Equal(t, 2, policy.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, policy.BaseDelay)
	assert.Equal(t, 3*time.Second, policy.MaxDelay)
	assert.Equal(t, 0.1, policy.Jitter)
	assert.False(t, policy.Exhausted(1))
	assert.True(t, policy.Exhausted(2))

	defaults := RetryPolicyFromConfig(config.GoogleSyncConfig{Jitter: 3})
	assert.Equal(t, 5, defaults.MaxRetries)
	assert.Equal(t, 2*time.Second, defaults.BaseDelay)
	assert.Equal(t, time.Minute, defaults.MaxDelay)
	assert.Equal(t, 1.0, defaults.Jitter)
}

func TestSheetsWorker_EnqueueTask(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	t.Run("ValidTask", func(t *testing.T) {
		assert.NoError(t, worker.EnqueueTask(ctx, TaskUpsert, "", testView("b-1"), ""))
	})

	t.Run("InvalidTaskType", func(t *testing.T) {
		assert.Error(t, worker.EnqueueTask(ctx, "", "b-1", nil, ""))
	})

	t.Run("InvalidBookingID", func(t *testing.T) {
		assert.Error(t, worker.EnqueueTask(ctx, TaskUpsert, "", nil, ""))
	})
}

func TestSheetsWorker_DecodePayload(t *testing.T) {
	worker := NewSheetsWorker(nil, nil, nil, RetryPolicy{}, nil)

	decoded, err := worker.decodePayload(`{"booking_id":"b-123","status":"confirmed"}`)
	require.NoError(t, err)
	assert.Equal(t, "b-123", decoded.BookingID)
	assert.Equal(t, "confirmed", decoded.Status)

	_, err = worker.decodePayload(`invalid json`)
	assert.Error(t, err)
}

// Helpers

type fakeSheets struct {
	err         error
	upsertCalls int
	deleteCalls int
	statusCalls int
	replaced    int
	lastUpsert  *models.BookingView
}

func (f *fakeSheets) UpsertBooking(ctx context.Context, b *models.BookingView) error {
	f.upsertCalls++
	f.lastUpsert = b
	return f.err
}

func (f *fakeSheets) DeleteBooking(ctx context.Context, id string) error {
	f.deleteCalls++
	return f.err
}

func (f *fakeSheets) UpdateBookingStatus(ctx context.Context, id, status string) error {
	f.statusCalls++
	return f.err
}

func (f *fakeSheets) ReplaceBookings(ctx context.Context, views []models.BookingView) error {
	f.replaced = len(views)
	return f.err
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	require.NoError(t, row.Scan(&status, &retryCount, &nextRetry))
	return status, retryCount, nextRetry
}
