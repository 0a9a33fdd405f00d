package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"urbanharvest/internal/database"
	"urbanharvest/internal/domain"
	"urbanharvest/internal/metrics"
	"urbanharvest/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskUpsert       = models.SyncTaskUpsert
	TaskDelete       = models.SyncTaskDelete
	TaskUpdateStatus = models.SyncTaskUpdateStatus
	// TaskResync rewrites the whole bookings sheet from the ledger.
	TaskResync = "resync"
)

// resyncBookingID marks tasks that are not about a single booking.
const resyncBookingID = "*"

// sheetTaskPayload is persisted in SyncTask.Payload as JSON.
type sheetTaskPayload struct {
	BookingID string              `json:"booking_id"`
	Booking   *models.BookingView `json:"booking,omitempty"`
	Status    string              `json:"status,omitempty"`
}

// SnapshotFunc lists every booking for a full resync.
type SnapshotFunc func(ctx context.Context) ([]models.BookingView, error)

// SheetsWorker mirrors ledger changes into the bookings spreadsheet. Tasks
// are persisted in sync_queue first, then handed over through Redis or an
// in-memory channel; the database poll picks up anything both missed.
type SheetsWorker struct {
	db            *database.DB
	sheets        domain.SheetsWriter
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	snapshot      SnapshotFunc
	logger        zerolog.Logger
}

// NewSheetsWorker builds a worker with sane defaults.
func NewSheetsWorker(db *database.DB, sheets domain.SheetsWriter, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SheetsWorker {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sheets_worker").Logger()
	}

	return &SheetsWorker{
		db:            db,
		sheets:        sheets,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "sheets:queue",
		deadLetterKey: "sheets:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        l,
	}
}

// SetSnapshot wires the source used by resync tasks.
func (w *SheetsWorker) SetSnapshot(fn SnapshotFunc) {
	w.snapshot = fn
}

// EnqueueTask persists the task and schedules it via redis or the in-memory queue.
func (w *SheetsWorker) EnqueueTask(ctx context.Context, taskType, bookingID string, booking *models.BookingView, status string) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if bookingID == "" && booking != nil {
		bookingID = booking.ID
	}
	if bookingID == "" {
		return errors.New("booking id is required")
	}

	payloadBytes, err := json.Marshal(sheetTaskPayload{
		BookingID: bookingID,
		Booking:   booking,
		Status:    status,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	syncTask := models.SyncTask{
		TaskType:  taskType,
		BookingID: bookingID,
		Payload:   string(payloadBytes),
		Status:    models.SyncStatusPending,
		CreatedAt: time.Now(),
	}

	if err := w.db.CreateSyncTask(ctx, &syncTask); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}
	metrics.IncSyncTask(taskType, "enqueued")

	if w.redis != nil {
		if err := w.pushRedis(ctx, syncTask); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- syncTask:
	default:
		w.logger.Warn().Int64("task_id", syncTask.ID).Msg("in-memory queue full, task left to polling")
	}

	return nil
}

// EnqueueResync schedules a full rewrite of the sheet.
func (w *SheetsWorker) EnqueueResync(ctx context.Context) error {
	return w.EnqueueTask(ctx, TaskResync, resyncBookingID, nil, "")
}

// RetryFailed puts every failed task back into the pending state.
func (w *SheetsWorker) RetryFailed(ctx context.Context) (int, error) {
	tasks, err := w.db.GetFailedSyncTasks(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range tasks {
		if err := w.db.UpdateSyncTaskStatus(ctx, t.ID, models.SyncStatusPending, "", nil); err != nil {
			return 0, err
		}
	}
	if len(tasks) > 0 {
		w.logger.Info().Int("count", len(tasks)).Msg("failed sync tasks requeued")
	}
	return len(tasks), nil
}

// Start launches the main loop; it returns when ctx is done.
func (w *SheetsWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("started")
	defer w.logger.Info().Msg("stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending")
			w.sleep(ctx)
			continue
		}
		if len(tasks) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *SheetsWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *SheetsWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SheetsWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *SheetsWorker) processTask(ctx context.Context, task *models.SyncTask) {
	payload, err := w.decodePayload(task.Payload)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	if err := w.handleSheetTask(ctx, task.TaskType, payload); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
	metrics.IncSyncTask(task.TaskType, models.SyncStatusCompleted)
}

func (w *SheetsWorker) handleSheetTask(ctx context.Context, taskType string, payload sheetTaskPayload) error {
	switch taskType {
	case TaskUpsert:
		if payload.Booking == nil {
			return errors.New("booking payload missing")
		}
		return w.sheets.UpsertBooking(ctx, payload.Booking)
	case TaskDelete:
		if payload.BookingID == "" {
			return errors.New("booking id missing")
		}
		return w.sheets.DeleteBooking(ctx, payload.BookingID)
	case TaskUpdateStatus:
		if payload.BookingID == "" || payload.Status == "" {
			return errors.New("booking id or status missing")
		}
		return w.sheets.UpdateBookingStatus(ctx, payload.BookingID, payload.Status)
	case TaskResync:
		if w.snapshot == nil {
			return errors.New("resync source not configured")
		}
		views, err := w.snapshot(ctx)
		if err != nil {
			return fmt.Errorf("load bookings: %w", err)
		}
		return w.sheets.ReplaceBookings(ctx, views)
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}
}

func (w *SheetsWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.Delay(attempt))
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	metrics.IncSyncTask(task.TaskType, models.SyncStatusRetry)
	w.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Str("booking_id", task.BookingID).
		Int("attempt", attempt).
		Time("next_retry_at", nextTime).
		Msg("sheet task failed, will retry")
}

func (w *SheetsWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	metrics.IncSyncTask(task.TaskType, models.SyncStatusFailed)
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("booking_id", task.BookingID).Msg("sheet task failed")
	w.pushDeadLetter(ctx, task)
}

func (w *SheetsWorker) decodePayload(raw string) (sheetTaskPayload, error) {
	var payload sheetTaskPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (w *SheetsWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SheetsWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
