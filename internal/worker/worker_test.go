package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"voyagr/internal/database"
	"voyagr/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSheets struct {
	appendCalls int
	updateCalls int
	failAppends int
	lastStatus  string
}

func (f *fakeSheets) AppendStatusRow(ctx context.Context, b *models.Booking, c *models.StatusChange) error {
	f.appendCalls++
	if f.appendCalls <= f.failAppends {
		return errors.New("sheets unavailable")
	}
	return nil
}

func (f *fakeSheets) UpdateBookingStatus(ctx context.Context, bookingID, status string) error {
	f.updateCalls++
	f.lastStatus = status
	return nil
}

func newTestWorker(t *testing.T, sheets *fakeSheets, redisClient *redis.Client) (*SyncWorker, *database.DB) {
	t.Helper()
	db, err := database.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zerolog.New(io.Discard)
	return NewSyncWorker(db, sheets, redisClient, RetryPolicy{}, &logger), db
}

func workerFixture(t *testing.T, db *database.DB) (*models.Booking, *models.StatusChange) {
	t.Helper()
	booking := &models.Booking{
		ID:         "bk-100",
		CustomerID: "cust-1",
		Status:     models.StatusConfirmed,
		DateTime:   time.Now().Add(48 * time.Hour),
		CreatedAt:  time.Now(),
	}
	require.NoError(t, db.CreateBooking(context.Background(), booking))
	change := &models.StatusChange{
		ID:          "ch-1",
		BookingID:   booking.ID,
		FromStatus:  models.StatusPending,
		ToStatus:    models.StatusConfirmed,
		TriggeredBy: models.TriggeredBySystem,
		Timestamp:   time.Now(),
	}
	return booking, change
}

func TestProcessTaskSuccess(t *testing.T) {
	sheets := &fakeSheets{}
	w, db := newTestWorker(t, sheets, nil)
	ctx := context.Background()
	booking, change := workerFixture(t, db)

	require.NoError(t, w.EnqueueStatusChange(ctx, booking, change))

	task, ok := w.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	w.processTask(ctx, &task)

	assert.Equal(t, 1, sheets.appendCalls)
	assert.Equal(t, 1, sheets.updateCalls)
	assert.Equal(t, models.StatusConfirmed, sheets.lastStatus)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "completed task must leave the queue")
}

func TestProcessTaskRetry(t *testing.T) {
	sheets := &fakeSheets{failAppends: 1}
	w, db := newTestWorker(t, sheets, nil)
	ctx := context.Background()
	booking, change := workerFixture(t, db)

	require.NoError(t, w.EnqueueStatusChange(ctx, booking, change))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)

	// first attempt fails and schedules a retry in the future
	w.processTask(ctx, &task)
	assert.Equal(t, 1, sheets.appendCalls)
	assert.Zero(t, sheets.updateCalls)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "retry must not be due immediately")
}

func TestProcessTaskBadPayload(t *testing.T) {
	sheets := &fakeSheets{}
	w, db := newTestWorker(t, sheets, nil)
	ctx := context.Background()

	task := models.SyncTask{
		TaskType:  TaskStatusChange,
		BookingID: "bk-1",
		Payload:   "{not json",
		Status:    "pending",
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.CreateSyncTask(ctx, &task))

	w.processTask(ctx, &task)
	assert.Zero(t, sheets.appendCalls)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "undecodable task is failed, not retried")
}

func TestEnqueueRedisFastPath(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	sheets := &fakeSheets{}
	w, db := newTestWorker(t, sheets, client)
	ctx := context.Background()
	booking, change := workerFixture(t, db)

	require.NoError(t, w.EnqueueStatusChange(ctx, booking, change))

	// task went through redis, not the local channel
	_, ok := w.tryLocalQueue()
	assert.False(t, ok)

	task, ok := w.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, TaskStatusChange, task.TaskType)
	assert.Equal(t, booking.ID, task.BookingID)

	w.processTask(ctx, &task)
	assert.Equal(t, 1, sheets.appendCalls)
	assert.Equal(t, 1, sheets.updateCalls)
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 10*time.Second, policy.NextDelay(10), "delay is clamped at MaxDelay")
	assert.Equal(t, time.Second, policy.NextDelay(0), "attempt below 1 is treated as 1")
}
