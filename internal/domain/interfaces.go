package domain

import (
	"context"
	"time"

	"voyagr/internal/models"
)

// Metadata keys understood by the status engine.
const (
	MetaProductID    = "product_id"
	MetaTriggeredBy  = "triggered_by"
	MetaRefundAmount = "refund_amount"
)

type Repository interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	SaveBooking(ctx context.Context, booking *models.Booking) error
	ListActiveBookings(ctx context.Context) ([]*models.Booking, error)
	ListBookings(ctx context.Context) ([]*models.Booking, error)
	PurgeStatusHistory(ctx context.Context, olderThan time.Time) (int64, error)

	ScheduleTransition(ctx context.Context, st *models.ScheduledTransition) error
	GetDueTransitions(ctx context.Context, now time.Time, limit int) ([]models.ScheduledTransition, error)
	ResolveTransition(ctx context.Context, id int64, status string) error

	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// EmailSender delivers templated notifications. Delivery is fire-and-forget
// from the engine's point of view.
type EmailSender interface {
	SendEmail(ctx context.Context, booking *models.Booking, template string, data map[string]string) error
}

type InventoryService interface {
	ConfirmHold(ctx context.Context, booking *models.Booking) error
	ReleaseHold(ctx context.Context, booking *models.Booking) error
	ScheduleTicketDelivery(ctx context.Context, booking *models.Booking) error
}

type FinanceService interface {
	ProcessRefund(ctx context.Context, booking *models.Booking, kind string) error
	UpdateLedger(ctx context.Context, booking *models.Booking, kind string) error
	CreateRebookingOffer(ctx context.Context, booking *models.Booking) error
}

type LoyaltyService interface {
	AwardPoints(ctx context.Context, booking *models.Booking) error
	GenerateCompletionArtifact(ctx context.Context, booking *models.Booking) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SheetsWriter interface {
	AppendStatusRow(ctx context.Context, booking *models.Booking, change *models.StatusChange) error
	UpdateBookingStatus(ctx context.Context, bookingID string, status string) error
}

type SyncWorker interface {
	EnqueueStatusChange(ctx context.Context, booking *models.Booking, change *models.StatusChange) error
}

// BookingCache is a read-path snapshot cache; misses are not errors.
type BookingCache interface {
	Get(ctx context.Context, id string) (*models.Booking, error)
	Set(ctx context.Context, booking *models.Booking) error
	Invalidate(ctx context.Context, id string) error
}

// StatusEngine is the booking lifecycle engine surface consumed by the HTTP
// layer and the schedulers.
type StatusEngine interface {
	UpdateBookingStatus(ctx context.Context, bookingID, newStatus, reason string, metadata map[string]string) (*models.Booking, error)
	Report(ctx context.Context) (*models.StatusReport, error)
}
