package models

const (
	StatusPending           = "pending"
	StatusFailed            = "failed"
	StatusConfirmed         = "confirmed"
	StatusUpcoming          = "upcoming"
	StatusExploring         = "exploring"
	StatusCompleted         = "completed"
	StatusCancelled         = "cancelled"
	StatusRefunded          = "refunded"
	StatusPartiallyRefunded = "partially_refunded"
)

const (
	TriggeredBySystem    = "system"
	TriggeredByScheduler = "scheduler"
	TriggeredBySweep     = "sweep"
)

const (
	// DefaultPendingTimeoutHours — как долго заявка может висеть в pending
	DefaultPendingTimeoutHours = 24

	// DefaultUpcomingThresholdHours окно перехода confirmed -> upcoming
	DefaultUpcomingThresholdHours = 24

	// DefaultExploringStartOffsetHours offset перед стартом для upcoming -> exploring
	DefaultExploringStartOffsetHours = 0

	// DefaultDurationHours длительность, если бронирование её не задаёт
	DefaultDurationHours = 3

	// DefaultSweepIntervalMinutes период фонового прохода
	DefaultSweepIntervalMinutes = 5

	// DefaultHistoryRetentionDays горизонт хранения истории статусов
	DefaultHistoryRetentionDays = 180

	// DefaultReviewRequestDelayHours задержка запроса отзыва после completed
	DefaultReviewRequestDelayHours = 24

	// SyncWorkerQueueSize размер очереди воркера
	SyncWorkerQueueSize = 1000
)
