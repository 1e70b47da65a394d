package scheduler

import (
	"context"
	"errors"
	"time"

	"voyagr/internal/config"
	"voyagr/internal/database"
	"voyagr/internal/domain"
	"voyagr/internal/models"
	"voyagr/internal/service"

	"github.com/rs/zerolog"
)

const dispatchBatchSize = 50

// Dispatcher fires durable deferred transitions. Rows survive restarts; a
// transition that became illegal while waiting (the booking was cancelled,
// for example) is resolved as skipped instead of being forced through.
type Dispatcher struct {
	repo   domain.Repository
	engine domain.StatusEngine
	cfg    config.EngineConfig
	logger *zerolog.Logger
}

func NewDispatcher(repo domain.Repository, engine domain.StatusEngine, cfg config.EngineConfig, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
}

// Start polls for due transitions until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	interval := d.cfg.DispatchInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}

	d.logger.Info().Dur("interval", interval).Msg("Transition dispatcher started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Transition dispatcher stopped")
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce fires every due transition once.
func (d *Dispatcher) RunOnce(ctx context.Context) {
	due, err := d.repo.GetDueTransitions(ctx, time.Now(), dispatchBatchSize)
	if err != nil {
		d.logger.Error().Err(err).Msg("dispatcher: fetch due transitions failed")
		return
	}

	for i := range due {
		d.fire(ctx, &due[i])
	}
}

func (d *Dispatcher) fire(ctx context.Context, st *models.ScheduledTransition) {
	_, err := d.engine.UpdateBookingStatus(ctx, st.BookingID, st.ToStatus, st.Reason,
		map[string]string{domain.MetaTriggeredBy: models.TriggeredByScheduler})

	switch {
	case err == nil:
		d.resolve(ctx, st, models.ScheduleStatusDone)

	case isPermanentlyUnfireable(err):
		// Бронь ушла с нужного статуса или удалена — повторять бессмысленно
		d.logger.Info().Err(err).
			Str("booking_id", st.BookingID).
			Str("to_status", st.ToStatus).
			Msg("dispatcher: deferred transition skipped")
		d.resolve(ctx, st, models.ScheduleStatusSkipped)

	default:
		// Transient failure: leave the row pending for the next pass.
		d.logger.Error().Err(err).
			Str("booking_id", st.BookingID).
			Str("to_status", st.ToStatus).
			Msg("dispatcher: deferred transition failed, will retry")
	}
}

func (d *Dispatcher) resolve(ctx context.Context, st *models.ScheduledTransition, status string) {
	if err := d.repo.ResolveTransition(ctx, st.ID, status); err != nil {
		d.logger.Error().Err(err).Int64("transition_id", st.ID).Msg("dispatcher: resolve failed")
	}
}

func isPermanentlyUnfireable(err error) bool {
	var invalid *service.InvalidTransitionError
	return errors.As(err, &invalid) || errors.Is(err, database.ErrBookingNotFound)
}
