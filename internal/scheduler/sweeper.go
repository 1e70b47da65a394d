// Package scheduler drives the time-based part of the booking lifecycle:
// the periodic sweep over active bookings and the dispatcher for durable
// deferred transitions.
package scheduler

import (
	"context"
	"time"

	"voyagr/internal/config"
	"voyagr/internal/domain"
	"voyagr/internal/metrics"
	"voyagr/internal/models"

	"github.com/rs/zerolog"
)

// Sweeper periodically walks the active bookings and applies the
// time-driven rules: pending bookings expire, confirmed bookings move into
// the upcoming window, upcoming into exploring, exploring into completed.
// Each transition goes through the engine, so the table and the side-effect
// dispatch apply exactly as for a manual update.
type Sweeper struct {
	repo   domain.Repository
	engine domain.StatusEngine
	cfg    config.EngineConfig
	logger *zerolog.Logger
}

func NewSweeper(repo domain.Repository, engine domain.StatusEngine, cfg config.EngineConfig, logger *zerolog.Logger) *Sweeper {
	return &Sweeper{
		repo:   repo,
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs the sweep loop until ctx is cancelled. The first pass runs
// immediately.
func (s *Sweeper) Start(ctx context.Context) {
	interval := s.cfg.SweepInterval()
	if interval <= 0 {
		interval = models.DefaultSweepIntervalMinutes * time.Minute
	}

	s.logger.Info().Dur("interval", interval).Msg("Status sweeper started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Status sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass. A failure on one booking is logged
// and does not stop the pass.
func (s *Sweeper) RunOnce(ctx context.Context) {
	started := time.Now()

	bookings, err := s.repo.ListActiveBookings(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep: list active bookings failed")
		return
	}

	var moved int
	for _, booking := range bookings {
		target, reason := s.evaluate(booking, started)
		if target == "" {
			continue
		}

		_, err := s.engine.UpdateBookingStatus(ctx, booking.ID, target, reason,
			map[string]string{domain.MetaTriggeredBy: models.TriggeredBySweep})
		if err != nil {
			// Гонка со штатным обновлением — не ошибка свипа
			s.logger.Warn().Err(err).
				Str("booking_id", booking.ID).
				Str("target", target).
				Msg("sweep: transition rejected")
			continue
		}
		moved++
	}

	s.purgeHistory(ctx, started)

	metrics.ObserveSweep(time.Since(started).Seconds())
	s.logger.Debug().
		Int("checked", len(bookings)).
		Int("moved", moved).
		Msg("sweep pass finished")
}

// evaluate returns the target status a booking is due for, or "" if it
// should stay where it is.
func (s *Sweeper) evaluate(booking *models.Booking, now time.Time) (string, string) {
	switch booking.Status {
	case models.StatusPending:
		if now.Sub(booking.CreatedAt) >= hours(s.cfg.PendingTimeoutHours) {
			return models.StatusFailed, "auto-expired"
		}

	case models.StatusConfirmed:
		until := booking.DateTime.Sub(now)
		if until > 0 && until <= hours(s.cfg.UpcomingThresholdHours) {
			return models.StatusUpcoming, "upcoming window reached"
		}

	case models.StatusUpcoming:
		if booking.DateTime.Sub(now) <= hours(s.cfg.ExploringStartOffsetHours) {
			return models.StatusExploring, "experience started"
		}

	case models.StatusExploring:
		duration := booking.DurationHours
		if duration <= 0 {
			duration = s.cfg.DefaultDurationHours
		}
		if !now.Before(booking.DateTime.Add(hours(duration))) {
			return models.StatusCompleted, "experience finished"
		}
	}
	return "", ""
}

// purgeHistory trims status history beyond the retention horizon, always
// keeping the latest entry per booking.
func (s *Sweeper) purgeHistory(ctx context.Context, now time.Time) {
	if s.cfg.HistoryRetentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -s.cfg.HistoryRetentionDays)
	removed, err := s.repo.PurgeStatusHistory(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep: history purge failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("status history purged")
	}
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
