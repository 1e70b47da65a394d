package repository

import (
	"context"
	"sync/atomic"
	"time"

	"voyagr/internal/domain"
	"voyagr/internal/models"

	"github.com/rs/zerolog"
)

// FailoverBookingCache serves from the primary (redis) cache and falls back
// to the in-memory cache when the primary errors. After a minute it probes
// the primary again.
type FailoverBookingCache struct {
	primary   domain.BookingCache
	fallback  domain.BookingCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverBookingCache(primary, fallback domain.BookingCache, logger *zerolog.Logger) *FailoverBookingCache {
	return &FailoverBookingCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverBookingCache) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary booking cache failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverBookingCache) shouldProbe() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverBookingCache) Get(ctx context.Context, id string) (*models.Booking, error) {
	if !r.isDown.Load() {
		booking, err := r.primary.Get(ctx, id)
		if err == nil {
			return booking, nil
		}
		r.markDown(err)
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && r.shouldProbe() {
		booking, err := r.primary.Get(ctx, id)
		if err == nil {
			r.isDown.Store(false)
			return booking, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.Get(ctx, id)
}

func (r *FailoverBookingCache) Set(ctx context.Context, booking *models.Booking) error {
	if !r.isDown.Load() {
		err := r.primary.Set(ctx, booking)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Set(ctx, booking)
}

func (r *FailoverBookingCache) Invalidate(ctx context.Context, id string) error {
	// Invalidation goes to both layers so a recovered primary never serves
	// a snapshot the fallback already dropped.
	var primaryErr error
	if !r.isDown.Load() {
		primaryErr = r.primary.Invalidate(ctx, id)
		if primaryErr != nil {
			r.markDown(primaryErr)
		}
	}

	return r.fallback.Invalidate(ctx, id)
}
