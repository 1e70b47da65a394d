package service

import (
	"context"
	"sync"
	"time"

	"voyagr/internal/config"
	"voyagr/internal/domain"
	"voyagr/internal/events"
	"voyagr/internal/metrics"
	"voyagr/internal/models"
	"voyagr/internal/status"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StatusManager owns the booking lifecycle: it validates transitions against
// the static table, mutates status and history, recomputes the aggregate
// status of multi-product bookings, persists, and only then dispatches
// side effects. Mutations for the same booking id are serialized; different
// ids proceed concurrently.
type StatusManager struct {
	repo       domain.Repository
	cache      domain.BookingCache
	eventBus   domain.EventPublisher
	syncWorker domain.SyncWorker
	email      domain.EmailSender
	inventory  domain.InventoryService
	finance    domain.FinanceService
	loyalty    domain.LoyaltyService
	cfg        config.EngineConfig
	logger     *zerolog.Logger

	locks sync.Map // booking id -> *sync.Mutex
	wg    sync.WaitGroup
}

func NewStatusManager(
	repo domain.Repository,
	cache domain.BookingCache,
	eventBus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	email domain.EmailSender,
	inventory domain.InventoryService,
	finance domain.FinanceService,
	loyalty domain.LoyaltyService,
	cfg config.EngineConfig,
	logger *zerolog.Logger,
) *StatusManager {
	if cfg.DefaultDurationHours <= 0 {
		cfg.DefaultDurationHours = models.DefaultDurationHours
	}
	return &StatusManager{
		repo:       repo,
		cache:      cache,
		eventBus:   eventBus,
		syncWorker: syncWorker,
		email:      email,
		inventory:  inventory,
		finance:    finance,
		loyalty:    loyalty,
		cfg:        cfg,
		logger:     logger,
	}
}

func (m *StatusManager) lockFor(id string) *sync.Mutex {
	v, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// UpdateBookingStatus applies a validated transition to a booking and
// records provenance. On an illegal edge the booking is left untouched and
// an *InvalidTransitionError is returned. Side-effect dispatch happens
// after the commit and never rolls the status change back.
func (m *StatusManager) UpdateBookingStatus(ctx context.Context, bookingID, newStatus, reason string, metadata map[string]string) (*models.Booking, error) {
	mu := m.lockFor(bookingID)
	mu.Lock()
	defer mu.Unlock()

	booking, err := m.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	fromStatus := booking.Status
	if !status.CanTransition(fromStatus, newStatus) {
		metrics.IncInvalidTransition(fromStatus, newStatus)
		m.publish(events.EventTransitionRejected, events.StatusChangedPayload{
			BookingID:  bookingID,
			FromStatus: fromStatus,
			ToStatus:   newStatus,
			Reason:     reason,
			ChangedAt:  time.Now(),
		})
		return nil, &InvalidTransitionError{BookingID: bookingID, From: fromStatus, To: newStatus}
	}

	triggeredBy := metadata[domain.MetaTriggeredBy]
	if triggeredBy == "" {
		triggeredBy = models.TriggeredBySystem
	}

	now := time.Now()
	change := models.StatusChange{
		ID:          uuid.NewString(),
		BookingID:   bookingID,
		FromStatus:  fromStatus,
		ToStatus:    newStatus,
		Reason:      reason,
		TriggeredBy: triggeredBy,
		Metadata:    metadata,
		Timestamp:   now,
	}

	// Продуктовые статусы считаются до смены booking.Status: первый заход
	// раздаёт продуктам ещё старый статус
	if booking.MultiProduct() {
		m.applyProductStatuses(booking, newStatus, metadata)
	}

	booking.Status = newStatus
	booking.LastUpdated = now
	booking.StatusHistory = append(booking.StatusHistory, change)

	// Статус и история фиксируются до любых побочных эффектов
	if err := m.repo.SaveBooking(ctx, booking); err != nil {
		return nil, err
	}

	metrics.IncTransition(fromStatus, newStatus)

	if m.cache != nil {
		if err := m.cache.Invalidate(ctx, bookingID); err != nil {
			m.logger.Error().Err(err).Str("booking_id", bookingID).Msg("cache invalidate error")
		}
	}

	m.publish(events.EventStatusChanged, events.StatusChangedPayload{
		BookingID:   bookingID,
		FromStatus:  fromStatus,
		ToStatus:    newStatus,
		Overall:     booking.OverallStatus,
		Reason:      reason,
		TriggeredBy: triggeredBy,
		ChangedAt:   now,
	})

	if m.syncWorker != nil {
		if err := m.syncWorker.EnqueueStatusChange(ctx, booking, &change); err != nil {
			m.logger.Error().Err(err).Str("booking_id", bookingID).Msg("sync enqueue error")
		}
	}

	// Dispatch must never block the commit or the sweep loop.
	snapshot := *booking
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.dispatchEffects(context.Background(), &snapshot, &change)
	}()

	return booking, nil
}

// applyProductStatuses seeds per-product statuses on first touch with the
// booking's current (pre-transition) status, applies a targeted or broadcast
// update, and recomputes the aggregate. Must run before booking.Status is
// mutated. The aggregate is always one of the statuses held by a product.
func (m *StatusManager) applyProductStatuses(booking *models.Booking, newStatus string, metadata map[string]string) {
	if booking.ProductStatuses == nil {
		booking.ProductStatuses = make(map[string]string, len(booking.Products))
	}
	for _, p := range booking.Products {
		if _, ok := booking.ProductStatuses[p.ID]; !ok {
			booking.ProductStatuses[p.ID] = booking.Status
		}
	}

	if productID := metadata[domain.MetaProductID]; productID != "" {
		if _, ok := booking.ProductStatuses[productID]; ok {
			booking.ProductStatuses[productID] = newStatus
		} else {
			m.logger.Warn().Str("booking_id", booking.ID).Str("product_id", productID).Msg("unknown product id in status update")
		}
	} else {
		for _, p := range booking.Products {
			booking.ProductStatuses[p.ID] = newStatus
		}
	}

	booking.OverallStatus = status.Overall(booking.ProductStatuses)
}

func (m *StatusManager) publish(eventType string, payload interface{}) {
	if m.eventBus == nil {
		return
	}
	if err := m.eventBus.PublishJSON(eventType, payload); err != nil {
		m.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

// durationHours returns the booking's experience duration, falling back to
// the configured default.
func (m *StatusManager) durationHours(booking *models.Booking) float64 {
	if booking.DurationHours > 0 {
		return booking.DurationHours
	}
	return m.cfg.DefaultDurationHours
}

// WaitForEffects blocks until all in-flight side-effect dispatches finish.
// Used on shutdown and in tests.
func (m *StatusManager) WaitForEffects() {
	m.wg.Wait()
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
