package repository

import (
	"context"
	"sync"
	"time"

	"voyagr/internal/models"
)

type memoryEntry struct {
	booking   *models.Booking
	expiresAt time.Time
}

// MemoryBookingCache is the in-process fallback when redis is unavailable.
type MemoryBookingCache struct {
	entries sync.Map
	ttl     time.Duration
}

func NewMemoryBookingCache(ttl time.Duration) *MemoryBookingCache {
	return &MemoryBookingCache{ttl: ttl}
}

func (m *MemoryBookingCache) Get(ctx context.Context, id string) (*models.Booking, error) {
	val, ok := m.entries.Load(id)
	if !ok {
		return nil, nil
	}
	entry := val.(memoryEntry)
	if time.Now().After(entry.expiresAt) {
		m.entries.Delete(id)
		return nil, nil
	}
	return entry.booking, nil
}

func (m *MemoryBookingCache) Set(ctx context.Context, booking *models.Booking) error {
	m.entries.Store(booking.ID, memoryEntry{
		booking:   booking,
		expiresAt: time.Now().Add(m.ttl),
	})
	return nil
}

func (m *MemoryBookingCache) Invalidate(ctx context.Context, id string) error {
	m.entries.Delete(id)
	return nil
}
