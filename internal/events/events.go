package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventStatusChanged       = "booking_status_changed"
	EventTransitionRejected  = "booking_transition_rejected"
	EventSideEffectFailed    = "booking_side_effect_failed"
	EventTransitionScheduled = "booking_transition_scheduled"

	// Outbound integration commands consumed by downstream systems.
	EventEmailRequested   = "email_requested"
	EventInventoryCommand = "inventory_command"
	EventFinanceCommand   = "finance_command"
	EventLoyaltyCommand   = "loyalty_command"
)

// StatusChangedPayload is the booking snapshot published on every committed
// transition.
type StatusChangedPayload struct {
	BookingID   string    `json:"booking_id"`
	FromStatus  string    `json:"from_status"`
	ToStatus    string    `json:"to_status"`
	Overall     string    `json:"overall_status,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	TriggeredBy string    `json:"triggered_by"`
	ChangedAt   time.Time `json:"changed_at"`
}

// SideEffectFailedPayload makes swallowed dispatcher failures observable to
// subscribers instead of leaving them in the log only.
type SideEffectFailedPayload struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Action    string `json:"action"`
	Error     string `json:"error"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
