package models

import "time"

type Booking struct {
	ID              string            `json:"id"`
	CustomerID      string            `json:"customer_id"`
	CustomerName    string            `json:"customer_name"`
	CustomerEmail   string            `json:"customer_email"`
	Status          string            `json:"status"`
	OverallStatus   string            `json:"overall_status,omitempty"`
	Products        []Product         `json:"products,omitempty"`
	ProductStatuses map[string]string `json:"product_statuses,omitempty"`
	StatusHistory   []StatusChange    `json:"status_history,omitempty"`
	DateTime        time.Time         `json:"date_time"`
	DurationHours   float64           `json:"duration_hours,omitempty"`
	TotalAmount     float64           `json:"total_amount"`
	Currency        string            `json:"currency"`
	CreatedAt       time.Time         `json:"created_at"`
	LastUpdated     time.Time         `json:"last_updated"`
}

// MultiProduct reports whether the booking bundles more than one product
// and therefore tracks per-product statuses.
func (b *Booking) MultiProduct() bool {
	return len(b.Products) > 1
}

// EffectiveStatus is the overall status for multi-product bookings and the
// plain status otherwise.
func (b *Booking) EffectiveStatus() string {
	if b.MultiProduct() && b.OverallStatus != "" {
		return b.OverallStatus
	}
	return b.Status
}

type Product struct {
	ID   string `json:"id"`
	Type string `json:"type"` // tour, flight, hotel, transfer
	Name string `json:"name"`
}

// StatusChange is one append-only entry of a booking's status history.
type StatusChange struct {
	ID          string            `json:"id"`
	BookingID   string            `json:"booking_id"`
	FromStatus  string            `json:"from_status"`
	ToStatus    string            `json:"to_status"`
	Reason      string            `json:"reason,omitempty"`
	TriggeredBy string            `json:"triggered_by"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}
