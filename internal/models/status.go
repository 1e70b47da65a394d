package models

import "time"

// StatusDefinition carries presentation and policy metadata for one
// lifecycle status. Priority drives multi-product aggregation: the highest
// priority among distinct product statuses wins.
type StatusDefinition struct {
	Code        string `yaml:"code" json:"code"`
	Label       string `yaml:"label" json:"label"`
	Color       string `yaml:"color" json:"color"`
	Description string `yaml:"description" json:"description"`
	Priority    int    `yaml:"priority" json:"priority"`
	IsActive    bool   `yaml:"is_active" json:"is_active"`
	AllowRefund bool   `yaml:"allow_refund" json:"allow_refund"`
}

// ScheduledTransition is a durable deferred status change. A row survives
// process restarts; legality is re-checked when it fires.
type ScheduledTransition struct {
	ID        int64      `json:"id"`
	BookingID string     `json:"booking_id"`
	ToStatus  string     `json:"to_status"`
	Reason    string     `json:"reason"`
	FireAt    time.Time  `json:"fire_at"`
	Status    string     `json:"status"` // pending, done, skipped
	CreatedAt time.Time  `json:"created_at"`
	FiredAt   *time.Time `json:"fired_at,omitempty"`
}

const (
	ScheduleStatusPending = "pending"
	ScheduleStatusDone    = "done"
	ScheduleStatusSkipped = "skipped"
)
