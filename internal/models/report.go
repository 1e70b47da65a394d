package models

import "time"

// TransitionStats aggregates observed latency for one "<from>_to_<to>"
// transition label across all bookings.
type TransitionStats struct {
	Average time.Duration `json:"average"`
	Count   int           `json:"count"`
}

// StatusReport is a read-side aggregation over all bookings: how many sit
// in each status and how long transitions take on average.
type StatusReport struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	Total       int                        `json:"total"`
	Counts      map[string]int             `json:"counts"`
	Transitions map[string]TransitionStats `json:"transitions"`
}
