// Package status defines the booking lifecycle state space: the canonical
// status catalog, the legal transition edges between statuses, and the
// aggregation rule for multi-product bookings. The state space is closed:
// there is no runtime API to add statuses or edges.
package status

import "voyagr/internal/models"

// catalog is the authoritative status table, in rank order. Priority is a
// policy choice: aggregation picks the highest priority among distinct
// product statuses, so refund states outrank cancellation, which outranks
// every in-flight state.
var catalog = []models.StatusDefinition{
	{Code: models.StatusPending, Label: "Pending", Color: "#f0ad4e", Description: "Awaiting payment confirmation", Priority: 1, IsActive: true, AllowRefund: false},
	{Code: models.StatusFailed, Label: "Failed", Color: "#d9534f", Description: "Payment failed or booking expired", Priority: 2, IsActive: false, AllowRefund: false},
	{Code: models.StatusConfirmed, Label: "Confirmed", Color: "#5cb85c", Description: "Payment received, booking confirmed", Priority: 3, IsActive: true, AllowRefund: true},
	{Code: models.StatusUpcoming, Label: "Upcoming", Color: "#5bc0de", Description: "Experience starts within the upcoming window", Priority: 4, IsActive: true, AllowRefund: true},
	{Code: models.StatusExploring, Label: "Exploring", Color: "#0275d8", Description: "Experience in progress", Priority: 5, IsActive: true, AllowRefund: false},
	{Code: models.StatusCompleted, Label: "Completed", Color: "#292b2c", Description: "Experience finished", Priority: 6, IsActive: false, AllowRefund: true},
	{Code: models.StatusCancelled, Label: "Cancelled", Color: "#d9534f", Description: "Cancelled by customer or operator", Priority: 7, IsActive: false, AllowRefund: true},
	{Code: models.StatusRefunded, Label: "Refunded", Color: "#818a91", Description: "Fully refunded, terminal", Priority: 8, IsActive: false, AllowRefund: false},
	{Code: models.StatusPartiallyRefunded, Label: "Partially refunded", Color: "#818a91", Description: "Part of the amount refunded", Priority: 9, IsActive: false, AllowRefund: true},
}

var byCode = func() map[string]models.StatusDefinition {
	m := make(map[string]models.StatusDefinition, len(catalog))
	for _, def := range catalog {
		m[def.Code] = def
	}
	return m
}()

// Catalog returns the status table in rank order. The slice is a copy.
func Catalog() []models.StatusDefinition {
	out := make([]models.StatusDefinition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the definition for a code.
func Lookup(code string) (models.StatusDefinition, bool) {
	def, ok := byCode[code]
	return def, ok
}

// Known reports whether code is part of the catalog.
func Known(code string) bool {
	_, ok := byCode[code]
	return ok
}

// Priority returns the aggregation rank of a code, 0 for unknown codes.
func Priority(code string) int {
	return byCode[code].Priority
}

// IsActive reports whether bookings in this status are still in flight and
// must be visited by the periodic sweep.
func IsActive(code string) bool {
	return byCode[code].IsActive
}

// AllowsRefund reports whether refund initiation is permitted from code.
func AllowsRefund(code string) bool {
	return byCode[code].AllowRefund
}

// ApplyPresentation overrides label/color/description from an external
// catalog file. Codes, priorities and edges are compiled in and stay fixed.
func ApplyPresentation(overrides []models.StatusDefinition) {
	for _, o := range overrides {
		def, ok := byCode[o.Code]
		if !ok {
			continue
		}
		if o.Label != "" {
			def.Label = o.Label
		}
		if o.Color != "" {
			def.Color = o.Color
		}
		if o.Description != "" {
			def.Description = o.Description
		}
		byCode[o.Code] = def
		for i := range catalog {
			if catalog[i].Code == o.Code {
				catalog[i] = def
			}
		}
	}
}
