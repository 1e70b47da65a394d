package status

import "voyagr/internal/models"

// transitions is the static adjacency list of legal edges.
//
// failed -> confirmed supports rebooking after a failed payment without a
// new booking id. completed and cancelled both reach refund states because
// goodwill and partial-service refunds happen after the fact.
var transitions = map[string][]string{
	models.StatusPending:           {models.StatusConfirmed, models.StatusFailed, models.StatusCancelled},
	models.StatusFailed:            {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:         {models.StatusUpcoming, models.StatusCancelled, models.StatusRefunded},
	models.StatusUpcoming:          {models.StatusExploring, models.StatusCancelled, models.StatusRefunded},
	models.StatusExploring:         {models.StatusCompleted, models.StatusCancelled},
	models.StatusCompleted:         {models.StatusRefunded, models.StatusPartiallyRefunded},
	models.StatusCancelled:         {models.StatusRefunded, models.StatusPartiallyRefunded},
	models.StatusRefunded:          {},
	models.StatusPartiallyRefunded: {models.StatusRefunded},
}

// CanTransition reports whether from -> to is a legal edge. Unknown codes
// on either side yield false; this is a query, it never errors.
func CanTransition(from, to string) bool {
	if !Known(from) || !Known(to) {
		return false
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns the legal target statuses from a given status. The
// slice is a copy; empty for terminal or unknown statuses.
func AllowedFrom(from string) []string {
	out := make([]string, len(transitions[from]))
	copy(out, transitions[from])
	return out
}

// Terminal reports whether no edges leave the status.
func Terminal(code string) bool {
	return Known(code) && len(transitions[code]) == 0
}
