package service

import "fmt"

// InvalidTransitionError reports an attempted edge that is not in the
// transition table. The booking is left untouched; callers surface both
// statuses to the operator and never coerce to a "closest legal" edge.
type InvalidTransitionError struct {
	BookingID string
	From      string
	To        string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for booking %s: %s -> %s", e.BookingID, e.From, e.To)
}
