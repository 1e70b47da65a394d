package status

// Overall computes the aggregate status of a multi-product booking from its
// per-product statuses. A single distinct status wins outright; otherwise
// the distinct status with the highest catalog priority wins, so the most
// terminal component (cancelled, refunded) is never hidden behind
// components that are still in flight. Ties on equal priority cannot occur:
// priorities form a total order over the catalog.
func Overall(productStatuses map[string]string) string {
	if len(productStatuses) == 0 {
		return ""
	}

	distinct := make(map[string]struct{}, len(productStatuses))
	for _, s := range productStatuses {
		distinct[s] = struct{}{}
	}

	var best string
	bestPriority := -1
	for s := range distinct {
		if p := Priority(s); p > bestPriority {
			best = s
			bestPriority = p
		}
	}
	return best
}
