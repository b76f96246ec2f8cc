// Package quota sizes subscribe batches against an upstream subscription quota.
package quota

const (
	// TickWeight is the quota cost of one tick-level subscription.
	TickWeight = 5

	// DefaultQuota is the per-account quota granted by the gateway.
	DefaultQuota = 500
)

// NextBatchSize returns how many items can be subscribed in one call:
// min(requested, remaining/weight, available), never negative.
// A non-positive weight leaves the quota term unconstrained.
func NextBatchSize(remaining, weight, requested, available int) int {
	n := min(requested, available)
	if weight > 0 {
		n = min(n, remaining/weight)
	}
	return max(n, 0)
}
