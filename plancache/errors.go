package plancache

import "errors"

// Sentinel errors for plan cache operations.
var (
	// ErrUnavailable is returned when the compute pool rejects a planning
	// job. Retryable; callers should answer "temporarily unavailable"
	// rather than queue behind a saturated planner.
	ErrUnavailable = errors.New("plancache: planner temporarily unavailable")

	// ErrNilCompute is returned when Resolve is called without a compute
	// function.
	ErrNilCompute = errors.New("plancache: compute function is nil")
)

// PlanningError is a terminal planner failure read back from the cache.
// The original planner error was serialized when first observed; replays
// of the same broken operation settle from the cache instead of
// re-invoking the planner.
type PlanningError struct {
	Message string
}

func (e *PlanningError) Error() string {
	return "plancache: cached planning error: " + e.Message
}
