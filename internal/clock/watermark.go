package clock

import (
	"fmt"

	"backtestv2/internal/errs"
	"backtestv2/pkg/types"
)

// Watermark enforces the visibility invariant of §4.2: every event the
// strategy can observe must satisfy event.arrival_time <= decision_time.
// decision_time is a monotone non-decreasing function of processed arrival
// times; source_time never participates in ordering or visibility.
type Watermark struct {
	decisionTime types.Nanos
	strict       bool // strict_mode: LookAheadViolation aborts instead of being silently clamped
}

func NewWatermark(strict bool) *Watermark {
	return &Watermark{strict: strict}
}

// DecisionTime returns the current logical time.
func (w *Watermark) DecisionTime() types.Nanos { return w.decisionTime }

// Advance moves decision_time to max(decision_time, arrival). It never moves
// backward; a regression is a caller bug, not a recoverable condition, so it
// panics rather than silently clamping (time monotonicity is a Hard-mode
// invariant per §4.9 regardless of strict_mode).
func (w *Watermark) Advance(arrival types.Nanos) {
	if arrival < w.decisionTime {
		panic(fmt.Sprintf("clock: decision_time regression: have %d, got %d", w.decisionTime, arrival))
	}
	w.decisionTime = arrival
}

// CheckVisible validates that arrival is not ahead of decision_time before it
// is exposed to the strategy. Returns a *errs.ViolationError of kind
// LookAheadViolation when strict_mode is enabled and the check fails.
func (w *Watermark) CheckVisible(arrival types.Nanos) error {
	if arrival > w.decisionTime {
		if w.strict {
			return errs.New(errs.KindLookAheadViolation,
				fmt.Sprintf("event arrival_time=%d exceeds decision_time=%d", arrival, w.decisionTime))
		}
	}
	return nil
}
