package clock

import (
	"testing"

	"backtestv2/internal/errs"
)

func TestWatermarkAdvanceMonotonic(t *testing.T) {
	t.Parallel()
	w := NewWatermark(true)
	w.Advance(100)
	w.Advance(100)
	w.Advance(200)
	if w.DecisionTime() != 200 {
		t.Fatalf("decision_time = %d, want 200", w.DecisionTime())
	}
}

func TestWatermarkAdvanceRegressionPanics(t *testing.T) {
	t.Parallel()
	w := NewWatermark(true)
	w.Advance(200)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on time regression")
		}
	}()
	w.Advance(100)
}

func TestWatermarkCheckVisibleStrict(t *testing.T) {
	t.Parallel()
	w := NewWatermark(true)
	w.Advance(100)
	if err := w.CheckVisible(100); err != nil {
		t.Fatalf("arrival == decision_time should be visible, got %v", err)
	}
	err := w.CheckVisible(150)
	if err == nil {
		t.Fatalf("expected LookAheadViolation")
	}
	ve, ok := err.(*errs.ViolationError)
	if !ok || ve.Kind != errs.KindLookAheadViolation {
		t.Fatalf("expected KindLookAheadViolation, got %v", err)
	}
}

func TestWatermarkCheckVisibleNonStrict(t *testing.T) {
	t.Parallel()
	w := NewWatermark(false)
	w.Advance(100)
	if err := w.CheckVisible(150); err != nil {
		t.Fatalf("non-strict mode should not error, got %v", err)
	}
}
