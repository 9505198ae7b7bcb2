package invariant

import (
	"testing"

	"backtestv2/internal/errs"
)

func TestHardModeAbortsOnViolation(t *testing.T) {
	t.Parallel()
	e := New(ModeHard, nil)
	err := e.Check(CategoryBook, false, errs.KindBookViolation, "crossed book")
	if err == nil {
		t.Fatalf("expected abort in hard mode")
	}
	if e.Counters().ViolationsByCategory[CategoryBook] != 1 {
		t.Fatalf("expected counter increment")
	}
}

func TestSoftModeLogsAndContinues(t *testing.T) {
	t.Parallel()
	e := New(ModeSoft, nil)
	err := e.Check(CategoryBook, false, errs.KindBookViolation, "crossed book")
	if err != nil {
		t.Fatalf("soft mode should not return an error, got %v", err)
	}
	if e.Counters().ViolationsByCategory[CategoryBook] != 1 {
		t.Fatalf("expected counter increment even in soft mode")
	}
	if e.AllClean() {
		t.Fatalf("AllClean should be false after a soft violation")
	}
}

func TestOffModeRecordsNothing(t *testing.T) {
	t.Parallel()
	e := New(ModeOff, nil)
	err := e.Check(CategoryBook, false, errs.KindBookViolation, "crossed book")
	if err != nil {
		t.Fatalf("off mode should never error")
	}
	if !e.AllClean() {
		t.Fatalf("off mode should record nothing")
	}
}

func TestNoViolationNeverTouchesCounters(t *testing.T) {
	t.Parallel()
	e := New(ModeHard, nil)
	if err := e.Check(CategoryTime, true, errs.KindLookAheadViolation, ""); err != nil {
		t.Fatalf("unexpected error on satisfied invariant: %v", err)
	}
	if !e.AllClean() {
		t.Fatalf("expected AllClean when no invariant failed")
	}
}

func TestCheckTimeMonotonic(t *testing.T) {
	t.Parallel()
	e := New(ModeHard, nil)
	if err := e.CheckTimeMonotonic(100, 100); err != nil {
		t.Fatalf("arrival == decision_time should hold: %v", err)
	}
	if err := e.CheckTimeMonotonic(150, 100); err == nil {
		t.Fatalf("expected violation when arrival exceeds decision_time")
	}
}
