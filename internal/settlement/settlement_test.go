package settlement

import (
	"testing"

	"backtestv2/pkg/types"
)

func TestResolveUpOutcome(t *testing.T) {
	t.Parallel()
	e := New(Spec{WindowLengthNs: 900_000_000_000, ReferenceRule: LastUpdateAtOrBeforeCutoff, ProductionGrade: true})
	e.OpenWindow("mkt1", 0, 900_000_000_000)
	e.ObserveRound(types.OracleRound{FeedId: "f1", RoundId: 1, Answer: 50000, SourceTimeNs: 0}, 0)
	e.ObserveRound(types.OracleRound{FeedId: "f1", RoundId: 2, Answer: 51000, SourceTimeNs: 900_000_000_000}, 900_000_000_000)

	w, err := e.TryResolve("mkt1", 900_000_000_000, 900_000_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Status != StatusResolved || w.Outcome != types.OutcomeYes {
		t.Fatalf("expected resolved Up, got status=%v outcome=%v", w.Status, w.Outcome)
	}
	if w.ReferencePrice != 50000 {
		t.Fatalf("expected reference price 50000, got %d", w.ReferencePrice)
	}
}

func TestResolveDownOutcome(t *testing.T) {
	t.Parallel()
	e := New(Spec{ReferenceRule: LastUpdateAtOrBeforeCutoff, ProductionGrade: true})
	e.OpenWindow("mkt1", 0, 100)
	e.ObserveRound(types.OracleRound{RoundId: 1, Answer: 60000, SourceTimeNs: 0}, 0)
	e.ObserveRound(types.OracleRound{RoundId: 2, Answer: 59000, SourceTimeNs: 100}, 100)
	w, _ := e.TryResolve("mkt1", 100, 100)
	if w.Outcome != types.OutcomeNo {
		t.Fatalf("expected Down, got %v", w.Outcome)
	}
}

func TestResolveTieInvalidatesWindow(t *testing.T) {
	t.Parallel()
	e := New(Spec{ReferenceRule: LastUpdateAtOrBeforeCutoff, TieRule: TieNoWins, ProductionGrade: true})
	e.OpenWindow("mkt1", 0, 100)
	e.ObserveRound(types.OracleRound{RoundId: 1, Answer: 50000, SourceTimeNs: 0}, 0)
	e.ObserveRound(types.OracleRound{RoundId: 2, Answer: 50000, SourceTimeNs: 100}, 100)
	w, _ := e.TryResolve("mkt1", 100, 100)
	if w.Status != StatusInvalid {
		t.Fatalf("expected Invalid on tie, got %v", w.Status)
	}
}

func TestMissingRoundAbortsInProduction(t *testing.T) {
	t.Parallel()
	e := New(Spec{ReferenceRule: LastUpdateAtOrBeforeCutoff, ProductionGrade: true})
	e.OpenWindow("mkt1", 0, 100)
	_, err := e.TryResolve("mkt1", 100, 100)
	if err == nil {
		t.Fatalf("expected abort when no oracle round is available in production mode")
	}
}

func TestMissingRoundMarksInvalidInResearchMode(t *testing.T) {
	t.Parallel()
	e := New(Spec{ReferenceRule: LastUpdateAtOrBeforeCutoff, ProductionGrade: false})
	e.OpenWindow("mkt1", 0, 100)
	w, err := e.TryResolve("mkt1", 100, 100)
	if err != nil {
		t.Fatalf("research mode should not abort: %v", err)
	}
	if w.Status != StatusInvalid {
		t.Fatalf("expected Invalid status, got %v", w.Status)
	}
}

func TestNotYetKnowableDoesNotResolve(t *testing.T) {
	t.Parallel()
	e := New(Spec{ReferenceRule: LastUpdateAtOrBeforeCutoff, ProductionGrade: true})
	e.OpenWindow("mkt1", 0, 100)
	e.ObserveRound(types.OracleRound{RoundId: 1, Answer: 1, SourceTimeNs: 0}, 0)
	e.ObserveRound(types.OracleRound{RoundId: 2, Answer: 2, SourceTimeNs: 100}, 100)
	// decisionTime has reached window end but the end-round's own arrival is later.
	w, err := e.TryResolve("mkt1", 100, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Status == StatusResolved {
		t.Fatalf("should not resolve before the chosen round is knowable")
	}
}
