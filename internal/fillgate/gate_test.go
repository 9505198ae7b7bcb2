package fillgate

import (
	"testing"

	"backtestv2/internal/errs"
)

func TestMakerBlockedWithoutQueueConsumption(t *testing.T) {
	t.Parallel()
	// Scenario 3: queue_ahead_on_arrival=200, only 150 consumed.
	g := New(ExplicitQueue, true)
	admitted, err := g.Admit(Candidate{
		OrderId: 1,
		Size:    50,
		QueueProof: QueueProof{QueueAheadAtAdmission: 200, ConsumedTotal: 150},
	})
	if admitted {
		t.Fatalf("expected fill to be blocked")
	}
	if err == nil {
		t.Fatalf("expected MakerFillViolation in production mode")
	}
	if err.(*errs.ViolationError).Kind != errs.KindMakerFillViolation {
		t.Fatalf("expected KindMakerFillViolation, got %v", err)
	}
	if g.Stats().MakerFillsBlocked != 1 {
		t.Fatalf("expected MakerFillsBlocked=1, got %d", g.Stats().MakerFillsBlocked)
	}
}

func TestMakerAdmittedWhenQueueFullyConsumed(t *testing.T) {
	t.Parallel()
	g := New(ExplicitQueue, true)
	admitted, err := g.Admit(Candidate{
		QueueProof: QueueProof{QueueAheadAtAdmission: 200, ConsumedTotal: 200},
	})
	if !admitted || err != nil {
		t.Fatalf("expected admission, got admitted=%v err=%v", admitted, err)
	}
	if g.Stats().MakerFillsAdmitted != 1 {
		t.Fatalf("expected MakerFillsAdmitted=1, got %d", g.Stats().MakerFillsAdmitted)
	}
}

func TestCancelWinsRace(t *testing.T) {
	t.Parallel()
	// Scenario 4: cancel.arrival=1000, fill.arrival=1200, cancel_latency=100 -> cancel wins (1100 < 1200).
	g := New(ExplicitQueue, false)
	admitted, err := g.Admit(Candidate{
		QueueProof: QueueProof{QueueAheadAtAdmission: 0, ConsumedTotal: 0},
		CancelProof: CancelRaceProof{
			HasCancelRequest:     true,
			CancelRequestArrival: 1000,
			FillArrival:          1200,
			CancelLatencyNs:      100,
		},
	})
	if admitted || err != nil {
		t.Fatalf("expected fill denied by cancel race, got admitted=%v err=%v", admitted, err)
	}
	s := g.Stats()
	if s.CancelFillRaces != 1 || s.CancelFillRacesCancelWon != 1 || s.CancelFillRacesFillWon != 0 {
		t.Fatalf("unexpected race stats: %+v", s)
	}
}

func TestFillWinsRaceWhenCancelTooLate(t *testing.T) {
	t.Parallel()
	g := New(ExplicitQueue, false)
	admitted, _ := g.Admit(Candidate{
		QueueProof: QueueProof{QueueAheadAtAdmission: 0, ConsumedTotal: 0},
		CancelProof: CancelRaceProof{
			HasCancelRequest:     true,
			CancelRequestArrival: 1150,
			FillArrival:          1200,
			CancelLatencyNs:      100,
		},
	})
	if !admitted {
		t.Fatalf("expected fill to win the race (effective cancel ack 1250 > fill arrival 1200)")
	}
	if g.Stats().CancelFillRacesFillWon != 1 {
		t.Fatalf("expected CancelFillRacesFillWon=1, got %d", g.Stats().CancelFillRacesFillWon)
	}
}

func TestMakerDisabledBlocksAllCandidates(t *testing.T) {
	t.Parallel()
	g := New(MakerDisabled, true)
	admitted, err := g.Admit(Candidate{QueueProof: QueueProof{QueueAheadAtAdmission: 0, ConsumedTotal: 0}})
	if admitted || err != nil {
		t.Fatalf("MakerDisabled must block unconditionally, got admitted=%v err=%v", admitted, err)
	}
}
