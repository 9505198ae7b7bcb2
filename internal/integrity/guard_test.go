package integrity

import (
	"testing"

	"backtestv2/internal/errs"
)

func TestGapHaltsInProduction(t *testing.T) {
	t.Parallel()
	g := NewGuard(ProductionPolicy())
	key := StreamKey{StreamKind: "book_delta", Token: "tok1"}

	if drop, err := g.Check(key, 1, ""); drop || err != nil {
		t.Fatalf("seq 1: drop=%v err=%v", drop, err)
	}
	if drop, err := g.Check(key, 2, ""); drop || err != nil {
		t.Fatalf("seq 2: drop=%v err=%v", drop, err)
	}
	// Skip seq 3 -> gap at seq 4.
	_, err := g.Check(key, 4, "")
	if err == nil {
		t.Fatalf("expected IntegrityPathology on gap")
	}
	ve := err.(*errs.ViolationError)
	if ve.Kind != errs.KindIntegrityPathology {
		t.Fatalf("expected KindIntegrityPathology, got %v", ve.Kind)
	}
	c := g.Counters()
	if c.GapsDetected != 1 || c.TotalMissingSequences != 1 || !c.Halted {
		t.Fatalf("counters mismatch: %+v", c)
	}
}

func TestGapResyncDropsUntilSnapshot(t *testing.T) {
	t.Parallel()
	policy := Policy{OnDuplicate: OnDuplicateDrop, OnGap: OnGapResync, OnOutOfOrder: OnOutOfOrderHalt}
	g := NewGuard(policy)
	key := StreamKey{StreamKind: "book_delta", Token: "tok1"}

	g.Check(key, 1, "")
	g.Check(key, 2, "")
	drop, err := g.Check(key, 4, "") // gap -> resync
	if err != nil || !drop {
		t.Fatalf("expected drop=true err=nil on resync gap, got drop=%v err=%v", drop, err)
	}
	if !g.NeedsSnapshot(key) {
		t.Fatalf("expected NeedsSnapshot after resync gap")
	}
	// Further deltas drop until a snapshot resolves it.
	drop, err = g.Check(key, 5, "")
	if err != nil || !drop {
		t.Fatalf("expected continued drop while awaiting snapshot")
	}
	g.ResolveSnapshot(key, 5)
	if g.NeedsSnapshot(key) {
		t.Fatalf("expected NeedsSnapshot cleared after ResolveSnapshot")
	}
	drop, err = g.Check(key, 6, "")
	if err != nil || drop {
		t.Fatalf("expected normal processing to resume, got drop=%v err=%v", drop, err)
	}
}

func TestDuplicateDropIncrementCounter(t *testing.T) {
	t.Parallel()
	g := NewGuard(Policy{OnDuplicate: OnDuplicateDrop, OnGap: OnGapHalt, OnOutOfOrder: OnOutOfOrderHalt})
	key := StreamKey{StreamKind: "trade", Token: "tok1"}
	g.Check(key, 1, "hashA")
	drop, err := g.Check(key, 1, "hashA")
	if err != nil || !drop {
		t.Fatalf("expected duplicate to be dropped, got drop=%v err=%v", drop, err)
	}
	if g.Counters().DuplicatesDropped != 1 {
		t.Fatalf("expected DuplicatesDropped=1, got %d", g.Counters().DuplicatesDropped)
	}
}

func TestOutOfOrderReorderBuffersAndDrains(t *testing.T) {
	t.Parallel()
	policy := Policy{OnDuplicate: OnDuplicateDrop, OnGap: OnGapHalt, OnOutOfOrder: OnOutOfOrderReorder, ReorderBufferSize: 4}
	g := NewGuard(policy)
	key := StreamKey{StreamKind: "book_delta", Token: "tok1"}

	g.Check(key, 1, "")
	// seq 3 arrives before seq 2: buffered.
	drop, _ := g.Check(key, 3, "")
	if !drop {
		t.Fatalf("expected out-of-order seq to be buffered (drop=true)")
	}
	// seq 2 arrives: drains buffer, lastSeq should advance to 3.
	g.Check(key, 2, "")
	if g.Counters().Reordered != 1 {
		t.Fatalf("expected Reordered=1, got %d", g.Counters().Reordered)
	}
}
