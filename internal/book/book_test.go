package book

import (
	"testing"

	"backtestv2/internal/errs"
	"backtestv2/pkg/types"
)

func TestApplySnapshotSortsAndValidates(t *testing.T) {
	t.Parallel()
	m := NewManager()
	err := m.ApplySnapshot(types.L2BookSnapshot{
		TokenId: "tok1",
		Bids:    []types.BookLevel{{Price: 0.40, Size: 10}, {Price: 0.45, Size: 5}},
		Asks:    []types.BookLevel{{Price: 0.55, Size: 5}, {Price: 0.50, Size: 8}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, _ := m.Get("tok1")
	if s.Bids[0].Price != 0.45 {
		t.Fatalf("expected best bid 0.45 first, got %v", s.Bids[0].Price)
	}
	if s.Asks[0].Price != 0.50 {
		t.Fatalf("expected best ask 0.50 first, got %v", s.Asks[0].Price)
	}
}

func TestApplySnapshotRejectsCrossedBook(t *testing.T) {
	t.Parallel()
	m := NewManager()
	err := m.ApplySnapshot(types.L2BookSnapshot{
		TokenId: "tok1",
		Bids:    []types.BookLevel{{Price: 0.60, Size: 10}},
		Asks:    []types.BookLevel{{Price: 0.50, Size: 10}},
	})
	if err == nil {
		t.Fatalf("expected BookViolation on crossed book")
	}
	if err.(*errs.ViolationError).Kind != errs.KindBookViolation {
		t.Fatalf("expected KindBookViolation, got %v", err)
	}
}

func TestApplyDeltaInsertUpdateRemove(t *testing.T) {
	t.Parallel()
	m := NewManager()
	_ = m.ApplySnapshot(types.L2BookSnapshot{TokenId: "tok1"})

	if err := m.ApplyDelta(types.L2BookDelta{TokenId: "tok1", Side: types.Buy, Price: 0.45, NewSize: 100}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s, _ := m.Get("tok1")
	if len(s.Bids) != 1 || s.Bids[0].Size != 100 {
		t.Fatalf("expected one bid level of size 100, got %+v", s.Bids)
	}

	if err := m.ApplyDelta(types.L2BookDelta{TokenId: "tok1", Side: types.Buy, Price: 0.45, NewSize: 40}); err != nil {
		t.Fatalf("update: %v", err)
	}
	s, _ = m.Get("tok1")
	if s.Bids[0].Size != 40 {
		t.Fatalf("expected updated size 40, got %v", s.Bids[0].Size)
	}

	if err := m.ApplyDelta(types.L2BookDelta{TokenId: "tok1", Side: types.Buy, Price: 0.45, NewSize: 0}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	s, _ = m.Get("tok1")
	if len(s.Bids) != 0 {
		t.Fatalf("expected level removed, got %+v", s.Bids)
	}
}

func TestApplyDeltaRejectsNegativePriceDomain(t *testing.T) {
	t.Parallel()
	m := NewManager()
	_ = m.ApplySnapshot(types.L2BookSnapshot{TokenId: "tok1"})
	err := m.ApplyDelta(types.L2BookDelta{TokenId: "tok1", Side: types.Sell, Price: 1.5, NewSize: 10})
	if err == nil {
		t.Fatalf("expected BookViolation for price outside (0,1)")
	}
}

func TestQueueModelEligibility(t *testing.T) {
	t.Parallel()
	qm := NewQueueModel()
	qm.Admit(1, 0.45, types.Buy, 200)
	e, _ := qm.Get(1)
	if e.Eligible() {
		t.Fatalf("should not be eligible with queue_ahead=200")
	}
	rem := qm.OnTradeConsume(1, 150)
	if rem != 0 {
		t.Fatalf("expected no remainder, got %v", rem)
	}
	if e.QueueAhead != 50 {
		t.Fatalf("expected queue_ahead=50, got %v", e.QueueAhead)
	}
	if e.Eligible() {
		t.Fatalf("still not eligible with queue_ahead=50")
	}
	rem = qm.OnTradeConsume(1, 60)
	if rem != 10 {
		t.Fatalf("expected remainder 10 beyond queue head, got %v", rem)
	}
	if !e.Eligible() {
		t.Fatalf("should be eligible once queue_ahead <= 0")
	}
}

func TestQueueModelLevelDecrementDistributesAcrossOrders(t *testing.T) {
	t.Parallel()
	qm := NewQueueModel()
	qm.Admit(1, 0.45, types.Buy, 10)
	qm.Admit(2, 0.45, types.Buy, 50)
	remainder := qm.OnLevelDecrement(0.45, types.Buy, 30)

	e1, _ := qm.Get(1)
	if e1.QueueAhead != 0 {
		t.Fatalf("expected order 1's queue_ahead exhausted to 0, got %v", e1.QueueAhead)
	}
	if remainder[1] != 20 {
		t.Fatalf("expected order 1's remainder beyond its queue_ahead to be 20, got %+v", remainder)
	}

	e2, _ := qm.Get(2)
	if e2.QueueAhead != 20 {
		t.Fatalf("expected order 2's queue_ahead reduced to 20, got %v", e2.QueueAhead)
	}
	if _, ok := remainder[2]; ok {
		t.Fatalf("order 2's decrement was fully absorbed by queue_ahead, expected no remainder entry, got %+v", remainder)
	}
}

func TestQueueModelLevelDecrementAppliesToOrderAtFrontOfQueue(t *testing.T) {
	t.Parallel()
	qm := NewQueueModel()
	qm.Admit(1, 0.45, types.Buy, 0)
	remainder := qm.OnLevelDecrement(0.45, types.Buy, 15)
	if remainder[1] != 15 {
		t.Fatalf("expected an order already at the front of the queue to see the full decrement as remainder, got %+v", remainder)
	}
}
