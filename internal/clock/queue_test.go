package clock

import (
	"testing"

	"backtestv2/pkg/types"
)

func TestEventQueueOrdersByArrivalTime(t *testing.T) {
	t.Parallel()
	q := NewEventQueue()
	q.Push(&Event{ArrivalTime: 300})
	q.Push(&Event{ArrivalTime: 100})
	q.Push(&Event{ArrivalTime: 200})

	var got []types.Nanos
	for e := q.Pop(); e != nil; e = q.Pop() {
		got = append(got, e.ArrivalTime)
	}
	want := []types.Nanos{100, 200, 300}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order[%d] = %d, want %d (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestEventQueueTieBreaksByPriorityThenSourceThenSeq(t *testing.T) {
	t.Parallel()
	q := NewEventQueue()
	// Same arrival_time: priority should win regardless of push order.
	q.Push(&Event{ArrivalTime: 100, Priority: types.PriorityMarketData, SourceTag: "book"})
	q.Push(&Event{ArrivalTime: 100, Priority: types.PrioritySystem, SourceTag: "oracle"})

	first := q.Pop()
	if first.Priority != types.PrioritySystem {
		t.Fatalf("expected system priority event first, got %v", first.Priority)
	}

	// Same arrival + priority: source tag breaks the tie lexically.
	q2 := NewEventQueue()
	q2.Push(&Event{ArrivalTime: 50, Priority: types.PriorityMarketData, SourceTag: "zeta"})
	q2.Push(&Event{ArrivalTime: 50, Priority: types.PriorityMarketData, SourceTag: "alpha"})
	if got := q2.Pop().SourceTag; got != "alpha" {
		t.Fatalf("expected alpha first by source_tag, got %s", got)
	}

	// Same arrival + priority + source: insertion sequence breaks the tie.
	q3 := NewEventQueue()
	q3.Push(&Event{ArrivalTime: 10, SourceTag: "x"})
	q3.Push(&Event{ArrivalTime: 10, SourceTag: "x"})
	e1 := q3.Pop()
	e2 := q3.Pop()
	if e1.Seq >= e2.Seq {
		t.Fatalf("expected insertion-order seq tie-break, got seq %d then %d", e1.Seq, e2.Seq)
	}
}

func TestEventQueuePeekDoesNotRemove(t *testing.T) {
	t.Parallel()
	q := NewEventQueue()
	q.Push(&Event{ArrivalTime: 1})
	if q.Peek() == nil || q.Len() != 1 {
		t.Fatalf("peek should not remove the event")
	}
	if q.Pop() == nil || q.Len() != 0 {
		t.Fatalf("pop should remove the event")
	}
}

func TestEventQueuePopEmptyReturnsNil(t *testing.T) {
	t.Parallel()
	q := NewEventQueue()
	if q.Pop() != nil {
		t.Fatalf("pop on empty queue should return nil")
	}
}
