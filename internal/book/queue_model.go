package book

import "backtestv2/pkg/types"

// QueueEntry tracks one resting order's FIFO queue position, per §4.4's
// QueuePositionModel.
type QueueEntry struct {
	OrderId             types.OrderId
	Price               float64
	Side                types.Side
	QueueAhead          float64
	OriginalQueueAhead  float64
	IsCancelling        bool
	CancelRequestArrival types.Nanos
}

// Eligible reports whether this order may fill: queue_ahead <= 0.
func (e *QueueEntry) Eligible() bool { return e.QueueAhead <= 0 }

// QueueModel owns per-order queue state for all resting orders. Owned
// exclusively by the Orchestrator.
type QueueModel struct {
	entries map[types.OrderId]*QueueEntry
}

func NewQueueModel() *QueueModel {
	return &QueueModel{entries: make(map[types.OrderId]*QueueEntry)}
}

// Admit records an order's queue position at admission: queue_ahead equals
// the external size standing at that level at arrival.
func (m *QueueModel) Admit(orderId types.OrderId, price float64, side types.Side, externalSizeAtLevel float64) {
	m.entries[orderId] = &QueueEntry{
		OrderId:            orderId,
		Price:              price,
		Side:               side,
		QueueAhead:         externalSizeAtLevel,
		OriginalQueueAhead: externalSizeAtLevel,
	}
}

func (m *QueueModel) Get(orderId types.OrderId) (*QueueEntry, bool) {
	e, ok := m.entries[orderId]
	return e, ok
}

func (m *QueueModel) Remove(orderId types.OrderId) { delete(m.entries, orderId) }

// OnLevelDecrement distributes an observed size decrement at (price,side)
// between external queue-ahead and our own leaves, per §4.4: "external share
// of the decrement reduces queue_ahead; our own share reduces leaves." Each
// resting order at the level has up to the full decrement applied against
// its own queue_ahead first; whatever part of the decrement exceeds an
// order's queue_ahead (including the case where queue_ahead is already 0,
// i.e. the order sits at the front of the queue) is returned as that
// order's remainder, for the caller to apply to the order's own leaves.
func (m *QueueModel) OnLevelDecrement(price float64, side types.Side, decrement float64) map[types.OrderId]float64 {
	remainderByOrder := make(map[types.OrderId]float64)
	for id, e := range m.entries {
		if e.Price != price || e.Side != side {
			continue
		}
		consumed := decrement
		if consumed > e.QueueAhead {
			consumed = e.QueueAhead
		}
		e.QueueAhead -= consumed
		if remainder := decrement - consumed; remainder > 0 {
			remainderByOrder[id] = remainder
		}
	}
	return remainderByOrder
}

// OnTradeConsume applies a TradePrint at our price consuming size s on our
// side: reduce queue_ahead by min(queue_ahead, s) first; return the remainder
// beyond our queue position that the caller must apply to the order's leaves.
func (m *QueueModel) OnTradeConsume(orderId types.OrderId, s float64) (remainder float64) {
	e, ok := m.entries[orderId]
	if !ok {
		return s
	}
	consumed := s
	if consumed > e.QueueAhead {
		consumed = e.QueueAhead
	}
	e.QueueAhead -= consumed
	return s - consumed
}
