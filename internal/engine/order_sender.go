package engine

import (
	"backtestv2/internal/clock"
	"backtestv2/pkg/types"
)

// orderSender is the concrete hermetic.OrderSender the Orchestrator hands to
// the strategy's StrategyContext. No call returns an error: an order that
// fails the OMS's venue-side checks (§4.5) is answered by a synthetic
// OrderReject event, an accepted one by OrderAck (and Fill when it crosses),
// and an accepted cancel by CancelAck, all scheduled on the EventQueue at the
// configured latency; a rejected cancel schedules nothing. No call here
// mutates the ledger or book directly, preserving the "Ledger is the sole
// mutator" guarantee of §9.
type orderSender struct {
	o *Orchestrator
}

func (s *orderSender) SendOrder(clientOrderId string, tokenId types.TokenId, side types.Side, price, size float64) error {
	s.o.handleSendOrder(clientOrderId, tokenId, side, price, size)
	return nil
}

func (s *orderSender) SendCancel(orderId types.OrderId) error {
	s.o.handleSendCancel(orderId)
	return nil
}

func (s *orderSender) CancelAll(tokenId types.TokenId) error {
	for id, ord := range s.o.oms.AllOpenOrders() {
		if ord.TokenId == tokenId {
			s.o.handleSendCancel(id)
		}
	}
	return nil
}

func (s *orderSender) GetPosition(market types.MarketId, outcome types.Outcome) int64 {
	return s.o.ledger.Position(market, outcome)
}

func (s *orderSender) GetAllPositions() map[string]int64 {
	return s.o.ledger.AllPositions()
}

func (s *orderSender) GetOpenOrders() []types.OrderId {
	var ids []types.OrderId
	for id := range s.o.oms.AllOpenOrders() {
		ids = append(ids, id)
	}
	return ids
}

func (s *orderSender) Now() types.Nanos { return s.o.watermark.DecisionTime() }

func (s *orderSender) ScheduleTimer(delay types.Nanos, label string) uint64 {
	s.o.nextTimerId++
	id := s.o.nextTimerId
	s.o.eventQueue.Push(&clock.Event{
		ArrivalTime: s.o.watermark.DecisionTime() + delay,
		Priority:    types.PrioritySystem,
		SourceTag:   "timer",
		SourceTime:  s.o.watermark.DecisionTime() + delay,
		Kind:        types.PayloadTimer,
		Payload:     types.TimerEvent{TimerId: id, Label: label},
	})
	return id
}

func (s *orderSender) CancelTimer(timerId uint64) {
	s.o.cancelledTimers[timerId] = struct{}{}
}
