// Package oms implements the OrderManagementSystem of §4.5: the order state
// machine, venue constraint validation, and rate limiting. Generalizes the
// teacher's exchange.Client request/response shape (validate -> typed reject
// -> counters) away from a live REST call into a pure, in-memory admission
// function the Orchestrator calls once per intent.
package oms

import (
	"backtestv2/pkg/types"
)

// State is a closed enum for the order lifecycle of §4.5.
type State int

const (
	StateNew State = iota
	StatePendingAck
	StateLive
	StatePartiallyFilled
	StatePendingCancel
	StateDoneFilled
	StateDoneCancelled
	StateDoneRejected
)

func (s State) Terminal() bool {
	return s == StateDoneFilled || s == StateDoneCancelled || s == StateDoneRejected
}

// Order is the OMS's view of one order across its lifecycle (§3's OpenOrder).
type Order struct {
	OrderId       types.OrderId
	ClientOrderId string
	TokenId       types.TokenId
	Side          types.Side
	LimitPrice    float64
	OriginalSize  float64
	Filled        float64
	State         State
	IsMaker       bool
	CreatedAt     types.Nanos
}

func (o *Order) Leaves() float64 { return o.OriginalSize - o.Filled }

// VenueConstraints mirrors the §6 BacktestConfig.venue_constraints surface.
type VenueConstraints struct {
	MinPrice      float64
	MaxPrice      float64
	TickSize      float64
	MinSize       float64
	MaxSize       float64
	OrdersPerSec  int
	CancelsPerSec int
	FeeRateBps    int
}

// Stats mirrors OmsStats of §3.
type Stats struct {
	OrdersSent      int64
	OrdersAccepted  int64
	OrdersRejected  int64
	CancelsSent     int64
	CancelsAccepted int64
	RejectsByReason map[types.RejectReason]int64
}

// OMS owns all orders and enforces §4.5's validation and state machine.
// Owned exclusively by the Orchestrator.
type OMS struct {
	constraints VenueConstraints
	orders      map[types.OrderId]*Order
	byClientId  map[string]types.OrderId
	nextOrderId types.OrderId
	marketOpen  bool

	orderRate  *SlidingWindowCounter
	cancelRate *SlidingWindowCounter

	stats Stats
}

func New(constraints VenueConstraints) *OMS {
	windowNs := int64(1_000_000_000) // 1 second
	return &OMS{
		constraints: constraints,
		orders:      make(map[types.OrderId]*Order),
		byClientId:  make(map[string]types.OrderId),
		marketOpen:  true,
		orderRate:   NewSlidingWindowCounter(windowNs, constraints.OrdersPerSec),
		cancelRate:  NewSlidingWindowCounter(windowNs, constraints.CancelsPerSec),
		stats:       Stats{RejectsByReason: make(map[types.RejectReason]int64)},
	}
}

func (o *OMS) SetMarketOpen(open bool) { o.marketOpen = open }

func (o *OMS) Stats() Stats { return o.stats }

func (o *OMS) Get(orderId types.OrderId) (*Order, bool) {
	ord, ok := o.orders[orderId]
	return ord, ok
}

// AllOpenOrders returns every order not yet in a terminal state, keyed by
// OrderId.
func (o *OMS) AllOpenOrders() map[types.OrderId]*Order {
	open := make(map[types.OrderId]*Order)
	for id, ord := range o.orders {
		if !ord.State.Terminal() {
			open[id] = ord
		}
	}
	return open
}

func (o *OMS) reject(clientOrderId string, orderId types.OrderId, reason types.RejectReason) types.OrderReject {
	o.stats.OrdersRejected++
	o.stats.RejectsByReason[reason]++
	return types.OrderReject{ClientOrderId: clientOrderId, OrderId: orderId, Reason: reason}
}

// SendOrder validates and, if accepted, admits a new order in PendingAck.
// Returns either the admitted *Order (ack pending) or a reject.
func (o *OMS) SendOrder(simTimeNs int64, clientOrderId string, tokenId types.TokenId, side types.Side, price, size float64, isMaker bool) (*Order, *types.OrderReject) {
	o.stats.OrdersSent++

	if _, exists := o.byClientId[clientOrderId]; exists {
		r := o.reject(clientOrderId, 0, types.RejectDuplicateOrderId)
		return nil, &r
	}
	if !o.marketOpen {
		r := o.reject(clientOrderId, 0, types.RejectMarketNotOpen)
		return nil, &r
	}
	if price < o.constraints.MinPrice || price > o.constraints.MaxPrice {
		r := o.reject(clientOrderId, 0, types.RejectPriceOutOfRange)
		return nil, &r
	}
	if o.constraints.TickSize > 0 && !onTick(price, o.constraints.TickSize) {
		r := o.reject(clientOrderId, 0, types.RejectPriceOffTick)
		return nil, &r
	}
	if size < o.constraints.MinSize || size > o.constraints.MaxSize {
		r := o.reject(clientOrderId, 0, types.RejectSizeOutOfRange)
		return nil, &r
	}
	if !o.orderRate.Allow(simTimeNs) {
		r := o.reject(clientOrderId, 0, types.RejectRateLimited)
		return nil, &r
	}

	o.nextOrderId++
	id := o.nextOrderId
	ord := &Order{
		OrderId:       id,
		ClientOrderId: clientOrderId,
		TokenId:       tokenId,
		Side:          side,
		LimitPrice:    price,
		OriginalSize:  size,
		State:         StatePendingAck,
		IsMaker:       isMaker,
		CreatedAt:     types.Nanos(simTimeNs),
	}
	o.orders[id] = ord
	o.byClientId[clientOrderId] = id
	o.stats.OrdersAccepted++
	return ord, nil
}

// Ack transitions PendingAck -> Live. Any other starting state is an OMS
// invariant violation (§4.9), signalled via the bool return so the caller can
// route it to the InvariantEnforcer with full context.
func (o *OMS) Ack(orderId types.OrderId) bool {
	ord, ok := o.orders[orderId]
	if !ok || ord.State != StatePendingAck {
		return false
	}
	ord.State = StateLive
	return true
}

// RequestCancel transitions Live/PartiallyFilled -> PendingCancel.
func (o *OMS) RequestCancel(simTimeNs int64, orderId types.OrderId) *types.OrderReject {
	ord, ok := o.orders[orderId]
	if !ok {
		r := o.reject("", orderId, types.RejectMarketNotOpen)
		return &r
	}
	if ord.State != StateLive && ord.State != StatePartiallyFilled {
		r := o.reject(ord.ClientOrderId, orderId, types.RejectMarketNotOpen)
		return &r
	}
	if !o.cancelRate.Allow(simTimeNs) {
		o.stats.RejectsByReason[types.RejectRateLimited]++
		r := o.reject(ord.ClientOrderId, orderId, types.RejectRateLimited)
		return &r
	}
	o.stats.CancelsSent++
	ord.State = StatePendingCancel
	return nil
}

// CancelAck finalizes PendingCancel -> Done(Cancelled).
func (o *OMS) CancelAck(orderId types.OrderId) bool {
	ord, ok := o.orders[orderId]
	if !ok || ord.State != StatePendingCancel {
		return false
	}
	ord.State = StateDoneCancelled
	o.stats.CancelsAccepted++
	return true
}

// ApplyFill records an execution against a Live, PartiallyFilled or
// PendingCancel order,
// transitioning to PartiallyFilled or Done(Filled). No fill may exceed
// leaves (no overfill, §4.9).
func (o *OMS) ApplyFill(orderId types.OrderId, size float64) bool {
	ord, ok := o.orders[orderId]
	if !ok {
		return false
	}
	if ord.State != StateLive && ord.State != StatePartiallyFilled && ord.State != StatePendingCancel {
		return false
	}
	if size > ord.Leaves() {
		return false
	}
	ord.Filled += size
	if ord.Leaves() <= 0 {
		ord.State = StateDoneFilled
	} else {
		ord.State = StatePartiallyFilled
	}
	return true
}

// ReduceLeaves shrinks a resting order's own displayed size without
// crediting a fill: §4.4's "our own share of a level decrement reduces
// leaves" path, distinct from ApplyFill's ledger-crediting path. Clamped to
// the order's current leaves so it can never go negative.
func (o *OMS) ReduceLeaves(orderId types.OrderId, amount float64) bool {
	ord, ok := o.orders[orderId]
	if !ok {
		return false
	}
	if ord.State != StateLive && ord.State != StatePartiallyFilled && ord.State != StatePendingCancel {
		return false
	}
	if amount > ord.Leaves() {
		amount = ord.Leaves()
	}
	ord.OriginalSize -= amount
	return true
}

func onTick(price, tick float64) bool {
	scaled := price / tick
	rounded := float64(int64(scaled + 0.5))
	return abs(scaled-rounded) < 1e-6
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
