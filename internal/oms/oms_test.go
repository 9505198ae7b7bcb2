package oms

import (
	"testing"

	"backtestv2/pkg/types"
)

func defaultConstraints() VenueConstraints {
	return VenueConstraints{MinPrice: 0.01, MaxPrice: 0.99, TickSize: 0.01, MinSize: 1, MaxSize: 100000, OrdersPerSec: 10, CancelsPerSec: 10}
}

func TestSendOrderHappyPath(t *testing.T) {
	t.Parallel()
	o := New(defaultConstraints())
	ord, rej := o.SendOrder(0, "c1", "tok1", types.Buy, 0.45, 100, true)
	if rej != nil {
		t.Fatalf("unexpected reject: %+v", rej)
	}
	if ord.State != StatePendingAck {
		t.Fatalf("expected PendingAck, got %v", ord.State)
	}
	if !o.Ack(ord.OrderId) {
		t.Fatalf("ack should succeed from PendingAck")
	}
	got, _ := o.Get(ord.OrderId)
	if got.State != StateLive {
		t.Fatalf("expected Live after ack, got %v", got.State)
	}
}

func TestSendOrderRejectsDuplicateClientOrderId(t *testing.T) {
	t.Parallel()
	o := New(defaultConstraints())
	o.SendOrder(0, "dup", "tok1", types.Buy, 0.45, 100, true)
	_, rej := o.SendOrder(0, "dup", "tok1", types.Buy, 0.45, 100, true)
	if rej == nil || rej.Reason != types.RejectDuplicateOrderId {
		t.Fatalf("expected DuplicateOrderId reject, got %+v", rej)
	}
}

func TestSendOrderValidation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		price  float64
		size   float64
		reason types.RejectReason
	}{
		{"price too low", 0.0, 10, types.RejectPriceOutOfRange},
		{"price too high", 1.5, 10, types.RejectPriceOutOfRange},
		{"off tick", 0.451, 10, types.RejectPriceOffTick},
		{"size too small", 0.45, 0, types.RejectSizeOutOfRange},
	}
	for i, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			o := New(defaultConstraints())
			_, rej := o.SendOrder(0, "c", "tok1", types.Buy, tc.price, tc.size, true)
			if rej == nil || rej.Reason != tc.reason {
				t.Fatalf("case %d: expected reason %v, got %+v", i, tc.reason, rej)
			}
		})
	}
}

func TestOrderRateLimitRejectsBurst(t *testing.T) {
	t.Parallel()
	c := defaultConstraints()
	c.OrdersPerSec = 2
	o := New(c)
	o.SendOrder(0, "c1", "tok1", types.Buy, 0.45, 10, true)
	o.SendOrder(0, "c2", "tok1", types.Buy, 0.45, 10, true)
	_, rej := o.SendOrder(0, "c3", "tok1", types.Buy, 0.45, 10, true)
	if rej == nil || rej.Reason != types.RejectRateLimited {
		t.Fatalf("expected RateLimited on third order within window, got %+v", rej)
	}
}

func TestApplyFillTransitionsAndRejectsOverfill(t *testing.T) {
	t.Parallel()
	o := New(defaultConstraints())
	ord, _ := o.SendOrder(0, "c1", "tok1", types.Buy, 0.45, 100, true)
	o.Ack(ord.OrderId)

	if !o.ApplyFill(ord.OrderId, 40) {
		t.Fatalf("partial fill should succeed")
	}
	got, _ := o.Get(ord.OrderId)
	if got.State != StatePartiallyFilled || got.Filled != 40 {
		t.Fatalf("expected PartiallyFilled/40, got %v/%v", got.State, got.Filled)
	}

	if o.ApplyFill(ord.OrderId, 1000) {
		t.Fatalf("overfill should be rejected")
	}

	if !o.ApplyFill(ord.OrderId, 60) {
		t.Fatalf("remaining fill should succeed")
	}
	got, _ = o.Get(ord.OrderId)
	if got.State != StateDoneFilled {
		t.Fatalf("expected Done(Filled), got %v", got.State)
	}
	if !got.State.Terminal() {
		t.Fatalf("Done(Filled) must be terminal")
	}
}

func TestCancelFlow(t *testing.T) {
	t.Parallel()
	o := New(defaultConstraints())
	ord, _ := o.SendOrder(0, "c1", "tok1", types.Sell, 0.55, 50, true)
	o.Ack(ord.OrderId)

	if rej := o.RequestCancel(1, ord.OrderId); rej != nil {
		t.Fatalf("unexpected cancel reject: %+v", rej)
	}
	got, _ := o.Get(ord.OrderId)
	if got.State != StatePendingCancel {
		t.Fatalf("expected PendingCancel, got %v", got.State)
	}
	if !o.CancelAck(ord.OrderId) {
		t.Fatalf("cancel ack should succeed")
	}
	got, _ = o.Get(ord.OrderId)
	if got.State != StateDoneCancelled {
		t.Fatalf("expected Done(Cancelled), got %v", got.State)
	}
}
