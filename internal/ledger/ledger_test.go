package ledger

import (
	"testing"

	"backtestv2/internal/fixedpoint"
	"backtestv2/pkg/types"
)

func TestScenarioTwoTakerBuyThenSettlement(t *testing.T) {
	t.Parallel()
	// Scenario 2: buy 100 @ 0.40 taker, fee 0.10; settle Up at 1.00.
	l := New(true, false)
	price := fixedpoint.FromFloat(0.40)
	fee := fixedpoint.FromFloat(0.10)

	_, err := l.PostBuyFill(0, 0, 1, "mkt1", types.OutcomeYes, 100, price, fee)
	if err != nil {
		t.Fatalf("buy fill: %v", err)
	}
	if got := l.Balance(Cash()); got.String() != "-40.10000000" {
		t.Fatalf("cash after buy = %s, want -40.10000000", got.String())
	}
	if got := l.Balance(CostBasis("mkt1", types.OutcomeYes)); got.String() != "40.00000000" {
		t.Fatalf("cost basis = %s, want 40.00000000", got.String())
	}
	if got := l.Position("mkt1", types.OutcomeYes); got != 100 {
		t.Fatalf("position = %d, want 100", got)
	}

	payout := fixedpoint.FromFloat(1.00).MulInt(100)
	costBasis := l.Balance(CostBasis("mkt1", types.OutcomeYes))
	_, err = l.PostSettlement(1, 1, "window1", "mkt1", types.OutcomeYes, payout, costBasis)
	if err != nil {
		t.Fatalf("settlement: %v", err)
	}

	finalFees := l.Balance(FeesPaid())
	finalRealized := l.Balance(RealizedPnL())

	if finalFees.String() != "0.10000000" {
		t.Fatalf("total_fees = %s, want 0.10000000", finalFees.String())
	}
	if finalRealized.String() != "60.00000000" {
		t.Fatalf("realized pnl = %s, want 60.00000000", finalRealized.String())
	}
	// final_pnl = realized - fees = 59.90
	netPnl := finalRealized.Sub(finalFees)
	if netPnl.String() != "59.90000000" {
		t.Fatalf("net pnl = %s, want 59.90000000", netPnl.String())
	}
	if l.Position("mkt1", types.OutcomeYes) != 0 {
		t.Fatalf("position after settlement should be 0, got %d", l.Position("mkt1", types.OutcomeYes))
	}
}

func TestEveryPostingBalances(t *testing.T) {
	t.Parallel()
	l := New(true, true)
	entry, err := l.PostBuyFill(0, 0, 1, "mkt1", types.OutcomeYes, 10, fixedpoint.FromFloat(0.5), fixedpoint.FromFloat(0.01))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	sum := fixedpoint.Zero()
	for _, p := range entry.Postings {
		sum = sum.Add(p.Amount)
	}
	if !sum.IsZero() {
		t.Fatalf("postings do not balance: sum=%s", sum.String())
	}
}

func TestDuplicateEventRefRejected(t *testing.T) {
	t.Parallel()
	l := New(true, true)
	_, err := l.PostBuyFill(0, 0, 1, "mkt1", types.OutcomeYes, 10, fixedpoint.FromFloat(0.5), fixedpoint.Zero())
	if err != nil {
		t.Fatalf("first post: %v", err)
	}
	before := l.Balance(Cash())
	_, err = l.PostBuyFill(0, 0, 1, "mkt1", types.OutcomeYes, 10, fixedpoint.FromFloat(0.5), fixedpoint.Zero())
	if err == nil {
		t.Fatalf("expected rejection of duplicate event_ref")
	}
	after := l.Balance(Cash())
	if before.Cmp(after) != 0 {
		t.Fatalf("state should be unchanged after rejected duplicate posting")
	}
}

func TestNegativeCashRejectedUnlessAllowed(t *testing.T) {
	t.Parallel()
	l := New(false, true)
	_, err := l.PostBuyFill(0, 0, 1, "mkt1", types.OutcomeYes, 1000, fixedpoint.FromFloat(0.9), fixedpoint.Zero())
	if err == nil {
		t.Fatalf("expected AccountingViolation for negative cash")
	}
}

func TestSellFillRealizesLoss(t *testing.T) {
	t.Parallel()
	l := New(true, true)
	_, err := l.PostBuyFill(0, 0, 1, "mkt1", types.OutcomeYes, 100, fixedpoint.FromFloat(0.60), fixedpoint.Zero())
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	_, err = l.PostSellFill(1, 1, 2, "mkt1", types.OutcomeYes, 100, fixedpoint.FromFloat(0.40), fixedpoint.FromFloat(0.60), fixedpoint.Zero())
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	realized := l.Balance(RealizedPnL())
	if realized.String() != "-20.00000000" {
		t.Fatalf("realized pnl = %s, want -20.00000000", realized.String())
	}
}
