package fixedpoint

import "testing"

func TestFromFloatRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   float64
		want int64
	}{
		{"whole dollar", 1.0, 100_000_000},
		{"cents", 0.40, 40_000_000},
		{"fee", 0.10, 10_000_000},
		{"zero", 0.0, 0},
		{"negative", -59.90, -5_990_000_000},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := FromFloat(tc.in).ScaledInt64()
			if got != tc.want {
				t.Fatalf("FromFloat(%v).ScaledInt64() = %d, want %d", tc.in, got, tc.want)
			}
		})
	}
}

func TestAddSubNeg(t *testing.T) {
	t.Parallel()
	a := FromFloat(40.00)
	b := FromFloat(0.10)
	sum := a.Add(b)
	if sum.String() != "40.10000000" {
		t.Fatalf("Add = %s, want 40.10000000", sum.String())
	}
	diff := a.Sub(b)
	if diff.String() != "39.90000000" {
		t.Fatalf("Sub = %s, want 39.90000000", diff.String())
	}
	if a.Neg().Add(a).Sign() != 0 {
		t.Fatalf("a + (-a) should be zero")
	}
}

func TestMulIntAndMulAmount(t *testing.T) {
	t.Parallel()
	price := FromFloat(0.40)
	qty := int64(100)
	notional := price.MulInt(qty)
	if notional.String() != "40.00000000" {
		t.Fatalf("price.MulInt(100) = %s, want 40.00000000", notional.String())
	}

	priceAmt := FromFloat(0.40)
	sizeAmt := FromFloat(100)
	notional2 := priceAmt.MulAmount(sizeAmt)
	if notional2.String() != notional.String() {
		t.Fatalf("MulAmount = %s, want %s", notional2.String(), notional.String())
	}
}

func TestSettlementPostingsScenario(t *testing.T) {
	t.Parallel()
	// Scenario 2 from spec: buy 100 @ 0.40, fee 0.10, settle Up @ 1.00.
	cost := FromFloat(0.40).MulInt(100)
	fee := FromFloat(0.10)
	settleValue := FromFloat(1.00).MulInt(100)
	realized := settleValue.Sub(cost)
	finalPnl := realized.Sub(fee)

	if cost.String() != "40.00000000" {
		t.Fatalf("cost = %s", cost.String())
	}
	if realized.String() != "60.00000000" {
		t.Fatalf("realized = %s", realized.String())
	}
	if finalPnl.String() != "59.90000000" {
		t.Fatalf("final_pnl = %s, want 59.90000000", finalPnl.String())
	}
}

func TestCanonicalPriceSize(t *testing.T) {
	t.Parallel()
	if CanonicalPrice(0.45) != 45_000_000 {
		t.Fatalf("CanonicalPrice(0.45) = %d", CanonicalPrice(0.45))
	}
	if CanonicalSize(150) != 15_000_000_000 {
		t.Fatalf("CanonicalSize(150) = %d", CanonicalSize(150))
	}
}

func TestDivInt(t *testing.T) {
	t.Parallel()
	sum := FromFloat(10.0)
	avg := sum.DivInt(4)
	if avg.String() != "2.50000000" {
		t.Fatalf("DivInt = %s, want 2.50000000", avg.String())
	}
}

func TestFromScaledIntAndFromInt(t *testing.T) {
	t.Parallel()
	if FromScaledInt(40_000_000).String() != "0.40000000" {
		t.Fatalf("FromScaledInt mismatch: %s", FromScaledInt(40_000_000).String())
	}
	if FromInt(5).String() != "5.00000000" {
		t.Fatalf("FromInt mismatch: %s", FromInt(5).String())
	}
}
