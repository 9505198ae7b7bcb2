// Package fixedpoint implements the canonical fixed-point Amount used for
// every cash, price, and size value that crosses a ledger posting or a
// fingerprint hash (§3). It generalizes the big.Int scaling already present
// in the teacher's PriceToAmounts (USDC at 1e6) to the spec's signed 128-bit
// value at scale 1e8, backed by math/big.Int since Go has no native int128.
package fixedpoint

import (
	"fmt"
	"math/big"
)

// Scale is the fixed-point scale: eight decimal places.
const Scale = 100_000_000

var scaleBig = big.NewInt(Scale)

// Amount is a signed fixed-point value at Scale. Zero value is zero.
// Amount is immutable: every operation returns a new value.
type Amount struct {
	v *big.Int // value * Scale; never nil after New*
}

// Zero is the additive identity.
func Zero() Amount { return Amount{v: big.NewInt(0)} }

// FromFloat canonicalizes a float64: round(x*1e8), half away from zero. The
// engine calls it wherever a float price enters ledger arithmetic (each fill,
// each mark-to-market).
func FromFloat(x float64) Amount {
	bf := new(big.Float).SetFloat64(x)
	bf.Mul(bf, new(big.Float).SetInt(scaleBig))
	// round half away from zero
	i, _ := bf.Int(nil)
	frac := new(big.Float).Sub(bf, new(big.Float).SetInt(i))
	half := big.NewFloat(0.5)
	if frac.Cmp(half) >= 0 {
		i.Add(i, big.NewInt(1))
	} else if frac.Cmp(new(big.Float).Neg(half)) <= 0 {
		i.Sub(i, big.NewInt(1))
	}
	return Amount{v: i}
}

// FromScaledInt builds an Amount directly from an already-scaled integer
// (e.g. a value read verbatim from recorded storage as round(x*1e8)).
func FromScaledInt(scaled int64) Amount {
	return Amount{v: big.NewInt(scaled)}
}

// FromInt builds a whole-unit Amount (e.g. FromInt(1) == $1.00... at scale).
func FromInt(n int64) Amount {
	return Amount{v: new(big.Int).Mul(big.NewInt(n), scaleBig)}
}

func (a Amount) bi() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return a.v
}

// Add returns a+b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.bi(), b.bi())}
}

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{v: new(big.Int).Sub(a.bi(), b.bi())}
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{v: new(big.Int).Neg(a.bi())}
}

// MulInt scales a by an integer quantity (e.g. price * qty where qty is a
// unit-less share count).
func (a Amount) MulInt(n int64) Amount {
	return Amount{v: new(big.Int).Mul(a.bi(), big.NewInt(n))}
}

// MulAmount multiplies two scaled amounts, dividing out one factor of Scale
// (e.g. price(Amount) * size(Amount) -> notional(Amount)).
func (a Amount) MulAmount(b Amount) Amount {
	prod := new(big.Int).Mul(a.bi(), b.bi())
	return Amount{v: prod.Div(prod, scaleBig)}
}

// DivInt divides a by an integer divisor, truncating toward zero (used for
// averages over a run count, per-unit average cost, and the per-fill bps fee
// computation, which therefore truncates).
func (a Amount) DivInt(n int64) Amount {
	return Amount{v: new(big.Int).Quo(a.bi(), big.NewInt(n))}
}

// Cmp returns -1, 0, 1 per big.Int.Cmp semantics.
func (a Amount) Cmp(b Amount) int { return a.bi().Cmp(b.bi()) }

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool { return a.bi().Sign() == 0 }

// Sign returns -1, 0, or 1.
func (a Amount) Sign() int { return a.bi().Sign() }

// Float64 converts to floating point, only legal at an output boundary.
func (a Amount) Float64() float64 {
	f := new(big.Float).SetInt(a.bi())
	f.Quo(f, new(big.Float).SetInt(scaleBig))
	out, _ := f.Float64()
	return out
}

// ScaledInt64 returns the raw scaled integer (panics if it overflows int64;
// in practice cash/PnL/fee magnitudes for one run never approach that range).
func (a Amount) ScaledInt64() int64 {
	if !a.bi().IsInt64() {
		panic(fmt.Sprintf("fixedpoint: amount %s overflows int64", a.bi().String()))
	}
	return a.bi().Int64()
}

// String renders a human-readable decimal form, e.g. "59.90000000".
func (a Amount) String() string {
	neg := a.bi().Sign() < 0
	abs := new(big.Int).Abs(a.bi())
	whole := new(big.Int)
	frac := new(big.Int)
	whole.DivMod(abs, scaleBig, frac)
	s := fmt.Sprintf("%s.%08d", whole.String(), frac.Int64())
	if neg {
		s = "-" + s
	}
	return s
}

// CanonicalPrice rounds a raw float price to the canonical integer form used
// in hashing and ledger postings: round(price * 1e8).
func CanonicalPrice(price float64) int64 {
	return FromFloat(price).ScaledInt64()
}

// CanonicalSize rounds a raw float size the same way.
func CanonicalSize(size float64) int64 {
	return FromFloat(size).ScaledInt64()
}
