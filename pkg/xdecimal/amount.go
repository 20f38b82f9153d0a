// Package xdecimal provides the fixed-precision arithmetic the protocol
// requires: unsigned arbitrary-precision amounts and 18-fractional-digit
// decimal prices. No float64 ever appears on the amount/price path — spec.md
// §4.C is explicit that this is a safety property, not a style preference.
package xdecimal

import (
	"fmt"
	"math/big"
)

// MaxAmount mirrors the Uint128 ceiling the original prototype used
// (original_source: crates/types, cosmwasm_std::Uint128). Amounts above this
// bound are rejected as an overflow rather than silently wrapping.
var MaxAmount = func() *big.Int {
	v := new(big.Int).Lsh(big.NewInt(1), 128)
	return v.Sub(v, big.NewInt(1))
}()

// Amount is a non-negative arbitrary-precision integer quantity of a coin.
type Amount struct {
	v *big.Int
}

// Zero is the additive identity.
var Zero = Amount{v: big.NewInt(0)}

// NewAmount constructs an Amount from a uint64, always valid.
func NewAmount(u uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(u)}
}

// ParseAmount parses a base-10, non-negative integer string.
func ParseAmount(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("xdecimal: invalid amount %q", s)
	}
	return newAmountFromBig(v)
}

func newAmountFromBig(v *big.Int) (Amount, error) {
	if v.Sign() < 0 {
		return Amount{}, fmt.Errorf("xdecimal: negative amount %s", v.String())
	}
	if v.Cmp(MaxAmount) > 0 {
		return Amount{}, fmt.Errorf("xdecimal: amount %s overflows MaxAmount", v.String())
	}
	return Amount{v: v}, nil
}

func (a Amount) String() string {
	if a.v == nil {
		return "0"
	}
	return a.v.String()
}

// BigInt returns a defensive copy of the underlying integer.
func (a Amount) BigInt() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.v)
}

func (a Amount) IsZero() bool {
	return a.v == nil || a.v.Sign() == 0
}

// Sign returns 0 for a zero amount and 1 otherwise (amounts are never
// negative, so -1 cannot occur).
func (a Amount) Sign() int {
	return a.bigOrZero().Sign()
}

func (a Amount) Cmp(b Amount) int {
	return a.bigOrZero().Cmp(b.bigOrZero())
}

func (a Amount) bigOrZero() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return a.v
}

// GobEncode delegates to big.Int's own gob encoding of the underlying
// value — Amount's v field is unexported, so without this encoding/gob
// would silently skip it and every round trip would decode to zero.
// Used by pkg/settlementstore's PebbleStore to persist settlements.
func (a Amount) GobEncode() ([]byte, error) {
	return a.bigOrZero().GobEncode()
}

// GobDecode is the inverse of GobEncode.
func (a *Amount) GobDecode(data []byte) error {
	v := new(big.Int)
	if err := v.GobDecode(data); err != nil {
		return err
	}
	a.v = v
	return nil
}

// Add returns a+b, erroring only on the MaxAmount overflow ceiling.
func (a Amount) Add(b Amount) (Amount, error) {
	sum := new(big.Int).Add(a.bigOrZero(), b.bigOrZero())
	return newAmountFromBig(sum)
}

// Sub returns a-b. Never goes negative: spec.md invariant 3 (solver bond) and
// the escrow/vault bookkeeping both depend on subtraction clamping rather
// than erroring, so callers that need strict non-negativity call SubChecked.
func (a Amount) Sub(b Amount) Amount {
	diff := new(big.Int).Sub(a.bigOrZero(), b.bigOrZero())
	if diff.Sign() < 0 {
		return Zero
	}
	return Amount{v: diff}
}

// SubChecked returns a-b, or an error if the result would be negative.
func (a Amount) SubChecked(b Amount) (Amount, error) {
	diff := new(big.Int).Sub(a.bigOrZero(), b.bigOrZero())
	if diff.Sign() < 0 {
		return Amount{}, fmt.Errorf("xdecimal: %s - %s underflows", a, b)
	}
	return Amount{v: diff}, nil
}

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// MulBpsTrunc computes a * bps / 10000, truncating the remainder — the
// basis-point scaling the slashing formula uses (spec.md §4.F:
// "base_slash_bps * settlement.input_amount / 10000").
func (a Amount) MulBpsTrunc(bps uint64) (Amount, error) {
	num := new(big.Int).Mul(a.bigOrZero(), new(big.Int).SetUint64(bps))
	num.Quo(num, big.NewInt(10000))
	return newAmountFromBig(num)
}

// MulPriceTrunc computes amount*price, truncating (flooring) the fractional
// remainder — "truncate for amounts to the user's disadvantage" per spec.md
// §4.C, so the protocol never over-releases funds due to rounding.
func (a Amount) MulPriceTrunc(p Price) (Amount, error) {
	num := new(big.Int).Mul(a.bigOrZero(), p.mantissa())
	num.Quo(num, priceScaleFactor)
	return newAmountFromBig(num)
}

// PriceFromAmounts computes the implied price output/input, rounding
// half-to-even — used to derive a realized fill price from the two legs of
// a match without ever routing through float64.
func PriceFromAmounts(output, input Amount) (Price, error) {
	if input.IsZero() {
		return Price{}, fmt.Errorf("xdecimal: cannot derive price from zero input amount")
	}
	num := new(big.Int).Mul(output.bigOrZero(), priceScaleFactor)
	return Price{m: divRoundHalfEven(num, input.bigOrZero())}, nil
}

// DivPriceTrunc computes amount/price, truncating (flooring) the remainder.
func (a Amount) DivPriceTrunc(p Price) (Amount, error) {
	if p.IsZero() {
		return Amount{}, fmt.Errorf("xdecimal: division by zero price")
	}
	num := new(big.Int).Mul(a.bigOrZero(), priceScaleFactor)
	num.Quo(num, p.mantissa())
	return newAmountFromBig(num)
}
