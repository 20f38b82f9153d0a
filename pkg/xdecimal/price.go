package xdecimal

import (
	"fmt"
	"math/big"
	"sort"
	"strings"
)

// PriceScaleDigits is the minimum fractional precision spec.md §4.C requires
// ("decimal numbers with at least 18 fractional digits").
const PriceScaleDigits = 18

var priceScaleFactor = func() *big.Int {
	v := big.NewInt(1)
	ten := big.NewInt(10)
	for i := 0; i < PriceScaleDigits; i++ {
		v.Mul(v, ten)
	}
	return v
}()

// Price is a fixed-point decimal with PriceScaleDigits fractional digits,
// stored as mantissa / 10^18. Never backed by float64.
type Price struct {
	m *big.Int // mantissa, scaled by priceScaleFactor
}

func (p Price) mantissa() *big.Int {
	if p.m == nil {
		return big.NewInt(0)
	}
	return p.m
}

// GobEncode delegates to big.Int's own gob encoding of the mantissa —
// Price's m field is unexported, so without this encoding/gob would
// silently skip it and every round trip would decode to zero. Used by
// pkg/settlementstore's PebbleStore to persist settlements.
func (p Price) GobEncode() ([]byte, error) {
	return p.mantissa().GobEncode()
}

// GobDecode is the inverse of GobEncode.
func (p *Price) GobDecode(data []byte) error {
	m := new(big.Int)
	if err := m.GobDecode(data); err != nil {
		return err
	}
	p.m = m
	return nil
}

// ParsePrice parses a decimal string such as "10.25" or "10" into a Price.
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Price{}, fmt.Errorf("xdecimal: empty price")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > PriceScaleDigits {
		return Price{}, fmt.Errorf("xdecimal: price %q exceeds %d fractional digits", s, PriceScaleDigits)
	}
	fracPart = fracPart + strings.Repeat("0", PriceScaleDigits-len(fracPart))

	mantissa, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return Price{}, fmt.Errorf("xdecimal: invalid price %q", s)
	}
	if neg {
		mantissa.Neg(mantissa)
	}
	return Price{m: mantissa}, nil
}

// MustParsePrice parses and panics on error — for constants only.
func MustParsePrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Price) IsZero() bool {
	return p.mantissa().Sign() == 0
}

func (p Price) Sign() int {
	return p.mantissa().Sign()
}

func (p Price) Cmp(o Price) int {
	return p.mantissa().Cmp(o.mantissa())
}

func (p Price) Add(o Price) Price {
	return Price{m: new(big.Int).Add(p.mantissa(), o.mantissa())}
}

func (p Price) Sub(o Price) Price {
	return Price{m: new(big.Int).Sub(p.mantissa(), o.mantissa())}
}

// Abs returns the absolute value of p.
func (p Price) Abs() Price {
	return Price{m: new(big.Int).Abs(p.mantissa())}
}

// MulUint64 scales p by an integer factor n, staying within the same
// mantissa scale — used for basis-point tolerance comparisons where both
// sides of an inequality are scaled by the same base.
func (p Price) MulUint64(n uint64) Price {
	return Price{m: new(big.Int).Mul(p.mantissa(), new(big.Int).SetUint64(n))}
}

// Mul multiplies two prices, rounding half-to-even on the scaled remainder —
// spec.md §4.C: "round-half-to-even for prices".
func (p Price) Mul(o Price) Price {
	raw := new(big.Int).Mul(p.mantissa(), o.mantissa())
	return Price{m: divRoundHalfEven(raw, priceScaleFactor)}
}

// Div divides p by o, rounding half-to-even.
func (p Price) Div(o Price) (Price, error) {
	if o.IsZero() {
		return Price{}, fmt.Errorf("xdecimal: division by zero price")
	}
	raw := new(big.Int).Mul(p.mantissa(), priceScaleFactor)
	return Price{m: divRoundHalfEven(raw, o.mantissa())}, nil
}

// String renders the price with trailing zero-trimmed fractional digits.
func (p Price) String() string {
	m := new(big.Int).Set(p.mantissa())
	neg := m.Sign() < 0
	if neg {
		m.Neg(m)
	}
	s := m.String()
	for len(s) <= PriceScaleDigits {
		s = "0" + s
	}
	intPart := s[:len(s)-PriceScaleDigits]
	fracPart := strings.TrimRight(s[len(s)-PriceScaleDigits:], "0")
	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}

// divRoundHalfEven computes round-half-to-even(num/den).
func divRoundHalfEven(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() == 0 {
		return q
	}
	twiceR := new(big.Int).Mul(r, big.NewInt(2))
	twiceR.Abs(twiceR)
	denAbs := new(big.Int).Abs(den)
	cmp := twiceR.Cmp(denAbs)

	roundAway := cmp > 0
	if cmp == 0 {
		// Exactly half: round to even.
		roundAway = q.Bit(0) == 1
	}
	if roundAway {
		if (num.Sign() < 0) != (den.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return q
}

// Median returns the median of a non-empty slice of prices, per spec.md §9's
// resolution of the clearing-price open question: median instead of a
// volume-weighted mean, so the result is always within [min(fills), max(fills)].
func Median(prices []Price) Price {
	if len(prices) == 0 {
		return Price{}
	}
	sorted := make([]Price, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	two := MustParsePrice("2")
	sum := sorted[mid-1].Add(sorted[mid])
	avg, _ := sum.Div(two)
	return avg
}
