package xdecimal

import (
	"bytes"
	"encoding/gob"
	"math/big"
	"testing"
)

func TestAmountArithmetic(t *testing.T) {
	a := NewAmount(100)
	b := NewAmount(40)

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if sum.String() != "140" {
		t.Errorf("got sum %s, want 140", sum)
	}

	diff := a.Sub(b)
	if diff.String() != "60" {
		t.Errorf("got diff %s, want 60", diff)
	}

	// Sub clamps at zero rather than going negative.
	if got := b.Sub(a); !got.IsZero() {
		t.Errorf("got %s, want 0 for underflowing Sub", got)
	}

	if _, err := b.SubChecked(a); err == nil {
		t.Error("SubChecked should error on underflow")
	}
}

func TestAmountOverflowRejected(t *testing.T) {
	over := new(big.Int).Add(MaxAmount, big.NewInt(1))
	if _, err := newAmountFromBig(over); err == nil {
		t.Error("expected overflow error for amount above MaxAmount")
	}
}

func TestAmountNegativeRejected(t *testing.T) {
	if _, err := newAmountFromBig(big.NewInt(-1)); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestAmountGobRoundTrip(t *testing.T) {
	a, err := ParseAmount("123456789012345678901234567890")
	if err != nil {
		t.Fatalf("ParseAmount: %v", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		t.Fatalf("gob encode: %v", err)
	}

	var decoded Amount
	if err := gob.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("gob decode: %v", err)
	}
	if decoded.Cmp(a) != 0 {
		t.Errorf("got %s after gob round trip, want %s", decoded, a)
	}
}

func TestAmountGobRoundTripZeroValue(t *testing.T) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(Zero); err != nil {
		t.Fatalf("gob encode: %v", err)
	}
	var decoded Amount
	if err := gob.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("gob decode: %v", err)
	}
	if !decoded.IsZero() {
		t.Errorf("got %s after gob round trip, want zero", decoded)
	}
}

func TestPriceParseAndString(t *testing.T) {
	p, err := ParsePrice("10.25")
	if err != nil {
		t.Fatalf("ParsePrice: %v", err)
	}
	if p.String() != "10.25" {
		t.Errorf("got %s, want 10.25", p)
	}
}

func TestPriceGobRoundTrip(t *testing.T) {
	p := MustParsePrice("4.2")

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		t.Fatalf("gob encode: %v", err)
	}

	var decoded Price
	if err := gob.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("gob decode: %v", err)
	}
	if decoded.Cmp(p) != 0 {
		t.Errorf("got %s after gob round trip, want %s", decoded, p)
	}
}

func TestMedianOddAndEvenCounts(t *testing.T) {
	odd := []Price{MustParsePrice("1"), MustParsePrice("3"), MustParsePrice("2")}
	if got := Median(odd); got.String() != "2" {
		t.Errorf("got median %s, want 2", got)
	}

	even := []Price{MustParsePrice("1"), MustParsePrice("2"), MustParsePrice("3"), MustParsePrice("4")}
	if got := Median(even); got.String() != "2.5" {
		t.Errorf("got median %s, want 2.5", got)
	}
}

func TestMulPriceTruncAndDivPriceTrunc(t *testing.T) {
	amt := NewAmount(1000)
	price := MustParsePrice("1.5")

	out, err := amt.MulPriceTrunc(price)
	if err != nil {
		t.Fatalf("MulPriceTrunc: %v", err)
	}
	if out.String() != "1500" {
		t.Errorf("got %s, want 1500", out)
	}

	back, err := out.DivPriceTrunc(price)
	if err != nil {
		t.Fatalf("DivPriceTrunc: %v", err)
	}
	if back.String() != "1000" {
		t.Errorf("got %s, want 1000", back)
	}
}
