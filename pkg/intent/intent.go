// Package intent implements the canonical signed swap request and solver
// proposal types (spec.md §3, §4.A): construction, canonical digesting,
// signature verification, expiry, and trading-pair normalization.
//
// Field layout is grounded on original_source's
// crates/types/tests/adversarial_signature_tests.rs, which exercises the
// Rust Intent builder end to end (Asset input, OutputSpec output,
// FillConfig, ExecutionConstraints, nonce) even though the prototype's own
// intent.rs source was not retrieved into this pack.
package intent

import (
	"strconv"
	"strings"

	"github.com/atomintents/intentcore/pkg/xdecimal"
	"github.com/atomintents/intentcore/pkg/xerrors"
	"github.com/atomintents/intentcore/pkg/xsign"
)

// FillStrategy selects how an unmatched remainder is handled.
type FillStrategy int

const (
	FillEager FillStrategy = iota
	FillPatient
	FillAllOrNothing
)

func (s FillStrategy) String() string {
	switch s {
	case FillEager:
		return "eager"
	case FillPatient:
		return "patient"
	case FillAllOrNothing:
		return "all_or_nothing"
	default:
		return "unknown"
	}
}

// Asset names a denom-amount pair on a specific chain.
type Asset struct {
	ChainID string
	Denom   string
	Amount  xdecimal.Amount
}

// OutputSpec is the user's desired output leg.
type OutputSpec struct {
	ChainID    string
	Denom      string
	MinAmount  xdecimal.Amount
	LimitPrice xdecimal.Price
	Recipient  string
}

// FillConfig controls how partial fills are handled during matching.
type FillConfig struct {
	AllowPartial        bool
	MinFillAmount       xdecimal.Amount
	MinFillPct          xdecimal.Price
	AggregationWindowMs int64
	Strategy            FillStrategy
}

// ExecutionConstraints bounds routing and fee behavior.
type ExecutionConstraints struct {
	Deadline            int64
	MaxHops             *uint32
	ExcludedVenues      []string
	MaxSolverFeeBps     *uint32
	AllowCrossEcosystem bool
	MaxBridgeTimeSecs   *int64
}

// Intent is a signed, declarative swap request.
type Intent struct {
	ID          string
	Version     string
	User        string
	Nonce       uint64
	Input       Asset
	Output      OutputSpec
	FillConfig  FillConfig
	Constraints ExecutionConstraints
	CreatedAt   int64
	ExpiresAt   int64
	PublicKey   []byte
	Signature   []byte
}

const ProtocolVersion = "1.0"

// TradingPair identifies a book by its two denoms in normalized (lexically
// sorted) order, so (ATOM, USDC) and (USDC, ATOM) name the same book.
type TradingPair struct {
	Base  string
	Quote string
}

func (p TradingPair) String() string {
	return p.Base + "/" + p.Quote
}

// NewTradingPair normalizes two denoms into a canonical pair.
func NewTradingPair(denomA, denomB string) TradingPair {
	if denomA <= denomB {
		return TradingPair{Base: denomA, Quote: denomB}
	}
	return TradingPair{Base: denomB, Quote: denomA}
}

// Pair returns the normalized trading pair this intent trades.
func (i Intent) Pair() TradingPair {
	return NewTradingPair(i.Input.Denom, i.Output.Denom)
}

// IsExpired reports whether now has passed the intent's expiry.
func (i Intent) IsExpired(now int64) bool {
	return now >= i.ExpiresAt
}

// SigningHash returns the canonical digest covering every semantic field.
// Deliberately not JSON: JSON key ordering is not a safety property to
// depend on, so fields are concatenated in a fixed, explicit order instead.
// Tampering with any field — including nonce and chain_ids — changes the
// digest (spec.md §3 "Signing hash covers all semantic fields").
func (i Intent) SigningHash() []byte {
	var b strings.Builder
	b.WriteString(i.Version)
	b.WriteByte(0)
	b.WriteString(i.User)
	b.WriteByte(0)
	b.WriteString(strconv.FormatUint(i.Nonce, 10))
	b.WriteByte(0)

	b.WriteString(i.Input.ChainID)
	b.WriteByte(0)
	b.WriteString(i.Input.Denom)
	b.WriteByte(0)
	b.WriteString(i.Input.Amount.String())
	b.WriteByte(0)

	b.WriteString(i.Output.ChainID)
	b.WriteByte(0)
	b.WriteString(i.Output.Denom)
	b.WriteByte(0)
	b.WriteString(i.Output.MinAmount.String())
	b.WriteByte(0)
	b.WriteString(i.Output.LimitPrice.String())
	b.WriteByte(0)
	b.WriteString(i.Output.Recipient)
	b.WriteByte(0)

	b.WriteString(strconv.FormatBool(i.FillConfig.AllowPartial))
	b.WriteByte(0)
	b.WriteString(i.FillConfig.MinFillAmount.String())
	b.WriteByte(0)
	b.WriteString(i.FillConfig.MinFillPct.String())
	b.WriteByte(0)
	b.WriteString(strconv.FormatInt(i.FillConfig.AggregationWindowMs, 10))
	b.WriteByte(0)
	b.WriteString(i.FillConfig.Strategy.String())
	b.WriteByte(0)

	b.WriteString(strconv.FormatInt(i.Constraints.Deadline, 10))
	b.WriteByte(0)
	if i.Constraints.MaxHops != nil {
		b.WriteString(strconv.FormatUint(uint64(*i.Constraints.MaxHops), 10))
	}
	b.WriteByte(0)
	b.WriteString(strings.Join(i.Constraints.ExcludedVenues, ","))
	b.WriteByte(0)
	if i.Constraints.MaxSolverFeeBps != nil {
		b.WriteString(strconv.FormatUint(uint64(*i.Constraints.MaxSolverFeeBps), 10))
	}
	b.WriteByte(0)
	b.WriteString(strconv.FormatBool(i.Constraints.AllowCrossEcosystem))
	b.WriteByte(0)
	if i.Constraints.MaxBridgeTimeSecs != nil {
		b.WriteString(strconv.FormatInt(*i.Constraints.MaxBridgeTimeSecs, 10))
	}
	b.WriteByte(0)

	b.WriteString(strconv.FormatInt(i.CreatedAt, 10))
	b.WriteByte(0)
	b.WriteString(strconv.FormatInt(i.ExpiresAt, 10))

	return xsign.Digest([]byte(b.String()))
}

// Sign computes the signing hash and signs it with priv, filling in
// PublicKey and Signature.
func (i *Intent) Sign(priv *xsign.PrivKey) error {
	hash := i.SigningHash()
	sig, err := priv.Sign(hash)
	if err != nil {
		return xerrors.Wrap(xerrors.Integrity, xerrors.CodeBadSignature, "failed to sign intent", err)
	}
	i.Signature = sig
	i.PublicKey = priv.PubKey().Bytes()
	return nil
}

// Verify recomputes the digest over the canonical fields and checks the
// signature against the embedded public key (spec.md §4.A, invariant 6).
func (i Intent) Verify() error {
	if len(i.Signature) == 0 {
		return xerrors.New(xerrors.Validation, xerrors.CodeBadSignature, "intent has no signature")
	}
	pub, err := xsign.PubKeyFromBytes(i.PublicKey)
	if err != nil {
		return xerrors.Wrap(xerrors.Validation, xerrors.CodeBadSignature, "invalid intent public key", err)
	}
	hash := i.SigningHash()
	if err := pub.Verify(hash, i.Signature); err != nil {
		return xerrors.Wrap(xerrors.Validation, xerrors.CodeBadSignature, "intent signature verification failed", err)
	}
	return nil
}

// Validate checks structural requirements beyond signature validity.
func (i Intent) Validate() error {
	if i.ID == "" {
		return xerrors.New(xerrors.Validation, xerrors.CodeMalformedFields, "intent id is required")
	}
	if i.User == "" {
		return xerrors.New(xerrors.Validation, xerrors.CodeMalformedFields, "intent user is required")
	}
	if i.Input.ChainID == "" || i.Input.Denom == "" || i.Input.Amount.IsZero() {
		return xerrors.New(xerrors.Validation, xerrors.CodeMalformedFields, "intent input is incomplete")
	}
	if i.Output.ChainID == "" || i.Output.Denom == "" {
		return xerrors.New(xerrors.Validation, xerrors.CodeMalformedFields, "intent output is incomplete")
	}
	if i.Input.Denom == i.Output.Denom && i.Input.ChainID == i.Output.ChainID {
		return xerrors.New(xerrors.Validation, xerrors.CodeMalformedFields, "intent input and output must differ")
	}
	if i.ExpiresAt <= i.CreatedAt {
		return xerrors.New(xerrors.Validation, xerrors.CodeMalformedFields, "intent expires_at must be after created_at")
	}
	return nil
}

// SolverQuote is a stateless, advisory fulfillment proposal.
type SolverQuote struct {
	SolverID      string
	IntentID      string
	InputAmount   xdecimal.Amount
	OutputAmount  xdecimal.Amount
	Price         xdecimal.Price
	ValidForMs    int64
	ReceivedAtMs  int64
}

// IsExpired reports whether the quote's validity window has elapsed.
func (q SolverQuote) IsExpired(nowMs int64) bool {
	return nowMs >= q.ReceivedAtMs+q.ValidForMs
}
