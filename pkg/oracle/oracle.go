// Package oracle defines the price-feed capability interface the matching
// engine consults for confidence-band validation and batch-auction
// clearing, an in-memory reference implementation, and a multi-source
// Aggregator.
//
// Grounded on original_source's crates/solver/src/oracle.rs (OraclePrice's
// price/timestamp/confidence/source shape, staleness check, and
// AggregatedOracle's median-of-non-stale-sources aggregation), translated
// from rust_decimal::Decimal to pkg/xdecimal.Price and from an async-trait
// multi-source aggregator to a single synchronous capability interface —
// this module's Non-goals exclude concrete oracle wire formats (spec.md
// §1), so only the contract, the aggregation behavior, and a test double
// are specified; no Pyth/Chainlink/Slinky HTTP client is implemented here.
package oracle

import (
	"strings"

	"github.com/atomintents/intentcore/pkg/intent"
	"github.com/atomintents/intentcore/pkg/xdecimal"
	"github.com/atomintents/intentcore/pkg/xerrors"
)

// Price is a single oracle observation for a trading pair.
type Price struct {
	Pair        intent.TradingPair
	Value       xdecimal.Price
	TimestampMs int64
	Source      string
}

// IsStale reports whether this observation is older than maxAgeMs.
func (p Price) IsStale(nowMs, maxAgeMs int64) bool {
	return nowMs-p.TimestampMs > maxAgeMs
}

// Feed is the capability interface the matching engine depends on.
type Feed interface {
	GetPrice(pair intent.TradingPair) (Price, error)
}

// StaticFeed is an in-memory Feed backed by a fixed price table, for tests
// and local development — grounded on the teacher's pattern of pairing
// every capability interface with an in-memory mock (e.g. MockTxStore in
// Jason-chen-taiwan-arcSignv2's chainadapter/storage).
type StaticFeed struct {
	prices map[intent.TradingPair]Price
}

// NewStaticFeed constructs an empty StaticFeed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{prices: make(map[intent.TradingPair]Price)}
}

// Set installs or replaces the observation for a pair.
func (f *StaticFeed) Set(p Price) {
	f.prices[p.Pair] = p
}

// GetPrice implements Feed.
func (f *StaticFeed) GetPrice(pair intent.TradingPair) (Price, error) {
	p, ok := f.prices[pair]
	if !ok {
		return Price{}, xerrors.New(xerrors.Resource, xerrors.CodeOracleUnavailable, "no oracle price for pair "+pair.String())
	}
	return p, nil
}

var _ Feed = (*StaticFeed)(nil)

// Aggregator combines several Feeds into one Feed, taking the median of
// every non-stale observation — grounded on original_source's
// AggregatedOracle (query every configured source, drop stale/failed
// observations, require at least minSources surviving, then take the
// median price and the latest timestamp, with a synthetic "aggregated[...]"
// source label listing every contributor). Unlike the original's
// concurrent future::join_all fan-out, sources are queried sequentially:
// this module's Non-goals exclude concrete oracle wire formats, so every
// Feed here is in-process and synchronous, with nothing to gain from
// concurrency.
type Aggregator struct {
	sources    []Feed
	maxAgeMs   int64
	minSources int
	nowMs      func() int64
}

// NewAggregator constructs an Aggregator. maxAgeMs is the staleness
// threshold applied to every source's observation; minSources is the
// minimum number of non-stale, successfully-queried sources required to
// produce an aggregate price. nowMs supplies the current time for
// staleness checks — tests inject a fixed clock the same way
// pkg/xutil.Clock is injected elsewhere in this module, rather than
// reaching for time.Now() directly.
func NewAggregator(sources []Feed, maxAgeMs int64, minSources int, nowMs func() int64) *Aggregator {
	return &Aggregator{sources: sources, maxAgeMs: maxAgeMs, minSources: minSources, nowMs: nowMs}
}

// GetPrice implements Feed by querying every configured source, discarding
// errors and stale observations, and returning the median of what's left.
func (a *Aggregator) GetPrice(pair intent.TradingPair) (Price, error) {
	if len(a.sources) == 0 {
		return Price{}, xerrors.New(xerrors.Resource, xerrors.CodeOracleUnavailable, "oracle aggregator has no sources configured")
	}

	now := a.nowMs()
	var valid []Price
	for _, src := range a.sources {
		p, err := src.GetPrice(pair)
		if err != nil {
			continue
		}
		if p.IsStale(now, a.maxAgeMs) {
			continue
		}
		valid = append(valid, p)
	}

	if len(valid) == 0 {
		return Price{}, xerrors.New(xerrors.Resource, xerrors.CodeOracleUnavailable, "no live oracle source returned a price for pair "+pair.String())
	}
	minSources := a.minSources
	if minSources < 1 {
		minSources = 1
	}
	if len(valid) < minSources {
		return Price{}, xerrors.New(xerrors.Resource, xerrors.CodeOracleUnavailable, "too few live oracle sources for pair "+pair.String())
	}

	values := make([]xdecimal.Price, len(valid))
	latest := valid[0].TimestampMs
	sources := make([]string, len(valid))
	for i, p := range valid {
		values[i] = p.Value
		if p.TimestampMs > latest {
			latest = p.TimestampMs
		}
		sources[i] = p.Source
	}

	return Price{
		Pair:        pair,
		Value:       xdecimal.Median(values),
		TimestampMs: latest,
		Source:      "aggregated[" + strings.Join(sources, ",") + "]",
	}, nil
}

var _ Feed = (*Aggregator)(nil)

// WithinToleranceBps reports whether candidate deviates from reference by
// no more than toleranceBps basis points — spec.md §4.C: "reject inputs
// whose limit price deviates from oracle by more than configured
// tolerance".
func WithinToleranceBps(candidate, reference xdecimal.Price, toleranceBps uint64) bool {
	if reference.IsZero() {
		return false
	}
	diff := candidate.Sub(reference).Abs()
	return diff.MulUint64(10000).Cmp(reference.MulUint64(toleranceBps)) <= 0
}
