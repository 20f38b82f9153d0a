// Package matching implements the Immediate and Batch-Auction matching
// modes of spec.md §4.C: order-book crossing for a single incoming intent,
// and fixed-epoch batch auctions that cross opposing intents internally
// and route the residual to solver quotes at a uniform clearing price.
//
// Grounded directly on original_source's
// crates/matching-engine/src/engine.rs (MatchingEngine, cross_internal,
// fill_from_solver_asks/bids, calculate_clearing_price), translated from
// rust_decimal::Decimal / f64 quote-price parsing to pkg/xdecimal's
// fixed-point types throughout — the prototype parses solver quote prices
// with `price.parse::<f64>()`, which this port does not replicate, per
// spec.md §4.C's explicit "amounts are arbitrary-precision ... never
// float" discipline (see DESIGN.md).
package matching

import (
	"sort"
	"sync"

	"github.com/atomintents/intentcore/pkg/intent"
	"github.com/atomintents/intentcore/pkg/oracle"
	"github.com/atomintents/intentcore/pkg/orderbook"
	"github.com/atomintents/intentcore/pkg/xdecimal"
	"github.com/atomintents/intentcore/pkg/xerrors"
)

// AuctionFill is one leg of a realized match within a batch auction.
type AuctionFill struct {
	IntentID     string
	Counterparty string
	InputAmount  xdecimal.Amount
	OutputAmount xdecimal.Amount
}

// AuctionResult is the outcome of one batch-auction epoch for a pair.
type AuctionResult struct {
	EpochID       uint64
	ClearingPrice xdecimal.Price
	InternalFills []AuctionFill
	SolverFills   []AuctionFill
}

// MatchResult is the outcome of processing a single intent in Immediate
// mode.
type MatchResult struct {
	Fills     []orderbook.Fill
	Remaining xdecimal.Amount
	Rested    bool
}

// Engine owns one order book per trading pair and the current batch-auction
// epoch counter.
type Engine struct {
	mu    sync.Mutex
	books map[intent.TradingPair]*orderbook.Book
	epoch uint64

	toleranceBps uint64
}

// NewEngine constructs an Engine; toleranceBps bounds how far an intent's
// limit price may deviate from the oracle price before it is rejected from
// a batch auction (spec.md §4.C step 1).
func NewEngine(toleranceBps uint64) *Engine {
	return &Engine{
		books:        make(map[intent.TradingPair]*orderbook.Book),
		toleranceBps: toleranceBps,
	}
}

func (e *Engine) bookFor(pair intent.TradingPair) *orderbook.Book {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[pair]
	if !ok {
		b = orderbook.NewBook()
		e.books[pair] = b
	}
	return b
}

// sideOf maps an intent's input/output denoms onto the normalized pair's
// Bid/Ask side: buying base with quote is a Bid (original_source: "If
// selling quote asset for base asset, it's a buy").
func sideOf(in intent.Intent, pair intent.TradingPair) orderbook.Side {
	if in.Input.Denom == pair.Quote {
		return orderbook.Bid
	}
	return orderbook.Ask
}

// ProcessIntent runs Immediate-mode matching for a single incoming intent
// against its pair's book (spec.md §4.C "Immediate (single-intent) mode").
func (e *Engine) ProcessIntent(in intent.Intent, now int64) (MatchResult, error) {
	pair := in.Pair()
	book := e.bookFor(pair)
	side := sideOf(in, pair)

	fills, remaining, err := book.MatchAgainst(in.ID, side, in.Output.LimitPrice, in.Input.Amount)
	if err != nil {
		return MatchResult{}, err
	}

	result := MatchResult{Fills: fills, Remaining: remaining}

	if remaining.IsZero() {
		return result, nil
	}

	switch in.FillConfig.Strategy {
	case intent.FillAllOrNothing:
		if len(fills) > 0 {
			// Partial progress was made but the whole input could not be
			// filled in one pass; the caller must treat this as unmatched.
			return MatchResult{Remaining: in.Input.Amount}, nil
		}
		return result, nil
	case intent.FillPatient:
		entry := &orderbook.Entry{
			IntentID:   in.ID,
			Side:       side,
			Remaining:  remaining,
			LimitPrice: in.Output.LimitPrice,
			EnqueuedAt: now,
		}
		if err := book.Add(entry); err != nil {
			return MatchResult{}, err
		}
		result.Rested = true
		return result, nil
	default: // FillEager
		return result, nil
	}
}

// RunBatchAuction executes one fixed-epoch batch auction for pair, per
// spec.md §4.C steps 1-5.
func (e *Engine) RunBatchAuction(pair intent.TradingPair, intents []intent.Intent, quotes []intent.SolverQuote, feed oracle.Feed, now int64) (AuctionResult, []error) {
	e.mu.Lock()
	e.epoch++
	epoch := e.epoch
	e.mu.Unlock()

	oraclePrice, err := feed.GetPrice(pair)
	if err != nil {
		return AuctionResult{}, []error{xerrors.Wrap(xerrors.Resource, xerrors.CodeOracleUnavailable, "oracle unavailable for "+pair.String(), err)}
	}

	var rejections []error
	var buys, sells []intent.Intent
	for _, in := range intents {
		if verr := validateForAuction(in, pair, oraclePrice.Value, e.toleranceBps, now); verr != nil {
			rejections = append(rejections, verr)
			continue
		}
		if sideOf(in, pair) == orderbook.Bid {
			buys = append(buys, in)
		} else {
			sells = append(sells, in)
		}
	}

	internalFills, remainingBuy, remainingSell, err := crossInternal(buys, sells, oraclePrice.Value)
	if err != nil {
		return AuctionResult{}, append(rejections, err)
	}

	netDemand := remainingBuy.Sub(remainingSell)
	netSupply := remainingSell.Sub(remainingBuy)

	var solverFills []AuctionFill
	if !netDemand.IsZero() {
		solverFills, err = fillFromSolverQuotes(quotes, netDemand, true)
	} else if !netSupply.IsZero() {
		solverFills, err = fillFromSolverQuotes(quotes, netSupply, false)
	}
	if err != nil {
		return AuctionResult{}, append(rejections, err)
	}

	clearingPrice, err := clearingPrice(internalFills, solverFills, oraclePrice.Value)
	if err != nil {
		return AuctionResult{}, append(rejections, err)
	}

	return AuctionResult{
		EpochID:       epoch,
		ClearingPrice: clearingPrice,
		InternalFills: internalFills,
		SolverFills:   solverFills,
	}, rejections
}

// validateForAuction implements spec.md §4.C step 1.
func validateForAuction(in intent.Intent, pair intent.TradingPair, oraclePrice xdecimal.Price, toleranceBps uint64, now int64) error {
	if err := in.Verify(); err != nil {
		return err
	}
	if in.IsExpired(now) {
		return xerrors.New(xerrors.Validation, xerrors.CodeExpired, "intent "+in.ID+" expired")
	}
	if in.Pair() != pair {
		return xerrors.New(xerrors.Validation, xerrors.CodeUnknownPair, "intent "+in.ID+" does not belong to this pair")
	}
	if !oracle.WithinToleranceBps(in.Output.LimitPrice, oraclePrice, toleranceBps) {
		return xerrors.New(xerrors.Validation, xerrors.CodeMalformedFields, "intent "+in.ID+" limit price outside oracle tolerance band")
	}
	return nil
}

// crossInternal walks buys and sells in arrival order, matching the lesser
// side fully and carrying the surplus forward — original_source's
// cross_internal, translated to xdecimal arithmetic.
func crossInternal(buys, sells []intent.Intent, oraclePrice xdecimal.Price) ([]AuctionFill, xdecimal.Amount, xdecimal.Amount, error) {
	var fills []AuctionFill

	buyRemaining := make([]xdecimal.Amount, len(buys))
	for i, b := range buys {
		buyRemaining[i] = b.Input.Amount
	}
	sellRemaining := make([]xdecimal.Amount, len(sells))
	for i, s := range sells {
		sellRemaining[i] = s.Input.Amount
	}

	buyIdx, sellIdx := 0, 0
	for buyIdx < len(buys) && sellIdx < len(sells) {
		if buyRemaining[buyIdx].IsZero() {
			buyIdx++
			continue
		}
		if sellRemaining[sellIdx].IsZero() {
			sellIdx++
			continue
		}

		buyInBase, err := buyRemaining[buyIdx].DivPriceTrunc(oraclePrice)
		if err != nil {
			return nil, xdecimal.Zero, xdecimal.Zero, xerrors.Wrap(xerrors.Resource, xerrors.CodeOracleUnavailable, "invalid oracle price for quote-to-base conversion", err)
		}
		sellInBase := sellRemaining[sellIdx]

		matchBase := xdecimal.Min(buyInBase, sellInBase)
		if !matchBase.IsZero() {
			matchQuote, err := matchBase.MulPriceTrunc(oraclePrice)
			if err != nil {
				return nil, xdecimal.Zero, xdecimal.Zero, xerrors.Wrap(xerrors.Integrity, xerrors.CodeMalformedFields, "base-to-quote conversion overflowed", err)
			}

			fills = append(fills,
				AuctionFill{IntentID: buys[buyIdx].ID, Counterparty: sells[sellIdx].ID, InputAmount: matchQuote, OutputAmount: matchBase},
				AuctionFill{IntentID: sells[sellIdx].ID, Counterparty: buys[buyIdx].ID, InputAmount: matchBase, OutputAmount: matchQuote},
			)

			buyRemaining[buyIdx] = buyRemaining[buyIdx].Sub(matchQuote)
			sellRemaining[sellIdx] = sellRemaining[sellIdx].Sub(matchBase)
		}

		if buyRemaining[buyIdx].IsZero() {
			buyIdx++
		}
		if sellRemaining[sellIdx].IsZero() {
			sellIdx++
		}
	}

	totalBuyRemaining := xdecimal.Zero
	for _, r := range buyRemaining {
		var err error
		totalBuyRemaining, err = totalBuyRemaining.Add(r)
		if err != nil {
			return nil, xdecimal.Zero, xdecimal.Zero, xerrors.Wrap(xerrors.Integrity, xerrors.CodeMalformedFields, "residual buy volume overflowed", err)
		}
	}
	totalSellRemaining := xdecimal.Zero
	for _, r := range sellRemaining {
		var err error
		totalSellRemaining, err = totalSellRemaining.Add(r)
		if err != nil {
			return nil, xdecimal.Zero, xdecimal.Zero, xerrors.Wrap(xerrors.Integrity, xerrors.CodeMalformedFields, "residual sell volume overflowed", err)
		}
	}

	return fills, totalBuyRemaining, totalSellRemaining, nil
}

// fillFromSolverQuotes routes residual demand (askSide=true) or supply
// (askSide=false) to solver quotes, best-price-first — original_source's
// fill_from_solver_asks/fill_from_solver_bids, with quote.Price compared as
// pkg/xdecimal.Price rather than parsed as float64.
func fillFromSolverQuotes(quotes []intent.SolverQuote, amount xdecimal.Amount, askSide bool) ([]AuctionFill, error) {
	sorted := make([]intent.SolverQuote, len(quotes))
	copy(sorted, quotes)
	sort.Slice(sorted, func(i, j int) bool {
		if askSide {
			return sorted[i].Price.Cmp(sorted[j].Price) < 0
		}
		return sorted[i].Price.Cmp(sorted[j].Price) > 0
	})

	var fills []AuctionFill
	remaining := amount
	for _, q := range sorted {
		if remaining.IsZero() {
			break
		}
		fillAmount := xdecimal.Min(remaining, q.InputAmount)
		output, err := fillAmount.MulPriceTrunc(q.Price)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Integrity, xerrors.CodeMalformedFields, "solver fill conversion overflowed", err)
		}
		fills = append(fills, AuctionFill{
			IntentID:     q.IntentID,
			Counterparty: q.SolverID,
			InputAmount:  fillAmount,
			OutputAmount: output,
		})
		remaining = remaining.Sub(fillAmount)
	}
	return fills, nil
}

// clearingPrice computes the uniform clearing price as the median of
// realized fill prices (SPEC_FULL.md §9's resolution of the Open Question;
// original_source's calculate_clearing_price computes a volume-weighted
// mean instead, which that Rust code can drive outside [min(fill),
// max(fill)] — not replicated here), falling back to the oracle price when
// there were no fills at all.
func clearingPrice(internalFills, solverFills []AuctionFill, oraclePrice xdecimal.Price) (xdecimal.Price, error) {
	all := append(append([]AuctionFill{}, internalFills...), solverFills...)
	if len(all) == 0 {
		return oraclePrice, nil
	}

	prices := make([]xdecimal.Price, 0, len(all))
	for _, f := range all {
		if f.InputAmount.IsZero() {
			continue
		}
		p, err := xdecimal.PriceFromAmounts(f.OutputAmount, f.InputAmount)
		if err != nil {
			return xdecimal.Price{}, xerrors.Wrap(xerrors.Integrity, xerrors.CodeMalformedFields, "could not derive fill price", err)
		}
		prices = append(prices, p)
	}
	if len(prices) == 0 {
		return oraclePrice, nil
	}
	return xdecimal.Median(prices), nil
}
