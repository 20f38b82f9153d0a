package matching

import (
	"crypto/rand"
	"testing"

	"github.com/atomintents/intentcore/pkg/intent"
	"github.com/atomintents/intentcore/pkg/oracle"
	"github.com/atomintents/intentcore/pkg/xdecimal"
	"github.com/atomintents/intentcore/pkg/xsign"
)

func testSigner(t *testing.T) *xsign.PrivKey {
	t.Helper()
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	priv, err := xsign.PrivKeyFromBytes(b)
	if err != nil {
		t.Fatalf("PrivKeyFromBytes: %v", err)
	}
	return priv
}

func mkIntent(t *testing.T, id, inDenom string, inAmt uint64, outDenom string, limit string, deadline int64, strategy intent.FillStrategy) intent.Intent {
	t.Helper()
	priv := testSigner(t)
	in := intent.Intent{
		ID:      id,
		Version: intent.ProtocolVersion,
		User:    "cosmos1user",
		Nonce:   1,
		Input: intent.Asset{
			ChainID: "cosmoshub-4",
			Denom:   inDenom,
			Amount:  xdecimal.NewAmount(inAmt),
		},
		Output: intent.OutputSpec{
			ChainID:    "osmosis-1",
			Denom:      outDenom,
			MinAmount:  xdecimal.NewAmount(1),
			LimitPrice: xdecimal.MustParsePrice(limit),
			Recipient:  "osmo1user",
		},
		FillConfig: intent.FillConfig{Strategy: strategy},
		CreatedAt:  0,
		ExpiresAt:  deadline,
	}
	if err := in.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return in
}

func TestProcessIntentRestsWhenPatientAndUnmatched(t *testing.T) {
	e := NewEngine(500)
	in := mkIntent(t, "i1", "uosmo", 100, "uatom", "10", 1000, intent.FillPatient)

	res, err := e.ProcessIntent(in, 1)
	if err != nil {
		t.Fatalf("ProcessIntent: %v", err)
	}
	if !res.Rested {
		t.Error("expected unmatched patient order to rest")
	}
	if len(res.Fills) != 0 {
		t.Errorf("expected no fills against an empty book, got %d", len(res.Fills))
	}
}

func TestProcessIntentCrossesRestingOrder(t *testing.T) {
	e := NewEngine(500)
	resting := mkIntent(t, "ask-1", "uatom", 100, "uosmo", "9", 1000, intent.FillPatient)
	if _, err := e.ProcessIntent(resting, 1); err != nil {
		t.Fatalf("ProcessIntent resting: %v", err)
	}

	taker := mkIntent(t, "bid-1", "uosmo", 100, "uatom", "10", 1000, intent.FillEager)
	res, err := e.ProcessIntent(taker, 2)
	if err != nil {
		t.Fatalf("ProcessIntent taker: %v", err)
	}
	if len(res.Fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(res.Fills))
	}
	if res.Fills[0].MakerIntentID != "ask-1" {
		t.Errorf("maker = %s, want ask-1", res.Fills[0].MakerIntentID)
	}
}

func TestRunBatchAuctionCrossesInternallyAndFillsFromSolvers(t *testing.T) {
	e := NewEngine(500)
	pair := intent.NewTradingPair("uatom", "uosmo")

	buy := mkIntent(t, "buy-1", "uosmo", 1000, "uatom", "10.5", 1000, intent.FillEager)
	sell := mkIntent(t, "sell-1", "uatom", 50, "uosmo", "9.5", 1000, intent.FillEager)

	feed := oracle.NewStaticFeed()
	feed.Set(oracle.Price{Pair: pair, Value: xdecimal.MustParsePrice("10"), TimestampMs: 0, Source: "test"})

	quotes := []intent.SolverQuote{
		{SolverID: "solver-a", InputAmount: xdecimal.NewAmount(1000), Price: xdecimal.MustParsePrice("10.1")},
	}

	result, rejections := e.RunBatchAuction(pair, []intent.Intent{buy, sell}, quotes, feed, 1)
	if len(rejections) != 0 {
		t.Fatalf("unexpected rejections: %v", rejections)
	}
	if len(result.InternalFills) != 2 {
		t.Fatalf("expected 2 internal fill legs (one crossed pair), got %d", len(result.InternalFills))
	}
	if len(result.SolverFills) == 0 {
		t.Error("expected residual demand to be routed to a solver fill")
	}
	if result.ClearingPrice.IsZero() {
		t.Error("clearing price should not be zero when fills occurred")
	}
}

func TestRunBatchAuctionRejectsOutOfToleranceIntent(t *testing.T) {
	e := NewEngine(100) // 1% tolerance
	pair := intent.NewTradingPair("uatom", "uosmo")

	wildLimit := mkIntent(t, "wild-1", "uosmo", 1000, "uatom", "50", 1000, intent.FillEager)

	feed := oracle.NewStaticFeed()
	feed.Set(oracle.Price{Pair: pair, Value: xdecimal.MustParsePrice("10"), TimestampMs: 0, Source: "test"})

	result, rejections := e.RunBatchAuction(pair, []intent.Intent{wildLimit}, nil, feed, 1)
	if len(rejections) != 1 {
		t.Fatalf("expected 1 rejection for out-of-tolerance limit price, got %d", len(rejections))
	}
	if !result.ClearingPrice.IsZero() && result.ClearingPrice.Cmp(xdecimal.MustParsePrice("10")) != 0 {
		t.Errorf("with no valid fills, clearing price should default to oracle price, got %s", result.ClearingPrice)
	}
}

func TestRunBatchAuctionFailsWholeEpochWhenOracleUnavailable(t *testing.T) {
	e := NewEngine(500)
	pair := intent.NewTradingPair("uatom", "uosmo")
	feed := oracle.NewStaticFeed() // no price set

	_, rejections := e.RunBatchAuction(pair, nil, nil, feed, 1)
	if len(rejections) != 1 {
		t.Fatalf("expected exactly 1 rejection (oracle unavailable), got %d", len(rejections))
	}
}
