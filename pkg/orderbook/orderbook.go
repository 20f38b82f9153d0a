// Package orderbook implements the per-pair time-priority resting-order
// store: two FIFO sides (bids, asks) matched in arrival order against an
// incoming order, per spec.md §4.B.
//
// Grounded on uhyunpark-hyperlicked's pkg/app/core/orderbook package for
// its overall shape (sync.RWMutex-guarded book, container/heap-backed best-
// entry tracking, an index map for O(1)-ish cancellation, a Fill result
// type) — generalized from that book's price-level FIFO matching (best
// price first, FIFO within a price level) to spec.md's simpler time-
// priority matching (FIFO across the whole side, regardless of price,
// price only gates whether a match is allowed at all).
package orderbook

import (
	"container/heap"
	"sync"

	"github.com/atomintents/intentcore/pkg/xdecimal"
	"github.com/atomintents/intentcore/pkg/xerrors"
)

// Side is which side of the book an entry rests on.
type Side int

const (
	Bid Side = iota
	Ask
)

// Entry is a resting order-book entry for one intent.
type Entry struct {
	IntentID   string
	Side       Side
	Remaining  xdecimal.Amount
	LimitPrice xdecimal.Price
	EnqueuedAt int64

	heapIndex int
}

// Fill records one match produced by MatchAgainst.
type Fill struct {
	TakerIntentID string
	MakerIntentID string
	Price         xdecimal.Price
	Amount        xdecimal.Amount
}

// Book is a single trading pair's resting-order store.
type Book struct {
	mu sync.RWMutex

	bids entryHeap
	asks entryHeap

	index map[string]*Entry // intent_id -> resting entry, whichever side
}

// NewBook constructs an empty book.
func NewBook() *Book {
	b := &Book{index: make(map[string]*Entry)}
	heap.Init(&b.bids)
	heap.Init(&b.asks)
	return b
}

func (b *Book) sideHeap(s Side) *entryHeap {
	if s == Bid {
		return &b.bids
	}
	return &b.asks
}

// Add rests a new entry on its side. Requires intent_id not already
// present on either side of this book.
func (b *Book) Add(e *Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.index[e.IntentID]; exists {
		return xerrors.New(xerrors.Validation, xerrors.CodeDuplicateID, "intent already rests on this book")
	}
	cp := *e
	h := b.sideHeap(cp.Side)
	heap.Push(h, &cp)
	b.index[cp.IntentID] = &cp
	return nil
}

// Cancel removes a resting entry by intent id. Returns false if absent.
func (b *Book) Cancel(intentID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelLocked(intentID)
}

func (b *Book) cancelLocked(intentID string) bool {
	e, ok := b.index[intentID]
	if !ok {
		return false
	}
	h := b.sideHeap(e.Side)
	if e.heapIndex >= 0 && e.heapIndex < h.Len() && (*h)[e.heapIndex] == e {
		heap.Remove(h, e.heapIndex)
	}
	delete(b.index, intentID)
	return true
}

// priceCompatible reports whether an incoming order of side/limit can
// still trade against a resting entry of the opposite side/limit — spec.md
// §4.B: "incoming bid price ≥ resting ask limit; incoming ask price ≤
// resting bid limit".
func priceCompatible(incomingSide Side, incomingLimit, restingLimit xdecimal.Price) bool {
	if incomingSide == Bid {
		return incomingLimit.Cmp(restingLimit) >= 0
	}
	return incomingLimit.Cmp(restingLimit) <= 0
}

// MatchAgainst walks the opposite side in arrival order, consuming resting
// entries until the incoming order's remaining reaches zero, the opposite
// side empties, or price compatibility breaks. Partially consumed resting
// entries have their remaining reduced in place; fully consumed entries
// are removed. The incoming order itself is never rested by this call —
// callers decide whether to rest, route, or drop the remainder.
func (b *Book) MatchAgainst(intentID string, side Side, limit xdecimal.Price, amount xdecimal.Amount) ([]Fill, xdecimal.Amount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	opposite := Ask
	if side == Ask {
		opposite = Bid
	}
	h := b.sideHeap(opposite)

	var fills []Fill
	remaining := amount

	for remaining.Sign() > 0 && h.Len() > 0 {
		top := (*h)[0]
		if !priceCompatible(side, limit, top.LimitPrice) {
			break
		}
		matched := xdecimal.Min(remaining, top.Remaining)

		var err error
		remaining, err = remaining.SubChecked(matched)
		if err != nil {
			return nil, xdecimal.Zero, xerrors.Wrap(xerrors.Integrity, xerrors.CodeMalformedFields, "match consumed more than incoming remaining", err)
		}
		top.Remaining = top.Remaining.Sub(matched)

		fills = append(fills, Fill{
			TakerIntentID: intentID,
			MakerIntentID: top.IntentID,
			Price:         top.LimitPrice,
			Amount:        matched,
		})

		if top.Remaining.IsZero() {
			heap.Pop(h)
			delete(b.index, top.IntentID)
		}
	}

	return fills, remaining, nil
}

// BidDepth returns the number of resting bid entries.
func (b *Book) BidDepth() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.Len()
}

// AskDepth returns the number of resting ask entries.
func (b *Book) AskDepth() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.Len()
}

// ExpireStale removes every resting entry whose parent intent has passed
// its deadline, returning the intent ids removed.
func (b *Book) ExpireStale(now int64, deadlineOf func(intentID string) int64) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expired []string
	for id := range b.index {
		if now >= deadlineOf(id) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		b.cancelLocked(id)
	}
	return expired
}
