package quant

import (
	"fmt"
	"sort"
	"sync"

	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
)

// Level is one price level of an L2 order book: an aggregated quantity, no
// per-order identity.
type Level struct {
	Price     Decimal
	Size      Decimal
	NumOrders int
}

// Side names which half of the book a level belongs to.
type Side int

const (
	Bid Side = iota
	Ask
)

// OrderBook is an aggregated L2 book for one symbol: bids ordered high to
// low, asks ordered low to high. A level with Size == 0 is never retained.
type OrderBook struct {
	mu             sync.RWMutex
	Symbol         string
	bids           []Level
	asks           []Level
	LastUpdateTime Timestamp
	seq            uint64
}

// NewOrderBook constructs an empty book for symbol.
func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{Symbol: symbol}
}

// SetLevels replaces bids and asks wholesale (e.g. a full snapshot from the
// exchange client), sorting each side into its required order and dropping
// any zero-size levels, then bumping the book's monotonic sequence counter.
func (b *OrderBook) SetLevels(bids, asks []Level) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	nb, err := normalizeSide(bids, true)
	if err != nil {
		return err
	}
	na, err := normalizeSide(asks, false)
	if err != nil {
		return err
	}
	if len(nb) > 0 && len(na) > 0 && !nb[0].Price.LessThan(na[0].Price) {
		return fmt.Errorf("%w: best bid %s must be < best ask %s", apperrors.ErrInternal, nb[0].Price, na[0].Price)
	}

	b.bids = nb
	b.asks = na
	b.seq++
	b.LastUpdateTime = Now()
	return nil
}

func normalizeSide(levels []Level, descending bool) ([]Level, error) {
	out := make([]Level, 0, len(levels))
	seen := make(map[string]bool)
	for _, l := range levels {
		if l.Size.IsZero() || l.Size.IsNegative() {
			continue
		}
		key := l.Price.String()
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate price %s within one side", apperrors.ErrInternal, l.Price)
		}
		seen[key] = true
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out, nil
}

// Bids returns a defensive copy of the bid side, high to low.
func (b *OrderBook) Bids() []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Level, len(b.bids))
	copy(out, b.bids)
	return out
}

// Asks returns a defensive copy of the ask side, low to high.
func (b *OrderBook) Asks() []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Level, len(b.asks))
	copy(out, b.asks)
	return out
}

// BestBid returns the top of the bid side, if any.
func (b *OrderBook) BestBid() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 {
		return Level{}, false
	}
	return b.bids[0], true
}

// BestAsk returns the top of the ask side, if any.
func (b *OrderBook) BestAsk() (Level, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 {
		return Level{}, false
	}
	return b.asks[0], true
}

// Mid returns (bestBid+bestAsk)/2, or false if either side is empty.
func (b *OrderBook) Mid() (Decimal, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return Decimal{}, false
	}
	return bid.Price.Add(ask.Price).Div(decimalTwo), true
}

var decimalTwo = mustDecimal("2")

func mustDecimal(s string) Decimal {
	d, err := NewDecimalFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Depth sums the size available at prices at-or-better than limitPrice on
// the given side: for Bid, every level with Price >= limitPrice; for Ask,
// every level with Price <= limitPrice.
func (b *OrderBook) Depth(side Side, limitPrice Decimal) Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	levels := b.bids
	if side == Ask {
		levels = b.asks
	}
	total := Zero
	for _, l := range levels {
		if side == Bid && l.Price.LessThan(limitPrice) {
			break
		}
		if side == Ask && l.Price.GreaterThan(limitPrice) {
			break
		}
		total = total.Add(l.Size)
	}
	return total
}

// Slippage walks the book on the given side consuming qty base units and
// returns the volume-weighted average fill price and the slippage fraction
// relative to the best price on that side. Side here names which side of
// the book is being consumed: quoting Ask means the caller is buying.
func (b *OrderBook) Slippage(side Side, qty Decimal) (avgPrice Decimal, slippage Decimal, err error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	levels := b.asks
	if side == Bid {
		levels = b.bids
	}
	if len(levels) == 0 {
		return Decimal{}, Decimal{}, fmt.Errorf("%w: book has no levels on requested side", apperrors.ErrNoMarketData)
	}

	best := levels[0].Price
	remaining := qty
	notional := Zero
	filled := Zero
	for _, l := range levels {
		if remaining.LessThanOrEqual(Zero) {
			break
		}
		take := l.Size
		if take.GreaterThan(remaining) {
			take = remaining
		}
		notional = notional.Add(take.Mul(l.Price))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
	}
	if filled.IsZero() {
		return Decimal{}, Decimal{}, fmt.Errorf("%w: no liquidity to fill requested quantity", apperrors.ErrNoMarketData)
	}
	avgPrice = notional.Div(filled)
	slippage = avgPrice.Sub(best).Div(best).Abs()
	return avgPrice, slippage, nil
}
