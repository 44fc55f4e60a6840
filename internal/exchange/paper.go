package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/DaviRain-Su/zigquant-core/internal/ids"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
)

// PaperExchange is an in-memory last-quote matcher: market orders fill
// immediately at the last quoted best ask (buys) or best bid (sells), limit
// orders fill at their own price when the quoted book crosses it. Grounded on the teacher's simulated-exchange
// pattern for backtests and dry-run grid/strategy workers that must never
// touch a live account.
type PaperExchange struct {
	mu        sync.Mutex
	books     map[string]*quant.OrderBook
	orders    map[string]*quant.Order
	positions map[string]*quant.Position
	balances  map[string]Balance
	connected bool
	callbacks []OrderUpdateCallback
}

// NewPaperExchange constructs a PaperExchange seeded with startingBalances.
func NewPaperExchange(startingBalances []Balance) *PaperExchange {
	balances := make(map[string]Balance, len(startingBalances))
	for _, b := range startingBalances {
		balances[b.Asset] = b
	}
	return &PaperExchange{
		books:     make(map[string]*quant.OrderBook),
		orders:    make(map[string]*quant.Order),
		positions: make(map[string]*quant.Position),
		balances:  balances,
		connected: true,
	}
}

// SetQuote installs or replaces the last-known book for pair, and attempts
// to match any resting limit orders against it.
func (p *PaperExchange) SetQuote(pair quant.TradingPair, bid, ask quant.Level) {
	p.mu.Lock()
	defer p.mu.Unlock()

	book := quant.NewOrderBook(pair.Symbol())
	_ = book.SetLevels([]quant.Level{bid}, []quant.Level{ask})
	p.books[pair.Symbol()] = book
	p.matchResting(pair, bid, ask)
}

func (p *PaperExchange) matchResting(pair quant.TradingPair, bid, ask quant.Level) {
	for _, o := range p.orders {
		if !o.Pair.Equal(pair) || o.Status.IsFinal() || o.Type != quant.OrderTypeLimit || o.Price == nil {
			continue
		}
		crosses := (o.Side == quant.SideBuy && ask.Price.LessThanOrEqual(*o.Price)) ||
			(o.Side == quant.SideSell && bid.Price.GreaterThanOrEqual(*o.Price))
		if !crosses {
			continue
		}
		p.fillLocked(o, o.RemainingQuantity, *o.Price)
	}
}

func (p *PaperExchange) fillLocked(o *quant.Order, qty, price quant.Decimal) {
	fill := quant.FillEvent{
		FillID:      ids.NewFillID(),
		FilledDelta: qty,
		FillPrice:   price,
		Fee:         quant.Zero,
	}
	_ = o.ApplyFill(fill)
	p.applyPositionLocked(o, qty, price)
	for _, cb := range p.callbacks {
		cb(o)
	}
}

func (p *PaperExchange) applyPositionLocked(o *quant.Order, qty, price quant.Decimal) {
	key := o.Pair.Symbol()
	pos, ok := p.positions[key]
	if !ok {
		pos = &quant.Position{Pair: o.Pair}
		p.positions[key] = pos
	}
	signed := qty
	if o.Side == quant.SideSell {
		signed = signed.Neg()
	}
	newSize := pos.Size.Add(signed)
	if !pos.Size.IsZero() && !newSize.IsZero() && pos.Size.Sign() == newSize.Sign() {
		notional := pos.Entry.Mul(pos.Size).Add(price.Mul(signed))
		pos.Entry = notional.Div(newSize)
	} else if pos.Size.IsZero() {
		pos.Entry = price
	}
	pos.Size = newSize
}

// GetBestBidAsk implements Client.
func (p *PaperExchange) GetBestBidAsk(_ context.Context, pair quant.TradingPair) (quant.Level, quant.Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	book, ok := p.books[pair.Symbol()]
	if !ok {
		return quant.Level{}, quant.Level{}, fmt.Errorf("%w: no quote for %s", apperrors.ErrNoMarketData, pair)
	}
	bid, okB := book.BestBid()
	ask, okA := book.BestAsk()
	if !okB || !okA {
		return quant.Level{}, quant.Level{}, fmt.Errorf("%w: incomplete quote for %s", apperrors.ErrNoMarketData, pair)
	}
	return bid, ask, nil
}

// SubmitOrder implements Client: market orders fill immediately at the
// current best ask (buy) or best bid (sell); limit orders fill as soon as
// the current quote, or a later SetQuote, crosses their price.
func (p *PaperExchange) SubmitOrder(_ context.Context, req OrderRequest) (*quant.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o := quant.NewOrder(req.Pair, req.Side, req.Type, req.TIF, req.Quantity)
	o.Price = req.Price
	o.TriggerPrice = req.TriggerPrice
	o.ReduceOnly = req.ReduceOnly
	o.ClientOrderID = req.ClientOrderID
	if o.ClientOrderID == "" {
		o.ClientOrderID = ids.NewClientOrderID()
	}

	existing := quant.Zero
	if pos, ok := p.positions[req.Pair.Symbol()]; ok {
		existing = pos.Size
	}
	if err := o.Validate(existing); err != nil {
		return nil, err
	}

	if err := o.Transition(quant.StatusSubmitted); err != nil {
		return nil, err
	}
	if err := o.Transition(quant.StatusOpen); err != nil {
		return nil, err
	}
	o.ExchangeOrderID = ids.NewClientOrderID()
	p.orders[o.ExchangeOrderID] = o

	if o.Type == quant.OrderTypeMarket {
		book, ok := p.books[req.Pair.Symbol()]
		if !ok {
			return nil, fmt.Errorf("%w: no quote to fill market order against %s", apperrors.ErrNoMarketData, req.Pair)
		}
		var fillPrice quant.Decimal
		if req.Side == quant.SideBuy {
			ask, _ := book.BestAsk()
			fillPrice = ask.Price
		} else {
			bid, _ := book.BestBid()
			fillPrice = bid.Price
		}
		p.fillLocked(o, o.RemainingQuantity, fillPrice)
	} else if book, ok := p.books[req.Pair.Symbol()]; ok {
		bid, _ := book.BestBid()
		ask, _ := book.BestAsk()
		p.matchResting(req.Pair, bid, ask)
	}
	return o, nil
}

// CancelOrder implements Client.
func (p *PaperExchange) CancelOrder(_ context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %s", apperrors.ErrOrderNotFound, orderID)
	}
	if o.Status.IsFinal() {
		return nil
	}
	return o.Transition(quant.StatusCanceled)
}

// GetOrder implements Client.
func (p *PaperExchange) GetOrder(_ context.Context, orderID string) (*quant.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", apperrors.ErrOrderNotFound, orderID)
	}
	return o, nil
}

// GetOpenOrders implements Client.
func (p *PaperExchange) GetOpenOrders(_ context.Context, pair *quant.TradingPair) ([]*quant.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*quant.Order
	for _, o := range p.orders {
		if o.Status.IsFinal() {
			continue
		}
		if pair != nil && !o.Pair.Equal(*pair) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// GetPositions implements Client.
func (p *PaperExchange) GetPositions(_ context.Context) ([]quant.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []quant.Position
	for _, pos := range p.positions {
		if !pos.IsFlat() {
			out = append(out, *pos)
		}
	}
	return out, nil
}

// GetBalance implements Client.
func (p *PaperExchange) GetBalance(_ context.Context) ([]Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Balance, 0, len(p.balances))
	for _, b := range p.balances {
		out = append(out, b)
	}
	return out, nil
}

// SubscribeOrderUpdates implements Client.
func (p *PaperExchange) SubscribeOrderUpdates(cb OrderUpdateCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, cb)
}

// IsConnected implements Client.
func (p *PaperExchange) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// SetConnected lets tests/operators simulate a disconnect.
func (p *PaperExchange) SetConnected(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = v
}
