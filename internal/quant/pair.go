package quant

import "fmt"

// TradingPair identifies a market by its base and quote assets, e.g.
// {Base: "BTC", Quote: "USDT"}.
type TradingPair struct {
	Base  string
	Quote string
}

// String renders the pair in "BASE/QUOTE" form.
func (p TradingPair) String() string {
	return fmt.Sprintf("%s/%s", p.Base, p.Quote)
}

// Equal reports symbolic equality between two pairs.
func (p TradingPair) Equal(o TradingPair) bool {
	return p.Base == o.Base && p.Quote == o.Quote
}

// Symbol returns the exchange-style concatenated symbol, e.g. "BTCUSDT".
func (p TradingPair) Symbol() string {
	return p.Base + p.Quote
}
