// Package exchange defines the ExchangeClient capability consumed by grid
// and strategy workers (spec.md §6) and a PaperExchange implementation
// matching orders in-memory against the last known quote, grounded on the
// teacher's simulated-exchange pattern. Testnet/mainnet bindings are named
// by the interface only; their wire formats are external collaborators
// (spec.md §1).
package exchange

import (
	"context"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

// OrderRequest is the input to SubmitOrder: everything needed to construct
// and validate an Order before it is handed to the exchange.
type OrderRequest struct {
	Pair         quant.TradingPair
	Side         quant.OrderSide
	Type         quant.OrderType
	TIF          quant.TimeInForce
	Price        *quant.Decimal
	TriggerPrice *quant.Decimal
	Quantity     quant.Decimal
	ReduceOnly   bool
	ClientOrderID string
}

// Balance is one asset's free/locked balance.
type Balance struct {
	Asset  string
	Free   quant.Decimal
	Locked quant.Decimal
}

// OrderUpdateCallback receives fills and status transitions streamed back
// from the exchange for a previously submitted order.
type OrderUpdateCallback func(order *quant.Order)

// Client is the capability surface workers consume (spec.md §6).
type Client interface {
	GetBestBidAsk(ctx context.Context, pair quant.TradingPair) (bid, ask quant.Level, err error)
	SubmitOrder(ctx context.Context, req OrderRequest) (*quant.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (*quant.Order, error)
	GetOpenOrders(ctx context.Context, pair *quant.TradingPair) ([]*quant.Order, error)
	GetPositions(ctx context.Context) ([]quant.Position, error)
	GetBalance(ctx context.Context) ([]Balance, error)
	SubscribeOrderUpdates(cb OrderUpdateCallback)
	IsConnected() bool
}
