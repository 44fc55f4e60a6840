package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

func TestPaperExchangeMarketOrderFillsImmediately(t *testing.T) {
	ctx := context.Background()
	ex := NewPaperExchange([]Balance{{Asset: "USDT", Free: quant.NewFromFloat(10000)}})
	pair := quant.TradingPair{Base: "BTC", Quote: "USDT"}
	ex.SetQuote(pair, quant.Level{Price: quant.NewFromFloat(99), Size: quant.NewFromFloat(10)}, quant.Level{Price: quant.NewFromFloat(101), Size: quant.NewFromFloat(10)})

	o, err := ex.SubmitOrder(ctx, OrderRequest{Pair: pair, Side: quant.SideBuy, Type: quant.OrderTypeMarket, Quantity: quant.NewFromFloat(1)})
	require.NoError(t, err)
	require.Equal(t, quant.StatusFilled, o.Status)
	require.True(t, o.AvgFillPrice.Equal(quant.NewFromFloat(101)))

	positions, err := ex.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.True(t, positions[0].Size.Equal(quant.NewFromFloat(1)))
}

func TestPaperExchangeLimitOrderRestsThenFills(t *testing.T) {
	ctx := context.Background()
	ex := NewPaperExchange(nil)
	pair := quant.TradingPair{Base: "ETH", Quote: "USDT"}
	ex.SetQuote(pair, quant.Level{Price: quant.NewFromFloat(99), Size: quant.NewFromFloat(10)}, quant.Level{Price: quant.NewFromFloat(101), Size: quant.NewFromFloat(10)})

	price := quant.NewFromFloat(100)
	o, err := ex.SubmitOrder(ctx, OrderRequest{Pair: pair, Side: quant.SideBuy, Type: quant.OrderTypeLimit, Price: &price, Quantity: quant.NewFromFloat(1)})
	require.NoError(t, err)
	require.Equal(t, quant.StatusOpen, o.Status)

	ex.SetQuote(pair, quant.Level{Price: quant.NewFromFloat(99), Size: quant.NewFromFloat(10)}, quant.Level{Price: quant.NewFromFloat(100), Size: quant.NewFromFloat(10)})

	updated, err := ex.GetOrder(ctx, o.ExchangeOrderID)
	require.NoError(t, err)
	require.Equal(t, quant.StatusFilled, updated.Status)
}

func TestPaperExchangeCancelOrder(t *testing.T) {
	ctx := context.Background()
	ex := NewPaperExchange(nil)
	pair := quant.TradingPair{Base: "BTC", Quote: "USDT"}
	ex.SetQuote(pair, quant.Level{Price: quant.NewFromFloat(99), Size: quant.NewFromFloat(10)}, quant.Level{Price: quant.NewFromFloat(101), Size: quant.NewFromFloat(10)})

	price := quant.NewFromFloat(90)
	o, err := ex.SubmitOrder(ctx, OrderRequest{Pair: pair, Side: quant.SideBuy, Type: quant.OrderTypeLimit, Price: &price, Quantity: quant.NewFromFloat(1)})
	require.NoError(t, err)

	require.NoError(t, ex.CancelOrder(ctx, o.ExchangeOrderID))
	updated, err := ex.GetOrder(ctx, o.ExchangeOrderID)
	require.NoError(t, err)
	require.Equal(t, quant.StatusCanceled, updated.Status)
}
