package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
	"github.com/DaviRain-Su/zigquant-core/pkg/telemetry"
)

// Resilient wraps any Client with a bounded-exponential-backoff retry
// policy composed with a circuit breaker (spec.md §4.6's "transient
// exchange errors are retried with bounded exponential backoff") plus a
// token-bucket rate limiter, grounded on the teacher's pkg/http/client.go
// retrypolicy+circuitbreaker composition.
type Resilient struct {
	inner    Client
	limiter  *rate.Limiter
	pipeline failsafe.Executor[any]

	tracer      trace.Tracer
	reqCounter  metric.Int64Counter
	latencyHist metric.Float64Histogram
}

// NewResilient wraps inner with a retry policy (up to maxRetries retries
// after the first attempt, backoff between minBackoff and maxBackoff) composed with a circuit
// breaker, and a requests-per-second rate limiter.
func NewResilient(inner Client, maxRetries int, minBackoff, maxBackoff time.Duration, ratePerSecond float64) *Resilient {
	retryPolicy := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return err != nil && apperrors.IsTransientExchangeError(err)
		}).
		WithBackoff(minBackoff, maxBackoff).
		WithMaxRetries(maxRetries).
		Build()

	breaker := circuitbreaker.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return err != nil && apperrors.IsTransientExchangeError(err)
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		Build()

	tracer := telemetry.GetTracer("exchange-client")
	meter := telemetry.GetMeter("exchange-client")
	reqCounter, _ := meter.Int64Counter("zigquant_exchange_requests_total")
	latencyHist, _ := meter.Float64Histogram(telemetry.MetricLatencyExchangeMs)

	return &Resilient{
		inner:    inner,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1),
		pipeline: failsafe.With[any](retryPolicy, breaker),

		tracer:      tracer,
		reqCounter:  reqCounter,
		latencyHist: latencyHist,
	}
}

func (r *Resilient) call(ctx context.Context, op string, fn func() error) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter wait: %v", apperrors.ErrTimeout, err)
	}

	ctx, span := r.tracer.Start(ctx, "exchange."+op)
	defer span.End()
	start := time.Now()

	_, err := r.pipeline.GetWithExecution(func(exec failsafe.Execution[any]) (any, error) {
		return nil, fn()
	})

	r.reqCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	r.latencyHist.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(attribute.String("op", op)))
	if err != nil {
		span.RecordError(err)
		if apperrors.IsPermanentExchangeError(err) {
			err = fmt.Errorf("%w: %v", apperrors.ErrExchangePermanent, err)
		}
	}
	return err
}

func (r *Resilient) GetBestBidAsk(ctx context.Context, pair quant.TradingPair) (bid, ask quant.Level, err error) {
	err = r.call(ctx, "get_best_bid_ask", func() error {
		var innerErr error
		bid, ask, innerErr = r.inner.GetBestBidAsk(ctx, pair)
		return innerErr
	})
	return bid, ask, err
}

func (r *Resilient) SubmitOrder(ctx context.Context, req OrderRequest) (*quant.Order, error) {
	var out *quant.Order
	err := r.call(ctx, "submit_order", func() error {
		var innerErr error
		out, innerErr = r.inner.SubmitOrder(ctx, req)
		return innerErr
	})
	return out, err
}

func (r *Resilient) CancelOrder(ctx context.Context, orderID string) error {
	return r.call(ctx, "cancel_order", func() error { return r.inner.CancelOrder(ctx, orderID) })
}

func (r *Resilient) GetOrder(ctx context.Context, orderID string) (*quant.Order, error) {
	var out *quant.Order
	err := r.call(ctx, "get_order", func() error {
		var innerErr error
		out, innerErr = r.inner.GetOrder(ctx, orderID)
		return innerErr
	})
	return out, err
}

func (r *Resilient) GetOpenOrders(ctx context.Context, pair *quant.TradingPair) ([]*quant.Order, error) {
	var out []*quant.Order
	err := r.call(ctx, "get_open_orders", func() error {
		var innerErr error
		out, innerErr = r.inner.GetOpenOrders(ctx, pair)
		return innerErr
	})
	return out, err
}

func (r *Resilient) GetPositions(ctx context.Context) ([]quant.Position, error) {
	var out []quant.Position
	err := r.call(ctx, "get_positions", func() error {
		var innerErr error
		out, innerErr = r.inner.GetPositions(ctx)
		return innerErr
	})
	return out, err
}

func (r *Resilient) GetBalance(ctx context.Context) ([]Balance, error) {
	var out []Balance
	err := r.call(ctx, "get_balance", func() error {
		var innerErr error
		out, innerErr = r.inner.GetBalance(ctx)
		return innerErr
	})
	return out, err
}

func (r *Resilient) SubscribeOrderUpdates(cb OrderUpdateCallback) {
	r.inner.SubscribeOrderUpdates(cb)
}

func (r *Resilient) IsConnected() bool {
	return r.inner.IsConnected()
}
