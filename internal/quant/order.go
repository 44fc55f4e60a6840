package quant

import (
	"fmt"

	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
)

// OrderSide is buy or sell.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType names the order's execution style.
type OrderType string

const (
	OrderTypeLimit      OrderType = "limit"
	OrderTypeMarket     OrderType = "market"
	OrderTypeStopLimit  OrderType = "stop_limit"
	OrderTypeTrigger    OrderType = "trigger"
)

// TimeInForce is the order's lifetime policy.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFALO TimeInForce = "ALO"
)

// OrderStatus is a node in the order lifecycle state machine (spec.md §4.3).
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusSubmitted       OrderStatus = "submitted"
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCanceled        OrderStatus = "canceled"
	StatusRejected        OrderStatus = "rejected"
	StatusTriggered       OrderStatus = "triggered"
	StatusMarginCanceled  OrderStatus = "marginCanceled"
)

// validTransitions enumerates the allowed edges of the order lifecycle.
// Transitions not listed here are invalid and rejected by Order.Transition.
var validTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusSubmitted: true,
	},
	StatusSubmitted: {
		StatusOpen:     true,
		StatusRejected: true,
	},
	StatusOpen: {
		StatusPartiallyFilled: true,
		StatusFilled:          true,
		StatusCanceled:        true,
		StatusTriggered:       true,
		StatusMarginCanceled:  true,
	},
	StatusPartiallyFilled: {
		StatusFilled:         true,
		StatusCanceled:       true,
		StatusMarginCanceled: true,
	},
	StatusTriggered: {
		StatusFilled:   true,
		StatusCanceled: true,
	},
}

var terminalStatuses = map[OrderStatus]bool{
	StatusFilled:         true,
	StatusCanceled:       true,
	StatusRejected:       true,
	StatusMarginCanceled: true,
}

// IsFinal reports whether status is a terminal state of the lifecycle.
func (s OrderStatus) IsFinal() bool {
	return terminalStatuses[s]
}

// IsActive reports whether status is a non-terminal state.
func (s OrderStatus) IsActive() bool {
	return !terminalStatuses[s]
}

// FillEvent carries one observed fill for an order.
type FillEvent struct {
	FillID       string
	FilledDelta  Decimal
	FillPrice    Decimal
	Fee          Decimal
	FeeCurrency  string
}

// Order is the system's order entity (spec.md §3).
type Order struct {
	ClientOrderID   string
	ExchangeOrderID string

	Pair        TradingPair
	Side        OrderSide
	Type        OrderType
	TIF         TimeInForce
	Price       *Decimal
	TriggerPrice *Decimal
	ReduceOnly  bool

	Quantity         Decimal
	FilledQuantity   Decimal
	RemainingQuantity Decimal

	Status OrderStatus
	Err    error

	CreatedAt   Timestamp
	SubmittedAt *Timestamp
	UpdatedAt   Timestamp
	FilledAt    *Timestamp

	AvgFillPrice *Decimal
	TotalFee     Decimal
	FeeCurrency  string

	observedFills map[string]bool
}

// NewOrder constructs a pending order. Validate must be called (and pass)
// before the order is submitted to an exchange client.
func NewOrder(pair TradingPair, side OrderSide, typ OrderType, tif TimeInForce, quantity Decimal) *Order {
	now := Now()
	return &Order{
		ClientOrderID:     "",
		Pair:              pair,
		Side:              side,
		Type:              typ,
		TIF:               tif,
		Quantity:          quantity,
		RemainingQuantity: quantity,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
		observedFills:     make(map[string]bool),
	}
}

// Validate checks the pre-submission invariants of spec.md §4.3.
func (o *Order) Validate(existingPositionSize Decimal) error {
	if o.Pair.Base == "" || o.Pair.Quote == "" {
		return fmt.Errorf("%w: symbol must be non-empty", apperrors.ErrValidation)
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be > 0", apperrors.ErrValidation)
	}
	switch o.Type {
	case OrderTypeLimit:
		if o.Price == nil {
			return fmt.Errorf("%w: limit order requires a price", apperrors.ErrValidation)
		}
	case OrderTypeMarket:
		if o.Price != nil {
			return fmt.Errorf("%w: market order must not carry a price", apperrors.ErrValidation)
		}
	case OrderTypeStopLimit, OrderTypeTrigger:
		if o.TriggerPrice == nil {
			return fmt.Errorf("%w: stop/trigger order requires a trigger price", apperrors.ErrValidation)
		}
	}
	if o.ReduceOnly {
		signedQty := o.Quantity
		if o.Side == SideSell {
			signedQty = signedQty.Neg()
		}
		resultingMagnitude := existingPositionSize.Add(signedQty).Abs()
		if resultingMagnitude.GreaterThanOrEqual(existingPositionSize.Abs()) {
			return fmt.Errorf("%w: reduce-only order does not strictly reduce position magnitude", apperrors.ErrValidation)
		}
	}
	return nil
}

// Transition moves the order to a new status, rejecting any edge not present
// in validTransitions and any attempt to leave a terminal state.
func (o *Order) Transition(to OrderStatus) error {
	if o.Status.IsFinal() {
		return fmt.Errorf("%w: order %s is already in terminal status %s", apperrors.ErrInternal, o.ClientOrderID, o.Status)
	}
	allowed := validTransitions[o.Status]
	if !allowed[to] {
		return fmt.Errorf("%w: invalid order transition %s -> %s", apperrors.ErrInternal, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = Now()
	switch to {
	case StatusSubmitted:
		ts := Now()
		o.SubmittedAt = &ts
	case StatusFilled:
		ts := Now()
		o.FilledAt = &ts
	}
	return nil
}

// ApplyFill applies a fill event idempotently: a fill_id observed twice is a
// no-op the second time. Filled/remaining/avg-fill-price/total-fee are
// updated and the status advances to partially_filled or filled.
func (o *Order) ApplyFill(fill FillEvent) error {
	if o.observedFills == nil {
		o.observedFills = make(map[string]bool)
	}
	if fill.FillID != "" && o.observedFills[fill.FillID] {
		return nil
	}
	if fill.FillID != "" {
		o.observedFills[fill.FillID] = true
	}

	prevFilled := o.FilledQuantity
	prevNotional := Zero
	if o.AvgFillPrice != nil {
		prevNotional = prevFilled.Mul(*o.AvgFillPrice)
	}

	o.FilledQuantity = o.FilledQuantity.Add(fill.FilledDelta)
	o.RemainingQuantity = o.Quantity.Sub(o.FilledQuantity)

	newNotional := prevNotional.Add(fill.FilledDelta.Mul(fill.FillPrice))
	if o.FilledQuantity.IsPositive() {
		avg := newNotional.Div(o.FilledQuantity)
		o.AvgFillPrice = &avg
	}

	o.TotalFee = o.TotalFee.Add(fill.Fee)
	if fill.FeeCurrency != "" {
		o.FeeCurrency = fill.FeeCurrency
	}
	o.UpdatedAt = Now()

	if o.RemainingQuantity.IsZero() {
		return o.Transition(StatusFilled)
	}
	if o.Status == StatusOpen || o.Status == StatusTriggered {
		return o.Transition(StatusPartiallyFilled)
	}
	return nil
}
