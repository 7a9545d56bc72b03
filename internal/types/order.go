package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/quantra-lab/futuresbot/pkg/errors"
)

type Side string

type OrderType string

type OrderStatus string

type TimeInForce string

type WorkingType string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStop       OrderType = "STOP"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

const (
	WorkingTypeMarkPrice     WorkingType = "MARK_PRICE"
	WorkingTypeContractPrice WorkingType = "CONTRACT_PRICE"
)

// Opposite returns the opposite trading side. Exit legs of a bracket
// always trade against the entry side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}

	return SideBuy
}

// Terminal reports whether the status can no longer change on the exchange.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// Order is a snapshot of an exchange order. It is created by a placement
// call and mutated only by the exchange; the client re-fetches instead of
// updating it locally.
type Order struct {
	OrderID       int64           `json:"order_id"`
	ClientOrderID string          `json:"client_order_id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Status        OrderStatus     `json:"status"`
	Price         decimal.Decimal `json:"price"`
	StopPrice     decimal.Decimal `json:"stop_price"`
	OrigQty       decimal.Decimal `json:"orig_qty"`
	ExecutedQty   decimal.Decimal `json:"executed_qty"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	ReduceOnly    bool            `json:"reduce_only"`
	UpdateTime    time.Time       `json:"update_time"`
}

// OrderSpec describes an order to be placed. Price and StopPrice are
// optional because MARKET orders carry neither.
type OrderSpec struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	Price         optional.Option[decimal.Decimal]
	StopPrice     optional.Option[decimal.Decimal]
	TimeInForce   TimeInForce
	ReduceOnly    bool
	ClosePosition bool
	WorkingType   optional.Option[WorkingType]
	ClientOrderID string
}

// Validate checks the spec for problems that can be rejected before any
// network call is made.
func (s *OrderSpec) Validate() error {
	if s.Symbol == "" {
		return errors.New(errors.ErrCodeMissingParameter, "symbol is required")
	}

	if s.Side != SideBuy && s.Side != SideSell {
		return errors.Newf(errors.ErrCodeInvalidSide, "side must be BUY or SELL, got %q", s.Side)
	}

	if !s.ClosePosition && s.Quantity.Sign() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidQuantity, "quantity must be positive, got %s", s.Quantity)
	}

	switch s.Type {
	case OrderTypeLimit, OrderTypeStop:
		if s.Price.IsNone() {
			return errors.Newf(errors.ErrCodeInvalidPrice, "price is required for %s orders", s.Type)
		}
	case OrderTypeMarket, OrderTypeStopMarket:
		// no limit price
	default:
		return errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order type %q", s.Type)
	}

	if s.Type == OrderTypeStop || s.Type == OrderTypeStopMarket {
		if s.StopPrice.IsNone() {
			return errors.Newf(errors.ErrCodeInvalidStopPrice, "stop price is required for %s orders", s.Type)
		}
	}

	return nil
}

// SymbolFilters holds the exchange trading filters for a symbol. Immutable
// per symbol per session; fetched once per operation.
type SymbolFilters struct {
	TickSize    decimal.Decimal
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
}

// Position is a futures position snapshot. Amount is signed: positive for
// long, negative for short, zero for flat.
type Position struct {
	Symbol        string
	Amount        decimal.Decimal
	EntryPrice    decimal.Decimal
	UnrealizedPnL decimal.Decimal
}
