// Package orders implements the single-shot order operations behind the
// market, limit, stop and cancel commands.
package orders

import (
	"context"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantra-lab/futuresbot/internal/exchange"
	"github.com/quantra-lab/futuresbot/internal/logger"
	"github.com/quantra-lab/futuresbot/internal/quantize"
	"github.com/quantra-lab/futuresbot/internal/stopguard"
	"github.com/quantra-lab/futuresbot/internal/types"
	"github.com/quantra-lab/futuresbot/pkg/errors"
)

// Service runs one-shot order operations against the gateway.
type Service struct {
	gateway exchange.Gateway
	log     *logger.Logger
}

// New creates an order service.
func New(gateway exchange.Gateway, log *logger.Logger) *Service {
	return &Service{
		gateway: gateway,
		log:     log,
	}
}

// PlaceMarket submits a market order. Quantities below the exchange
// minimum are lifted to it rather than rejected.
func (s *Service) PlaceMarket(ctx context.Context, symbol string, side types.Side, quantity decimal.Decimal) (types.Order, error) {
	filters, err := s.gateway.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return types.Order{}, err
	}

	quantity, err = s.normalizeQty(quantity, filters)
	if err != nil {
		return types.Order{}, err
	}

	return s.gateway.PlaceOrder(ctx, types.OrderSpec{
		Symbol:   symbol,
		Side:     side,
		Type:     types.OrderTypeMarket,
		Quantity: quantity,
	})
}

// PlaceLimit submits a GTC limit order at a tick-floored price.
func (s *Service) PlaceLimit(ctx context.Context, symbol string, side types.Side, quantity, price decimal.Decimal) (types.Order, error) {
	filters, err := s.gateway.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return types.Order{}, err
	}

	quantity, err = s.normalizeQty(quantity, filters)
	if err != nil {
		return types.Order{}, err
	}

	price = quantize.RoundPriceToTick(price, filters.TickSize)
	if price.Sign() <= 0 {
		return types.Order{}, errors.Newf(errors.ErrCodeInvalidPrice,
			"price rounds to zero at tick %s", filters.TickSize)
	}

	return s.gateway.PlaceOrder(ctx, types.OrderSpec{
		Symbol:      symbol,
		Side:        side,
		Type:        types.OrderTypeLimit,
		Quantity:    quantity,
		Price:       optional.Some(price),
		TimeInForce: types.TimeInForceGTC,
	})
}

// PlaceStopLimit submits a stop-limit order after checking the trigger
// sits on the correct side of the current market price.
func (s *Service) PlaceStopLimit(ctx context.Context, symbol string, side types.Side, quantity, stopPrice, limitPrice decimal.Decimal, timeInForce types.TimeInForce, reduceOnly bool) (types.Order, error) {
	filters, err := s.gateway.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return types.Order{}, err
	}

	quantity, err = s.normalizeQty(quantity, filters)
	if err != nil {
		return types.Order{}, err
	}

	stopPrice = quantize.RoundPriceToTick(stopPrice, filters.TickSize)
	limitPrice = quantize.RoundPriceToTick(limitPrice, filters.TickSize)

	if err := s.guardStop(ctx, symbol, side, stopPrice, filters.TickSize); err != nil {
		return types.Order{}, err
	}

	if timeInForce == "" {
		timeInForce = types.TimeInForceGTC
	}

	return s.gateway.PlaceOrder(ctx, types.OrderSpec{
		Symbol:      symbol,
		Side:        side,
		Type:        types.OrderTypeStop,
		Quantity:    quantity,
		Price:       optional.Some(limitPrice),
		StopPrice:   optional.Some(stopPrice),
		TimeInForce: timeInForce,
		ReduceOnly:  reduceOnly,
	})
}

// PlaceStopMarket submits a stop-market order. With closePosition set
// the exchange flattens the whole position on trigger and no quantity
// is sent.
func (s *Service) PlaceStopMarket(ctx context.Context, symbol string, side types.Side, quantity, stopPrice decimal.Decimal, closePosition bool) (types.Order, error) {
	filters, err := s.gateway.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return types.Order{}, err
	}

	if !closePosition {
		quantity, err = s.normalizeQty(quantity, filters)
		if err != nil {
			return types.Order{}, err
		}
	}

	stopPrice = quantize.RoundPriceToTick(stopPrice, filters.TickSize)

	if err := s.guardStop(ctx, symbol, side, stopPrice, filters.TickSize); err != nil {
		return types.Order{}, err
	}

	return s.gateway.PlaceOrder(ctx, types.OrderSpec{
		Symbol:        symbol,
		Side:          side,
		Type:          types.OrderTypeStopMarket,
		Quantity:      quantity,
		StopPrice:     optional.Some(stopPrice),
		ClosePosition: closePosition,
	})
}

// CancelSummary reports the outcome of a cancel-all sweep.
type CancelSummary struct {
	Cancelled int
	Failed    int
}

// CancelAll cancels every open order on the symbol one by one. An
// unknown-order rejection means the order closed between listing and
// cancelling and counts as cancelled.
func (s *Service) CancelAll(ctx context.Context, symbol string) (CancelSummary, error) {
	open, err := s.gateway.GetOpenOrders(ctx, symbol)
	if err != nil {
		return CancelSummary{}, err
	}

	summary := CancelSummary{}

	for _, order := range open {
		_, cancelErr := s.gateway.CancelOrder(ctx, symbol, order.OrderID)
		if cancelErr == nil || exchange.IsUnknownOrder(cancelErr) {
			summary.Cancelled++

			continue
		}

		summary.Failed++
		s.log.Warn("cancel_failed",
			zap.String("symbol", symbol),
			zap.Int64("orderId", order.OrderID),
			zap.Error(cancelErr),
		)
	}

	s.log.Info("cancel_all_done",
		zap.String("symbol", symbol),
		zap.Int("cancelled", summary.Cancelled),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}

// normalizeQty rounds the quantity down to the step and lifts it to the
// exchange minimum when it lands below.
func (s *Service) normalizeQty(quantity decimal.Decimal, filters types.SymbolFilters) (decimal.Decimal, error) {
	if quantity.Sign() <= 0 {
		return decimal.Zero, errors.Newf(errors.ErrCodeInvalidQuantity, "quantity must be positive, got %s", quantity)
	}

	quantity = quantize.RoundDownQty(quantity, filters.StepSize)

	if filters.MinQty.Sign() > 0 && quantity.LessThan(filters.MinQty) {
		s.log.Warn("quantity_below_minimum",
			zap.String("requested", quantity.String()),
			zap.String("minQty", filters.MinQty.String()),
		)

		quantity = filters.MinQty
	}

	if quantity.Sign() <= 0 {
		return decimal.Zero, errors.Newf(errors.ErrCodeInvalidQuantity,
			"quantity rounds to zero at step %s", filters.StepSize)
	}

	return quantity, nil
}

func (s *Service) guardStop(ctx context.Context, symbol string, side types.Side, stopPrice, tick decimal.Decimal) error {
	current, err := s.gateway.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return err
	}

	return stopguard.ValidateStopVsMarket(side, stopPrice, current, tick)
}
