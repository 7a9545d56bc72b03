// Package twap splices a large order into equal market slices spaced a
// fixed interval apart.
package twap

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantra-lab/futuresbot/internal/exchange"
	"github.com/quantra-lab/futuresbot/internal/logger"
	"github.com/quantra-lab/futuresbot/internal/quantize"
	"github.com/quantra-lab/futuresbot/internal/types"
	"github.com/quantra-lab/futuresbot/pkg/errors"
)

// Request describes one TWAP execution.
type Request struct {
	Symbol   string
	Side     types.Side
	TotalQty decimal.Decimal
	Parts    int
	Interval time.Duration
}

// Result summarizes the slices that were actually submitted.
type Result struct {
	ExpectedSlices int
	ExecutedSlices int
	SliceQty       decimal.Decimal
	Orders         []types.Order
}

// Executor submits the slices. A failed slice is logged and skipped;
// the remaining slices still run.
type Executor struct {
	gateway exchange.Gateway
	log     *logger.Logger

	// OnSlice, when set, is called after each slice attempt. The CLI
	// hooks a progress bar here.
	OnSlice func(index int, total int)

	// sleep waits between slices and reports false when the context
	// ended first. Replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a TWAP executor.
func New(gateway exchange.Gateway, log *logger.Logger) *Executor {
	return &Executor{
		gateway: gateway,
		log:     log,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Execute runs the TWAP schedule. It returns an error only for invalid
// input or when the symbol filters cannot be fetched; individual slice
// failures are reported through the result counts.
func (e *Executor) Execute(ctx context.Context, request Request) (Result, error) {
	if err := e.validate(request); err != nil {
		return Result{}, err
	}

	filters, err := e.gateway.GetSymbolFilters(ctx, request.Symbol)
	if err != nil {
		return Result{}, err
	}

	sliceQty := quantize.RoundDownQty(
		request.TotalQty.Div(decimal.NewFromInt(int64(request.Parts))),
		filters.StepSize,
	)
	if sliceQty.Sign() <= 0 {
		return Result{}, errors.Newf(errors.ErrCodeInvalidQuantity,
			"slice quantity %s of %s rounds to zero at step %s",
			request.TotalQty.Div(decimal.NewFromInt(int64(request.Parts))),
			request.TotalQty, filters.StepSize)
	}

	result := Result{
		ExpectedSlices: request.Parts,
		SliceQty:       sliceQty,
		Orders:         make([]types.Order, 0, request.Parts),
	}

	e.log.Info("twap_start",
		zap.String("symbol", request.Symbol),
		zap.String("side", string(request.Side)),
		zap.String("totalQty", request.TotalQty.String()),
		zap.Int("parts", request.Parts),
		zap.String("sliceQty", sliceQty.String()),
		zap.Duration("interval", request.Interval),
	)

	for i := 0; i < request.Parts; i++ {
		order, placeErr := e.gateway.PlaceOrder(ctx, types.OrderSpec{
			Symbol:   request.Symbol,
			Side:     request.Side,
			Type:     types.OrderTypeMarket,
			Quantity: sliceQty,
		})
		if placeErr != nil {
			e.log.Warn("twap_slice_failed",
				zap.Int("slice", i+1),
				zap.Int("of", request.Parts),
				zap.Error(placeErr),
			)
		} else {
			result.ExecutedSlices++
			result.Orders = append(result.Orders, order)
			e.log.Info("twap_slice",
				zap.Int("slice", i+1),
				zap.Int("of", request.Parts),
				zap.Int64("orderId", order.OrderID),
			)
		}

		if e.OnSlice != nil {
			e.OnSlice(i+1, request.Parts)
		}

		if i == request.Parts-1 {
			break
		}

		if !e.sleep(ctx, request.Interval) {
			e.log.Warn("twap_interrupted",
				zap.Int("executed", result.ExecutedSlices),
				zap.Int("expected", result.ExpectedSlices),
			)

			return result, nil
		}
	}

	e.log.Info("twap_done",
		zap.Int("executed", result.ExecutedSlices),
		zap.Int("expected", result.ExpectedSlices),
	)

	return result, nil
}

func (e *Executor) validate(request Request) error {
	if request.Symbol == "" {
		return errors.New(errors.ErrCodeMissingParameter, "symbol is required")
	}

	if request.Side != types.SideBuy && request.Side != types.SideSell {
		return errors.Newf(errors.ErrCodeInvalidSide, "invalid side: %s", request.Side)
	}

	if request.TotalQty.Sign() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidQuantity, "total quantity must be positive, got %s", request.TotalQty)
	}

	if request.Parts < 1 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "parts must be at least 1, got %d", request.Parts)
	}

	if request.Interval < time.Second {
		return errors.Newf(errors.ErrCodeInvalidParameter, "interval must be at least 1s, got %s", request.Interval)
	}

	return nil
}
