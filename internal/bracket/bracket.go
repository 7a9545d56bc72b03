// Package bracket implements the bracket order lifecycle: entry, paired
// take-profit and stop-loss legs, and the race that cancels the losing
// leg once the other fills.
package bracket

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantra-lab/futuresbot/internal/exchange"
	"github.com/quantra-lab/futuresbot/internal/logger"
	"github.com/quantra-lab/futuresbot/internal/poller"
	"github.com/quantra-lab/futuresbot/internal/quantize"
	"github.com/quantra-lab/futuresbot/internal/types"
	"github.com/quantra-lab/futuresbot/pkg/errors"
)

// EntryType selects how the bracket enters the position.
type EntryType string

const (
	EntryMarket EntryType = "MARKET"
	EntryLimit  EntryType = "LIMIT"
)

// Winner identifies which leg resolved the race.
type Winner string

const (
	WinnerTakeProfit Winner = "TAKE_PROFIT"
	WinnerStopLoss   Winner = "STOP_LOSS"
)

// LegOutcome records how a protective leg got onto the book.
type LegOutcome string

const (
	// LegOutcomeOK means the leg was accepted on the first attempt.
	LegOutcomeOK LegOutcome = "OK"
	// LegOutcomeFallback means the reduce-only attempt was rejected and
	// the leg was re-placed without the flag.
	LegOutcomeFallback LegOutcome = "FALLBACK"
)

// lifecycle states, logged once per transition
const (
	stateEntryPending   = "ENTRY_PENDING"
	stateEntryFilled    = "ENTRY_FILLED"
	stateEntryTimeout   = "ENTRY_TIMEOUT"
	stateLegsPlaced     = "LEGS_PLACED"
	stateRaceMonitoring = "RACE_MONITORING"
	stateResolved       = "RESOLVED"
	stateRaceTimeout    = "RACE_TIMEOUT"
)

const (
	DefaultWaitTimeout  = 30 * time.Second
	DefaultPollInterval = time.Second
)

// Request describes one bracket order.
type Request struct {
	Symbol          string
	Side            types.Side
	Quantity        decimal.Decimal
	TakeProfitPrice decimal.Decimal
	StopLossPrice   decimal.Decimal
	EntryType       EntryType
	EntryPrice      optional.Option[decimal.Decimal]
	WaitTimeout     time.Duration
	PollInterval    time.Duration
	Detach          bool
}

// Leg is a protective order snapshot plus how it was placed.
type Leg struct {
	Order   types.Order
	Outcome LegOutcome
}

// Result captures the final state of a bracket execution.
type Result struct {
	Entry      types.Order
	TakeProfit Leg
	StopLoss   Leg
	Winner     optional.Option[Winner]
	Detached   bool
}

// Coordinator drives the bracket lifecycle against an exchange gateway.
type Coordinator struct {
	gateway exchange.Gateway
	log     *logger.Logger
}

// New creates a bracket coordinator.
func New(gateway exchange.Gateway, log *logger.Logger) *Coordinator {
	return &Coordinator{
		gateway: gateway,
		log:     log,
	}
}

// Execute runs the full bracket lifecycle. In detach mode it places the
// entry and both legs and returns without waiting for the entry fill or
// monitoring the race. The returned Result carries whatever snapshots
// exist at the point of failure.
func (c *Coordinator) Execute(ctx context.Context, request Request) (Result, error) {
	result := Result{Detached: request.Detach}

	if err := c.validate(request); err != nil {
		return result, err
	}

	if request.WaitTimeout <= 0 {
		request.WaitTimeout = DefaultWaitTimeout
	}

	if request.PollInterval <= 0 {
		request.PollInterval = DefaultPollInterval
	}

	filters, err := c.gateway.GetSymbolFilters(ctx, request.Symbol)
	if err != nil {
		return result, err
	}

	quantity := quantize.RoundDownQty(request.Quantity, filters.StepSize)
	if quantity.Sign() <= 0 {
		return result, errors.Newf(errors.ErrCodeInvalidQuantity,
			"quantity %s rounds to zero at step %s", request.Quantity, filters.StepSize)
	}

	entry, err := c.placeEntry(ctx, request, filters, quantity)
	if err != nil {
		return result, err
	}

	result.Entry = entry

	if !request.Detach {
		entry, err = c.waitForEntry(ctx, request, entry)
		result.Entry = entry

		if err != nil {
			return result, err
		}
	}

	legQty := legQuantity(entry, quantity, filters.StepSize)
	if legQty.Sign() <= 0 {
		return result, errors.Newf(errors.ErrCodeInvalidQuantity,
			"leg quantity rounds to zero at step %s", filters.StepSize)
	}

	reduceOnly := c.reduceOnlyPreference(ctx, request.Symbol, request.Side)

	legSide := request.Side.Opposite()

	result.TakeProfit, err = c.placeLeg(ctx, legSpec{
		symbol:     request.Symbol,
		side:       legSide,
		quantity:   legQty,
		price:      quantize.RoundPriceToTick(request.TakeProfitPrice, filters.TickSize),
		reduceOnly: reduceOnly,
		role:       "take_profit",
		idPrefix:   "tp",
	})
	if err != nil {
		return result, err
	}

	result.StopLoss, err = c.placeLeg(ctx, legSpec{
		symbol:     request.Symbol,
		side:       legSide,
		quantity:   legQty,
		price:      quantize.RoundPriceToTick(request.StopLossPrice, filters.TickSize),
		reduceOnly: reduceOnly,
		role:       "stop_loss",
		idPrefix:   "sl",
	})
	if err != nil {
		return result, err
	}

	c.logState(stateLegsPlaced, request.Symbol,
		zap.Int64("tpOrderId", result.TakeProfit.Order.OrderID),
		zap.Int64("slOrderId", result.StopLoss.Order.OrderID),
		zap.String("legQty", legQty.String()),
		zap.Bool("reduceOnly", reduceOnly),
	)

	if request.Detach {
		return result, nil
	}

	return c.monitorRace(ctx, request, result)
}

func (c *Coordinator) validate(request Request) error {
	if request.Symbol == "" {
		return errors.New(errors.ErrCodeMissingParameter, "symbol is required")
	}

	if request.Side != types.SideBuy && request.Side != types.SideSell {
		return errors.Newf(errors.ErrCodeInvalidSide, "invalid side: %s", request.Side)
	}

	if request.Quantity.Sign() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidQuantity, "quantity must be positive, got %s", request.Quantity)
	}

	if request.TakeProfitPrice.Sign() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPrice, "take profit price must be positive, got %s", request.TakeProfitPrice)
	}

	if request.StopLossPrice.Sign() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPrice, "stop loss price must be positive, got %s", request.StopLossPrice)
	}

	switch request.EntryType {
	case EntryMarket:
	case EntryLimit:
		if request.EntryPrice.IsNone() {
			return errors.New(errors.ErrCodeMissingEntryPrice, "limit entry requires an entry price")
		}
	default:
		return errors.Newf(errors.ErrCodeInvalidParameter, "unsupported entry type: %s", request.EntryType)
	}

	return nil
}

func (c *Coordinator) placeEntry(ctx context.Context, request Request, filters types.SymbolFilters, quantity decimal.Decimal) (types.Order, error) {
	spec := types.OrderSpec{
		Symbol:   request.Symbol,
		Side:     request.Side,
		Type:     types.OrderTypeMarket,
		Quantity: quantity,
	}

	if request.EntryType == EntryLimit {
		price, _ := request.EntryPrice.Take()
		spec.Type = types.OrderTypeLimit
		spec.Price = optional.Some(quantize.RoundPriceToTick(price, filters.TickSize))
		spec.TimeInForce = types.TimeInForceGTC
	}

	c.logState(stateEntryPending, request.Symbol,
		zap.String("side", string(request.Side)),
		zap.String("entryType", string(request.EntryType)),
		zap.String("qty", quantity.String()),
	)

	return c.gateway.PlaceOrder(ctx, spec)
}

func (c *Coordinator) waitForEntry(ctx context.Context, request Request, entry types.Order) (types.Order, error) {
	wait := poller.New(c.gateway, request.PollInterval, request.WaitTimeout)

	last, err := wait.WaitForFill(ctx, request.Symbol, entry.OrderID)
	if err != nil {
		return entry, err
	}

	if last.Status != types.OrderStatusFilled {
		c.logState(stateEntryTimeout, request.Symbol,
			zap.Int64("orderId", last.OrderID),
			zap.String("status", string(last.Status)),
			zap.String("executedQty", last.ExecutedQty.String()),
		)

		return last, errors.Newf(errors.ErrCodeEntryNotFilled,
			"entry order %d not filled within %s (status %s)", last.OrderID, request.WaitTimeout, last.Status)
	}

	c.logState(stateEntryFilled, request.Symbol,
		zap.Int64("orderId", last.OrderID),
		zap.String("executedQty", last.ExecutedQty.String()),
		zap.String("avgPrice", last.AvgPrice.String()),
	)

	return last, nil
}

// legQuantity sizes the protective legs from the entry fill, falling
// back to the entry's original quantity and then the requested amount.
func legQuantity(entry types.Order, requested, step decimal.Decimal) decimal.Decimal {
	quantity := entry.ExecutedQty
	if quantity.Sign() <= 0 {
		quantity = entry.OrigQty
	}

	if quantity.Sign() <= 0 {
		quantity = requested
	}

	return quantize.RoundDownQty(quantity, step)
}

// reduceOnlyPreference asks for reduce-only legs only when the account
// position corroborates the entry direction. A failed position lookup
// disables the flag rather than failing the bracket.
func (c *Coordinator) reduceOnlyPreference(ctx context.Context, symbol string, entrySide types.Side) bool {
	amount, err := c.gateway.GetPositionAmount(ctx, symbol)
	if err != nil {
		c.log.Warn("position_lookup_failed", zap.String("symbol", symbol), zap.Error(err))

		return false
	}

	switch entrySide {
	case types.SideBuy:
		return amount.Sign() > 0
	case types.SideSell:
		return amount.Sign() < 0
	default:
		return false
	}
}

type legSpec struct {
	symbol     string
	side       types.Side
	quantity   decimal.Decimal
	price      decimal.Decimal
	reduceOnly bool
	role       string
	idPrefix   string
}

// placeLeg submits one protective LIMIT leg. A reduce-only rejection is
// retried once without the flag and tagged as a fallback.
func (c *Coordinator) placeLeg(ctx context.Context, leg legSpec) (Leg, error) {
	spec := types.OrderSpec{
		Symbol:        leg.symbol,
		Side:          leg.side,
		Type:          types.OrderTypeLimit,
		Quantity:      leg.quantity,
		Price:         optional.Some(leg.price),
		TimeInForce:   types.TimeInForceGTC,
		ReduceOnly:    leg.reduceOnly,
		ClientOrderID: legClientOrderID(leg.idPrefix),
	}

	order, err := c.gateway.PlaceOrder(ctx, spec)
	if err == nil {
		c.log.Info("leg_placed",
			zap.String("role", leg.role),
			zap.Int64("orderId", order.OrderID),
			zap.String("price", leg.price.String()),
			zap.Bool("reduceOnly", leg.reduceOnly),
		)

		return Leg{Order: order, Outcome: LegOutcomeOK}, nil
	}

	if !leg.reduceOnly || errors.GetCode(err) != errors.ErrCodeOrderFailed {
		return Leg{}, err
	}

	c.log.Warn("reduce_only_rejected",
		zap.String("role", leg.role),
		zap.String("symbol", leg.symbol),
		zap.Error(err),
	)

	spec.ReduceOnly = false
	spec.ClientOrderID = legClientOrderID(leg.idPrefix)

	order, err = c.gateway.PlaceOrder(ctx, spec)
	if err != nil {
		return Leg{}, err
	}

	c.log.Info("leg_placed",
		zap.String("role", leg.role),
		zap.Int64("orderId", order.OrderID),
		zap.String("price", leg.price.String()),
		zap.Bool("reduceOnly", false),
	)

	return Leg{Order: order, Outcome: LegOutcomeFallback}, nil
}

// legClientOrderID builds a client order ID within the exchange's 36
// character limit.
func legClientOrderID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:32]
}

// monitorRace polls both legs until one fills or the wait times out.
// The take-profit leg is checked first each tick. The loser receives a
// single best-effort cancellation; failures there are swallowed.
func (c *Coordinator) monitorRace(ctx context.Context, request Request, result Result) (Result, error) {
	c.logState(stateRaceMonitoring, request.Symbol,
		zap.Duration("waitTimeout", request.WaitTimeout),
		zap.Duration("pollInterval", request.PollInterval),
	)

	deadline := time.Now().Add(request.WaitTimeout)

	for {
		tpOrder, err := c.gateway.GetOrder(ctx, request.Symbol, result.TakeProfit.Order.OrderID)
		if err != nil {
			return result, err
		}

		result.TakeProfit.Order = tpOrder

		if tpOrder.Status == types.OrderStatusFilled {
			c.cancelLoser(ctx, request.Symbol, result.StopLoss.Order.OrderID, "stop_loss")
			result.Winner = optional.Some(WinnerTakeProfit)
			c.logState(stateResolved, request.Symbol, zap.String("winner", string(WinnerTakeProfit)))

			return result, nil
		}

		slOrder, err := c.gateway.GetOrder(ctx, request.Symbol, result.StopLoss.Order.OrderID)
		if err != nil {
			return result, err
		}

		result.StopLoss.Order = slOrder

		if slOrder.Status == types.OrderStatusFilled {
			c.cancelLoser(ctx, request.Symbol, result.TakeProfit.Order.OrderID, "take_profit")
			result.Winner = optional.Some(WinnerStopLoss)
			c.logState(stateResolved, request.Symbol, zap.String("winner", string(WinnerStopLoss)))

			return result, nil
		}

		if time.Now().After(deadline) {
			c.logState(stateRaceTimeout, request.Symbol,
				zap.String("tpStatus", string(tpOrder.Status)),
				zap.String("slStatus", string(slOrder.Status)),
			)

			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, nil
		case <-time.After(request.PollInterval):
		}
	}
}

// cancelLoser is advisory. The exchange may have closed the order
// already, so every failure here is swallowed.
func (c *Coordinator) cancelLoser(ctx context.Context, symbol string, orderID int64, role string) {
	if _, err := c.gateway.CancelOrder(ctx, symbol, orderID); err != nil {
		c.log.Debug("loser_cancel_failed",
			zap.String("role", role),
			zap.Int64("orderId", orderID),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) logState(state string, symbol string, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("state", state),
		zap.String("symbol", symbol),
	}, fields...)

	c.log.Info("bracket_state", fields...)
}
