// Package exchange implements the signed REST gateway to Binance USDT-M
// futures. All exchange access used by the trading operations goes through
// the Gateway interface so the coordinator can be tested against doubles.
package exchange

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantra-lab/futuresbot/internal/logger"
	"github.com/quantra-lab/futuresbot/internal/types"
	"github.com/quantra-lab/futuresbot/pkg/errors"
)

// Gateway is the exchange boundary consumed by the order operations and
// the bracket coordinator.
type Gateway interface {
	// PlaceOrder places a single order and returns the exchange snapshot.
	PlaceOrder(ctx context.Context, spec types.OrderSpec) (types.Order, error)
	// GetOrder fetches the current state of an order.
	GetOrder(ctx context.Context, symbol string, orderID int64) (types.Order, error)
	// CancelOrder cancels an order by exchange order ID.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (types.Order, error)
	// CancelOrderByClientID cancels an order by its client order ID.
	CancelOrderByClientID(ctx context.Context, symbol string, clientOrderID string) (types.Order, error)
	// CancelAllOrders cancels every open order for a symbol.
	CancelAllOrders(ctx context.Context, symbol string) error
	// GetSymbolFilters fetches the trading filters for a symbol.
	GetSymbolFilters(ctx context.Context, symbol string) (types.SymbolFilters, error)
	// GetCurrentPrice fetches the latest ticker price for a symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	// GetPositionAmount returns the signed position size for a symbol:
	// positive for long, negative for short, zero for flat.
	GetPositionAmount(ctx context.Context, symbol string) (decimal.Decimal, error)
	// GetPositions returns all position entries on the account.
	GetPositions(ctx context.Context) ([]types.Position, error)
	// GetOpenOrders lists open orders, optionally filtered by symbol.
	GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error)
	// CheckConnection verifies signed API access.
	CheckConnection(ctx context.Context) error
}

// BinanceGateway implements Gateway against the Binance futures REST API.
// It is stateless apart from the clock offset the underlying client keeps
// after the one-time server time sync.
type BinanceGateway struct {
	client Client
	log    *logger.Logger
}

// NewBinanceGateway creates a gateway from config and synchronizes the
// local clock offset against server time. A failed sync is logged as a
// warning, not treated as fatal; signed requests then rely on the
// receive window alone.
func NewBinanceGateway(ctx context.Context, config Config, log *logger.Logger) (*BinanceGateway, error) {
	if config.UseTestnet {
		futures.UseTestnet = true
	}

	client := futures.NewClient(config.ApiKey, config.SecretKey)

	// BaseURL takes precedence over the testnet flag
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	gateway := &BinanceGateway{
		client: &realClient{client: client, recvWindow: config.RecvWindow},
		log:    log,
	}
	gateway.syncServerTime(ctx)

	return gateway, nil
}

// newBinanceGatewayWithClient creates a gateway with a custom client.
// This is used for testing with mock clients; no time sync is performed.
func newBinanceGatewayWithClient(client Client, log *logger.Logger) *BinanceGateway {
	return &BinanceGateway{
		client: client,
		log:    log,
	}
}

func (g *BinanceGateway) syncServerTime(ctx context.Context) {
	offset, err := g.client.NewSetServerTimeService().Do(ctx)
	if err != nil {
		g.log.Warn("time_sync_failed", zap.Error(err))

		return
	}

	g.log.Info("time_sync", zap.Int64("offset_ms", offset))
}

// PlaceOrder places a single order on the exchange.
func (g *BinanceGateway) PlaceOrder(ctx context.Context, spec types.OrderSpec) (types.Order, error) {
	if err := spec.Validate(); err != nil {
		return types.Order{}, err
	}

	side, err := mapSide(spec.Side)
	if err != nil {
		return types.Order{}, err
	}

	orderType, err := mapOrderType(spec.Type)
	if err != nil {
		return types.Order{}, err
	}

	service := g.client.NewCreateOrderService().
		Symbol(spec.Symbol).
		Side(side).
		Type(orderType)

	if !spec.ClosePosition {
		service = service.Quantity(spec.Quantity.String())
	}

	if price, e := spec.Price.Take(); e == nil {
		tif := spec.TimeInForce
		if tif == "" {
			tif = types.TimeInForceGTC
		}

		service = service.
			Price(price.String()).
			TimeInForce(futures.TimeInForceType(tif))
	}

	if stopPrice, e := spec.StopPrice.Take(); e == nil {
		service = service.StopPrice(stopPrice.String())
	}

	if spec.ReduceOnly {
		service = service.ReduceOnly(true)
	}

	if spec.ClosePosition {
		service = service.ClosePosition(true)
	}

	if workingType, e := spec.WorkingType.Take(); e == nil {
		service = service.WorkingType(futures.WorkingType(workingType))
	}

	if spec.ClientOrderID != "" {
		service = service.NewClientOrderID(spec.ClientOrderID)
	}

	response, err := service.Do(ctx)
	if err != nil {
		return types.Order{}, wrapExchangeError(err, "failed to place order")
	}

	order := convertCreateResponse(response)
	g.log.Info("order_placed",
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.String("type", string(order.Type)),
		zap.String("qty", order.OrigQty.String()),
		zap.String("price", order.Price.String()),
		zap.String("stopPrice", order.StopPrice.String()),
		zap.Bool("reduceOnly", order.ReduceOnly),
		zap.Int64("orderId", order.OrderID),
		zap.String("status", string(order.Status)),
	)

	return order, nil
}

// GetOrder fetches the current state of an order from the exchange.
func (g *BinanceGateway) GetOrder(ctx context.Context, symbol string, orderID int64) (types.Order, error) {
	response, err := g.client.NewGetOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return types.Order{}, wrapExchangeError(err, "failed to get order")
	}

	return convertOrder(response), nil
}

// CancelOrder cancels an order by exchange order ID.
func (g *BinanceGateway) CancelOrder(ctx context.Context, symbol string, orderID int64) (types.Order, error) {
	response, err := g.client.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return types.Order{}, wrapExchangeError(err, "failed to cancel order")
	}

	order := convertCancelResponse(response)
	g.log.Info("order_canceled",
		zap.String("symbol", order.Symbol),
		zap.Int64("orderId", order.OrderID),
		zap.String("status", string(order.Status)),
	)

	return order, nil
}

// CancelOrderByClientID cancels an order by its client order ID.
func (g *BinanceGateway) CancelOrderByClientID(ctx context.Context, symbol string, clientOrderID string) (types.Order, error) {
	response, err := g.client.NewCancelOrderService().
		Symbol(symbol).
		OrigClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return types.Order{}, wrapExchangeError(err, "failed to cancel order")
	}

	order := convertCancelResponse(response)
	g.log.Info("order_canceled",
		zap.String("symbol", order.Symbol),
		zap.String("clientOrderId", order.ClientOrderID),
		zap.String("status", string(order.Status)),
	)

	return order, nil
}

// CancelAllOrders cancels every open order for a symbol.
func (g *BinanceGateway) CancelAllOrders(ctx context.Context, symbol string) error {
	err := g.client.NewCancelAllOpenOrdersService().
		Symbol(symbol).
		Do(ctx)
	if err != nil {
		return wrapExchangeError(err, "failed to cancel open orders")
	}

	g.log.Info("all_orders_canceled", zap.String("symbol", symbol))

	return nil
}

// GetSymbolFilters fetches the exchange trading filters for a symbol.
func (g *BinanceGateway) GetSymbolFilters(ctx context.Context, symbol string) (types.SymbolFilters, error) {
	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return types.SymbolFilters{}, wrapExchangeError(err, "failed to fetch exchange info")
	}

	for i := range info.Symbols {
		s := &info.Symbols[i]
		if s.Symbol != symbol {
			continue
		}

		filters := types.SymbolFilters{}

		if lotSize := s.LotSizeFilter(); lotSize != nil {
			filters.StepSize = parseDecimal(lotSize.StepSize)
			filters.MinQty = parseDecimal(lotSize.MinQuantity)
		}

		if priceFilter := s.PriceFilter(); priceFilter != nil {
			filters.TickSize = parseDecimal(priceFilter.TickSize)
			filters.MinPrice = parseDecimal(priceFilter.MinPrice)
			filters.MaxPrice = parseDecimal(priceFilter.MaxPrice)
		}

		if minNotional := s.MinNotionalFilter(); minNotional != nil {
			filters.MinNotional = parseDecimal(minNotional.Notional)
		}

		return filters, nil
	}

	return types.SymbolFilters{}, errors.Newf(errors.ErrCodeSymbolMetadata, "no filter data for symbol %s", symbol)
}

// GetCurrentPrice fetches the latest ticker price for a symbol.
func (g *BinanceGateway) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := g.client.NewListPricesService().
		Symbol(symbol).
		Do(ctx)
	if err != nil {
		return decimal.Zero, wrapExchangeError(err, "failed to fetch ticker price")
	}

	if len(prices) == 0 {
		return decimal.Zero, errors.Newf(errors.ErrCodeSymbolMetadata, "no ticker price for symbol %s", symbol)
	}

	return parseDecimal(prices[0].Price), nil
}

// GetPositionAmount returns the signed position size for a symbol. A
// symbol without a position entry is flat.
func (g *BinanceGateway) GetPositionAmount(ctx context.Context, symbol string) (decimal.Decimal, error) {
	account, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, wrapExchangeError(err, "failed to fetch account")
	}

	for _, position := range account.Positions {
		if position.Symbol == symbol {
			return parseDecimal(position.PositionAmt), nil
		}
	}

	return decimal.Zero, nil
}

// GetPositions returns every position entry on the account.
func (g *BinanceGateway) GetPositions(ctx context.Context) ([]types.Position, error) {
	account, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, wrapExchangeError(err, "failed to fetch account")
	}

	positions := make([]types.Position, 0, len(account.Positions))

	for _, position := range account.Positions {
		positions = append(positions, types.Position{
			Symbol:        position.Symbol,
			Amount:        parseDecimal(position.PositionAmt),
			EntryPrice:    parseDecimal(position.EntryPrice),
			UnrealizedPnL: parseDecimal(position.UnrealizedProfit),
		})
	}

	return positions, nil
}

// GetOpenOrders lists open orders, optionally filtered by symbol.
func (g *BinanceGateway) GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	service := g.client.NewListOpenOrdersService()
	if symbol != "" {
		service = service.Symbol(symbol)
	}

	response, err := service.Do(ctx)
	if err != nil {
		return nil, wrapExchangeError(err, "failed to list open orders")
	}

	orders := make([]types.Order, 0, len(response))
	for _, order := range response {
		orders = append(orders, convertOrder(order))
	}

	return orders, nil
}

// CheckConnection verifies signed API access by fetching the account.
func (g *BinanceGateway) CheckConnection(ctx context.Context) error {
	_, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return wrapExchangeError(err, "failed to access futures account")
	}

	return nil
}

// Helper functions

// unknownOrderCode is the Binance API error for cancel/query of an order
// that no longer exists.
const unknownOrderCode = -2011

// IsUnknownOrder reports whether err is the exchange's "unknown order"
// rejection, which cancel flows treat as already-closed.
func IsUnknownOrder(err error) bool {
	var apiErr *common.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code == unknownOrderCode
	}

	return false
}

// wrapExchangeError classifies a client error: API-level rejections keep
// their order-failed or authentication code, everything else is transport.
func wrapExchangeError(err error, message string) error {
	var apiErr *common.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1021, -1022, -2014, -2015:
			return errors.Wrap(errors.ErrCodeAuthentication, message, err)
		default:
			return errors.Wrap(errors.ErrCodeOrderFailed, message, err)
		}
	}

	return errors.Wrap(errors.ErrCodeTransport, message, err)
}

func parseDecimal(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}

	return value
}

func mapSide(side types.Side) (futures.SideType, error) {
	switch side {
	case types.SideBuy:
		return futures.SideTypeBuy, nil
	case types.SideSell:
		return futures.SideTypeSell, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidSide, "unsupported order side: %s", side)
	}
}

func mapOrderType(orderType types.OrderType) (futures.OrderType, error) {
	switch orderType {
	case types.OrderTypeMarket:
		return futures.OrderTypeMarket, nil
	case types.OrderTypeLimit:
		return futures.OrderTypeLimit, nil
	case types.OrderTypeStop:
		return futures.OrderTypeStop, nil
	case types.OrderTypeStopMarket:
		return futures.OrderTypeStopMarket, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order type: %s", orderType)
	}
}

func convertCreateResponse(response *futures.CreateOrderResponse) types.Order {
	return types.Order{
		OrderID:       response.OrderID,
		ClientOrderID: response.ClientOrderID,
		Symbol:        response.Symbol,
		Side:          types.Side(response.Side),
		Type:          types.OrderType(response.Type),
		Status:        types.OrderStatus(response.Status),
		Price:         parseDecimal(response.Price),
		StopPrice:     parseDecimal(response.StopPrice),
		OrigQty:       parseDecimal(response.OrigQuantity),
		ExecutedQty:   parseDecimal(response.ExecutedQuantity),
		AvgPrice:      parseDecimal(response.AvgPrice),
		ReduceOnly:    response.ReduceOnly,
		UpdateTime:    time.UnixMilli(response.UpdateTime),
	}
}

func convertOrder(order *futures.Order) types.Order {
	return types.Order{
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          types.Side(order.Side),
		Type:          types.OrderType(order.Type),
		Status:        types.OrderStatus(order.Status),
		Price:         parseDecimal(order.Price),
		StopPrice:     parseDecimal(order.StopPrice),
		OrigQty:       parseDecimal(order.OrigQuantity),
		ExecutedQty:   parseDecimal(order.ExecutedQuantity),
		AvgPrice:      parseDecimal(order.AvgPrice),
		ReduceOnly:    order.ReduceOnly,
		UpdateTime:    time.UnixMilli(order.UpdateTime),
	}
}

func convertCancelResponse(response *futures.CancelOrderResponse) types.Order {
	return types.Order{
		OrderID:       response.OrderID,
		ClientOrderID: response.ClientOrderID,
		Symbol:        response.Symbol,
		Side:          types.Side(response.Side),
		Type:          types.OrderType(response.Type),
		Status:        types.OrderStatus(response.Status),
		Price:         parseDecimal(response.Price),
		StopPrice:     parseDecimal(response.StopPrice),
		OrigQty:       parseDecimal(response.OrigQuantity),
		ExecutedQty:   parseDecimal(response.ExecutedQuantity),
		ReduceOnly:    response.ReduceOnly,
		UpdateTime:    time.UnixMilli(response.UpdateTime),
	}
}

// Ensure BinanceGateway implements Gateway.
var _ Gateway = (*BinanceGateway)(nil)
