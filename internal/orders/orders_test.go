package orders

import (
	"context"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/quantra-lab/futuresbot/internal/logger"
	"github.com/quantra-lab/futuresbot/internal/types"
	"github.com/quantra-lab/futuresbot/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeGateway struct {
	filters      types.SymbolFilters
	currentPrice decimal.Decimal
	openOrders   []types.Order

	placed      []types.OrderSpec
	canceled    []int64
	cancelErrs  map[int64]error
	nextOrderID int64
}

func (f *fakeGateway) PlaceOrder(_ context.Context, spec types.OrderSpec) (types.Order, error) {
	f.placed = append(f.placed, spec)
	f.nextOrderID++

	return types.Order{
		OrderID: f.nextOrderID,
		Symbol:  spec.Symbol,
		Side:    spec.Side,
		Type:    spec.Type,
		Status:  types.OrderStatusNew,
		OrigQty: spec.Quantity,
	}, nil
}

func (f *fakeGateway) GetOrder(context.Context, string, int64) (types.Order, error) {
	return types.Order{}, nil
}

func (f *fakeGateway) CancelOrder(_ context.Context, _ string, orderID int64) (types.Order, error) {
	f.canceled = append(f.canceled, orderID)
	if err, ok := f.cancelErrs[orderID]; ok {
		return types.Order{}, err
	}

	return types.Order{OrderID: orderID, Status: types.OrderStatusCanceled}, nil
}

func (f *fakeGateway) CancelOrderByClientID(context.Context, string, string) (types.Order, error) {
	return types.Order{}, nil
}

func (f *fakeGateway) CancelAllOrders(context.Context, string) error { return nil }

func (f *fakeGateway) GetSymbolFilters(context.Context, string) (types.SymbolFilters, error) {
	return f.filters, nil
}

func (f *fakeGateway) GetCurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return f.currentPrice, nil
}

func (f *fakeGateway) GetPositionAmount(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeGateway) GetPositions(context.Context) ([]types.Position, error) { return nil, nil }

func (f *fakeGateway) GetOpenOrders(context.Context, string) ([]types.Order, error) {
	return f.openOrders, nil
}

func (f *fakeGateway) CheckConnection(context.Context) error { return nil }

type OrdersTestSuite struct {
	suite.Suite
	gateway *fakeGateway
	service *Service
}

func (s *OrdersTestSuite) SetupTest() {
	log, err := logger.NewLogger()
	s.Require().NoError(err)

	s.gateway = &fakeGateway{
		filters: types.SymbolFilters{
			TickSize: dec("0.10"),
			StepSize: dec("0.001"),
			MinQty:   dec("0.001"),
		},
		currentPrice: dec("50000"),
		cancelErrs:   make(map[int64]error),
	}
	s.service = New(s.gateway, log)
}

func (s *OrdersTestSuite) TestMarketRoundsQuantityToStep() {
	_, err := s.service.PlaceMarket(context.Background(), "BTCUSDT", types.SideBuy, dec("0.0215"))
	s.Require().NoError(err)

	s.Require().Len(s.gateway.placed, 1)
	s.Equal("0.021", s.gateway.placed[0].Quantity.String())
	s.Equal(types.OrderTypeMarket, s.gateway.placed[0].Type)
}

func (s *OrdersTestSuite) TestMarketLiftsQuantityToMinimum() {
	_, err := s.service.PlaceMarket(context.Background(), "BTCUSDT", types.SideBuy, dec("0.0004"))
	s.Require().NoError(err)

	s.Require().Len(s.gateway.placed, 1)
	s.Equal("0.001", s.gateway.placed[0].Quantity.String())
}

func (s *OrdersTestSuite) TestMarketRejectsNonPositiveQuantity() {
	_, err := s.service.PlaceMarket(context.Background(), "BTCUSDT", types.SideBuy, decimal.Zero)
	s.Require().Error(err)
	s.Equal(errors.ErrCodeInvalidQuantity, errors.GetCode(err))
	s.Empty(s.gateway.placed)
}

func (s *OrdersTestSuite) TestLimitFloorsPriceToTick() {
	_, err := s.service.PlaceLimit(context.Background(), "BTCUSDT", types.SideBuy, dec("0.01"), dec("50000.17"))
	s.Require().NoError(err)

	s.Require().Len(s.gateway.placed, 1)

	price, takeErr := s.gateway.placed[0].Price.Take()
	s.Require().NoError(takeErr)
	s.Equal("50000.1", price.String())
	s.Equal(types.TimeInForceGTC, s.gateway.placed[0].TimeInForce)
}

func (s *OrdersTestSuite) TestStopLimitGuardsTriggerPrice() {
	// BUY stop at market price would fire immediately
	_, err := s.service.PlaceStopLimit(context.Background(), "BTCUSDT", types.SideBuy,
		dec("0.01"), dec("50000"), dec("50010"), types.TimeInForceGTC, false)
	s.Require().Error(err)
	s.Equal(errors.ErrCodeInvalidStopPrice, errors.GetCode(err))
	s.Empty(s.gateway.placed)
}

func (s *OrdersTestSuite) TestStopLimitPlacesWhenTriggerValid() {
	order, err := s.service.PlaceStopLimit(context.Background(), "BTCUSDT", types.SideBuy,
		dec("0.01"), dec("50100"), dec("50110"), "", true)
	s.Require().NoError(err)
	s.NotZero(order.OrderID)

	s.Require().Len(s.gateway.placed, 1)
	spec := s.gateway.placed[0]
	s.Equal(types.OrderTypeStop, spec.Type)
	s.Equal(types.TimeInForceGTC, spec.TimeInForce)
	s.True(spec.ReduceOnly)

	stopPrice, takeErr := spec.StopPrice.Take()
	s.Require().NoError(takeErr)
	s.Equal("50100", stopPrice.String())
}

func (s *OrdersTestSuite) TestStopMarketClosePositionOmitsQuantity() {
	_, err := s.service.PlaceStopMarket(context.Background(), "BTCUSDT", types.SideSell,
		decimal.Zero, dec("49000"), true)
	s.Require().NoError(err)

	s.Require().Len(s.gateway.placed, 1)
	spec := s.gateway.placed[0]
	s.Equal(types.OrderTypeStopMarket, spec.Type)
	s.True(spec.ClosePosition)
	s.True(spec.Quantity.IsZero())
}

func (s *OrdersTestSuite) TestCancelAllToleratesUnknownOrder() {
	s.gateway.openOrders = []types.Order{
		{OrderID: 11}, {OrderID: 12}, {OrderID: 13},
	}
	s.gateway.cancelErrs[12] = errors.Wrap(errors.ErrCodeOrderFailed, "failed to cancel order",
		&common.APIError{Code: -2011, Message: "Unknown order sent."})
	s.gateway.cancelErrs[13] = errors.New(errors.ErrCodeTransport, "connection reset")

	summary, err := s.service.CancelAll(context.Background(), "BTCUSDT")
	s.Require().NoError(err)

	s.Equal(2, summary.Cancelled)
	s.Equal(1, summary.Failed)
	s.Equal([]int64{11, 12, 13}, s.gateway.canceled)
}

func (s *OrdersTestSuite) TestCancelAllWithNoOpenOrders() {
	summary, err := s.service.CancelAll(context.Background(), "BTCUSDT")
	s.Require().NoError(err)

	s.Zero(summary.Cancelled)
	s.Zero(summary.Failed)
	s.Empty(s.gateway.canceled)
}

func TestOrdersTestSuite(t *testing.T) {
	suite.Run(t, new(OrdersTestSuite))
}
