package twap

import (
	"context"
	"testing"
	"time"

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
	filters     types.SymbolFilters
	filtersErr  error
	placed      []types.OrderSpec
	failSlices  map[int]error // 1-based slice index to error
	nextOrderID int64
}

func (f *fakeGateway) PlaceOrder(_ context.Context, spec types.OrderSpec) (types.Order, error) {
	f.placed = append(f.placed, spec)

	if err, ok := f.failSlices[len(f.placed)]; ok {
		return types.Order{}, err
	}

	f.nextOrderID++

	return types.Order{
		OrderID: f.nextOrderID,
		Symbol:  spec.Symbol,
		Side:    spec.Side,
		Type:    spec.Type,
		Status:  types.OrderStatusFilled,
		OrigQty: spec.Quantity,
	}, nil
}

func (f *fakeGateway) GetOrder(context.Context, string, int64) (types.Order, error) {
	return types.Order{}, nil
}

func (f *fakeGateway) CancelOrder(context.Context, string, int64) (types.Order, error) {
	return types.Order{}, nil
}

func (f *fakeGateway) CancelOrderByClientID(context.Context, string, string) (types.Order, error) {
	return types.Order{}, nil
}

func (f *fakeGateway) CancelAllOrders(context.Context, string) error { return nil }

func (f *fakeGateway) GetSymbolFilters(context.Context, string) (types.SymbolFilters, error) {
	if f.filtersErr != nil {
		return types.SymbolFilters{}, f.filtersErr
	}

	return f.filters, nil
}

func (f *fakeGateway) GetCurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return dec("50000"), nil
}

func (f *fakeGateway) GetPositionAmount(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeGateway) GetPositions(context.Context) ([]types.Position, error) { return nil, nil }

func (f *fakeGateway) GetOpenOrders(context.Context, string) ([]types.Order, error) {
	return nil, nil
}

func (f *fakeGateway) CheckConnection(context.Context) error { return nil }

type TwapTestSuite struct {
	suite.Suite
	gateway  *fakeGateway
	executor *Executor
	sleeps   int
}

func (s *TwapTestSuite) SetupTest() {
	log, err := logger.NewLogger()
	s.Require().NoError(err)

	s.gateway = &fakeGateway{
		filters: types.SymbolFilters{
			TickSize: dec("0.10"),
			StepSize: dec("0.001"),
			MinQty:   dec("0.001"),
		},
		failSlices: make(map[int]error),
	}

	s.sleeps = 0
	s.executor = New(s.gateway, log)
	s.executor.sleep = func(context.Context, time.Duration) bool {
		s.sleeps++

		return true
	}
}

func (s *TwapTestSuite) request() Request {
	return Request{
		Symbol:   "BTCUSDT",
		Side:     types.SideBuy,
		TotalQty: dec("0.02"),
		Parts:    10,
		Interval: time.Second,
	}
}

func (s *TwapTestSuite) TestSlicesEvenlyWithNoSleepAfterLast() {
	result, err := s.executor.Execute(context.Background(), s.request())
	s.Require().NoError(err)

	s.Equal(10, result.ExpectedSlices)
	s.Equal(10, result.ExecutedSlices)
	s.Equal("0.002", result.SliceQty.String())
	s.Len(result.Orders, 10)

	s.Require().Len(s.gateway.placed, 10)
	for _, spec := range s.gateway.placed {
		s.Equal("0.002", spec.Quantity.String())
		s.Equal(types.OrderTypeMarket, spec.Type)
	}

	s.Equal(9, s.sleeps)
}

func (s *TwapTestSuite) TestContinuesPastSliceFailures() {
	s.gateway.failSlices[3] = errors.New(errors.ErrCodeOrderFailed, "rejected")
	s.gateway.failSlices[7] = errors.New(errors.ErrCodeTransport, "timeout")

	result, err := s.executor.Execute(context.Background(), s.request())
	s.Require().NoError(err)

	s.Equal(10, result.ExpectedSlices)
	s.Equal(8, result.ExecutedSlices)
	s.Len(result.Orders, 8)
	s.Len(s.gateway.placed, 10)
}

func (s *TwapTestSuite) TestSliceQtyRoundedDownToStep() {
	request := s.request()
	request.TotalQty = dec("0.0215")

	result, err := s.executor.Execute(context.Background(), request)
	s.Require().NoError(err)

	// 0.0215 / 10 = 0.00215, floored to the 0.001 step
	s.Equal("0.002", result.SliceQty.String())
}

func (s *TwapTestSuite) TestValidation() {
	tests := []struct {
		name     string
		mutate   func(*Request)
		wantCode errors.ErrorCode
	}{
		{"missing symbol", func(r *Request) { r.Symbol = "" }, errors.ErrCodeMissingParameter},
		{"bad side", func(r *Request) { r.Side = "HOLD" }, errors.ErrCodeInvalidSide},
		{"zero quantity", func(r *Request) { r.TotalQty = decimal.Zero }, errors.ErrCodeInvalidQuantity},
		{"zero parts", func(r *Request) { r.Parts = 0 }, errors.ErrCodeInvalidParameter},
		{"sub-second interval", func(r *Request) { r.Interval = 100 * time.Millisecond }, errors.ErrCodeInvalidParameter},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			request := s.request()
			tt.mutate(&request)

			_, err := s.executor.Execute(context.Background(), request)
			s.Require().Error(err)
			s.Equal(tt.wantCode, errors.GetCode(err))
			s.Empty(s.gateway.placed)
		})
	}
}

func (s *TwapTestSuite) TestSliceRoundingToZeroRejected() {
	request := s.request()
	request.TotalQty = dec("0.005") // 0.0005 per slice, below the step

	_, err := s.executor.Execute(context.Background(), request)
	s.Require().Error(err)
	s.Equal(errors.ErrCodeInvalidQuantity, errors.GetCode(err))
}

func TestTwapTestSuite(t *testing.T) {
	suite.Run(t, new(TwapTestSuite))
}
