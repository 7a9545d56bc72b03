package poller

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantra-lab/futuresbot/internal/types"
	"github.com/quantra-lab/futuresbot/pkg/errors"
)

// scriptedFetcher returns a fixed sequence of order states, repeating the
// last one once the script runs out.
type scriptedFetcher struct {
	states []types.Order
	errs   []error
	calls  int
}

func (f *scriptedFetcher) GetOrder(_ context.Context, _ string, _ int64) (types.Order, error) {
	i := f.calls
	f.calls++

	if i < len(f.errs) && f.errs[i] != nil {
		return types.Order{}, f.errs[i]
	}

	if i >= len(f.states) {
		i = len(f.states) - 1
	}

	return f.states[i], nil
}

func order(status types.OrderStatus) types.Order {
	return types.Order{OrderID: 1, Symbol: "BTCUSDT", Status: status}
}

func TestWaitForFillReturnsOnFill(t *testing.T) {
	fetcher := &scriptedFetcher{states: []types.Order{
		order(types.OrderStatusNew),
		order(types.OrderStatusPartiallyFilled),
		order(types.OrderStatusFilled),
	}}

	p := New(fetcher, time.Millisecond, time.Second)

	got, err := p.WaitForFill(context.Background(), "BTCUSDT", 1)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusFilled, got.Status)
	assert.Equal(t, 3, fetcher.calls)
}

func TestWaitForFillTimeoutReturnsLastState(t *testing.T) {
	fetcher := &scriptedFetcher{states: []types.Order{order(types.OrderStatusNew)}}

	p := New(fetcher, 5*time.Millisecond, 25*time.Millisecond)

	got, err := p.WaitForFill(context.Background(), "BTCUSDT", 1)
	require.NoError(t, err, "timeout is not an error by itself")
	assert.Equal(t, types.OrderStatusNew, got.Status)
	assert.GreaterOrEqual(t, fetcher.calls, 2, "should have polled more than once")
}

func TestWaitForFillPropagatesFetchError(t *testing.T) {
	fetcher := &scriptedFetcher{
		states: []types.Order{order(types.OrderStatusNew)},
		errs:   []error{nil, stderrors.New("connection refused")},
	}

	p := New(fetcher, time.Millisecond, time.Second)

	_, err := p.WaitForFill(context.Background(), "BTCUSDT", 1)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeTransport, errors.GetCode(err))
	assert.Equal(t, 2, fetcher.calls, "stops polling on fetch failure")
}

func TestWaitForFillKeepsGatewayErrorCode(t *testing.T) {
	fetcher := &scriptedFetcher{
		states: []types.Order{order(types.OrderStatusNew)},
		errs:   []error{errors.New(errors.ErrCodeAuthentication, "bad signature")},
	}

	p := New(fetcher, time.Millisecond, time.Second)

	_, err := p.WaitForFill(context.Background(), "BTCUSDT", 1)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeAuthentication, errors.GetCode(err))
}

func TestWaitForCustomPredicate(t *testing.T) {
	fetcher := &scriptedFetcher{states: []types.Order{
		order(types.OrderStatusNew),
		order(types.OrderStatusCanceled),
	}}

	p := New(fetcher, time.Millisecond, time.Second)

	got, err := p.WaitFor(context.Background(), "BTCUSDT", 1, func(o types.Order) bool {
		return o.Status.Terminal()
	})
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCanceled, got.Status)
}
