// Package poller implements the blocking wait-for-terminal-state primitive
// used by the bracket coordinator: fetch at a fixed interval until a
// predicate holds or the deadline passes.
package poller

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/quantra-lab/futuresbot/internal/types"
	"github.com/quantra-lab/futuresbot/pkg/errors"
)

// errNotDone signals the retry loop to keep polling. Never escapes WaitFor.
var errNotDone = stderrors.New("order not in target state yet")

// OrderFetcher is the subset of the gateway the poller needs.
type OrderFetcher interface {
	GetOrder(ctx context.Context, symbol string, orderID int64) (types.Order, error)
}

// Poller polls order state at a fixed interval, bounded by a timeout.
// There is deliberately no backoff growth: the loop is a constant-interval
// busy wait matching short-lived CLI invocations.
type Poller struct {
	gateway  OrderFetcher
	interval time.Duration
	timeout  time.Duration
}

// New creates a Poller polling at interval with an overall timeout.
func New(gateway OrderFetcher, interval, timeout time.Duration) *Poller {
	return &Poller{
		gateway:  gateway,
		interval: interval,
		timeout:  timeout,
	}
}

// WaitForFill polls the order until its status is FILLED or the timeout
// elapses. On timeout the last observed order is returned with a nil
// error; the caller must inspect the status. Fetch failures abort the
// wait and propagate.
func (p *Poller) WaitForFill(ctx context.Context, symbol string, orderID int64) (types.Order, error) {
	return p.WaitFor(ctx, symbol, orderID, func(order types.Order) bool {
		return order.Status == types.OrderStatusFilled
	})
}

// WaitFor polls the order until done reports true or the timeout elapses,
// returning the last observed state either way.
func (p *Poller) WaitFor(ctx context.Context, symbol string, orderID int64, done func(types.Order) bool) (types.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var last types.Order

	operation := func() error {
		order, err := p.gateway.GetOrder(ctx, symbol, orderID)
		if err != nil {
			return backoff.Permanent(err)
		}

		last = order
		if done(order) {
			return nil
		}

		return errNotDone
	}

	wait := backoff.WithContext(backoff.NewConstantBackOff(p.interval), ctx)

	err := backoff.Retry(operation, wait)
	if err != nil && !stderrors.Is(err, errNotDone) {
		// the deadline ran out between polls; timeout is not an error,
		// the caller inspects the returned status
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
			return last, nil
		}

		if errors.GetCode(err) != errors.ErrCodeUnknown {
			return last, err
		}

		return last, errors.Wrapf(errors.ErrCodeTransport, err, "polling order %d failed", orderID)
	}

	return last, nil
}
