// Package quantize rounds prices and quantities onto the exchange's
// tick/step grid and validates raw user input before any network call.
package quantize

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quantra-lab/futuresbot/internal/types"
	"github.com/quantra-lab/futuresbot/pkg/errors"
)

// RoundPriceToTick floors price to the nearest multiple of tick. It never
// rounds up. A zero tick means the symbol has no price filter configured
// and the price is returned unchanged.
func RoundPriceToTick(price, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return price
	}

	return price.Div(tick).Floor().Mul(tick)
}

// RoundDownQty floors qty to the nearest multiple of step. Rounding up
// would risk ordering more than intended, so the result is always <= qty.
// A zero step returns qty unchanged.
func RoundDownQty(qty, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return qty
	}

	return qty.Div(step).Floor().Mul(step)
}

// QtyForMinNotional returns the smallest step-aligned quantity whose
// notional value at price satisfies minNotional. Returns zero when price
// is zero.
func QtyForMinNotional(price, minNotional, step decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}

	required := minNotional.Div(price)
	if step.IsZero() {
		return required
	}

	// Round up: a quantity below the requirement would still be rejected
	// by the exchange's notional filter.
	return required.Div(step).Ceil().Mul(step)
}

// ValidatePositiveNumber parses raw as a decimal and rejects non-positive
// values. The name is used in the error message only.
func ValidatePositiveNumber(name, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "%s must be a number", name)
	}

	if v.Sign() <= 0 {
		return decimal.Zero, errors.Newf(errors.ErrCodeInvalidParameter, "%s must be positive, got %s", name, v)
	}

	return v, nil
}

// ValidateSide normalizes raw to BUY or SELL, case-insensitively.
func ValidateSide(raw string) (types.Side, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(types.SideBuy):
		return types.SideBuy, nil
	case string(types.SideSell):
		return types.SideSell, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidSide, "side must be BUY or SELL, got %q", raw)
	}
}
