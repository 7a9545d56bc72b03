// Package stopguard pre-validates stop trigger prices against the current
// market price. A stop whose trigger is already past the market would fire
// immediately, defeating its purpose; the exchange rejects some of these
// cases, this guard rejects all of them before any order is sent.
package stopguard

import (
	"github.com/shopspring/decimal"

	"github.com/quantra-lab/futuresbot/internal/types"
	"github.com/quantra-lab/futuresbot/pkg/errors"
)

// fallbackBuffer is used when the symbol carries no tick size filter.
var fallbackBuffer = decimal.RequireFromString("0.0001")

// ValidateStopVsMarket checks that stopPrice sits on the correct side of
// currentPrice with at least one tick of clearance:
//
//	BUY  stop: stopPrice > currentPrice + buffer
//	SELL stop: stopPrice < currentPrice - buffer
//
// where buffer is the tick size, or a minimal constant when tick is zero.
func ValidateStopVsMarket(side types.Side, stopPrice, currentPrice, tick decimal.Decimal) error {
	buffer := tick
	if buffer.IsZero() {
		buffer = fallbackBuffer
	}

	switch side {
	case types.SideBuy:
		if !stopPrice.GreaterThan(currentPrice.Add(buffer)) {
			return errors.Newf(errors.ErrCodeInvalidStopPrice,
				"invalid stopPrice for BUY: stopPrice (%s) must be greater than current price (%s) by at least one tick (%s)",
				stopPrice, currentPrice, buffer)
		}
	case types.SideSell:
		if !stopPrice.LessThan(currentPrice.Sub(buffer)) {
			return errors.Newf(errors.ErrCodeInvalidStopPrice,
				"invalid stopPrice for SELL: stopPrice (%s) must be less than current price (%s) by at least one tick (%s)",
				stopPrice, currentPrice, buffer)
		}
	default:
		return errors.Newf(errors.ErrCodeInvalidSide, "side must be BUY or SELL, got %q", side)
	}

	return nil
}
