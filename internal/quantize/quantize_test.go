package quantize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantra-lab/futuresbot/internal/types"
	"github.com/quantra-lab/futuresbot/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoundPriceToTick(t *testing.T) {
	tests := []struct {
		name  string
		price string
		tick  string
		want  string
	}{
		{"already aligned", "50000.10", "0.10", "50000.10"},
		{"floors between ticks", "50000.19", "0.10", "50000.10"},
		{"never rounds up", "50000.99", "0.10", "50000.90"},
		{"coarse tick", "1234.56", "0.5", "1234.5"},
		{"zero tick passes through", "50000.19", "0", "50000.19"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundPriceToTick(dec(tt.price), dec(tt.tick))
			assert.True(t, dec(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestRoundPriceToTickProperties(t *testing.T) {
	prices := []string{"0.0001", "1", "123.456789", "99999.99999", "0.37"}
	ticks := []string{"0.0001", "0.01", "0.5", "1", "5"}

	for _, p := range prices {
		for _, k := range ticks {
			price, tick := dec(p), dec(k)
			got := RoundPriceToTick(price, tick)

			assert.True(t, got.LessThanOrEqual(price), "result %s must be <= price %s", got, price)
			assert.True(t, got.Mod(tick).IsZero(), "result %s must be a multiple of tick %s", got, tick)
		}
	}
}

func TestRoundDownQty(t *testing.T) {
	tests := []struct {
		name string
		qty  string
		step string
		want string
	}{
		{"aligned", "0.020", "0.001", "0.02"},
		{"truncates extra precision", "0.0215", "0.001", "0.021"},
		{"never rounds up", "0.0299", "0.001", "0.029"},
		{"zero step passes through", "0.0215", "0", "0.0215"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundDownQty(dec(tt.qty), dec(tt.step))
			assert.True(t, dec(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestRoundDownQtyIdempotent(t *testing.T) {
	qtys := []string{"0.0215", "1.9999", "10", "0.00099"}
	steps := []string{"0.001", "0.01", "1"}

	for _, q := range qtys {
		for _, s := range steps {
			qty, step := dec(q), dec(s)
			once := RoundDownQty(qty, step)
			twice := RoundDownQty(once, step)

			assert.True(t, once.LessThanOrEqual(qty))
			assert.True(t, once.Mod(step).IsZero())
			assert.True(t, once.Equal(twice), "rounding must be idempotent: %s vs %s", once, twice)
		}
	}
}

func TestQtyForMinNotional(t *testing.T) {
	// 100 USDT notional at 50000 → 0.002, already step-aligned
	got := QtyForMinNotional(dec("50000"), dec("100"), dec("0.001"))
	assert.True(t, dec("0.002").Equal(got), "got %s", got)

	// 100 / 30000 = 0.00333... → rounds up to 0.004
	got = QtyForMinNotional(dec("30000"), dec("100"), dec("0.001"))
	assert.True(t, dec("0.004").Equal(got), "got %s", got)
	assert.True(t, got.Mul(dec("30000")).GreaterThanOrEqual(dec("100")))

	// zero price guards against division
	assert.True(t, QtyForMinNotional(decimal.Zero, dec("100"), dec("0.001")).IsZero())
}

func TestValidatePositiveNumber(t *testing.T) {
	v, err := ValidatePositiveNumber("qty", "0.02")
	require.NoError(t, err)
	assert.True(t, dec("0.02").Equal(v))

	_, err = ValidatePositiveNumber("qty", "abc")
	assert.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidParameter, errors.GetCode(err))

	_, err = ValidatePositiveNumber("qty", "0")
	assert.Error(t, err)

	_, err = ValidatePositiveNumber("price", "-1.5")
	assert.Error(t, err)
}

func TestValidateSide(t *testing.T) {
	for _, raw := range []string{"buy", "BUY", "Buy", " buy "} {
		side, err := ValidateSide(raw)
		require.NoError(t, err, "input %q", raw)
		assert.Equal(t, types.SideBuy, side)
	}

	for _, raw := range []string{"sell", "SELL", "SeLl"} {
		side, err := ValidateSide(raw)
		require.NoError(t, err, "input %q", raw)
		assert.Equal(t, types.SideSell, side)
	}

	for _, raw := range []string{"", "hold", "B", "buy sell"} {
		_, err := ValidateSide(raw)
		assert.Error(t, err, "input %q", raw)
		assert.Equal(t, errors.ErrCodeInvalidSide, errors.GetCode(err))
	}
}
