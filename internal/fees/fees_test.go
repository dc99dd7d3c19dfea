package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFees_NotionalTimesRate(t *testing.T) {
	c := Calculator{
		MakerRate: decimal.RequireFromString("0.001"),
		TakerRate: decimal.RequireFromString("0.002"),
	}

	makerFee, takerFee := c.Fees(decimal.RequireFromString("100"), decimal.RequireFromString("2"))

	assert.True(t, makerFee.Equal(decimal.RequireFromString("0.2")), "maker_fee = notional*maker_rate")
	assert.True(t, takerFee.Equal(decimal.RequireFromString("0.4")), "taker_fee = notional*taker_rate")
}

func TestFees_TakerAlwaysAtLeastMaker(t *testing.T) {
	c := NewDefault()
	makerFee, takerFee := c.Fees(decimal.RequireFromString("50000"), decimal.RequireFromString("1.5"))
	assert.True(t, takerFee.GreaterThanOrEqual(makerFee), "taker_rate is never lower than maker_rate in the default schedule")
}

func TestFees_ZeroQuantityIsZeroFee(t *testing.T) {
	c := NewDefault()
	makerFee, takerFee := c.Fees(decimal.RequireFromString("100"), decimal.Zero)
	assert.True(t, makerFee.IsZero())
	assert.True(t, takerFee.IsZero())
}
