// Package fees computes maker/taker fees for a trade. Pure function, no
// state, no failure modes — grounded on the value-method style of
// internal/common's Order/Trade (behavior lives as methods/functions over
// plain value types, never behind a service interface).
package fees

import "github.com/shopspring/decimal"

// Default maker/taker rates per spec.md §2/§6.
var (
	DefaultMakerRate = decimal.RequireFromString("0.0001")
	DefaultTakerRate = decimal.RequireFromString("0.0002")
)

// Calculator computes fees for a single symbol's configured rates.
type Calculator struct {
	MakerRate decimal.Decimal
	TakerRate decimal.Decimal
}

// NewDefault returns a Calculator using the spec's default rates.
func NewDefault() Calculator {
	return Calculator{MakerRate: DefaultMakerRate, TakerRate: DefaultTakerRate}
}

// Fees returns (maker_fee, taker_fee) for a trade of the given price and
// quantity: maker_fee = notional*MakerRate, taker_fee = notional*TakerRate,
// per Testable Property 5.
func (c Calculator) Fees(price, quantity decimal.Decimal) (makerFee, takerFee decimal.Decimal) {
	notional := price.Mul(quantity)
	return notional.Mul(c.MakerRate), notional.Mul(c.TakerRate)
}
