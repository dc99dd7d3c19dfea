package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is an immutable record of one maker/taker match. Quantity was
// deducted from both participating orders atomically before this value
// was constructed (see book.OrderBook.Match).
type Trade struct {
	TradeID      uint64
	Symbol       Symbol
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	MakerOrderID uuid.UUID
	TakerOrderID uuid.UUID
	MakerSide    Side
	MakerFee     decimal.Decimal
	TakerFee     decimal.Decimal
	Timestamp    time.Time
}

// Notional returns price*quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"Trade{id=%d symbol=%s price=%s qty=%s maker=%s taker=%s makerSide=%s}",
		t.TradeID, t.Symbol, t.Price.String(), t.Quantity.String(),
		t.MakerOrderID, t.TakerOrderID, t.MakerSide,
	)
}

// BookDelta describes a change to the aggregate quantity resting at one
// price level. NewAggregateQuantity == 0 means the level was removed.
type BookDelta struct {
	Symbol               Symbol
	Side                 Side
	Price                decimal.Decimal
	NewAggregateQuantity decimal.Decimal
}

// DepthLevel is one (price, aggregate_quantity) tuple as returned by
// snapshot_depth.
type DepthLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// BBO is the best bid and offer for a symbol. Either side may be absent
// (zero price and quantity, HasBid/HasAsk false) when that side of the
// book is empty.
type BBO struct {
	Symbol  Symbol
	Bid     decimal.Decimal
	BidQty  decimal.Decimal
	HasBid  bool
	Ask     decimal.Decimal
	AskQty  decimal.Decimal
	HasAsk  bool
}
