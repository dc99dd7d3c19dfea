package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a single order as tracked by the book or the stop monitor.
//
// Sequence is the monotonic acceptance counter assigned inside the owning
// symbol lane (timestamp_accepted in spec terms); FIFO ordering and
// snapshot round-trips are defined over Sequence, never over AcceptedAt,
// because wall-clock time is not guaranteed to be strictly increasing
// across a fast sweep on some platforms.
type Order struct {
	OrderID           uuid.UUID
	Symbol            Symbol
	Side              Side
	Kind              OrderKind
	LimitPrice        decimal.Decimal // zero value unused when HasLimitPrice is false
	HasLimitPrice     bool
	StopPrice         decimal.Decimal
	HasStopPrice      bool
	QuantityOriginal  decimal.Decimal
	QuantityRemaining decimal.Decimal
	Sequence          uint64
	AcceptedAt        time.Time
	Status            OrderStatus
	Owner             string
}

// Remaining reports whether the order still has quantity to fill.
func (o *Order) Remaining() bool {
	return o.QuantityRemaining.IsPositive()
}

// FilledQuantity returns the cumulative quantity executed so far.
func (o *Order) FilledQuantity() decimal.Decimal {
	return o.QuantityOriginal.Sub(o.QuantityRemaining)
}

// Fill deducts qty from the order's remaining quantity and updates status.
// qty must not exceed QuantityRemaining; callers (the book's matching
// sweep) are responsible for that invariant.
func (o *Order) Fill(qty decimal.Decimal) {
	o.QuantityRemaining = o.QuantityRemaining.Sub(qty)
	if o.QuantityRemaining.IsZero() {
		o.Status = Filled
	} else {
		o.Status = Partial
	}
}

// Cancel marks the order cancelled regardless of remaining quantity.
func (o *Order) Cancel() {
	o.Status = Cancelled
}

func (o Order) String() string {
	return fmt.Sprintf(
		"Order{id=%s symbol=%s side=%s kind=%s qty=%s/%s seq=%d status=%s owner=%s}",
		o.OrderID, o.Symbol, o.Side, o.Kind,
		o.QuantityRemaining.String(), o.QuantityOriginal.String(),
		o.Sequence, o.Status, o.Owner,
	)
}
