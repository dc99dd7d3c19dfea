package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
)

// OrderRequest is the engine-facing form of the wire-level request schema
// from spec.md §6: {symbol, side, kind, quantity, limit_price?, stop_price?}.
type OrderRequest struct {
	Symbol     common.Symbol
	Side       common.Side
	Kind       common.OrderKind
	Quantity   decimal.Decimal
	LimitPrice decimal.Decimal
	HasLimit   bool
	StopPrice  decimal.Decimal
	HasStop    bool
	Owner      string
}

// SubmitResult is the outcome of Engine.Submit: either the order was
// accepted (and possibly matched, possibly armed) or rejected outright.
// Per spec.md §7, an accepted order always receives an OrderID, even one
// that fully cancels immediately (IOC/FOK), so clients can correlate.
type SubmitResult struct {
	Accepted     bool
	OrderID      uuid.UUID
	Order        common.Order
	Trades       []common.Trade
	Deltas       []common.BookDelta
	Armed        bool
	RejectReason string
	Err          error
}

// CancelResult is the outcome of Engine.Cancel.
type CancelResult struct {
	Ok    bool
	Delta *common.BookDelta
	Err   error
}
