// Package book implements the per-symbol, two-sided, price-time-priority
// limit order book: the leaf component of the matching engine. It owns
// every resting Order exclusively (per SPEC_FULL.md §3's ownership rule)
// and performs no locking of its own — callers serialize access to one
// book through a single symbol lane (see internal/engine).
//
// Grounded on _examples/saiputravu-Exchange/internal/engine/orderbook.go:
// the same btree.BTreeG[*PriceLevel] comparator trick (bids sorted
// descending, asks ascending) and the same slice-append/slice-reslice
// FIFO idiom within a level, generalized from float64 prices to
// decimal.Decimal and extended with an order-id index so cancel finds an
// order's price level without scanning the book.
package book

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"fenrir/internal/common"
)

// PriceLevel is a FIFO queue of resting orders at one price, on one side.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*common.Order
}

// AggregateQuantity sums QuantityRemaining across every order resting at
// this level.
func (l *PriceLevel) AggregateQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.Orders {
		total = total.Add(o.QuantityRemaining)
	}
	return total
}

type priceLevels = btree.BTreeG[*PriceLevel]

// location pins down exactly where a resting order lives, so Cancel does
// not need to rescan every level on every side.
type location struct {
	side  common.Side
	price decimal.Decimal
}

// OrderBook is the two-sided book for a single symbol.
type OrderBook struct {
	Symbol common.Symbol

	bids *priceLevels // descending: best bid first
	asks *priceLevels // ascending: best ask first

	byID map[string]location // order id (string form) -> resting location
}

// New creates an empty book for symbol.
func New(symbol common.Symbol) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price)
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})
	return &OrderBook{
		Symbol: symbol,
		bids:   bids,
		asks:   asks,
		byID:   make(map[string]location),
	}
}

func (b *OrderBook) levelsFor(side common.Side) *priceLevels {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

func (b *OrderBook) oppositeLevelsFor(side common.Side) *priceLevels {
	return b.levelsFor(side.Opposite())
}

// AddResting places order on its side's book at its limit price, FIFO
// behind any existing orders at that price. Precondition: the caller
// (MatchingEngine) has already swept any crossing liquidity; AddResting
// does not check for a cross.
func (b *OrderBook) AddResting(order *common.Order) {
	levels := b.levelsFor(order.Side)
	key := &PriceLevel{Price: order.LimitPrice}
	level, ok := levels.GetMut(key)
	if !ok {
		level = &PriceLevel{Price: order.LimitPrice}
		levels.Set(level)
	}
	level.Orders = append(level.Orders, order)
	b.byID[order.OrderID.String()] = location{side: order.Side, price: order.LimitPrice}
}

// Cancel removes a resting order by id. Returns common.ErrNotFound if the
// order is not currently resting in this book.
func (b *OrderBook) Cancel(orderID string) (*common.Order, error) {
	loc, ok := b.byID[orderID]
	if !ok {
		return nil, common.ErrNotFound
	}
	levels := b.levelsFor(loc.side)
	level, ok := levels.GetMut(&PriceLevel{Price: loc.price})
	if !ok {
		return nil, common.ErrNotFound
	}

	for i, o := range level.Orders {
		if o.OrderID.String() != orderID {
			continue
		}
		level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
		delete(b.byID, orderID)
		if len(level.Orders) == 0 {
			levels.Delete(level)
		}
		o.Cancel()
		return o, nil
	}
	return nil, common.ErrNotFound
}

// BestLevel returns the best (top of book) price level for side, or
// (nil, false) if that side is empty.
func (b *OrderBook) BestLevel(side common.Side) (*PriceLevel, bool) {
	return b.levelsFor(side).Min()
}

// BBO reports the best bid and ask for the book.
func (b *OrderBook) BBO() common.BBO {
	bbo := common.BBO{Symbol: b.Symbol}
	if lvl, ok := b.bids.Min(); ok {
		bbo.HasBid = true
		bbo.Bid = lvl.Price
		bbo.BidQty = lvl.AggregateQuantity()
	}
	if lvl, ok := b.asks.Min(); ok {
		bbo.HasAsk = true
		bbo.Ask = lvl.Price
		bbo.AskQty = lvl.AggregateQuantity()
	}
	return bbo
}

// SnapshotDepth returns up to n (price, aggregate_quantity) tuples per
// side, best price first.
func (b *OrderBook) SnapshotDepth(n int) (bids, asks []common.DepthLevel) {
	collect := func(levels *priceLevels) []common.DepthLevel {
		out := make([]common.DepthLevel, 0, n)
		levels.Scan(func(lvl *PriceLevel) bool {
			out = append(out, common.DepthLevel{Price: lvl.Price, Quantity: lvl.AggregateQuantity()})
			return len(out) < n
		})
		return out
	}
	return collect(b.bids), collect(b.asks)
}

// Levels exposes the raw btree for a side, for persistence export and
// tests. Callers must not mutate the returned tree directly.
func (b *OrderBook) Levels(side common.Side) *priceLevels {
	return b.levelsFor(side)
}

// MaxFillable reports how much of quantity could be filled against the
// opposite side at prices satisfying limitPrice (limitPrice is nil for an
// unbounded MARKET check), without mutating the book. Used for the FOK
// pre-check (spec.md §4.1).
func (b *OrderBook) MaxFillable(side common.Side, quantity decimal.Decimal, limitPrice *decimal.Decimal) decimal.Decimal {
	remaining := quantity
	filled := decimal.Zero
	b.oppositeLevelsFor(side).Scan(func(lvl *PriceLevel) bool {
		if !remaining.IsPositive() {
			return false
		}
		if limitPrice != nil && !marketable(side, lvl.Price, *limitPrice) {
			return false
		}
		for _, o := range lvl.Orders {
			if !remaining.IsPositive() {
				break
			}
			take := decimal.Min(remaining, o.QuantityRemaining)
			filled = filled.Add(take)
			remaining = remaining.Sub(take)
		}
		return true
	})
	return filled
}

// marketable reports whether a resting level at lvlPrice is marketable
// against a taker's limitPrice: an ask is marketable for a BUY when
// lvlPrice <= limitPrice; a bid is marketable for a SELL when
// lvlPrice >= limitPrice.
func marketable(takerSide common.Side, lvlPrice, limitPrice decimal.Decimal) bool {
	if takerSide == common.Buy {
		return lvlPrice.LessThanOrEqual(limitPrice)
	}
	return lvlPrice.GreaterThanOrEqual(limitPrice)
}

// Fill is one atomic maker/taker quantity decrement produced by Match.
type Fill struct {
	Maker    *common.Order
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Match sweeps the opposite side in best-first order, filling FIFO within
// each level, until taker is exhausted or no further opposite level
// satisfies its price bound (limitPrice == nil means unbounded, i.e.
// MARKET). This is the authoritative matching algorithm from spec.md
// §4.1: trades always execute at the resting maker's price, never at the
// taker's limit, and a level is never skipped in favor of a worse one.
func (b *OrderBook) Match(taker *common.Order, limitPrice *decimal.Decimal) []Fill {
	var fills []Fill
	levels := b.oppositeLevelsFor(taker.Side)

	for taker.QuantityRemaining.IsPositive() {
		lvl, ok := levels.MinMut()
		if !ok {
			break
		}
		if limitPrice != nil && !marketable(taker.Side, lvl.Price, *limitPrice) {
			break
		}

		consumed := 0
		for _, maker := range lvl.Orders {
			if !taker.QuantityRemaining.IsPositive() {
				break
			}
			qty := decimal.Min(taker.QuantityRemaining, maker.QuantityRemaining)
			taker.Fill(qty)
			maker.Fill(qty)
			fills = append(fills, Fill{Maker: maker, Price: lvl.Price, Quantity: qty})

			if maker.QuantityRemaining.IsZero() {
				consumed++
				delete(b.byID, maker.OrderID.String())
			} else {
				break
			}
		}

		if consumed > 0 {
			lvl.Orders = lvl.Orders[consumed:]
		}
		if len(lvl.Orders) == 0 {
			levels.Delete(lvl)
		}
	}
	return fills
}
