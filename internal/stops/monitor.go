// Package stops implements the conditional-order monitor: per-symbol
// collections of ARMED stop orders that promote themselves into regular
// orders once the last traded price satisfies their trigger condition.
//
// fenrir has no equivalent of this at all — built fresh, but in the
// teacher's idiom: a small struct wrapping btree.BTreeG collections
// (reusing the same library internal/book already depends on for price
// levels, rather than introducing a second sorted-map dependency),
// reporting failures with internal/common's sentinel errors.
package stops

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"fenrir/internal/common"
)

// level is a FIFO queue of armed stops at one stop_price, mirroring
// book.PriceLevel's shape.
type level struct {
	StopPrice decimal.Decimal
	Orders    []*common.StopOrder
}

type levels = btree.BTreeG[*level]

type armedLocation struct {
	direction common.TriggerDirection
	stopPrice decimal.Decimal
}

// symbolStops holds one symbol's two trigger-direction groups.
type symbolStops struct {
	above *levels // ascending by stop_price: trigger when last_price >= stop_price
	below *levels // descending by stop_price: trigger when last_price <= stop_price
	byID  map[string]armedLocation
}

func newSymbolStops() *symbolStops {
	return &symbolStops{
		above: btree.NewBTreeG(func(a, b *level) bool { return a.StopPrice.LessThan(b.StopPrice) }),
		below: btree.NewBTreeG(func(a, b *level) bool { return a.StopPrice.GreaterThan(b.StopPrice) }),
		byID:  make(map[string]armedLocation),
	}
}

func (s *symbolStops) groupFor(dir common.TriggerDirection) *levels {
	if dir == common.Above {
		return s.above
	}
	return s.below
}

// Monitor tracks ARMED stop orders across every symbol it has seen.
type Monitor struct {
	symbols map[common.Symbol]*symbolStops
}

// New creates an empty Monitor.
func New() *Monitor {
	return &Monitor{symbols: make(map[common.Symbol]*symbolStops)}
}

func (m *Monitor) symbolStopsFor(symbol common.Symbol) *symbolStops {
	s, ok := m.symbols[symbol]
	if !ok {
		s = newSymbolStops()
		m.symbols[symbol] = s
	}
	return s
}

// Arm inserts order into the appropriate trigger-direction group. The
// order's Status is set to Armed and its TriggerDirection computed from
// side+kind per common.TriggerDirectionFor.
func (m *Monitor) Arm(order common.Order) *common.StopOrder {
	dir := common.TriggerDirectionFor(order.Side, order.Kind)
	order.Status = common.Armed
	stopOrder := &common.StopOrder{Order: order, TriggerDirection: dir}

	s := m.symbolStopsFor(order.Symbol)
	group := s.groupFor(dir)

	key := &level{StopPrice: order.StopPrice}
	lvl, ok := group.GetMut(key)
	if !ok {
		lvl = &level{StopPrice: order.StopPrice}
		group.Set(lvl)
	}
	lvl.Orders = append(lvl.Orders, stopOrder)
	s.byID[order.OrderID.String()] = armedLocation{direction: dir, stopPrice: order.StopPrice}
	return stopOrder
}

// Cancel removes an ARMED stop by id, returning common.ErrNotFound if it
// is not currently armed for symbol.
func (m *Monitor) Cancel(symbol common.Symbol, orderID string) (*common.Order, error) {
	s, ok := m.symbols[symbol]
	if !ok {
		return nil, common.ErrNotFound
	}
	loc, ok := s.byID[orderID]
	if !ok {
		return nil, common.ErrNotFound
	}
	group := s.groupFor(loc.direction)
	lvl, ok := group.GetMut(&level{StopPrice: loc.stopPrice})
	if !ok {
		return nil, common.ErrNotFound
	}
	for i, so := range lvl.Orders {
		if so.Order.OrderID.String() != orderID {
			continue
		}
		lvl.Orders = append(lvl.Orders[:i], lvl.Orders[i+1:]...)
		delete(s.byID, orderID)
		if len(lvl.Orders) == 0 {
			group.Delete(lvl)
		}
		so.Order.Cancel()
		return &so.Order, nil
	}
	return nil, common.ErrNotFound
}

// Export returns every ARMED order on symbol, in arming sequence order,
// for persistence snapshotting.
func (m *Monitor) Export(symbol common.Symbol) []common.Order {
	s, ok := m.symbols[symbol]
	if !ok {
		return nil
	}
	var out []common.Order
	collect := func(group *levels) {
		group.Scan(func(lvl *level) bool {
			for _, so := range lvl.Orders {
				out = append(out, so.Order)
			}
			return true
		})
	}
	collect(s.above)
	collect(s.below)
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// OnPrice pops every ARMED stop on symbol whose trigger condition is
// satisfied at price, marks each TRIGGERED, and transforms it into its
// execution form (STOP_MARKET -> MARKET, STOP_LIMIT/TAKE_PROFIT -> LIMIT,
// original limit_price preserved). Activation order: ascending stop_price
// for the ABOVE group and descending stop_price for the BELOW group —
// in both cases "closer to the pre-trigger last_price first" per
// spec.md §4.4 — FIFO within equal stop_price.
//
// This performs a single pass; cascades (trades from activated stops
// moving price further and triggering more stops) are the caller's
// responsibility — see internal/engine's cascade loop, which re-invokes
// OnPrice after each wave and bounds total depth.
func (m *Monitor) OnPrice(symbol common.Symbol, price decimal.Decimal) []common.Order {
	s, ok := m.symbols[symbol]
	if !ok {
		return nil
	}

	var triggered []common.Order

	drain := func(group *levels, satisfied func(stopPrice decimal.Decimal) bool) {
		for {
			lvl, ok := group.Min()
			if !ok || !satisfied(lvl.StopPrice) {
				return
			}
			group.Delete(lvl)
			for _, so := range lvl.Orders {
				delete(s.byID, so.Order.OrderID.String())
				so.Triggered = true
				so.Order.Status = common.Triggered
				so.Order.Kind = common.ExecutionKind(so.Order.Kind)
				triggered = append(triggered, so.Order)
			}
		}
	}

	drain(s.above, func(stopPrice decimal.Decimal) bool { return price.GreaterThanOrEqual(stopPrice) })
	drain(s.below, func(stopPrice decimal.Decimal) bool { return price.LessThanOrEqual(stopPrice) })

	return triggered
}
