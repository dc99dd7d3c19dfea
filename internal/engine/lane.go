package engine

import (
	"sync/atomic"

	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/book"
	"fenrir/internal/common"
	"fenrir/internal/config"
	"fenrir/internal/eventbus"
	"fenrir/internal/fees"
	"fenrir/internal/stops"
)

// maxRecentTrades bounds the in-memory recent-trades ring kept per
// symbol for get_recent_trades; it is not part of spec.md's invariants,
// just a practical cap on an unbounded-growth structure.
const maxRecentTrades = 1000

// lane is the single serialized mutation domain for one symbol
// (spec.md §5): a dedicated goroutine draining a buffered job channel,
// directly generalizing internal/worker.go's WorkerPool.worker loop to a
// pool of exactly one worker with an unbounded lifetime instead of a
// fixed worker count pulling from a shared task channel.
type lane struct {
	symbol common.Symbol
	book   *book.OrderBook
	stops  *stops.Monitor
	fees   fees.Calculator
	cfg    config.SymbolConfig

	seq uint64 // next timestamp_accepted value

	lastPrice    decimal.Decimal
	hasLastPrice bool // spec.md §3: LastPrice is "initially unset"
	recentTrades []common.Trade

	bus          *eventbus.Bus
	tradeSeq     *atomic.Uint64
	cascadeDepth int

	jobs chan func()
	t    *tomb.Tomb
}

// newLane constructs a lane with its own private StopMonitor. Each symbol
// gets exactly one lane and exactly one Monitor instance — sharing one
// Monitor across lanes would mean concurrent goroutines mutating the same
// Go map (Monitor.symbols) for different symbols, which is unsafe even
// when the per-symbol data itself never overlaps.
//
// tradeSeq is shared across every lane (a single global trade-id sequence,
// per spec.md §3) via *atomic.Uint64, the one piece of state lanes share;
// every other field below is exclusive to this lane's goroutine.
func newLane(symbol common.Symbol, cfg config.SymbolConfig, bus *eventbus.Bus, tradeSeq *atomic.Uint64, cascadeDepth, bufSize int) *lane {
	l := &lane{
		symbol:       symbol,
		book:         book.New(symbol),
		stops:        stops.New(),
		fees:         fees.Calculator{MakerRate: cfg.MakerRate, TakerRate: cfg.TakerRate},
		cfg:          cfg,
		bus:          bus,
		tradeSeq:     tradeSeq,
		cascadeDepth: cascadeDepth,
		jobs:         make(chan func(), bufSize),
		t:            new(tomb.Tomb),
	}
	l.t.Go(func() error {
		l.run()
		return nil
	})
	return l
}

func (l *lane) run() {
	for {
		select {
		case <-l.t.Dying():
			return
		case job := <-l.jobs:
			job()
		}
	}
}

// do submits a job to the lane and blocks until it has run, giving every
// caller (submit, cancel, read queries) the same total ordering.
func (l *lane) do(job func()) {
	done := make(chan struct{})
	l.jobs <- func() {
		defer close(done)
		job()
	}
	<-done
}

func (l *lane) nextSequence() uint64 {
	l.seq++
	return l.seq
}

func (l *lane) recordTrade(t common.Trade) {
	l.recentTrades = append(l.recentTrades, t)
	if len(l.recentTrades) > maxRecentTrades {
		l.recentTrades = l.recentTrades[len(l.recentTrades)-maxRecentTrades:]
	}
}

// exportRestingOrders returns every resting order on side, best price
// first, FIFO within each level — the order persistence.Store writes
// them in, which is also the order importOrders must replay them in to
// reproduce the same FIFO priority.
func (l *lane) exportRestingOrders(side common.Side) []common.Order {
	var out []common.Order
	l.book.Levels(side).Scan(func(lvl *book.PriceLevel) bool {
		for _, o := range lvl.Orders {
			out = append(out, *o)
		}
		return true
	})
	return out
}

func (l *lane) exportArmedStops() []common.Order {
	return l.stops.Export(l.symbol)
}

// importOrders replays a snapshot's orders back into this lane at
// startup. Each order's original Sequence is preserved rather than
// reassigned, and l.seq is advanced past the highest one seen so that
// the next freshly submitted order still gets a larger Sequence.
func (l *lane) importOrders(orders []common.Order) {
	for _, o := range orders {
		order := o
		if order.Sequence > l.seq {
			l.seq = order.Sequence
		}
		if order.Kind.IsStop() {
			l.stops.Arm(order)
			continue
		}
		l.book.AddResting(&order)
	}
}

func (l *lane) shutdown() {
	l.t.Kill(nil)
	_ = l.t.Wait()
}

func (l *lane) nextTradeID() uint64 {
	return l.tradeSeq.Add(1)
}

// publish fans trades and book deltas out to the bus, updates
// lastPrice/recentTrades, and publishes the resulting BBO — called once
// per direct execution, with any cascade's trades and deltas included.
func (l *lane) publish(trades []common.Trade, deltas []common.BookDelta) {
	for _, t := range trades {
		l.lastPrice = t.Price
		l.hasLastPrice = true
		l.recordTrade(t)
		if l.bus != nil {
			l.bus.PublishTrade(t)
		}
	}
	if l.bus != nil {
		for _, d := range deltas {
			l.bus.PublishDepth(d)
		}
		if len(trades) > 0 || len(deltas) > 0 {
			l.bus.PublishBBO(l.book.BBO())
		}
	}
}

// onFilled runs the bounded stop-activation cascade from spec.md §4.4: a
// trade at lastTradePrice may satisfy one or more ARMED stops, each of
// which is promoted into a MARKET/LIMIT order and executed immediately;
// its own trades may move the price again and satisfy further stops. The
// loop runs until a wave triggers nothing new or cascadeDepth waves have
// run, at which point any still-armed stops are left ARMED and
// common.ErrCascadeOverflow is returned (spec.md: "remaining stops stay
// ARMED, never silently dropped").
func (l *lane) onFilled(lastTradePrice decimal.Decimal) ([]common.Trade, []common.BookDelta, error) {
	var allTrades []common.Trade
	var allDeltas []common.BookDelta

	price := lastTradePrice
	for wave := 0; wave < l.cascadeDepth; wave++ {
		activated := l.stops.OnPrice(l.symbol, price)
		if len(activated) == 0 {
			return allTrades, allDeltas, nil
		}
		for i := range activated {
			order := activated[i]
			trades, deltas, rejectErr, _ := l.matchAndSettle(&order)
			if rejectErr != nil {
				// Only a triggered STOP_MARKET can hit this: the opposite
				// side emptied between arming and activation, so there is
				// nothing to execute against and no limit price to rest
				// at. It is dropped rather than re-armed, per spec.md §4.4.
				continue
			}
			allTrades = append(allTrades, trades...)
			allDeltas = append(allDeltas, deltas...)
			if len(trades) > 0 {
				price = trades[len(trades)-1].Price
			}
		}
	}
	return allTrades, allDeltas, common.ErrCascadeOverflow
}
