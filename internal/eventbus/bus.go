// Package eventbus fans out Trade, BookDelta, and BBO events to
// subscribed market-data consumers with backpressure-aware delivery.
//
// Grounded on _examples/saiputravu-Exchange/internal/worker.go's bounded
// chan-backed worker-pool idiom for the "don't block the publisher"
// contract, and on gopkg.in/tomb.v2 (already a teacher dependency, used
// by internal/net/server.go to supervise per-connection goroutines) for
// supervising each subscriber's delivery goroutine and making
// unsubscribe/cancellation a first-class operation.
package eventbus

import (
	"sync"

	tomb "gopkg.in/tomb.v2"

	"fenrir/internal/common"
)

// Topic is one of the three market-data feeds a consumer can subscribe
// to, per spec.md §4.5.
type Topic int

const (
	Trades Topic = iota
	Depth
	BBO
)

// EventKind tags which payload an Event carries.
type EventKind int

const (
	KindTrade EventKind = iota
	KindDepth
	KindBBO
	KindLagged
)

// Event is the envelope delivered to subscribers. Exactly one of
// Trade/Delta/BBO is populated, selected by Kind, except for KindLagged
// which carries only Lagged (the number of events dropped since the last
// delivered Lagged marker).
type Event struct {
	Kind   EventKind
	Symbol common.Symbol
	Trade  common.Trade
	Delta  common.BookDelta
	BBO    common.BBO
	Lagged int
}

// DefaultBufferSize is the per-subscriber bounded buffer size when a
// caller doesn't pick one (spec.md §5: "the EventBus caps per-subscriber
// buffer size").
const DefaultBufferSize = 256

// Bus is the fan-out hub. One Bus instance serves every symbol; topic and
// symbol filtering happens per-subscription.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]*subscriber)}
}

// Subscription is the handle returned by Subscribe. Read Events() for
// delivered events; call Unsubscribe to stop delivery and release the
// buffer.
type Subscription struct {
	id  uint64
	bus *Bus
	sub *subscriber
}

// Events returns the channel events are delivered on.
func (s *Subscription) Events() <-chan Event {
	return s.sub.out
}

// Unsubscribe drops the subscriber from the bus and releases its buffer.
// Per spec.md §5, subscriber sessions are cancellable; this is that
// cancellation path.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

type subscriber struct {
	topics map[Topic]bool
	symbol common.Symbol // empty string subscribes to every symbol
	bufSize int

	mu      sync.Mutex
	queue   []Event
	lagged  int

	wake chan struct{}
	out  chan Event
	t    *tomb.Tomb
}

// Subscribe registers a bounded delivery sink for the given topics,
// optionally filtered to a single symbol (empty symbol means every
// symbol). bufSize <= 0 uses DefaultBufferSize.
func (b *Bus) Subscribe(topics []Topic, symbol common.Symbol, bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	topicSet := make(map[Topic]bool, len(topics))
	for _, t := range topics {
		topicSet[t] = true
	}

	sub := &subscriber{
		topics:  topicSet,
		symbol:  symbol,
		bufSize: bufSize,
		wake:    make(chan struct{}, 1),
		out:     make(chan Event, bufSize),
		t:       new(tomb.Tomb),
	}
	sub.t.Go(func() error {
		sub.pump()
		return nil
	})

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	return &Subscription{id: id, bus: b, sub: sub}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		sub.t.Kill(nil)
	}
}

// PublishTrade delivers a trade event to every subscriber of the Trades
// topic for its symbol.
func (b *Bus) PublishTrade(trade common.Trade) {
	b.publish(Trades, trade.Symbol, Event{Kind: KindTrade, Symbol: trade.Symbol, Trade: trade})
}

// PublishDepth delivers a book-delta event to every subscriber of the
// Depth topic for its symbol. Consecutive depth events for the same
// symbol may be coalesced into the latest when a subscriber's buffer is
// under pressure, but never reordered past a trade event (see
// subscriber.enqueue).
func (b *Bus) PublishDepth(delta common.BookDelta) {
	b.publish(Depth, delta.Symbol, Event{Kind: KindDepth, Symbol: delta.Symbol, Delta: delta})
}

// PublishBBO delivers a BBO event to every subscriber of the BBO topic
// for its symbol.
func (b *Bus) PublishBBO(bbo common.BBO) {
	b.publish(BBO, bbo.Symbol, Event{Kind: KindBBO, Symbol: bbo.Symbol, BBO: bbo})
}

func (b *Bus) publish(topic Topic, symbol common.Symbol, ev Event) {
	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if !sub.topics[topic] {
			continue
		}
		if sub.symbol != "" && sub.symbol != symbol {
			continue
		}
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.enqueue(ev)
	}
}

// enqueue is the only part of the hot publish path that touches a
// subscriber; it only takes a quick mutex, so a slow subscriber can never
// block the publisher (spec.md §5).
func (sub *subscriber) enqueue(ev Event) {
	sub.mu.Lock()
	if ev.Kind == KindDepth && len(sub.queue) > 0 {
		if tail := &sub.queue[len(sub.queue)-1]; tail.Kind == KindDepth && tail.Symbol == ev.Symbol {
			*tail = ev
			sub.mu.Unlock()
			sub.signal()
			return
		}
	}

	if len(sub.queue) >= sub.bufSize {
		sub.queue = sub.queue[1:]
		sub.lagged++
	}
	sub.queue = append(sub.queue, ev)
	sub.mu.Unlock()
	sub.signal()
}

func (sub *subscriber) signal() {
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

// pump drains the internal queue into the externally-visible channel.
// Blocking sends here only ever block this goroutine, never a publisher.
// Closing out on exit lets a caller ranging over Events() terminate
// cleanly once Unsubscribe kills this subscriber's tomb.
func (sub *subscriber) pump() {
	defer close(sub.out)
	for {
		select {
		case <-sub.t.Dying():
			return
		case <-sub.wake:
			for {
				sub.mu.Lock()
				if len(sub.queue) == 0 {
					lagged := sub.lagged
					sub.lagged = 0
					sub.mu.Unlock()
					if lagged > 0 {
						select {
						case sub.out <- Event{Kind: KindLagged, Lagged: lagged}:
						case <-sub.t.Dying():
							return
						}
					}
					break
				}
				ev := sub.queue[0]
				sub.queue = sub.queue[1:]
				sub.mu.Unlock()

				select {
				case sub.out <- ev:
				case <-sub.t.Dying():
					return
				}
			}
		}
	}
}
