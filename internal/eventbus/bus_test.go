package eventbus

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "channel closed before an event arrived")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("expected no event, got %+v", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishTrade_DeliversToMatchingSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe([]Topic{Trades}, "BTC-USD", 8)
	defer sub.Unsubscribe()

	b.PublishTrade(common.Trade{Symbol: "BTC-USD", TradeID: 1})

	ev := recv(t, sub)
	assert.Equal(t, KindTrade, ev.Kind)
	assert.EqualValues(t, 1, ev.Trade.TradeID)
}

func TestPublishTrade_FiltersBySymbol(t *testing.T) {
	b := New()
	sub := b.Subscribe([]Topic{Trades}, "BTC-USD", 8)
	defer sub.Unsubscribe()

	b.PublishTrade(common.Trade{Symbol: "ETH-USD", TradeID: 1})

	assertNoEvent(t, sub)
}

func TestPublishTrade_FiltersByTopic(t *testing.T) {
	b := New()
	sub := b.Subscribe([]Topic{Depth}, "BTC-USD", 8)
	defer sub.Unsubscribe()

	b.PublishTrade(common.Trade{Symbol: "BTC-USD", TradeID: 1})

	assertNoEvent(t, sub)
}

func TestSubscribe_EmptySymbolMeansEverySymbol(t *testing.T) {
	b := New()
	sub := b.Subscribe([]Topic{Trades}, "", 8)
	defer sub.Unsubscribe()

	b.PublishTrade(common.Trade{Symbol: "ETH-USD", TradeID: 1})

	ev := recv(t, sub)
	assert.EqualValues(t, "ETH-USD", ev.Symbol)
}

func TestPublishDepth_CoalescesUnderPressureWithoutReordering(t *testing.T) {
	b := New()
	sub := b.Subscribe([]Topic{Depth, Trades}, "BTC-USD", 16)
	defer sub.Unsubscribe()

	// Publish two depth deltas back to back before the pump can drain
	// either; the second should replace the first in the queue tail
	// rather than appending.
	b.PublishDepth(common.BookDelta{Symbol: "BTC-USD", Price: d("100"), NewAggregateQuantity: d("1")})
	b.PublishDepth(common.BookDelta{Symbol: "BTC-USD", Price: d("100"), NewAggregateQuantity: d("2")})
	b.PublishTrade(common.Trade{Symbol: "BTC-USD", TradeID: 1})

	first := recv(t, sub)
	assert.Equal(t, KindDepth, first.Kind)
	assert.True(t, first.Delta.NewAggregateQuantity.Equal(d("2")), "coalescing keeps only the latest depth delta")

	second := recv(t, sub)
	assert.Equal(t, KindTrade, second.Kind, "coalescing never reorders a depth event past a trade")
}

func TestEnqueue_DropOldestReportsLagged(t *testing.T) {
	b := New()
	sub := b.Subscribe([]Topic{Trades}, "BTC-USD", 2)
	defer sub.Unsubscribe()

	sub.sub.t.Kill(nil) // stop the pump so the queue actually backs up
	time.Sleep(10 * time.Millisecond)

	b.PublishTrade(common.Trade{Symbol: "BTC-USD", TradeID: 1})
	b.PublishTrade(common.Trade{Symbol: "BTC-USD", TradeID: 2})
	b.PublishTrade(common.Trade{Symbol: "BTC-USD", TradeID: 3})

	sub.sub.mu.Lock()
	lagged := sub.sub.lagged
	queueLen := len(sub.sub.queue)
	sub.sub.mu.Unlock()

	assert.Equal(t, 1, lagged, "the oldest event was dropped to keep the buffer bounded")
	assert.Equal(t, 2, queueLen)
}

func TestUnsubscribe_ClosesEventsChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe([]Topic{Trades}, "BTC-USD", 4)
	sub.Unsubscribe()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok, "Events() closes once Unsubscribe kills the pump")
	case <-time.After(time.Second):
		t.Fatal("Events() never closed after Unsubscribe")
	}
}
