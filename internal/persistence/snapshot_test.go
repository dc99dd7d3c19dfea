package persistence

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
	"fenrir/internal/config"
	"fenrir/internal/engine"
	"fenrir/internal/eventbus"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig() *config.Config {
	return &config.Config{
		Symbols: []config.SymbolConfig{
			{Symbol: "BTC-USD", TickSize: d("0.01"), MakerRate: d("0.0001"), TakerRate: d("0.0002"), PriceScale: 2, QtyScale: 8},
		},
		CascadeDepth: 64,
	}
}

func limitReq(side common.Side, price, qty, owner string) engine.OrderRequest {
	return engine.OrderRequest{
		Symbol: "BTC-USD", Side: side, Kind: common.Limit,
		Quantity: d(qty), LimitPrice: d(price), HasLimit: true, Owner: owner,
	}
}

func TestStoreLoad_RoundTripsRestingOrdersAndFIFO(t *testing.T) {
	eng := engine.New(testConfig(), eventbus.New())
	first := eng.Submit(limitReq(common.Buy, "99.00", "1", "first"))
	second := eng.Submit(limitReq(common.Buy, "99.00", "2", "second"))
	require.True(t, first.Accepted)
	require.True(t, second.Accepted)
	require.True(t, eng.Submit(limitReq(common.Sell, "101.00", "3", "asker")).Accepted)
	require.True(t, eng.Submit(engine.OrderRequest{
		Symbol: "BTC-USD", Side: common.Sell, Kind: common.StopMarket,
		Quantity: d("1"), StopPrice: d("95.00"), HasStop: true, Owner: "stopper",
	}).Accepted)

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, Store(eng, testConfig(), path))

	fresh := engine.New(testConfig(), eventbus.New())
	require.NoError(t, Load(fresh, path))

	bbo, err := fresh.GetBBO("BTC-USD")
	require.NoError(t, err)
	assert.True(t, bbo.Bid.Equal(d("99.00")))
	assert.True(t, bbo.BidQty.Equal(d("3")))
	assert.True(t, bbo.Ask.Equal(d("101.00")))

	// FIFO within the restored 99.00 level: the earlier order fills first.
	taker := fresh.Submit(limitReq(common.Sell, "99.00", "1", "taker"))
	require.True(t, taker.Accepted)
	require.Len(t, taker.Trades, 1)
	assert.Equal(t, first.OrderID, taker.Trades[0].MakerOrderID, "Sequence is preserved across the snapshot round trip")
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	eng := engine.New(testConfig(), eventbus.New())
	err := Load(eng, filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.NoError(t, err)
}

func TestStore_OmitsSymbolsWithNothingResting(t *testing.T) {
	eng := engine.New(testConfig(), eventbus.New())
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, Store(eng, testConfig(), path))

	fresh := engine.New(testConfig(), eventbus.New())
	require.NoError(t, Load(fresh, path))

	bbo, err := fresh.GetBBO("BTC-USD")
	require.NoError(t, err)
	assert.False(t, bbo.HasBid)
	assert.False(t, bbo.HasAsk)
}

func TestExportSymbol_ArmedStopSurvivesRoundTrip(t *testing.T) {
	eng := engine.New(testConfig(), eventbus.New())
	require.True(t, eng.Submit(engine.OrderRequest{
		Symbol: "BTC-USD", Side: common.Sell, Kind: common.StopMarket,
		Quantity: d("1"), StopPrice: d("95.00"), HasStop: true, Owner: "stopper",
	}).Accepted)

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, Store(eng, testConfig(), path))

	fresh := engine.New(testConfig(), eventbus.New())
	require.NoError(t, Load(fresh, path))

	_, _, armed, err := fresh.ExportSymbol("BTC-USD")
	require.NoError(t, err)
	require.Len(t, armed, 1)
	assert.Equal(t, common.Armed, armed[0].Status)
}
