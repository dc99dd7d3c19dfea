package tradelog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
	"fenrir/internal/eventbus"
)

func TestWriter_AppendsOneJSONLinePerTrade(t *testing.T) {
	bus := eventbus.New()
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	w := New(bus, Config{Path: path})
	go w.Run()

	trade := common.Trade{
		TradeID:      1,
		Symbol:       "BTC-USD",
		Price:        decimal.RequireFromString("100.00"),
		Quantity:     decimal.RequireFromString("1"),
		MakerOrderID: uuid.New(),
		TakerOrderID: uuid.New(),
		MakerSide:    common.Sell,
		MakerFee:     decimal.RequireFromString("0.01"),
		TakerFee:     decimal.RequireFromString("0.02"),
		Timestamp:    time.Now(),
	}
	bus.PublishTrade(trade)

	require.NoError(t, waitForFileLine(path, time.Second))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec tradeRecord
	line := firstLine(t, raw)
	require.NoError(t, json.Unmarshal(line, &rec))
	assert.EqualValues(t, 1, rec.TradeID)
	assert.Equal(t, "BTC-USD", rec.Symbol)
	assert.Equal(t, "100", rec.Price)
	assert.Equal(t, "sell", rec.MakerSide)
}

func TestWriter_IgnoresNonTradeEvents(t *testing.T) {
	bus := eventbus.New()
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	w := New(bus, Config{Path: path})
	go w.Run()

	bus.PublishBBO(common.BBO{Symbol: "BTC-USD"})
	bus.PublishDepth(common.BookDelta{Symbol: "BTC-USD"})
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, raw, "no trade event means no log line")
}

func waitForFileLine(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return os.ErrNotExist
}

func firstLine(t *testing.T, raw []byte) []byte {
	t.Helper()
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	require.True(t, scanner.Scan())
	return scanner.Bytes()
}
