package net

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fenrir/internal/common"
	"fenrir/internal/eventbus"
)

func TestNewOrder_RoundTrip(t *testing.T) {
	req := NewOrderRequest{
		Symbol:     "BTC-USD",
		Side:       common.Buy,
		Kind:       common.StopLimit,
		Quantity:   decimal.RequireFromString("1.5"),
		HasLimit:   true,
		LimitPrice: decimal.RequireFromString("100.25"),
		HasStop:    true,
		StopPrice:  decimal.RequireFromString("99.00"),
		Owner:      "alice",
	}
	frame := EncodeNewOrder(req)

	parsed, err := ParseMessage(frame)
	require.NoError(t, err)
	require.Equal(t, NewOrder, parsed.Type)
	assert.Equal(t, req.Symbol, parsed.NewOrder.Symbol)
	assert.Equal(t, req.Side, parsed.NewOrder.Side)
	assert.Equal(t, req.Kind, parsed.NewOrder.Kind)
	assert.True(t, req.Quantity.Equal(parsed.NewOrder.Quantity))
	assert.True(t, parsed.NewOrder.HasLimit)
	assert.True(t, req.LimitPrice.Equal(parsed.NewOrder.LimitPrice))
	assert.True(t, parsed.NewOrder.HasStop)
	assert.True(t, req.StopPrice.Equal(parsed.NewOrder.StopPrice))
	assert.Equal(t, req.Owner, parsed.NewOrder.Owner)
}

func TestNewOrder_RoundTrip_NoLimitOrStop(t *testing.T) {
	req := NewOrderRequest{
		Symbol:   "BTC-USD",
		Side:     common.Sell,
		Kind:     common.Market,
		Quantity: decimal.RequireFromString("2"),
		Owner:    "bob",
	}
	frame := EncodeNewOrder(req)

	parsed, err := ParseMessage(frame)
	require.NoError(t, err)
	assert.False(t, parsed.NewOrder.HasLimit)
	assert.False(t, parsed.NewOrder.HasStop)
}

func TestCancelOrder_RoundTrip(t *testing.T) {
	id := uuid.New()
	frame := EncodeCancelOrder("ETH-USD", id)

	parsed, err := ParseMessage(frame)
	require.NoError(t, err)
	require.Equal(t, CancelOrder, parsed.Type)
	assert.EqualValues(t, "ETH-USD", parsed.CancelOrder.Symbol)
	assert.Equal(t, id, parsed.CancelOrder.OrderID)
}

func TestGetDepth_RoundTrip(t *testing.T) {
	frame := EncodeGetDepth("BTC-USD", 25)

	parsed, err := ParseMessage(frame)
	require.NoError(t, err)
	require.Equal(t, GetDepth, parsed.Type)
	assert.EqualValues(t, "BTC-USD", parsed.SymbolQuery.Symbol)
	assert.Equal(t, 25, parsed.SymbolQuery.Depth)
}

func TestGetBBO_RoundTrip(t *testing.T) {
	frame := EncodeGetBBO("BTC-USD")

	parsed, err := ParseMessage(frame)
	require.NoError(t, err)
	require.Equal(t, GetBBO, parsed.Type)
	assert.EqualValues(t, "BTC-USD", parsed.SymbolQuery.Symbol)
}

func TestSubscribe_RoundTrip(t *testing.T) {
	frame := EncodeSubscribe([]eventbus.Topic{eventbus.Trades, eventbus.BBO}, "BTC-USD")

	parsed, err := ParseMessage(frame)
	require.NoError(t, err)
	require.Equal(t, Subscribe, parsed.Type)
	assert.ElementsMatch(t, []eventbus.Topic{eventbus.Trades, eventbus.BBO}, parsed.Subscribe.Topics)
	assert.EqualValues(t, "BTC-USD", parsed.Subscribe.Symbol)
}

func TestParseMessage_TooShortHeader(t *testing.T) {
	_, err := ParseMessage([]byte{0})
	assert.ErrorIs(t, err, ErrMessageTooShort)
}

func TestParseMessage_UnknownType(t *testing.T) {
	_, err := ParseMessage([]byte{0xFF, 0xFF})
	assert.ErrorIs(t, err, ErrInvalidMessageType)
}

func TestParseMessage_TruncatedNewOrderBody(t *testing.T) {
	frame := EncodeNewOrder(NewOrderRequest{Symbol: "BTC-USD", Kind: common.Market, Quantity: decimal.RequireFromString("1")})
	_, err := ParseMessage(frame[:len(frame)-2])
	assert.Error(t, err)
}

func TestEncodeExecutionReport_CarriesTrades(t *testing.T) {
	trade := common.Trade{
		TradeID:      7,
		Symbol:       "BTC-USD",
		Price:        decimal.RequireFromString("100.00"),
		Quantity:     decimal.RequireFromString("1"),
		MakerOrderID: uuid.New(),
		TakerOrderID: uuid.New(),
		MakerSide:    common.Sell,
		MakerFee:     decimal.RequireFromString("0.01"),
		TakerFee:     decimal.RequireFromString("0.02"),
	}
	frame := EncodeExecutionReport(trade.TakerOrderID, common.Filled, []common.Trade{trade})
	require.NotEmpty(t, frame)
	assert.EqualValues(t, ExecutionReport, binary.BigEndian.Uint16(frame[:2]))
}
