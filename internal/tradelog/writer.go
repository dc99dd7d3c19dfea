// Package tradelog subscribes to the engine's Trades topic and appends
// one JSON line per trade to a rotating log file, per SPEC_FULL.md §6's
// "the log writer is a subscriber to the trades topic" design note.
//
// Grounded on gopkg.in/natefinch/lumberjack.v2, seen in the retrieved
// corpus's manifests for exactly this long-running append-only log
// role; no teacher file does durable logging of any kind, so the
// rotation policy (size-based, a handful of backups) follows
// lumberjack's own defaults-oriented API rather than a bespoke one.
package tradelog

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"fenrir/internal/common"
	"fenrir/internal/eventbus"
)

// Config controls the rotating log file's size and retention.
type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (c Config) withDefaults() Config {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 100
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 10
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 30
	}
	return c
}

// tradeRecord is the JSON-line shape written to disk: string-encoded
// decimals, same reasoning as persistence.orderRecord.
type tradeRecord struct {
	TradeID      uint64 `json:"trade_id"`
	Symbol       string `json:"symbol"`
	Price        string `json:"price"`
	Quantity     string `json:"quantity"`
	MakerOrderID string `json:"maker_order_id"`
	TakerOrderID string `json:"taker_order_id"`
	MakerSide    string `json:"maker_side"`
	MakerFee     string `json:"maker_fee"`
	TakerFee     string `json:"taker_fee"`
	TimestampNs  int64  `json:"timestamp_unix_ns"`
}

// Writer drains a Trades-topic subscription to a rotating file. Call
// Run in its own goroutine; it returns when the subscription's event
// channel closes (i.e. after Close unsubscribes it).
type Writer struct {
	sub *eventbus.Subscription
	out *lumberjack.Logger
}

// New sets up the rotating log file at cfg.Path (opened, and created if
// needed, on the first write) and subscribes to the Trades topic for
// every symbol.
func New(bus *eventbus.Bus, cfg Config) *Writer {
	cfg = cfg.withDefaults()
	return &Writer{
		sub: bus.Subscribe([]eventbus.Topic{eventbus.Trades}, "", eventbus.DefaultBufferSize),
		out: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}
}

// Run drains trade events until the subscription is closed.
func (w *Writer) Run() {
	for ev := range w.sub.Events() {
		if ev.Kind != eventbus.KindTrade {
			continue
		}
		if err := w.writeLine(ev.Trade); err != nil {
			log.Error().Err(err).Uint64("trade_id", ev.Trade.TradeID).Msg("failed writing trade log line")
		}
	}
}

func (w *Writer) writeLine(t common.Trade) error {
	rec := tradeRecord{
		TradeID:      t.TradeID,
		Symbol:       string(t.Symbol),
		Price:        t.Price.String(),
		Quantity:     t.Quantity.String(),
		MakerOrderID: t.MakerOrderID.String(),
		TakerOrderID: t.TakerOrderID.String(),
		MakerSide:    t.MakerSide.String(),
		MakerFee:     t.MakerFee.String(),
		TakerFee:     t.TakerFee.String(),
		TimestampNs:  t.Timestamp.UnixNano(),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling trade record: %w", err)
	}
	line = append(line, '\n')
	_, err = w.out.Write(line)
	return err
}

// Close unsubscribes from the bus (causing Run to return) and closes
// the underlying log file.
func (w *Writer) Close() error {
	w.sub.Unsubscribe()
	return w.out.Close()
}
