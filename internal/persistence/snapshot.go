// Package persistence implements explicit snapshot export/import of
// engine state: every resting order and every ARMED stop order, per
// symbol. Snapshots are loaded once at startup and stored once at
// shutdown — there is no continuous write-ahead log — per the
// "explicit load/store call on the engine handle" design note.
//
// Grounded on no single teacher file (fenrir has no persistence layer
// at all); follows the teacher's plain-struct-plus-method style
// (internal/common's value types) rather than introducing a
// repository/DAO abstraction the corpus doesn't use anywhere.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fenrir/internal/common"
	"fenrir/internal/config"
	"fenrir/internal/engine"
)

// orderRecord is the JSON-serializable form of common.Order. A plain
// struct instead of marshaling common.Order directly keeps the wire
// format stable even if internal field layout changes; decimals are
// stored as their exact String() form and parsed back with
// decimal.NewFromString.
type orderRecord struct {
	OrderID           string          `json:"order_id"`
	Symbol            string          `json:"symbol"`
	Side              int             `json:"side"`
	Kind              int             `json:"kind"`
	LimitPrice        string          `json:"limit_price,omitempty"`
	HasLimitPrice     bool            `json:"has_limit_price"`
	StopPrice         string          `json:"stop_price,omitempty"`
	HasStopPrice      bool            `json:"has_stop_price"`
	QuantityOriginal  string          `json:"quantity_original"`
	QuantityRemaining string          `json:"quantity_remaining"`
	Sequence          uint64          `json:"sequence"`
	AcceptedAtUnixNs  int64           `json:"accepted_at_unix_ns"`
	Status            int             `json:"status"`
	Owner             string          `json:"owner"`
}

type symbolSnapshot struct {
	Symbol       string        `json:"symbol"`
	RestingBids  []orderRecord `json:"resting_bids"`
	RestingAsks  []orderRecord `json:"resting_asks"`
	ArmedStops   []orderRecord `json:"armed_stops"`
}

// Snapshot is the full engine-state export: one entry per symbol that
// had any resting or armed order at export time.
type Snapshot struct {
	Symbols []symbolSnapshot `json:"symbols"`
}

// Store exports every configured symbol's resting book and armed stops
// from eng and writes it to path as JSON.
func Store(eng *engine.Engine, cfg *config.Config, path string) error {
	snap := Snapshot{}
	for _, sc := range cfg.Symbols {
		bids, asks, armed, err := eng.ExportSymbol(sc.Symbol)
		if err != nil {
			return fmt.Errorf("exporting %s: %w", sc.Symbol, err)
		}
		if len(bids) == 0 && len(asks) == 0 && len(armed) == 0 {
			continue
		}
		snap.Symbols = append(snap.Symbols, symbolSnapshot{
			Symbol:      string(sc.Symbol),
			RestingBids: toRecords(bids),
			RestingAsks: toRecords(asks),
			ArmedStops:  toRecords(armed),
		})
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}
	return nil
}

// Load reads a snapshot from path and replays every order into eng in
// stored order — resting bids, then resting asks (best price first, FIFO
// within each level), then ARMED stops by Sequence — which preserves
// FIFO priority within each price level (Testable Property 9). A missing file is not an
// error: a fresh engine starts with an empty snapshot.
func Load(eng *engine.Engine, path string) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading snapshot file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("parsing snapshot: %w", err)
	}

	for _, sym := range snap.Symbols {
		orders := make([]orderRecord, 0, len(sym.RestingBids)+len(sym.RestingAsks)+len(sym.ArmedStops))
		orders = append(orders, sym.RestingBids...)
		orders = append(orders, sym.RestingAsks...)
		orders = append(orders, sym.ArmedStops...)

		restored := make([]common.Order, 0, len(orders))
		for _, r := range orders {
			o, err := fromRecord(r)
			if err != nil {
				return fmt.Errorf("restoring order in %s: %w", sym.Symbol, err)
			}
			restored = append(restored, o)
		}
		if err := eng.ImportSymbol(common.Symbol(sym.Symbol), restored); err != nil {
			return fmt.Errorf("importing %s: %w", sym.Symbol, err)
		}
	}
	return nil
}

func fromRecord(r orderRecord) (common.Order, error) {
	id, err := uuid.Parse(r.OrderID)
	if err != nil {
		return common.Order{}, fmt.Errorf("parsing order id %q: %w", r.OrderID, err)
	}
	o := common.Order{
		OrderID:           id,
		Symbol:            common.Symbol(r.Symbol),
		Side:              common.Side(r.Side),
		Kind:              common.OrderKind(r.Kind),
		HasLimitPrice:     r.HasLimitPrice,
		HasStopPrice:      r.HasStopPrice,
		Sequence:          r.Sequence,
		AcceptedAt:        time.Unix(0, r.AcceptedAtUnixNs),
		Status:            common.OrderStatus(r.Status),
		Owner:             r.Owner,
	}
	if o.QuantityOriginal, err = decimal.NewFromString(r.QuantityOriginal); err != nil {
		return common.Order{}, fmt.Errorf("parsing quantity_original: %w", err)
	}
	if o.QuantityRemaining, err = decimal.NewFromString(r.QuantityRemaining); err != nil {
		return common.Order{}, fmt.Errorf("parsing quantity_remaining: %w", err)
	}
	if r.HasLimitPrice {
		if o.LimitPrice, err = decimal.NewFromString(r.LimitPrice); err != nil {
			return common.Order{}, fmt.Errorf("parsing limit_price: %w", err)
		}
	}
	if r.HasStopPrice {
		if o.StopPrice, err = decimal.NewFromString(r.StopPrice); err != nil {
			return common.Order{}, fmt.Errorf("parsing stop_price: %w", err)
		}
	}
	return o, nil
}

func toRecords(orders []common.Order) []orderRecord {
	out := make([]orderRecord, 0, len(orders))
	for _, o := range orders {
		r := orderRecord{
			OrderID:           o.OrderID.String(),
			Symbol:            string(o.Symbol),
			Side:              int(o.Side),
			Kind:              int(o.Kind),
			HasLimitPrice:     o.HasLimitPrice,
			HasStopPrice:      o.HasStopPrice,
			QuantityOriginal:  o.QuantityOriginal.String(),
			QuantityRemaining: o.QuantityRemaining.String(),
			Sequence:          o.Sequence,
			AcceptedAtUnixNs:  o.AcceptedAt.UnixNano(),
			Status:            int(o.Status),
			Owner:             o.Owner,
		}
		if o.HasLimitPrice {
			r.LimitPrice = o.LimitPrice.String()
		}
		if o.HasStopPrice {
			r.StopPrice = o.StopPrice.String()
		}
		out = append(out, r)
	}
	return out
}
