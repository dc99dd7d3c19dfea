// Package config loads the per-symbol tick size and fee-rate overrides,
// plus the stop-cascade depth ceiling, from a YAML file. No teacher file
// does configuration loading at all (fenrir's cmd/main.go hardcodes
// "0.0.0.0"/9001); gopkg.in/yaml.v3 is already an indirect dependency of
// the teacher's go.mod and is the corpus's dominant config-file format,
// so it is promoted here rather than introducing a second format.
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"fenrir/internal/common"
)

// DefaultCascadeDepth is the stop-activation cascade ceiling used when a
// config file omits it, per spec.md §4.4.
const DefaultCascadeDepth = 64

// SymbolConfig describes the tick grid and fee overrides for one symbol.
type SymbolConfig struct {
	Symbol     common.Symbol   `yaml:"symbol"`
	TickSize   decimal.Decimal `yaml:"tick_size"`
	MakerRate  decimal.Decimal `yaml:"maker_rate,omitempty"`
	TakerRate  decimal.Decimal `yaml:"taker_rate,omitempty"`
	PriceScale int32           `yaml:"price_scale"`
	QtyScale   int32           `yaml:"quantity_scale"`
}

// Config is the full engine configuration: one entry per supported
// symbol, plus the global cascade depth ceiling.
type Config struct {
	Symbols      []SymbolConfig `yaml:"symbols"`
	CascadeDepth int            `yaml:"cascade_depth,omitempty"`
}

// Load reads and parses a YAML config file at path, applying defaults for
// any omitted fee rate or cascade depth.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CascadeDepth <= 0 {
		c.CascadeDepth = DefaultCascadeDepth
	}
	defaultMaker := decimal.RequireFromString("0.0001")
	defaultTaker := decimal.RequireFromString("0.0002")
	for i := range c.Symbols {
		s := &c.Symbols[i]
		if s.MakerRate.IsZero() {
			s.MakerRate = defaultMaker
		}
		if s.TakerRate.IsZero() {
			s.TakerRate = defaultTaker
		}
	}
}

// TickAligned reports whether price is an integer multiple of the
// symbol's tick size — the "tick grid" check from spec.md §4.3's
// rejection reasons.
func (s SymbolConfig) TickAligned(price decimal.Decimal) bool {
	if s.TickSize.IsZero() {
		return true
	}
	quotient := price.Div(s.TickSize)
	return quotient.Equal(quotient.Truncate(0))
}

// Lookup returns the config for symbol, or false if it is not configured.
func (c *Config) Lookup(symbol common.Symbol) (SymbolConfig, bool) {
	for _, s := range c.Symbols {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return SymbolConfig{}, false
}
