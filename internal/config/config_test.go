package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
symbols:
  - symbol: BTC-USD
    tick_size: "0.01"
    price_scale: 2
    quantity_scale: 8
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultCascadeDepth, cfg.CascadeDepth)
	require.Len(t, cfg.Symbols, 1)
	assert.True(t, cfg.Symbols[0].MakerRate.Equal(decimal.RequireFromString("0.0001")))
	assert.True(t, cfg.Symbols[0].TakerRate.Equal(decimal.RequireFromString("0.0002")))
}

func TestLoad_HonorsExplicitCascadeDepth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	raw := `
cascade_depth: 8
symbols:
  - symbol: BTC-USD
    tick_size: "0.01"
    price_scale: 2
    quantity_scale: 8
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.CascadeDepth)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTickAligned(t *testing.T) {
	sc := SymbolConfig{TickSize: decimal.RequireFromString("0.01")}
	assert.True(t, sc.TickAligned(decimal.RequireFromString("100.00")))
	assert.True(t, sc.TickAligned(decimal.RequireFromString("100.01")))
	assert.False(t, sc.TickAligned(decimal.RequireFromString("100.005")))
}

func TestTickAligned_ZeroTickSizeAllowsAnyPrice(t *testing.T) {
	sc := SymbolConfig{}
	assert.True(t, sc.TickAligned(decimal.RequireFromString("123.456789")))
}

func TestLookup_UnknownSymbol(t *testing.T) {
	cfg := &Config{Symbols: []SymbolConfig{{Symbol: "BTC-USD"}}}
	_, ok := cfg.Lookup("ETH-USD")
	assert.False(t, ok)
}
