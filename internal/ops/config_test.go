package ops

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestDefaultStrategyConfigValid(t *testing.T) {
	require.NoError(t, DefaultStrategyConfig().Validate())
}

func TestStrategyConfigRoundTrip(t *testing.T) {
	cfg := DefaultStrategyConfig()
	cfg.BlackoutDays = []int64{20250604, 20251101}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var back StrategyConfig
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, cfg, back)
	assert.NoError(t, back.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultStrategyConfig()
	cfg.VolumeSpikeSigma = 0.5
	cfg.MaxQty = 5 // below probe + scale
	cfg.MarketOpen = "16:00"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volumeSpikeSigma")
	assert.Contains(t, err.Error(), "maxQty")
	assert.Contains(t, err.Error(), "marketOpen must be before marketClose")
}

func TestTradingWindowFilters(t *testing.T) {
	cfg := DefaultStrategyConfig()
	open, closeMin, err := cfg.TradingWindow()
	require.NoError(t, err)
	// warmup 09:30 + first hour filter, close 15:30 - last hour filter
	assert.Equal(t, 10*60+30, open)
	assert.Equal(t, 14*60+30, closeMin)
}

func TestLoadResolvesComponents(t *testing.T) {
	raw := `{
		"registry": {
			"underlyings": [{"name": "NIFTY"}],
			"contracts": [
				{"name": "NIFTY25SEP24500CE", "underlying": "NIFTY", "expiry": 20250904, "security": "49081",
				 "scale": {"priceScale": 2, "quantityScale": 0, "notionalScale": 2, "feeScale": 2}}
			]
		},
		"strategy": {"probeQty": 1, "scaleQty": 4, "maxQty": 5, "timezone": "UTC"},
		"broker": {"mode": "sim"}
	}`
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)

	// overrides applied over defaults
	assert.Equal(t, schema.Quantity(1), loaded.Position.ProbeQty)
	assert.Equal(t, schema.Quantity(5), loaded.Position.MaxQty)
	assert.EqualValues(t, 3.0, loaded.Detector.VolumeSpikeSigma)
	assert.Equal(t, 240*time.Second, loaded.Detector.OIConfirmWindow)

	// expiry day joined the skip set
	_, skipped := loaded.Risk.Window.Skip[20250904]
	assert.True(t, skipped)

	// security mapping resolved by contract id
	id, ok := loaded.Registry.ContractIDByName("NIFTY25SEP24500CE")
	require.True(t, ok)
	assert.Equal(t, "49081", loaded.Securities[uint32(id)])

	// margin budget is 40% of available margin
	assert.Equal(t, schema.Notional(400_000_00), loaded.Risk.MarginBudget)
}

func TestLoadRejectsInvalidStrategy(t *testing.T) {
	raw := `{"strategy": {"probeQty": 0}}`
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probeQty")
}
