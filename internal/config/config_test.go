package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lpmaker-go/internal/maker"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "lpmaker-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.Exchange.Name != "dexscreener" || cfg.Exchange.AssumedSpreadBps != 25 {
		t.Fatalf("unexpected exchange: %+v", cfg.Exchange)
	}
	if cfg.Exchange.DexScreener.PollInterval != 750 {
		t.Fatalf("unexpected DexScreener.PollInterval: %d", cfg.Exchange.DexScreener.PollInterval)
	}
	if !cfg.Exchange.Discovery.Enabled || cfg.Exchange.Discovery.MaxPairsPerKeyword != 3 {
		t.Fatalf("unexpected discovery: %+v", cfg.Exchange.Discovery)
	}
	if len(cfg.Pairs) != 2 || cfg.Pairs[1].Mode != "left" {
		t.Fatalf("unexpected pairs: %+v", cfg.Pairs)
	}
	if !strings.HasPrefix(cfg.Symbols()[0], "SOL@solana/") {
		t.Fatalf("unexpected symbols: %v", cfg.Symbols())
	}
	if cfg.Trading.UpdateInterval != 15*time.Second || cfg.Trading.MaxPositions != 2 {
		t.Fatalf("unexpected trading: %+v", cfg.Trading)
	}
	if cfg.Components.Spread.LookbackPeriods != 12 || cfg.Components.Spread.MinSamples != 8 {
		t.Fatalf("unexpected spread config: %+v", cfg.Components.Spread)
	}
	if cfg.Components.Bins.VolatilityMultiplier != 2.5 || cfg.Components.Bins.MinBinWidth != 0.002 {
		t.Fatalf("unexpected bins config: %+v", cfg.Components.Bins)
	}
	if cfg.Risk.MaxPortfolioNotional != 600 {
		t.Fatalf("unexpected max portfolio notional: %.2f", cfg.Risk.MaxPortfolioNotional)
	}
	if cfg.Dex.Commitment != "processed" || cfg.Dex.BuilderBase != "https://builder.example.com" {
		t.Fatalf("unexpected dex: %+v", cfg.Dex)
	}
	if cfg.Paper.StartingCash != 5000 || cfg.Paper.PoolShare != 0.02 {
		t.Fatalf("unexpected paper: %+v", cfg.Paper)
	}
	if cfg.Redis.Addr != "localhost:6380" || cfg.Redis.KeyPrefix != "lpmaker-test" {
		t.Fatalf("unexpected redis: %+v", cfg.Redis)
	}
}

func TestLoadKeepsDefaultsForOmittedFields(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	defaults := maker.DefaultComponentConfig()
	require.Equal(t, defaults.Volatility, cfg.Components.Volatility)
	require.Equal(t, defaults.Bins.BinStep, cfg.Components.Bins.BinStep)
	require.Equal(t, 512, cfg.Exchange.MaxQuotes)
	require.Equal(t, "data/test-receipts.jsonl", cfg.Execution.ReceiptsPath)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.UpdateInterval = 45 * time.Second
	cfg.Pairs = []Pair{{Symbol: "JUP-USDC", Mode: "right"}}
	path := filepath.Join(t.TempDir(), "out.yaml")

	require.NoError(t, Save(path, &cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Trading, loaded.Trading)
	require.Equal(t, cfg.Pairs, loaded.Pairs)
	require.Equal(t, cfg.Components, loaded.Components)
	require.Error(t, Save(path, nil))
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("LPMAKER_LOG_LEVEL", "warn")
	t.Setenv("LPMAKER_BUILDER_URL", "http://localhost:8899")
	t.Setenv("LPMAKER_REDIS_ENABLED", "true")
	t.Setenv("LPMAKER_REDIS_ADDR", "redis:6379")

	cfg := Defaults()
	ApplyEnv(&cfg)
	require.Equal(t, "warn", cfg.App.LogLevel)
	require.Equal(t, "http://localhost:8899", cfg.Dex.BuilderBase)
	require.True(t, cfg.Redis.Enabled)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.Execution.Mode = "yolo"
	cfg.Pairs = []Pair{{Symbol: "A", Mode: "sideways"}, {Symbol: "A"}, {Symbol: " "}}
	cfg.Trading.MaxPositions = 0
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"unknown mode \"yolo\"", "unknown mode \"sideways\"", "duplicate symbol", "symbol required", "max_positions"} {
		require.Contains(t, err.Error(), want)
	}

	live := Defaults()
	live.Execution.Mode = ExecutionLive
	require.ErrorContains(t, live.Validate(), "builder_base")

	empty := Defaults()
	empty.Pairs = nil
	require.Error(t, empty.Validate())
	empty.Exchange.Discovery.Enabled = true
	require.NoError(t, empty.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("execution:\n  mode: nope\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "execution")
}
