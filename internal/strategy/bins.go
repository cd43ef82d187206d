// Package strategy turns analytics into liquidity placement and position lifecycle decisions.
package strategy

import (
	"fmt"
	"math"

	"lpmaker-go/internal/market"
)

// Exit reasons reported by the bin manager and position manager.
const (
	ReasonNone             = ""
	ReasonPriceOutOfRange  = "price_out_of_range"
	ReasonSpreadCompressed = "spread_compressed"
)

// BinConfig tunes liquidity range placement. Widths are fractions of the center price.
type BinConfig struct {
	MinBinWidth          float64 `yaml:"min_bin_width"`
	MaxBinWidth          float64 `yaml:"max_bin_width"`
	VolatilityMultiplier float64 `yaml:"volatility_multiplier"`
	BinStep              float64 `yaml:"bin_step"`
	SpreadCompression    float64 `yaml:"spread_compression"`
}

// DefaultBinConfig returns the placement settings used when none are configured.
func DefaultBinConfig() BinConfig {
	return BinConfig{MinBinWidth: 0.001, MaxBinWidth: 0.1, VolatilityMultiplier: 2, BinStep: 0.001, SpreadCompression: 0.75}
}

// Validate checks width ordering and step granularity.
func (c BinConfig) Validate() error {
	if c.MinBinWidth <= 0 || c.MaxBinWidth < c.MinBinWidth {
		return fmt.Errorf("bins: need 0 < min_bin_width <= max_bin_width")
	}
	if c.BinStep <= 0 || c.BinStep > c.MaxBinWidth {
		return fmt.Errorf("bins: bin_step must be within (0, max_bin_width]")
	}
	if c.VolatilityMultiplier <= 0 {
		return fmt.Errorf("bins: volatility_multiplier must be positive")
	}
	if c.SpreadCompression <= 0 || c.SpreadCompression > 1 {
		return fmt.Errorf("bins: spread_compression must be within (0,1]")
	}
	return nil
}

// BinManager maps volatility and predicted spread into a liquidity range.
type BinManager struct {
	cfg BinConfig
}

// NewBinManager builds a bin manager, replacing non-positive knobs with defaults.
func NewBinManager(cfg BinConfig) *BinManager {
	def := DefaultBinConfig()
	if cfg.MinBinWidth <= 0 {
		cfg.MinBinWidth = def.MinBinWidth
	}
	if cfg.MaxBinWidth < cfg.MinBinWidth {
		cfg.MaxBinWidth = math.Max(def.MaxBinWidth, cfg.MinBinWidth)
	}
	if cfg.VolatilityMultiplier <= 0 {
		cfg.VolatilityMultiplier = def.VolatilityMultiplier
	}
	if cfg.BinStep <= 0 {
		cfg.BinStep = def.BinStep
	}
	if cfg.SpreadCompression <= 0 || cfg.SpreadCompression > 1 {
		cfg.SpreadCompression = def.SpreadCompression
	}
	return &BinManager{cfg: cfg}
}

// Config returns the effective configuration.
func (b *BinManager) Config() BinConfig { return b.cfg }

// CalculateBinRange sizes a range around mid. Width grows strictly with blended current and
// forecast volatility, saturates toward MaxBinWidth, and snaps to whole bins.
func (b *BinManager) CalculateBinRange(mid float64, vol market.VolatilityMetrics, predictedSpread float64) (market.BinRange, error) {
	if mid <= 0 || math.IsNaN(mid) || math.IsInf(mid, 0) {
		return market.BinRange{}, fmt.Errorf("%w: invalid mid price %v", market.ErrDataQuality, mid)
	}
	effVol := 0.5*math.Max(vol.Current, 0) + 0.5*math.Max(vol.Forecast, 0)
	x := b.cfg.VolatilityMultiplier*effVol + math.Max(predictedSpread, 0)
	raw := b.cfg.MinBinWidth + (b.cfg.MaxBinWidth-b.cfg.MinBinWidth)*math.Tanh(x)

	count := int(math.Ceil(raw/b.cfg.BinStep - 1e-9))
	maxCount := int(math.Floor(b.cfg.MaxBinWidth/b.cfg.BinStep + 1e-9))
	if count > maxCount {
		count = maxCount
	}
	if count < 1 {
		count = 1
	}
	return market.BinRange{CenterPrice: mid, Width: float64(count) * b.cfg.BinStep, BinCount: count}, nil
}

// ExitReason reports why a range should be exited. Price leaving the range takes priority.
func (b *BinManager) ExitReason(r market.BinRange, price, realizedSpread, targetSpread float64) string {
	if !r.Contains(price) {
		return ReasonPriceOutOfRange
	}
	if targetSpread > 0 && realizedSpread < targetSpread*b.cfg.SpreadCompression {
		return ReasonSpreadCompressed
	}
	return ReasonNone
}

// ShouldExit reports whether either exit trigger fired.
func (b *BinManager) ShouldExit(r market.BinRange, price, realizedSpread, targetSpread float64) bool {
	return b.ExitReason(r, price, realizedSpread, targetSpread) != ReasonNone
}
