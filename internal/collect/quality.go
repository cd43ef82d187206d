package collect

import (
	"fmt"
	"math"

	"lpmaker-go/internal/market"
)

// QualityConfig tunes cross-cutting data-quality checks.
type QualityConfig struct {
	MaxSpreadRatio float64 `yaml:"max_spread_ratio"`
	MaxPriceChange float64 `yaml:"max_price_change"`
	MinQuoteCount  int     `yaml:"min_quote_count"`
}

// DefaultQualityConfig returns the quality settings used when none are configured.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{MaxSpreadRatio: 0.02, MaxPriceChange: 0.1, MinQuoteCount: 10}
}

// Validate requires positive ratios.
func (c QualityConfig) Validate() error {
	if c.MaxSpreadRatio <= 0 || c.MaxPriceChange <= 0 {
		return fmt.Errorf("quality: ratios must be positive")
	}
	if c.MinQuoteCount < 0 {
		return fmt.Errorf("quality: min_quote_count must be non-negative")
	}
	return nil
}

// QualityChecker flags suspicious spreads and price jumps.
type QualityChecker struct {
	cfg QualityConfig
	options
}

// NewQualityChecker builds a checker, replacing non-positive ratios with defaults.
func NewQualityChecker(cfg QualityConfig, opts ...Option) *QualityChecker {
	def := DefaultQualityConfig()
	if cfg.MaxSpreadRatio <= 0 {
		cfg.MaxSpreadRatio = def.MaxSpreadRatio
	}
	if cfg.MaxPriceChange <= 0 {
		cfg.MaxPriceChange = def.MaxPriceChange
	}
	return &QualityChecker{cfg: cfg, options: buildOptions(opts)}
}

// CheckSpreads returns one flag per quote, true when (ask-bid)/mid exceeds MaxSpreadRatio.
func (c *QualityChecker) CheckSpreads(quotes []market.Quote) []bool {
	flags := make([]bool, len(quotes))
	for i, q := range quotes {
		mid := q.Mid()
		if mid <= 0 {
			flags[i] = true
			continue
		}
		flags[i] = q.Spread()/mid > c.cfg.MaxSpreadRatio
	}
	return flags
}

// DetectPriceJumps returns indices whose change against the previous price exceeds MaxPriceChange.
// The move back from a spike is not reported when it lands within MaxPriceChange of the pre-spike
// price, so a spike yields one index and a level shift yields one index.
func (c *QualityChecker) DetectPriceJumps(prices []float64) []int {
	jumps := []int{}
	prev, ref := math.NaN(), math.NaN()
	prevFlagged := false
	for i, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			continue
		}
		if math.IsNaN(prev) {
			prev = p
			continue
		}
		flagged := false
		if math.Abs(p-prev)/prev > c.cfg.MaxPriceChange {
			reverted := prevFlagged && math.Abs(p-ref)/ref <= c.cfg.MaxPriceChange
			if !reverted {
				jumps = append(jumps, i)
				flagged = true
				ref = prev
			}
		}
		prev, prevFlagged = p, flagged
	}
	return jumps
}

// Report summarizes a processed quote series. It fails with ErrInsufficientData when fewer than
// MinQuoteCount quotes are usable; the report is still returned for logging.
func (c *QualityChecker) Report(quotes []market.Quote) (market.DataQualityReport, error) {
	report := market.DataQualityReport{
		SuspiciousSpreads: c.CheckSpreads(quotes),
		PriceJumps:        c.DetectPriceJumps(market.Mids(quotes)),
	}
	for _, q := range quotes {
		if q.Stale {
			report.StaleCount++
			continue
		}
		if q.Valid() {
			report.UsableCount++
		}
	}
	if n := report.SuspiciousCount(); n > 0 {
		c.log.Warn().Int("suspicious", n).Float64("max_spread_ratio", c.cfg.MaxSpreadRatio).Msg("suspicious spreads detected")
	}
	if len(report.PriceJumps) > 0 {
		c.log.Warn().Ints("indices", report.PriceJumps).Msg("price jumps detected")
	}
	report.Sufficient = report.UsableCount >= c.cfg.MinQuoteCount
	if !report.Sufficient {
		return report, fmt.Errorf("%w: %d usable quotes, need %d", market.ErrInsufficientData, report.UsableCount, c.cfg.MinQuoteCount)
	}
	return report, nil
}
