package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"lpmaker-go/internal/market"
)

// VolatilityConfig tunes realized-volatility estimation. Windows are counted in samples.
type VolatilityConfig struct {
	Windows        []int         `yaml:"windows"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	MinSamples     int           `yaml:"min_samples"`
	MaxGapRatio    float64       `yaml:"max_gap_ratio"`
	ClipMADs       float64       `yaml:"clip_mads"`
	EWMALambda     float64       `yaml:"ewma_lambda"`
}

// DefaultVolatilityConfig returns the volatility settings used when none are configured.
func DefaultVolatilityConfig() VolatilityConfig {
	return VolatilityConfig{
		Windows:        []int{20, 60},
		SampleInterval: 30 * time.Second,
		MinSamples:     10,
		MaxGapRatio:    0.2,
		ClipMADs:       3,
		EWMALambda:     0.94,
	}
}

// Validate checks window and ratio bounds.
func (c VolatilityConfig) Validate() error {
	if len(c.Windows) == 0 {
		return fmt.Errorf("volatility: at least one window required")
	}
	for _, w := range c.Windows {
		if w < 2 {
			return fmt.Errorf("volatility: window %d too small", w)
		}
	}
	if c.MinSamples < 2 {
		return fmt.Errorf("volatility: min_samples must be at least 2")
	}
	if c.MaxGapRatio < 0 || c.MaxGapRatio > 1 {
		return fmt.Errorf("volatility: max_gap_ratio must be within [0,1]")
	}
	if c.EWMALambda < 0 || c.EWMALambda >= 1 {
		return fmt.Errorf("volatility: ewma_lambda must be within [0,1)")
	}
	return nil
}

// VolatilityCalculator estimates outlier-robust realized volatility over sample windows.
type VolatilityCalculator struct {
	cfg VolatilityConfig
}

// NewVolatilityCalculator builds a calculator, replacing missing knobs with defaults.
func NewVolatilityCalculator(cfg VolatilityConfig) *VolatilityCalculator {
	def := DefaultVolatilityConfig()
	if len(cfg.Windows) == 0 {
		cfg.Windows = def.Windows
	}
	cfg.Windows = append([]int(nil), cfg.Windows...)
	sort.Ints(cfg.Windows)
	if cfg.MinSamples < 2 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.ClipMADs <= 0 {
		cfg.ClipMADs = def.ClipMADs
	}
	if cfg.EWMALambda <= 0 || cfg.EWMALambda >= 1 {
		cfg.EWMALambda = def.EWMALambda
	}
	return &VolatilityCalculator{cfg: cfg}
}

// Windows returns the configured windows, shortest first.
func (v *VolatilityCalculator) Windows() []int { return append([]int(nil), v.cfg.Windows...) }

// Calculate returns the standard deviation of winsorized log returns over the last window samples.
// Missing samples are NaN, infinite, or non-positive prices.
func (v *VolatilityCalculator) Calculate(prices []float64, window int) (float64, error) {
	if window > 0 && len(prices) > window {
		prices = prices[len(prices)-window:]
	}
	if len(prices) < v.cfg.MinSamples {
		return 0, fmt.Errorf("%w: %d samples in window, need %d", market.ErrInsufficientData, len(prices), v.cfg.MinSamples)
	}
	missing := 0
	for _, p := range prices {
		if !validPrice(p) {
			missing++
		}
	}
	if ratio := float64(missing) / float64(len(prices)); ratio > v.cfg.MaxGapRatio {
		return 0, fmt.Errorf("%w: too many gaps (%.2f > %.2f)", market.ErrDataQuality, ratio, v.cfg.MaxGapRatio)
	}
	if valid := len(prices) - missing; valid < v.cfg.MinSamples {
		return 0, fmt.Errorf("%w: %d valid samples, need %d", market.ErrInsufficientData, valid, v.cfg.MinSamples)
	}

	returns := make([]float64, 0, len(prices))
	for i := 1; i < len(prices); i++ {
		if validPrice(prices[i-1]) && validPrice(prices[i]) {
			returns = append(returns, math.Log(prices[i]/prices[i-1]))
		}
	}
	if len(returns) < 2 {
		return 0, fmt.Errorf("%w: %d returns in window", market.ErrInsufficientData, len(returns))
	}
	winsorize(returns, v.cfg.ClipMADs)
	sd := stat.StdDev(returns, nil)
	if math.IsNaN(sd) || sd < 0 {
		return 0, nil
	}
	return sd, nil
}

// Metrics computes current, moving-average, and forecast volatility for one cycle.
// prev carries the previous cycle's metrics; the caller commits the result only on success.
func (v *VolatilityCalculator) Metrics(prices []float64, prev market.VolatilityMetrics) (market.VolatilityMetrics, error) {
	current, err := v.Calculate(prices, v.cfg.Windows[0])
	if err != nil {
		return prev, err
	}
	long := current
	if len(v.cfg.Windows) > 1 {
		if lv, err := v.Calculate(prices, v.cfg.Windows[len(v.cfg.Windows)-1]); err == nil {
			long = lv
		}
	}
	lambda := v.cfg.EWMALambda
	avg := current
	if prev.MovingAvg > 0 {
		avg = lambda*prev.MovingAvg + (1-lambda)*current
	}
	forecast := math.Sqrt(lambda*long*long + (1-lambda)*current*current)
	return market.VolatilityMetrics{Current: current, MovingAvg: avg, Forecast: forecast}, nil
}

func winsorize(xs []float64, k float64) {
	med := median(xs)
	dev := mad(xs, med) * madScale
	if dev == 0 {
		return
	}
	lo, hi := med-k*dev, med+k*dev
	for i, x := range xs {
		xs[i] = clamp(x, lo, hi)
	}
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}
