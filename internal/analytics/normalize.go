// Package analytics derives statistical risk signals from cleaned market series.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"lpmaker-go/internal/market"
)

// Scaling selects the normalization transform.
type Scaling string

const (
	ScaleStandard Scaling = "standard"
	ScaleMinMax   Scaling = "minmax"
	ScaleRobust   Scaling = "robust"
)

// madScale converts a median absolute deviation into a normal-consistent sigma.
const madScale = 1.4826

// NormalizerConfig tunes time-series preprocessing.
type NormalizerConfig struct {
	WindowSize       int     `yaml:"window_size"`
	Scaling          string  `yaml:"scaling"`
	OutlierThreshold float64 `yaml:"outlier_threshold"`
	MaxPeriod        int     `yaml:"max_period"`
}

// DefaultNormalizerConfig returns the normalizer settings used when none are configured.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{WindowSize: 0, Scaling: string(ScaleStandard), OutlierThreshold: 3.5}
}

// Validate rejects unknown scalings.
func (c NormalizerConfig) Validate() error {
	switch Scaling(strings.ToLower(c.Scaling)) {
	case ScaleStandard, ScaleMinMax, ScaleRobust, "":
	default:
		return fmt.Errorf("normalizer: unknown scaling %q", c.Scaling)
	}
	if c.OutlierThreshold < 0 || c.WindowSize < 0 || c.MaxPeriod < 0 {
		return fmt.Errorf("normalizer: thresholds must be non-negative")
	}
	return nil
}

// Normalizer scales series, flags outliers, and estimates dominant periodicity.
type Normalizer struct {
	cfg     NormalizerConfig
	scaling Scaling
}

// NewNormalizer builds a normalizer; a zero outlier threshold falls back to 3.5.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	if cfg.OutlierThreshold <= 0 {
		cfg.OutlierThreshold = 3.5
	}
	scaling := Scaling(strings.ToLower(cfg.Scaling))
	if scaling == "" {
		scaling = ScaleStandard
	}
	return &Normalizer{cfg: cfg, scaling: scaling}
}

func (n *Normalizer) window(xs []float64) []float64 {
	if n.cfg.WindowSize > 0 && len(xs) > n.cfg.WindowSize {
		return xs[len(xs)-n.cfg.WindowSize:]
	}
	return xs
}

// Normalize returns a scaled copy of the most recent window of xs.
func (n *Normalizer) Normalize(xs []float64) ([]float64, error) {
	xs = n.window(xs)
	if len(xs) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 points, got %d", market.ErrTimeSeries, len(xs))
	}
	if hasNonFinite(xs) {
		return nil, fmt.Errorf("%w: non-finite input", market.ErrTimeSeries)
	}
	var center, scale float64
	switch n.scaling {
	case ScaleMinMax:
		center, scale = floats.Min(xs), floats.Max(xs)-floats.Min(xs)
	case ScaleRobust:
		center = median(xs)
		scale = mad(xs, center) * madScale
	default:
		center, scale = stat.PopMeanStdDev(xs, nil)
	}
	if scale <= 0 || math.IsNaN(scale) {
		return nil, fmt.Errorf("%w: zero dispersion", market.ErrTimeSeries)
	}
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = (x - center) / scale
	}
	return out, nil
}

// DetectOutliers returns indices whose modified z-score (median/MAD based) exceeds the configured threshold.
func (n *Normalizer) DetectOutliers(xs []float64) []int {
	out := []int{}
	if len(xs) < 3 {
		return out
	}
	med := median(xs)
	dev := mad(xs, med)
	if dev == 0 {
		for i, x := range xs {
			if x != med {
				out = append(out, i)
			}
		}
		return out
	}
	for i, x := range xs {
		if math.Abs(0.6745*(x-med)/dev) > n.cfg.OutlierThreshold {
			out = append(out, i)
		}
	}
	return out
}

// DetectSeasonality returns the lag of the highest autocorrelation peak.
// It fails with ErrTimeSeries when the series is too short or has no periodic structure.
func (n *Normalizer) DetectSeasonality(xs []float64) (int, error) {
	if len(xs) < 8 {
		return 0, fmt.Errorf("%w: need at least 8 points for seasonality, got %d", market.ErrTimeSeries, len(xs))
	}
	if hasNonFinite(xs) {
		return 0, fmt.Errorf("%w: non-finite input", market.ErrTimeSeries)
	}
	mean := stat.Mean(xs, nil)
	centered := make([]float64, len(xs))
	for i, x := range xs {
		centered[i] = x - mean
	}
	denom := floats.Dot(centered, centered)
	if denom == 0 {
		return 0, fmt.Errorf("%w: constant series", market.ErrTimeSeries)
	}
	maxLag := len(xs) / 2
	if n.cfg.MaxPeriod > 0 && n.cfg.MaxPeriod < maxLag {
		maxLag = n.cfg.MaxPeriod
	}
	acf := make([]float64, maxLag+1)
	for lag := 1; lag <= maxLag; lag++ {
		acf[lag] = floats.Dot(centered[:len(centered)-lag], centered[lag:]) / denom
	}
	best, bestVal := 0, 0.0
	for lag := 2; lag < maxLag; lag++ {
		if acf[lag] > acf[lag-1] && acf[lag] >= acf[lag+1] && acf[lag] > bestVal {
			best, bestVal = lag, acf[lag]
		}
	}
	if best == 0 || bestVal < 0.1 {
		return 0, fmt.Errorf("%w: no dominant period", market.ErrTimeSeries)
	}
	return best, nil
}

// median averages the two middle order statistics for even lengths.
func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	lower := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	if n%2 == 1 {
		return lower
	}
	upper := stat.Quantile((float64(n/2)+0.5)/float64(n), stat.Empirical, sorted, nil)
	return (lower + upper) / 2
}

func mad(xs []float64, center float64) float64 {
	dev := make([]float64, len(xs))
	for i, x := range xs {
		dev[i] = math.Abs(x - center)
	}
	return median(dev)
}

func hasNonFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
