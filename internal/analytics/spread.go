package analytics

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"lpmaker-go/internal/market"
)

// SpreadConfig tunes the spread regression.
type SpreadConfig struct {
	LookbackPeriods int           `yaml:"lookback_periods"`
	UpdateFrequency time.Duration `yaml:"update_frequency"`
	MinSamples      int           `yaml:"min_samples"`
	Ridge           float64       `yaml:"ridge"`
}

// DefaultSpreadConfig returns the predictor settings used when none are configured.
func DefaultSpreadConfig() SpreadConfig {
	return SpreadConfig{LookbackPeriods: 10, UpdateFrequency: 30 * time.Second, MinSamples: 5, Ridge: 1e-6}
}

// Validate checks lookback bounds.
func (c SpreadConfig) Validate() error {
	if c.MinSamples < 2 {
		return fmt.Errorf("spread: min_samples must be at least 2")
	}
	if c.LookbackPeriods > 0 && c.LookbackPeriods < c.MinSamples {
		return fmt.Errorf("spread: lookback_periods below min_samples")
	}
	if c.Ridge < 0 {
		return fmt.Errorf("spread: ridge must be non-negative")
	}
	return nil
}

// SpreadFeatures are aligned historical series; the last element of each is the latest observation.
type SpreadFeatures struct {
	Spreads    []float64
	Volatility []float64
	Imbalance  []float64
}

// SpreadForecast is a predicted fair spread with a confidence in (0, 1].
type SpreadForecast struct {
	Spread     float64
	Confidence float64
}

// SpreadPredictor regresses spread on volatility and absolute imbalance over a lookback window.
type SpreadPredictor struct {
	cfg SpreadConfig
}

// NewSpreadPredictor builds a predictor, replacing missing knobs with defaults.
func NewSpreadPredictor(cfg SpreadConfig) *SpreadPredictor {
	def := DefaultSpreadConfig()
	if cfg.MinSamples < 2 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.Ridge <= 0 {
		cfg.Ridge = def.Ridge
	}
	return &SpreadPredictor{cfg: cfg}
}

// Predict fits the regression on the lookback window and evaluates it at the latest features.
func (p *SpreadPredictor) Predict(f SpreadFeatures) (SpreadForecast, error) {
	n := min(len(f.Spreads), len(f.Volatility), len(f.Imbalance))
	if p.cfg.LookbackPeriods > 0 && n > p.cfg.LookbackPeriods {
		n = p.cfg.LookbackPeriods
	}
	if n < p.cfg.MinSamples {
		return SpreadForecast{}, fmt.Errorf("%w: %d aligned samples, need %d", market.ErrInsufficientData, n, p.cfg.MinSamples)
	}
	y := tail(f.Spreads, n)
	vol := tail(f.Volatility, n)
	imb := make([]float64, n)
	for i, v := range tail(f.Imbalance, n) {
		imb[i] = math.Abs(v)
	}
	if hasNonFinite(y) || hasNonFinite(vol) || hasNonFinite(imb) {
		return SpreadForecast{}, fmt.Errorf("%w: non-finite spread features", market.ErrDataQuality)
	}

	yMean := stat.Mean(y, nil)
	volMean, volStd := stat.MeanStdDev(vol, nil)
	imbMean, imbStd := stat.MeanStdDev(imb, nil)

	// centred design: intercept is the spread mean, slopes come from the ridge solve
	x := mat.NewDense(n, 2, nil)
	yc := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		x.Set(i, 0, vol[i]-volMean)
		x.Set(i, 1, imb[i]-imbMean)
		yc.SetVec(i, y[i]-yMean)
	}
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j := 0; j < 2; j++ {
		xtx.Set(j, j, xtx.At(j, j)+p.cfg.Ridge)
	}
	var xty, beta mat.VecDense
	xty.MulVec(x.T(), yc)
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		beta = *mat.NewVecDense(2, nil)
	}

	b0, b1 := beta.AtVec(0), beta.AtVec(1)
	predict := func(i int) float64 {
		return yMean + b0*(vol[i]-volMean) + b1*(imb[i]-imbMean)
	}
	var sse float64
	for i := 0; i < n; i++ {
		r := y[i] - predict(i)
		sse += r * r
	}
	residualCV := 0.0
	if yMean > 0 {
		residualCV = math.Sqrt(sse/float64(n)) / yMean
	}

	spread := math.Max(predict(n-1), 0)
	dispersion := volMean + volStd + imbStd
	confidence := 1 / (1 + 5*dispersion + residualCV)
	return SpreadForecast{Spread: spread, Confidence: clamp(confidence, math.SmallestNonzeroFloat64, 1)}, nil
}

// Smooth blends consecutive forecasts when they arrive faster than UpdateFrequency.
func (p *SpreadPredictor) Smooth(prev, next SpreadForecast, elapsed time.Duration) SpreadForecast {
	if p.cfg.UpdateFrequency <= 0 || elapsed >= p.cfg.UpdateFrequency || prev == (SpreadForecast{}) {
		return next
	}
	alpha := clamp(float64(elapsed)/float64(p.cfg.UpdateFrequency), 0, 1)
	return SpreadForecast{
		Spread:     prev.Spread + alpha*(next.Spread-prev.Spread),
		Confidence: prev.Confidence + alpha*(next.Confidence-prev.Confidence),
	}
}

func tail(xs []float64, n int) []float64 {
	return xs[len(xs)-n:]
}
