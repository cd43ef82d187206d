package analytics

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lpmaker-go/internal/market"
)

func TestNormalizeStandard(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{})
	out, err := n.Normalize([]float64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	var sum float64
	for _, v := range out {
		sum += v
	}
	require.InDelta(t, 0, sum, 1e-9)
	require.InDelta(t, -math.Sqrt2, out[0], 1e-9)
}

func TestNormalizeMinMaxAndRobust(t *testing.T) {
	out, err := NewNormalizer(NormalizerConfig{Scaling: "minmax"}).Normalize([]float64{2, 4, 6})
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0.5, 1}, out)

	out, err = NewNormalizer(NormalizerConfig{Scaling: "robust"}).Normalize([]float64{1, 2, 3, 4, 100})
	require.NoError(t, err)
	require.InDelta(t, 0, out[2], 1e-12)
}

func TestNormalizeDegenerate(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{})
	_, err := n.Normalize([]float64{3, 3, 3})
	require.ErrorIs(t, err, market.ErrTimeSeries)
	_, err = n.Normalize([]float64{1})
	require.ErrorIs(t, err, market.ErrTimeSeries)
}

func TestMedianAndMAD(t *testing.T) {
	require.InDelta(t, 3, median([]float64{5, 1, 3}), 1e-12)
	require.InDelta(t, 2.5, median([]float64{4, 1, 3, 2}), 1e-12)
	require.InDelta(t, 7, median([]float64{7}), 1e-12)
	require.True(t, math.IsNaN(median(nil)))
	// |x-3| = 2, 1, 0, 1, 97
	require.InDelta(t, 1, mad([]float64{1, 2, 3, 4, 100}, 3), 1e-12)
}

func TestDetectOutliers(t *testing.T) {
	xs := []float64{10, 10.1, 9.9, 10.2, 9.8, 10, 50, 10.1}
	require.Equal(t, []int{6}, NewNormalizer(NormalizerConfig{}).DetectOutliers(xs))
}

func TestDetectSeasonality(t *testing.T) {
	xs := make([]float64, 480)
	for i := range xs {
		xs[i] = math.Sin(2 * math.Pi * float64(i) / 24)
	}
	period, err := NewNormalizer(NormalizerConfig{}).DetectSeasonality(xs)
	require.NoError(t, err)
	require.InDelta(t, 24, period, 1)

	_, err = NewNormalizer(NormalizerConfig{}).DetectSeasonality(make([]float64, 50))
	require.ErrorIs(t, err, market.ErrTimeSeries)
}

func pricePath(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	px := 100.0
	for i := range out {
		px *= math.Exp(rng.NormFloat64() * 0.001)
		out[i] = px
	}
	return out
}

func TestVolatilityInsufficientData(t *testing.T) {
	v := NewVolatilityCalculator(VolatilityConfig{Windows: []int{20}, MinSamples: 10, MaxGapRatio: 0.2})
	_, err := v.Calculate(pricePath(5, 1), 20)
	require.ErrorIs(t, err, market.ErrInsufficientData)
}

func TestVolatilityTooManyGaps(t *testing.T) {
	v := NewVolatilityCalculator(VolatilityConfig{Windows: []int{20}, MinSamples: 10, MaxGapRatio: 0.1})
	prices := pricePath(20, 2)
	for _, i := range []int{3, 7, 11} {
		prices[i] = math.NaN()
	}
	_, err := v.Calculate(prices, 20)
	require.ErrorIs(t, err, market.ErrDataQuality)
	require.Contains(t, err.Error(), "too many gaps")
}

func TestVolatilityRobustToSingleOutlier(t *testing.T) {
	v := NewVolatilityCalculator(VolatilityConfig{Windows: []int{50}, MinSamples: 10, MaxGapRatio: 0.2})
	clean := pricePath(50, 3)
	dirty := append([]float64(nil), clean...)
	dirty[25] = clean[25] * 10

	a, err := v.Calculate(clean, 50)
	require.NoError(t, err)
	b, err := v.Calculate(dirty, 50)
	require.NoError(t, err)
	require.GreaterOrEqual(t, a, 0.0)
	require.Less(t, math.Abs(a-b), 0.1)
}

func TestVolatilityMetrics(t *testing.T) {
	v := NewVolatilityCalculator(VolatilityConfig{Windows: []int{60, 20}, MinSamples: 10, MaxGapRatio: 0.2})
	prices := pricePath(80, 4)
	first, err := v.Metrics(prices, market.VolatilityMetrics{})
	require.NoError(t, err)
	require.Equal(t, first.Current, first.MovingAvg)
	require.Greater(t, first.Forecast, 0.0)

	second, err := v.Metrics(prices, market.VolatilityMetrics{MovingAvg: 1})
	require.NoError(t, err)
	require.Greater(t, second.MovingAvg, first.MovingAvg)

	prev := market.VolatilityMetrics{Current: 0.5, MovingAvg: 0.5, Forecast: 0.5}
	got, err := v.Metrics(pricePath(3, 5), prev)
	require.ErrorIs(t, err, market.ErrInsufficientData)
	require.Equal(t, prev, got)
}

func TestOrderFlowImbalance(t *testing.T) {
	of := NewOrderFlow(OrderFlowConfig{Window: time.Minute, VolumeBuckets: 5})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []market.Trade{
		{Timestamp: now.Add(-3 * time.Second), Price: 100, Size: 100, Side: market.SideBuy},
		{Timestamp: now.Add(-2 * time.Second), Price: 100, Size: 50, Side: market.SideSell},
		{Timestamp: now.Add(-time.Second), Price: 100, Size: 75, Side: market.SideBuy},
	}
	imb := of.Imbalance(trades, now)
	require.Greater(t, imb, 0.0)
	require.LessOrEqual(t, imb, 1.0)
	require.InDelta(t, 125.0/225.0, imb, 1e-9)

	require.Equal(t, 0.0, of.Imbalance(nil, now))
	require.Equal(t, 0.0, of.Imbalance(trades, now.Add(time.Hour)))
}

func TestOrderFlowFilterAndAggregate(t *testing.T) {
	of := NewOrderFlow(OrderFlowConfig{MinTradeSize: 0.01, MaxTradeSize: 10, MicroTradeSize: 0.1, VolumeBuckets: 5})
	trades := []market.Trade{{Size: 0.001}, {Size: 0.05, Price: 1}, {Size: 5, Price: 1}, {Size: 50, Price: 1}, {Size: 0.05, Price: 1}}
	filtered := of.FilterTrades(trades)
	require.Len(t, filtered, 3)
	agg := of.AggregateTrades(filtered)
	require.Len(t, agg, 2)
	require.InDelta(t, 0.1, agg[0].Size, 1e-12)
}

func TestVolumeProfile(t *testing.T) {
	of := NewOrderFlow(OrderFlowConfig{VolumeBuckets: 4})
	trades := []market.Trade{
		{Price: 100, Size: 1, Side: market.SideBuy},
		{Price: 102, Size: 3, Side: market.SideSell},
		{Price: 104, Size: 2, Side: market.SideBuy},
	}
	p := of.VolumeProfile(trades)
	require.Len(t, p.Levels, 4)
	require.Equal(t, 6.0, p.TotalVolume)
	require.InDelta(t, (100+306+208)/6.0, p.VWAP, 1e-9)
	var sum float64
	for _, lvl := range p.Levels {
		sum += lvl.Volume
	}
	require.Equal(t, p.TotalVolume, sum)
	require.Equal(t, 2.0, p.Levels[3].Volume)

	require.Empty(t, of.VolumeProfile(nil).Levels)
}

func regime(rng *rand.Rand, n int, spread, spreadSD, vol, volSD, imb, imbSD float64) SpreadFeatures {
	f := SpreadFeatures{}
	for i := 0; i < n; i++ {
		f.Spreads = append(f.Spreads, spread+rng.NormFloat64()*spreadSD)
		f.Volatility = append(f.Volatility, vol+rng.NormFloat64()*volSD)
		f.Imbalance = append(f.Imbalance, imb+rng.NormFloat64()*imbSD)
	}
	return f
}

func TestSpreadPredictorRegimes(t *testing.T) {
	p := NewSpreadPredictor(SpreadConfig{LookbackPeriods: 10, UpdateFrequency: 30 * time.Second, MinSamples: 5})
	rng := rand.New(rand.NewSource(7))
	calm, err := p.Predict(regime(rng, 100, 0.01, 0.001, 0.05, 0.005, 0.1, 0.05))
	require.NoError(t, err)
	volatile, err := p.Predict(regime(rng, 100, 0.05, 0.01, 0.2, 0.02, 0.4, 0.2))
	require.NoError(t, err)

	require.Greater(t, volatile.Spread, calm.Spread)
	require.Less(t, volatile.Confidence, calm.Confidence)
	require.Greater(t, calm.Confidence, 0.0)
	require.LessOrEqual(t, calm.Confidence, 1.0)
}

func TestSpreadPredictorStableUnderRapidUpdates(t *testing.T) {
	p := NewSpreadPredictor(SpreadConfig{LookbackPeriods: 10, MinSamples: 5})
	rng := rand.New(rand.NewSource(11))
	f := regime(rng, 100, 0.01, 0.001, 0.05, 0.005, 0.1, 0.05)

	preds := make([]float64, 0, 100)
	for i := 0; i < 100; i++ {
		fc, err := p.Predict(f)
		require.NoError(t, err)
		preds = append(preds, fc.Spread)
		f.Spreads = append(f.Spreads[1:], f.Spreads[len(f.Spreads)-1]+rng.NormFloat64()*0.0005)
		f.Volatility = append(f.Volatility[1:], f.Volatility[len(f.Volatility)-1]+rng.NormFloat64()*0.001)
		f.Imbalance = append(f.Imbalance[1:], f.Imbalance[len(f.Imbalance)-1]+rng.NormFloat64()*0.001)
	}
	var mean, sq float64
	for _, v := range preds {
		mean += v
	}
	mean /= float64(len(preds))
	for _, v := range preds {
		sq += (v - mean) * (v - mean)
	}
	require.Less(t, math.Sqrt(sq/float64(len(preds))), 0.01)
}

func TestSpreadPredictorInsufficient(t *testing.T) {
	p := NewSpreadPredictor(SpreadConfig{LookbackPeriods: 10, MinSamples: 5})
	_, err := p.Predict(SpreadFeatures{Spreads: []float64{0.01, 0.02}, Volatility: []float64{0.1, 0.1}, Imbalance: []float64{0, 0}})
	require.ErrorIs(t, err, market.ErrInsufficientData)
}

func TestSpreadSmooth(t *testing.T) {
	p := NewSpreadPredictor(SpreadConfig{UpdateFrequency: 30 * time.Second, MinSamples: 5})
	prev := SpreadForecast{Spread: 0.01, Confidence: 0.5}
	next := SpreadForecast{Spread: 0.03, Confidence: 0.7}
	got := p.Smooth(prev, next, 15*time.Second)
	require.InDelta(t, 0.02, got.Spread, 1e-12)
	require.Equal(t, next, p.Smooth(prev, next, time.Minute))
}

func TestExpectedProfitBoundaries(t *testing.T) {
	pc := NewProfitCalculator(ProfitConfig{SlippageModel: "linear", InventoryRiskFactor: 0.1})
	zeroSlippage := pc.ExpectedProfit(0.01, 1000, 0, 0.1)
	zeroRisk := pc.ExpectedProfit(0.01, 1000, 0.001, 0)
	require.Greater(t, zeroSlippage.Profit, zeroRisk.Profit)

	both := pc.ExpectedProfit(0.01, 1000, 0.001, 0.1)
	require.Greater(t, zeroSlippage.Profit, both.Profit)
	require.Greater(t, zeroRisk.Profit, both.Profit)
}

func TestRankPairsTies(t *testing.T) {
	pc := NewProfitCalculator(ProfitConfig{SlippageModel: "linear", InventoryRiskFactor: 0.1})
	ranked := pc.RankPairs([]Candidate{
		{Name: "C", PredictedSpread: 0.009, Size: 1000},
		{Name: "A", PredictedSpread: 0.01, Size: 1000},
		{Name: "B", PredictedSpread: 0.01, Size: 1000},
	})
	require.Len(t, ranked, 3)
	require.Equal(t, "A", ranked[0].Name)
	require.Equal(t, "B", ranked[1].Name)
	require.Equal(t, ranked[0].Profit, ranked[1].Profit)
	require.Greater(t, ranked[0].Profit, ranked[2].Profit)
	require.Equal(t, []int{1, 1, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
}
