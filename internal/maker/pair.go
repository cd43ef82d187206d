package maker

import (
	"errors"
	"fmt"
	"math"
	"time"

	"lpmaker-go/internal/analytics"
	"lpmaker-go/internal/market"
)

// pairState is the rolling state one pair carries between cycles. It is a value: evaluate works
// on a copy and the caller commits the result only when the whole pair cycle succeeds.
type pairState struct {
	vol        market.VolatilityMetrics
	spreads    []float64
	vols       []float64
	imbalances []float64
	forecast   analytics.SpreadForecast
	forecastAt time.Time
	watermark  time.Time
}

// evaluation is everything the decision phase needs to know about one pair this cycle.
type evaluation struct {
	pair           string
	price          float64
	realizedSpread float64
	vol            market.VolatilityMetrics
	forecast       analytics.SpreadForecast
	ready          bool
	imbalance      float64
	depthImbalance float64
	slippage       float64
	volume         float64
	report         market.DataQualityReport
}

func (e evaluation) inventoryRisk() float64 {
	return (math.Abs(e.imbalance) + math.Abs(e.depthImbalance)) / 2
}

// evaluate runs collectors, quality checks, and analytics for one pair. It never touches shared state.
func (m *MarketMaker) evaluate(snap market.Snapshot, state pairState, now time.Time) (evaluation, pairState, error) {
	c := m.comps
	ev := evaluation{pair: snap.Pair}
	log := m.log.With().Str("pair", snap.Pair).Logger()

	quotes, err := c.Quotes.ProcessQuotes(snap.Quotes)
	if err != nil {
		return ev, state, fmt.Errorf("quotes: %w", err)
	}
	report, err := c.Quality.Report(quotes)
	ev.report = report
	if err != nil {
		return ev, state, fmt.Errorf("quality: %w", err)
	}
	m.noteQuality(snap.Pair, report)

	fresh := make([]market.Quote, 0, len(quotes))
	for _, q := range quotes {
		if !q.Stale {
			fresh = append(fresh, q)
		}
	}
	last := fresh[len(fresh)-1]
	ev.realizedSpread = last.RelativeSpread()
	ev.price = snap.ActivePrice
	if ev.price <= 0 {
		ev.price = last.Mid()
	}

	mids := market.Mids(fresh)
	if outliers := c.Normalizer.DetectOutliers(mids); len(outliers) > 0 {
		m.warn(snap.Pair, "outlier").Ints("indices", outliers).Msg("mid price outliers detected")
	}
	if period, err := c.Normalizer.DetectSeasonality(mids); err == nil && period > 0 {
		log.Debug().Int("period", period).Msg("mid price seasonality")
	}

	vol, err := c.Volatility.Metrics(mids, state.vol)
	if err != nil {
		return ev, state, fmt.Errorf("volatility: %w", err)
	}
	ev.vol = vol

	if len(snap.Book.Bids) > 0 || len(snap.Book.Asks) > 0 {
		if err := c.Depth.ValidateBook(snap.Book); err != nil {
			m.warn(snap.Pair, "book").Err(err).Msg("ignoring order book")
		} else {
			ev.depthImbalance = c.Depth.DepthImbalance(snap.Book)
			ev.slippage = depthSlippage(c.Depth.Bids(snap.Book), c.Depth.Asks(snap.Book), m.cfg.PositionNotional, ev.realizedSpread)
		}
	} else {
		ev.slippage = ev.realizedSpread / 2
	}

	trades := c.Trades.ClassifyTrades(c.Trades.FilterTrades(snap.Trades))
	flow := c.OrderFlow.AggregateTrades(c.OrderFlow.FilterTrades(trades))
	ev.imbalance = c.OrderFlow.Imbalance(flow, now)
	if profile := c.OrderFlow.VolumeProfile(flow); profile.TotalVolume > 0 {
		log.Debug().Float64("vwap", profile.VWAP).Float64("volume", profile.TotalVolume).Msg("volume profile")
	}
	watermark := state.watermark
	for _, tr := range trades {
		if tr.Timestamp.After(state.watermark) {
			ev.volume += tr.Price * tr.Size
			if tr.Timestamp.After(watermark) {
				watermark = tr.Timestamp
			}
		}
	}

	next := pairState{
		vol:        vol,
		spreads:    appendWindow(state.spreads, ev.realizedSpread, m.cfg.HistoryLength),
		vols:       appendWindow(state.vols, vol.Current, m.cfg.HistoryLength),
		imbalances: appendWindow(state.imbalances, ev.imbalance, m.cfg.HistoryLength),
		forecast:   state.forecast,
		forecastAt: state.forecastAt,
		watermark:  watermark,
	}

	forecast, err := c.Spread.Predict(analytics.SpreadFeatures{
		Spreads:    next.spreads,
		Volatility: next.vols,
		Imbalance:  next.imbalances,
	})
	switch {
	case errors.Is(err, market.ErrInsufficientData):
		log.Debug().Int("samples", len(next.spreads)).Msg("spread model warming up")
	case err != nil:
		return ev, state, fmt.Errorf("spread: %w", err)
	default:
		elapsed := now.Sub(state.forecastAt)
		if state.forecastAt.IsZero() {
			elapsed = math.MaxInt64
		}
		next.forecast = c.Spread.Smooth(state.forecast, forecast, elapsed)
		next.forecastAt = now
		ev.forecast = next.forecast
		ev.ready = true
	}
	return ev, next, nil
}

// depthSlippage estimates the relative price impact of deploying notional against the visible book:
// half the spread scaled by the share of visible depth the deposit would consume.
func depthSlippage(bids, asks []market.Level, notional, spread float64) float64 {
	var depth float64
	for _, lvl := range bids {
		depth += lvl.Price * lvl.Size
	}
	for _, lvl := range asks {
		depth += lvl.Price * lvl.Size
	}
	if depth <= 0 {
		return spread / 2
	}
	return spread / 2 * math.Min(1, notional/depth)
}

// appendWindow returns a fresh slice holding the last limit values of xs plus v.
func appendWindow(xs []float64, v float64, limit int) []float64 {
	start := 0
	if limit > 0 && len(xs)+1 > limit {
		start = len(xs) + 1 - limit
	}
	out := make([]float64, 0, len(xs)-start+1)
	out = append(out, xs[start:]...)
	return append(out, v)
}
