package collect

import (
	"fmt"
	"math"
	"sort"
	"time"

	"lpmaker-go/internal/market"
)

// TradeConfig tunes trade filtering and aggregation.
type TradeConfig struct {
	MaxHistory     time.Duration `yaml:"max_history"`
	MinTradeSize   float64       `yaml:"min_trade_size"`
	MicroTradeSize float64       `yaml:"micro_trade_size"`
}

// DefaultTradeConfig returns the trade settings used when none are configured.
func DefaultTradeConfig() TradeConfig {
	return TradeConfig{MaxHistory: time.Hour, MinTradeSize: 0.01, MicroTradeSize: 0.1}
}

// Validate rejects negative thresholds.
func (c TradeConfig) Validate() error {
	if c.MaxHistory < 0 || c.MinTradeSize < 0 || c.MicroTradeSize < 0 {
		return fmt.Errorf("trades: thresholds must be non-negative")
	}
	return nil
}

// TradeBucket aggregates trades falling in one time window.
type TradeBucket struct {
	Start      time.Time
	Volume     float64
	VWAP       float64
	Count      int
	BuyVolume  float64
	SellVolume float64
	Trades     []market.Trade // micro trades merged
}

// TradeCollector filters, classifies, and aggregates raw trades.
type TradeCollector struct {
	cfg TradeConfig
	options
}

// NewTradeCollector builds a trade collector.
func NewTradeCollector(cfg TradeConfig, opts ...Option) *TradeCollector {
	if cfg.MicroTradeSize < 0 {
		cfg.MicroTradeSize = 0
	}
	return &TradeCollector{cfg: cfg, options: buildOptions(opts)}
}

// FilterTrades drops malformed trades, trades below MinTradeSize, and trades older than MaxHistory.
func (c *TradeCollector) FilterTrades(trades []market.Trade) []market.Trade {
	now := c.now()
	out := make([]market.Trade, 0, len(trades))
	for _, tr := range trades {
		if !usableTrade(tr) || tr.Size < c.cfg.MinTradeSize {
			continue
		}
		if c.cfg.MaxHistory > 0 && now.Sub(tr.Timestamp) > c.cfg.MaxHistory {
			continue
		}
		out = append(out, tr)
	}
	if dropped := len(trades) - len(out); dropped > 0 {
		c.log.Debug().Int("dropped", dropped).Int("kept", len(out)).Msg("filtered trades")
	}
	return out
}

// ClassifyTrades assigns the aggressor side from the quote at execution time.
// Trades without a bid/ask reference keep their reported side.
func (c *TradeCollector) ClassifyTrades(trades []market.Trade) []market.Trade {
	out := make([]market.Trade, len(trades))
	for i, tr := range trades {
		tr.Side = classify(tr)
		out[i] = tr
	}
	return out
}

func classify(tr market.Trade) int {
	switch {
	case tr.AskPrice > 0 && tr.Price >= tr.AskPrice:
		return market.SideBuy
	case tr.BidPrice > 0 && tr.Price <= tr.BidPrice:
		return market.SideSell
	case tr.AskPrice > 0 && tr.BidPrice > 0:
		mid := (tr.AskPrice + tr.BidPrice) / 2
		if tr.Price > mid {
			return market.SideBuy
		}
		if tr.Price < mid {
			return market.SideSell
		}
	}
	return tr.Side
}

// AggregateTrades groups trades into window-aligned buckets ordered by start time.
// A non-positive window puts every trade in a single bucket.
func (c *TradeCollector) AggregateTrades(trades []market.Trade, window time.Duration) []TradeBucket {
	if len(trades) == 0 {
		return nil
	}
	sorted := append([]market.Trade(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var buckets []TradeBucket
	var members [][]market.Trade
	for _, tr := range sorted {
		start := sorted[0].Timestamp
		if window > 0 {
			start = tr.Timestamp.Truncate(window)
		}
		if len(buckets) == 0 || !buckets[len(buckets)-1].Start.Equal(start) {
			buckets = append(buckets, TradeBucket{Start: start})
			members = append(members, nil)
		}
		idx := len(buckets) - 1
		members[idx] = append(members[idx], tr)
	}
	for i := range buckets {
		fillBucket(&buckets[i], members[i])
		buckets[i].Trades = MergeMicroTrades(members[i], c.cfg.MicroTradeSize)
	}
	return buckets
}

func fillBucket(b *TradeBucket, trades []market.Trade) {
	var notional float64
	for _, tr := range trades {
		b.Volume += tr.Size
		notional += tr.Price * tr.Size
		switch {
		case tr.Side > 0:
			b.BuyVolume += tr.Size
		case tr.Side < 0:
			b.SellVolume += tr.Size
		}
	}
	b.Count = len(trades)
	if b.Volume > 0 {
		b.VWAP = notional / b.Volume
	}
}

// MergeMicroTrades folds every trade smaller than threshold into one combined entry placed
// where the first micro trade appeared. Larger trades are preserved in order.
// The combined entry carries the summed size, the size-weighted price, and the net side.
func MergeMicroTrades(trades []market.Trade, threshold float64) []market.Trade {
	if threshold <= 0 {
		return append([]market.Trade(nil), trades...)
	}
	out := make([]market.Trade, 0, len(trades))
	microIdx := -1
	var notional, signed float64
	for _, tr := range trades {
		if tr.Size >= threshold {
			out = append(out, tr)
			continue
		}
		if microIdx < 0 {
			microIdx = len(out)
			out = append(out, market.Trade{Timestamp: tr.Timestamp})
		}
		merged := &out[microIdx]
		merged.Size += tr.Size
		notional += tr.Price * tr.Size
		signed += float64(tr.Side) * tr.Size
		if tr.Timestamp.After(merged.Timestamp) {
			merged.Timestamp = tr.Timestamp
		}
	}
	if microIdx >= 0 {
		merged := &out[microIdx]
		merged.Price = notional / merged.Size
		switch {
		case signed > 0:
			merged.Side = market.SideBuy
		case signed < 0:
			merged.Side = market.SideSell
		}
	}
	return out
}

func usableTrade(tr market.Trade) bool {
	if math.IsNaN(tr.Price) || math.IsInf(tr.Price, 0) || math.IsNaN(tr.Size) || math.IsInf(tr.Size, 0) {
		return false
	}
	return tr.Price > 0 && tr.Size > 0
}
