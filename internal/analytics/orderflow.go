package analytics

import (
	"fmt"
	"math"
	"time"

	"lpmaker-go/internal/collect"
	"lpmaker-go/internal/market"
)

// OrderFlowConfig tunes trade filtering, imbalance, and volume profiling.
type OrderFlowConfig struct {
	MinTradeSize   float64       `yaml:"min_trade_size"`
	MaxTradeSize   float64       `yaml:"max_trade_size"`
	MicroTradeSize float64       `yaml:"micro_trade_size"`
	Window         time.Duration `yaml:"window"`
	VolumeBuckets  int           `yaml:"volume_buckets"`
}

// DefaultOrderFlowConfig returns the order-flow settings used when none are configured.
func DefaultOrderFlowConfig() OrderFlowConfig {
	return OrderFlowConfig{MinTradeSize: 0.01, MicroTradeSize: 0.1, Window: 5 * time.Minute, VolumeBuckets: 10}
}

// Validate checks size bounds and bucket count.
func (c OrderFlowConfig) Validate() error {
	if c.MinTradeSize < 0 || c.MaxTradeSize < 0 || c.MicroTradeSize < 0 {
		return fmt.Errorf("orderflow: sizes must be non-negative")
	}
	if c.MaxTradeSize > 0 && c.MaxTradeSize < c.MinTradeSize {
		return fmt.Errorf("orderflow: max_trade_size below min_trade_size")
	}
	if c.VolumeBuckets <= 0 {
		return fmt.Errorf("orderflow: volume_buckets must be positive")
	}
	return nil
}

// ProfileLevel is one price bucket of a volume profile.
type ProfileLevel struct {
	Price      float64
	Volume     float64
	BuyVolume  float64
	SellVolume float64
}

// VolumeProfile distributes traded volume over fixed price buckets.
type VolumeProfile struct {
	Levels      []ProfileLevel
	TotalVolume float64
	VWAP        float64
}

// OrderFlow measures net aggressor pressure from classified trades.
type OrderFlow struct {
	cfg OrderFlowConfig
}

// NewOrderFlow builds an order-flow analyzer.
func NewOrderFlow(cfg OrderFlowConfig) *OrderFlow {
	if cfg.VolumeBuckets <= 0 {
		cfg.VolumeBuckets = DefaultOrderFlowConfig().VolumeBuckets
	}
	return &OrderFlow{cfg: cfg}
}

// FilterTrades keeps trades with size in [MinTradeSize, MaxTradeSize]; a zero max is unbounded.
func (o *OrderFlow) FilterTrades(trades []market.Trade) []market.Trade {
	out := make([]market.Trade, 0, len(trades))
	for _, tr := range trades {
		if tr.Size <= 0 || tr.Size < o.cfg.MinTradeSize {
			continue
		}
		if o.cfg.MaxTradeSize > 0 && tr.Size > o.cfg.MaxTradeSize {
			continue
		}
		out = append(out, tr)
	}
	return out
}

// AggregateTrades merges micro trades into one combined entry and preserves larger trades.
func (o *OrderFlow) AggregateTrades(trades []market.Trade) []market.Trade {
	return collect.MergeMicroTrades(trades, o.cfg.MicroTradeSize)
}

// Imbalance is (buy volume - sell volume) / total volume over the window ending at asOf, in [-1, 1].
// A zero asOf uses every trade. Empty windows yield 0.
func (o *OrderFlow) Imbalance(trades []market.Trade, asOf time.Time) float64 {
	var buy, sell, total float64
	for _, tr := range trades {
		if !asOf.IsZero() {
			if tr.Timestamp.After(asOf) {
				continue
			}
			if o.cfg.Window > 0 && asOf.Sub(tr.Timestamp) > o.cfg.Window {
				continue
			}
		}
		size := math.Abs(tr.Size)
		total += size
		switch {
		case tr.Side > 0:
			buy += size
		case tr.Side < 0:
			sell += size
		}
	}
	if total <= 0 {
		return 0
	}
	return clamp((buy-sell)/total, -1, 1)
}

// VolumeProfile buckets trades into VolumeBuckets equal-width price levels spanning the traded range.
func (o *OrderFlow) VolumeProfile(trades []market.Trade) VolumeProfile {
	var profile VolumeProfile
	if len(trades) == 0 {
		return profile
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	var notional float64
	for _, tr := range trades {
		lo = math.Min(lo, tr.Price)
		hi = math.Max(hi, tr.Price)
		profile.TotalVolume += tr.Size
		notional += tr.Price * tr.Size
	}
	if profile.TotalVolume > 0 {
		profile.VWAP = notional / profile.TotalVolume
	}

	n := o.cfg.VolumeBuckets
	width := (hi - lo) / float64(n)
	profile.Levels = make([]ProfileLevel, n)
	for i := range profile.Levels {
		profile.Levels[i].Price = lo + width*(float64(i)+0.5)
	}
	for _, tr := range trades {
		idx := 0
		if width > 0 {
			idx = int((tr.Price - lo) / width)
			if idx >= n {
				idx = n - 1
			}
		}
		lvl := &profile.Levels[idx]
		lvl.Volume += tr.Size
		switch {
		case tr.Side > 0:
			lvl.BuyVolume += tr.Size
		case tr.Side < 0:
			lvl.SellVolume += tr.Size
		}
	}
	return profile
}
