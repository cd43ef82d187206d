package maker

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"lpmaker-go/internal/analytics"
	"lpmaker-go/internal/collect"
	"lpmaker-go/internal/strategy"
)

// TradingConfig is fixed for the lifetime of a MarketMaker.
type TradingConfig struct {
	UpdateInterval     time.Duration `yaml:"update_interval"`
	MaxPositions       int           `yaml:"max_positions"`
	MinProfitThreshold float64       `yaml:"min_profit_threshold"`
	PositionNotional   float64       `yaml:"position_notional"`
	HistoryLength      int           `yaml:"history_length"`
}

// DefaultTradingConfig returns the loop settings used when none are configured.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		UpdateInterval:     30 * time.Second,
		MaxPositions:       3,
		MinProfitThreshold: 0.5,
		PositionNotional:   1000,
		HistoryLength:      120,
	}
}

// Validate checks the loop settings.
func (c TradingConfig) Validate() error {
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("trading: update_interval must be positive")
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("trading: max_positions must be positive")
	}
	if c.PositionNotional <= 0 {
		return fmt.Errorf("trading: position_notional must be positive")
	}
	if c.MinProfitThreshold < 0 {
		return fmt.Errorf("trading: min_profit_threshold must be non-negative")
	}
	return nil
}

// ComponentConfig groups the per-component settings of the analytics pipeline.
type ComponentConfig struct {
	Quotes     collect.QuoteConfig        `yaml:"quotes"`
	Trades     collect.TradeConfig        `yaml:"trades"`
	Depth      collect.DepthConfig        `yaml:"depth"`
	Quality    collect.QualityConfig      `yaml:"quality"`
	Normalizer analytics.NormalizerConfig `yaml:"normalizer"`
	Volatility analytics.VolatilityConfig `yaml:"volatility"`
	OrderFlow  analytics.OrderFlowConfig  `yaml:"order_flow"`
	Spread     analytics.SpreadConfig     `yaml:"spread"`
	Profit     analytics.ProfitConfig     `yaml:"profit"`
	Bins       strategy.BinConfig         `yaml:"bins"`
}

// DefaultComponentConfig returns every component's defaults.
func DefaultComponentConfig() ComponentConfig {
	return ComponentConfig{
		Quotes:     collect.DefaultQuoteConfig(),
		Trades:     collect.DefaultTradeConfig(),
		Depth:      collect.DefaultDepthConfig(),
		Quality:    collect.DefaultQualityConfig(),
		Normalizer: analytics.DefaultNormalizerConfig(),
		Volatility: analytics.DefaultVolatilityConfig(),
		OrderFlow:  analytics.DefaultOrderFlowConfig(),
		Spread:     analytics.DefaultSpreadConfig(),
		Profit:     analytics.DefaultProfitConfig(),
		Bins:       strategy.DefaultBinConfig(),
	}
}

// Validate runs every component's validation and joins the failures.
func (c ComponentConfig) Validate() error {
	return errors.Join(
		c.Quotes.Validate(),
		c.Trades.Validate(),
		c.Depth.Validate(),
		c.Quality.Validate(),
		c.Normalizer.Validate(),
		c.Volatility.Validate(),
		c.OrderFlow.Validate(),
		c.Spread.Validate(),
		c.Profit.Validate(),
		c.Bins.Validate(),
	)
}

// Components is the wired analytics pipeline.
type Components struct {
	Quotes     *collect.QuoteCollector
	Trades     *collect.TradeCollector
	Depth      *collect.DepthCollector
	Quality    *collect.QualityChecker
	Normalizer *analytics.Normalizer
	Volatility *analytics.VolatilityCalculator
	OrderFlow  *analytics.OrderFlow
	Spread     *analytics.SpreadPredictor
	Profit     *analytics.ProfitCalculator
	Bins       *strategy.BinManager
}

// NewComponents builds the pipeline. A nil clock uses time.Now.
func NewComponents(cfg ComponentConfig, log zerolog.Logger, clock func() time.Time) Components {
	collectOpts := func(name string) []collect.Option {
		opts := []collect.Option{collect.WithLogger(log.With().Str("component", name).Logger())}
		if clock != nil {
			opts = append(opts, collect.WithClock(clock))
		}
		return opts
	}
	return Components{
		Quotes:     collect.NewQuoteCollector(cfg.Quotes, collectOpts("quotes")...),
		Trades:     collect.NewTradeCollector(cfg.Trades, collectOpts("trades")...),
		Depth:      collect.NewDepthCollector(cfg.Depth, collectOpts("depth")...),
		Quality:    collect.NewQualityChecker(cfg.Quality, collectOpts("quality")...),
		Normalizer: analytics.NewNormalizer(cfg.Normalizer),
		Volatility: analytics.NewVolatilityCalculator(cfg.Volatility),
		OrderFlow:  analytics.NewOrderFlow(cfg.OrderFlow),
		Spread:     analytics.NewSpreadPredictor(cfg.Spread),
		Profit:     analytics.NewProfitCalculator(cfg.Profit),
		Bins:       strategy.NewBinManager(cfg.Bins),
	}
}
