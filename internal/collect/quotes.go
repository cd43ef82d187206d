package collect

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"lpmaker-go/internal/market"
)

// FillMethod selects how missing quote samples are synthesized.
type FillMethod string

const (
	// FillLinear interpolates bid and ask between neighbouring quotes.
	FillLinear FillMethod = "linear"
	// FillForward repeats the previous quote.
	FillForward FillMethod = "ffill"
)

// ParseFillMethod maps a config string onto a FillMethod, defaulting to linear.
func ParseFillMethod(raw string) FillMethod {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ffill", "forward", "forward_fill", "pad":
		return FillForward
	default:
		return FillLinear
	}
}

// QuoteConfig tunes quote processing.
type QuoteConfig struct {
	WindowSize       time.Duration `yaml:"window_size"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	MaxGapFill       time.Duration `yaml:"max_gap_fill"`
	StaleAfter       time.Duration `yaml:"stale_after"`
	FillMethod       string        `yaml:"fill_method"`
}

// DefaultQuoteConfig returns the quote settings used when none are configured.
func DefaultQuoteConfig() QuoteConfig {
	return QuoteConfig{
		WindowSize:       10 * time.Minute,
		SamplingInterval: 30 * time.Second,
		MaxGapFill:       5 * time.Minute,
		FillMethod:       string(FillLinear),
	}
}

// Validate rejects negative durations.
func (c QuoteConfig) Validate() error {
	if c.WindowSize < 0 || c.SamplingInterval < 0 || c.MaxGapFill < 0 || c.StaleAfter < 0 {
		return fmt.Errorf("quotes: durations must be non-negative")
	}
	return nil
}

// QuoteCollector deduplicates, validates, gap-fills, and staleness-flags quote batches.
type QuoteCollector struct {
	cfg QuoteConfig
	options
}

// NewQuoteCollector builds a collector; a zero StaleAfter falls back to WindowSize.
func NewQuoteCollector(cfg QuoteConfig, opts ...Option) *QuoteCollector {
	def := DefaultQuoteConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = cfg.WindowSize
	}
	if cfg.FillMethod == "" {
		cfg.FillMethod = def.FillMethod
	}
	return &QuoteCollector{cfg: cfg, options: buildOptions(opts)}
}

// ValidateQuote fails with ErrDataQuality on non-positive, non-finite, or crossed quotes.
func (c *QuoteCollector) ValidateQuote(q market.Quote) error {
	if !q.Valid() {
		return fmt.Errorf("%w: invalid quote bid=%v ask=%v at %s", market.ErrDataQuality, q.Bid, q.Ask, q.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// ProcessQuotes runs the full pipeline using the configured fill method.
func (c *QuoteCollector) ProcessQuotes(raw []market.Quote) ([]market.Quote, error) {
	return c.ProcessQuotesWith(raw, ParseFillMethod(c.cfg.FillMethod))
}

// ProcessQuotesWith sorts, validates, deduplicates, flags staleness, and fills gaps.
// The input slice is never modified.
func (c *QuoteCollector) ProcessQuotesWith(raw []market.Quote, method FillMethod) ([]market.Quote, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no quotes", market.ErrInsufficientData)
	}
	sorted := append([]market.Quote(nil), raw...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	valid := make([]market.Quote, 0, len(sorted))
	for _, q := range sorted {
		if err := c.ValidateQuote(q); err != nil {
			c.log.Warn().Err(err).Msg("dropping invalid quote")
			continue
		}
		// First valid quote per timestamp wins.
		if n := len(valid); n > 0 && q.Timestamp.Equal(valid[n-1].Timestamp) {
			continue
		}
		q.Stale = false
		valid = append(valid, q)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: all %d quotes invalid", market.ErrDataQuality, len(sorted))
	}

	now := c.now()
	stale := 0
	for i := range valid {
		if now.Sub(valid[i].Timestamp) > c.cfg.StaleAfter {
			valid[i].Stale = true
			stale++
		}
	}
	if stale == len(valid) {
		return nil, fmt.Errorf("%w: all quotes are stale", market.ErrStaleData)
	}
	if stale > 0 {
		c.log.Warn().Int("stale", stale).Int("total", len(valid)).Dur("threshold", c.cfg.StaleAfter).Msg("stale quote detected")
	}

	return c.FillGaps(valid, method)
}

// FillGaps synthesizes missing samples between consecutive fresh quotes.
// A gap spanning more than MaxGapFill fails with ErrDataQuality.
func (c *QuoteCollector) FillGaps(quotes []market.Quote, method FillMethod) ([]market.Quote, error) {
	interval := c.cfg.SamplingInterval
	if interval <= 0 || len(quotes) < 2 {
		return append([]market.Quote(nil), quotes...), nil
	}
	out := make([]market.Quote, 0, len(quotes))
	out = append(out, quotes[0])
	for i := 1; i < len(quotes); i++ {
		prev, next := quotes[i-1], quotes[i]
		if !prev.Stale && !next.Stale {
			span := next.Timestamp.Sub(prev.Timestamp)
			missing := int(math.Round(float64(span)/float64(interval))) - 1
			if missing > 0 {
				if c.cfg.MaxGapFill > 0 && span > c.cfg.MaxGapFill {
					return nil, fmt.Errorf("%w: gap too large (%s > %s) at %s", market.ErrDataQuality, span, c.cfg.MaxGapFill, prev.Timestamp.Format(time.RFC3339))
				}
				for k := 1; k <= missing; k++ {
					out = append(out, synthesize(prev, next, k, missing, interval, method))
				}
			}
		}
		out = append(out, next)
	}
	return out, nil
}

func synthesize(prev, next market.Quote, k, missing int, interval time.Duration, method FillMethod) market.Quote {
	q := market.Quote{
		Timestamp: prev.Timestamp.Add(time.Duration(k) * interval),
		Bid:       prev.Bid,
		Ask:       prev.Ask,
		Filled:    true,
	}
	if method == FillLinear {
		frac := float64(k) / float64(missing+1)
		q.Bid = prev.Bid + (next.Bid-prev.Bid)*frac
		q.Ask = prev.Ask + (next.Ask-prev.Ask)*frac
	}
	return q
}
