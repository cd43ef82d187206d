package collect

import (
	"fmt"
	"math"
	"sort"

	"lpmaker-go/internal/market"
)

// DepthConfig tunes order-book retention.
type DepthConfig struct {
	Levels        int     `yaml:"levels"`
	MinSizeFilter float64 `yaml:"min_size_filter"`
}

// DefaultDepthConfig returns the depth settings used when none are configured.
func DefaultDepthConfig() DepthConfig {
	return DepthConfig{Levels: 10, MinSizeFilter: 0.01}
}

// Validate requires at least one retained level.
func (c DepthConfig) Validate() error {
	if c.Levels <= 0 {
		return fmt.Errorf("depth: levels must be positive")
	}
	if c.MinSizeFilter < 0 {
		return fmt.Errorf("depth: min_size_filter must be non-negative")
	}
	return nil
}

// BookAction is an incremental update verb.
type BookAction string

const (
	BookAdd    BookAction = "add"
	BookRemove BookAction = "remove"
)

// BookSide names one side of the book.
type BookSide string

const (
	BidSide BookSide = "bid"
	AskSide BookSide = "ask"
)

// BookUpdate is one incremental change to a book level.
type BookUpdate struct {
	Action BookAction
	Side   BookSide
	Price  float64
	Size   float64
}

// DepthCollector validates depth snapshots and derives depth imbalance.
type DepthCollector struct {
	cfg DepthConfig
	options
}

// NewDepthCollector builds a depth collector.
func NewDepthCollector(cfg DepthConfig, opts ...Option) *DepthCollector {
	if cfg.Levels <= 0 {
		cfg.Levels = DefaultDepthConfig().Levels
	}
	return &DepthCollector{cfg: cfg, options: buildOptions(opts)}
}

// ValidateBook checks level counts, per-level sanity, ordering away from mid, and that the book is not crossed.
func (c *DepthCollector) ValidateBook(book market.OrderBook) error {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return fmt.Errorf("%w: book needs both sides (bids=%d asks=%d)", market.ErrInsufficientData, len(book.Bids), len(book.Asks))
	}
	if err := validateSide(book.Bids, BidSide); err != nil {
		return err
	}
	if err := validateSide(book.Asks, AskSide); err != nil {
		return err
	}
	if book.Bids[0].Price >= book.Asks[0].Price {
		return fmt.Errorf("%w: crossed book bid=%v ask=%v", market.ErrDataQuality, book.Bids[0].Price, book.Asks[0].Price)
	}
	return nil
}

func validateSide(levels []market.Level, side BookSide) error {
	for i, lvl := range levels {
		if math.IsNaN(lvl.Price) || math.IsInf(lvl.Price, 0) || lvl.Price <= 0 {
			return fmt.Errorf("%w: invalid %s price %v at level %d", market.ErrDataQuality, side, lvl.Price, i)
		}
		if math.IsNaN(lvl.Size) || lvl.Size < 0 {
			return fmt.Errorf("%w: invalid %s size %v at level %d", market.ErrDataQuality, side, lvl.Size, i)
		}
		if i == 0 {
			continue
		}
		prev := levels[i-1].Price
		if (side == BidSide && lvl.Price >= prev) || (side == AskSide && lvl.Price <= prev) {
			return fmt.Errorf("%w: %s levels out of order at %d", market.ErrDataQuality, side, i)
		}
	}
	return nil
}

// Bids returns the top retained bid levels after the dust filter.
func (c *DepthCollector) Bids(book market.OrderBook) []market.Level {
	return c.topLevels(book.Bids)
}

// Asks returns the top retained ask levels after the dust filter.
func (c *DepthCollector) Asks(book market.OrderBook) []market.Level {
	return c.topLevels(book.Asks)
}

func (c *DepthCollector) topLevels(levels []market.Level) []market.Level {
	out := make([]market.Level, 0, c.cfg.Levels)
	for _, lvl := range levels {
		if lvl.Size <= 0 || lvl.Size < c.cfg.MinSizeFilter {
			continue
		}
		out = append(out, lvl)
		if len(out) == c.cfg.Levels {
			break
		}
	}
	return out
}

// DepthImbalance is (bid size - ask size) / total over the retained levels, bounded to [-1, 1].
func (c *DepthCollector) DepthImbalance(book market.OrderBook) float64 {
	var bid, ask float64
	for _, lvl := range c.Bids(book) {
		bid += lvl.Size
	}
	for _, lvl := range c.Asks(book) {
		ask += lvl.Size
	}
	total := bid + ask
	if total <= 0 {
		return 0
	}
	return clamp((bid-ask)/total, -1, 1)
}

// ApplyUpdates applies add/remove updates to a copy of book and re-validates the result.
// An add on an existing price replaces its size.
func (c *DepthCollector) ApplyUpdates(book market.OrderBook, updates []BookUpdate) (market.OrderBook, error) {
	next := book.Clone()
	for _, up := range updates {
		var levels *[]market.Level
		switch up.Side {
		case BidSide:
			levels = &next.Bids
		case AskSide:
			levels = &next.Asks
		default:
			return book, fmt.Errorf("%w: unknown book side %q", market.ErrDataQuality, up.Side)
		}
		idx := -1
		for i, lvl := range *levels {
			if lvl.Price == up.Price {
				idx = i
				break
			}
		}
		switch up.Action {
		case BookAdd:
			if up.Size <= 0 {
				return book, fmt.Errorf("%w: add with non-positive size %v", market.ErrDataQuality, up.Size)
			}
			if idx >= 0 {
				(*levels)[idx].Size = up.Size
			} else {
				*levels = append(*levels, market.Level{Price: up.Price, Size: up.Size})
			}
		case BookRemove:
			if idx < 0 {
				return book, fmt.Errorf("%w: remove of unknown %s level %v", market.ErrDataQuality, up.Side, up.Price)
			}
			*levels = append((*levels)[:idx], (*levels)[idx+1:]...)
		default:
			return book, fmt.Errorf("%w: unknown book action %q", market.ErrDataQuality, up.Action)
		}
	}
	sort.Slice(next.Bids, func(i, j int) bool { return next.Bids[i].Price > next.Bids[j].Price })
	sort.Slice(next.Asks, func(i, j int) bool { return next.Asks[i].Price < next.Asks[j].Price })
	if err := c.ValidateBook(next); err != nil {
		return book, err
	}
	return next, nil
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
