// Package exchange hosts market data connectors that build per-pair snapshots for the maker.
package exchange

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lpmaker-go/internal/market"
	"lpmaker-go/internal/metrics"
)

const (
	// ProviderStub emits deterministic synthetic quotes, trades, and books (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams live trades, top of book, and depth from Binance public websockets.
	ProviderBinance = "binance"
	// ProviderDexScreener polls the Dexscreener HTTP API for on-chain pool pairs.
	ProviderDexScreener = "dexscreener"
)

// ErrNoSnapshot is returned when a pair has no buffered quotes yet.
var ErrNoSnapshot = errors.New("no snapshot available")

// Feed buffers market events per pair and serves them as snapshots.
type Feed struct {
	provider                string
	symbols                 []string
	log                     zerolog.Logger
	pollInterval            time.Duration
	stubInterval            time.Duration
	dexscreenerBaseURL      string
	dexscreenerDefaultChain string
	assumedSpread           float64
	maxQuotes               int
	maxTrades               int
	lastPrices              map[string]float64
	buffers                 map[string]*pairBuffer
	mu                      sync.RWMutex
}

type pairBuffer struct {
	quotes  []market.Quote
	trades  []market.Trade
	book    market.OrderBook
	top     market.Quote
	updated time.Time
}

// Option configures Feed construction parameters.
type Option func(*Feed)

const (
	defaultPollInterval       = 2 * time.Second
	defaultStubInterval       = 500 * time.Millisecond
	defaultDexScreenerBaseURL = "https://api.dexscreener.com"
	defaultAssumedSpreadBps   = 30
	defaultMaxQuotes          = 512
	defaultMaxTrades          = 2048
)

// WithPollInterval overrides the default polling cadence for HTTP-based feeds.
func WithPollInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}

// WithStubInterval overrides how often the stub provider emits events.
func WithStubInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.stubInterval = d
		}
	}
}

// WithDexScreenerConfig injects base URL and default chain metadata for Dexscreener.
func WithDexScreenerConfig(baseURL, defaultChain string) Option {
	return func(f *Feed) {
		if baseURL != "" {
			f.dexscreenerBaseURL = strings.TrimSuffix(baseURL, "/")
		}
		if defaultChain != "" {
			f.dexscreenerDefaultChain = strings.ToLower(defaultChain)
		}
	}
}

// WithAssumedSpreadBps sets the quote spread synthesized around polled pool prices.
func WithAssumedSpreadBps(bps float64) Option {
	return func(f *Feed) {
		if bps > 0 {
			f.assumedSpread = bps / 1e4
		}
	}
}

// WithBufferLimits bounds how many quotes and trades are kept per pair.
func WithBufferLimits(quotes, trades int) Option {
	return func(f *Feed) {
		if quotes > 0 {
			f.maxQuotes = quotes
		}
		if trades > 0 {
			f.maxTrades = trades
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:           strings.ToLower(provider),
		log:                log,
		pollInterval:       defaultPollInterval,
		stubInterval:       defaultStubInterval,
		dexscreenerBaseURL: defaultDexScreenerBaseURL,
		assumedSpread:      defaultAssumedSpreadBps / 1e4,
		maxQuotes:          defaultMaxQuotes,
		maxTrades:          defaultMaxTrades,
		lastPrices:         make(map[string]float64),
		buffers:            make(map[string]*pairBuffer),
	}
	f.setSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Provider returns the normalized provider name.
func (f *Feed) Provider() string { return f.provider }

// SetSymbols replaces the tracked symbol list (deduplicated, sorted for determinism).
func (f *Feed) SetSymbols(symbols []string) {
	f.setSymbols(symbols)
}

func (f *Feed) setSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = f.symbols[:0]
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

func (f *Feed) snapshotSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Pairs lists the pair keys snapshots are served under. Dexscreener symbols resolve to their alias.
func (f *Feed) Pairs() []string {
	symbols := f.snapshotSymbols()
	if f.provider != ProviderDexScreener {
		return symbols
	}
	targets, err := parseDexScreenerSymbols(symbols, f.dexscreenerDefaultChain)
	if err != nil {
		f.log.Warn().Err(err).Msg("invalid dexscreener symbols")
		return nil
	}
	out := make([]string, len(targets))
	for i, target := range targets {
		out[i] = target.Alias
	}
	return out
}

// PairKey resolves the key a configured symbol's snapshots are served under.
func PairKey(provider, symbol, defaultChain string) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if strings.ToLower(provider) != ProviderDexScreener {
		return symbol, nil
	}
	targets, err := parseDexScreenerSymbols([]string{symbol}, defaultChain)
	if err != nil {
		return "", err
	}
	if len(targets) == 0 {
		return "", errors.New("empty symbol")
	}
	return targets[0].Alias, nil
}

// PoolAddress extracts the on-chain address from a "ALIAS@chain/address" symbol, or returns symbol unchanged.
func PoolAddress(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if i := strings.LastIndex(symbol, "/"); i >= 0 && strings.Contains(symbol, "@") {
		return symbol[i+1:]
	}
	return symbol
}

// Snapshot returns a copy of the buffered market state for pair.
func (f *Feed) Snapshot(ctx context.Context, pair string) (market.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return market.Snapshot{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	buf, ok := f.buffers[pair]
	if !ok || len(buf.quotes) == 0 {
		return market.Snapshot{}, ErrNoSnapshot
	}
	snap := market.Snapshot{
		Pair:      pair,
		Quotes:    append([]market.Quote(nil), buf.quotes...),
		Trades:    append([]market.Trade(nil), buf.trades...),
		Book:      buf.book.Clone(),
		Timestamp: buf.updated,
	}
	snap.ActivePrice = buf.quotes[len(buf.quotes)-1].Mid()
	return snap, nil
}

func (f *Feed) buffer(pair string) *pairBuffer {
	buf, ok := f.buffers[pair]
	if !ok {
		buf = &pairBuffer{}
		f.buffers[pair] = buf
	}
	return buf
}

// RecordQuote appends a top-of-book quote for pair.
func (f *Feed) RecordQuote(pair string, q market.Quote) {
	f.mu.Lock()
	buf := f.buffer(pair)
	buf.quotes = append(buf.quotes, q)
	if extra := len(buf.quotes) - f.maxQuotes; extra > 0 {
		buf.quotes = append(buf.quotes[:0], buf.quotes[extra:]...)
	}
	buf.top = q
	buf.updated = q.Timestamp
	f.mu.Unlock()
	metrics.MarketEvents.WithLabelValues(pair, "quote").Inc()
}

// RecordTrade appends a trade for pair, stamping the prevailing top of book when the trade has none.
func (f *Feed) RecordTrade(pair string, t market.Trade) {
	f.mu.Lock()
	buf := f.buffer(pair)
	if t.BidPrice == 0 && t.AskPrice == 0 && buf.top.Valid() {
		t.BidPrice, t.AskPrice = buf.top.Bid, buf.top.Ask
	}
	buf.trades = append(buf.trades, t)
	if extra := len(buf.trades) - f.maxTrades; extra > 0 {
		buf.trades = append(buf.trades[:0], buf.trades[extra:]...)
	}
	if t.Timestamp.After(buf.updated) {
		buf.updated = t.Timestamp
	}
	f.mu.Unlock()
	metrics.MarketEvents.WithLabelValues(pair, "trade").Inc()
}

// RecordBook replaces the depth snapshot for pair.
func (f *Feed) RecordBook(pair string, book market.OrderBook) {
	f.mu.Lock()
	f.buffer(pair).book = book.Clone()
	f.mu.Unlock()
	metrics.MarketEvents.WithLabelValues(pair, "book").Inc()
}

// Run ingests market events until the context is canceled.
func (f *Feed) Run(ctx context.Context) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx)
	case ProviderDexScreener:
		return f.runDexScreener(ctx)
	default:
		return f.runStub(ctx)
	}
}

func (f *Feed) runStub(ctx context.Context) error {
	ticker := time.NewTicker(f.stubInterval)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			for i, s := range f.snapshotSymbols() {
				q, tr, book := StubEvents(step, i, ts.UTC())
				f.RecordQuote(s, q)
				f.RecordTrade(s, tr)
				f.RecordBook(s, book)
			}
			step++
		}
	}
}

// StubEvents derives a deterministic quote, trade, and five level book for a synthetic pair.
// The mid oscillates gently around 100 so collectors and analytics have something to chew on.
func StubEvents(step, seed int, ts time.Time) (market.Quote, market.Trade, market.OrderBook) {
	base := 100.0 * float64(seed+1)
	mid := base * (1 + 0.002*math.Sin(float64(step)/5))
	half := mid * 0.0005 * (1 + 0.5*math.Abs(math.Cos(float64(step)/7)))
	q := market.Quote{Timestamp: ts, Bid: mid - half, Ask: mid + half}

	side := market.SideBuy
	px := q.Ask
	if step%3 == 1 {
		side = market.SideSell
		px = q.Bid
	}
	tr := market.Trade{
		Timestamp: ts,
		Price:     px,
		Size:      1 + float64(step%4),
		Side:      side,
		BidPrice:  q.Bid,
		AskPrice:  q.Ask,
	}

	book := market.OrderBook{Timestamp: ts}
	for lvl := 0; lvl < 5; lvl++ {
		off := half * float64(lvl)
		size := 10 + float64(lvl*5)
		book.Bids = append(book.Bids, market.Level{Price: q.Bid - off, Size: size})
		book.Asks = append(book.Asks, market.Level{Price: q.Ask + off, Size: size})
	}
	return q, tr, book
}
