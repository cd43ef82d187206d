// Package maker runs the market making loop: per-pair analytics, then entry, exit, and rotation decisions.
package maker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"lpmaker-go/internal/execution"
	"lpmaker-go/internal/market"
	"lpmaker-go/internal/metrics"
	"lpmaker-go/internal/risk"
	"lpmaker-go/internal/strategy"
)

// SnapshotSource provides read-only market snapshots. Errors mean no fresh data this cycle.
type SnapshotSource interface {
	Pairs() []string
	Snapshot(ctx context.Context, pair string) (market.Snapshot, error)
}

// Submitter sends liquidity changes to a venue.
type Submitter interface {
	Submit(ctx context.Context, change execution.Change) (execution.Receipt, error)
}

// PositionStore mirrors positions and collected fees across restarts.
type PositionStore interface {
	Save(ctx context.Context, positions []market.Position, fees float64) error
	Load(ctx context.Context) ([]market.Position, float64, error)
}

// CycleReport summarizes one Update.
type CycleReport struct {
	Evaluated  int
	Failed     map[string]error
	Opened     int
	Closed     int
	Rebalanced int
	Rotated    int
	Fees       float64
}

// Option configures a MarketMaker.
type Option func(*MarketMaker)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *MarketMaker) { m.log = log }
}

// WithComponents replaces the default analytics pipeline.
func WithComponents(c Components) Option {
	return func(m *MarketMaker) { m.comps = c }
}

// WithModes sets per-pair liquidity modes. Pairs without an entry use strategy.ModeBoth.
func WithModes(modes map[string]strategy.Mode) Option {
	return func(m *MarketMaker) {
		for pair, mode := range modes {
			m.modes[pair] = mode
		}
	}
}

// WithRiskLimits caps deployed notional.
func WithRiskLimits(limits risk.Limits) Option {
	return func(m *MarketMaker) { m.limits = limits }
}

// WithStore mirrors positions after every cycle.
func WithStore(store PositionStore) Option {
	return func(m *MarketMaker) { m.store = store }
}

// WithClock overrides the clock used for cycle timing and position timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *MarketMaker) {
		if now != nil {
			m.now = now
		}
	}
}

// MarketMaker owns the trading config, the position set, and one rolling state per pair.
type MarketMaker struct {
	cfg       TradingConfig
	log       zerolog.Logger
	comps     Components
	positions *strategy.PositionManager
	exec      Submitter
	limits    risk.Limits
	modes     map[string]strategy.Mode
	store     PositionStore
	now       func() time.Time

	cycle sync.Mutex

	mu     sync.Mutex
	states map[string]pairState
	fees   decimal.Decimal
}

// New builds a MarketMaker. Components default to NewComponents(DefaultComponentConfig()).
func New(cfg TradingConfig, exec Submitter, opts ...Option) (*MarketMaker, error) {
	def := DefaultTradingConfig()
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = def.UpdateInterval
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = def.MaxPositions
	}
	if cfg.PositionNotional <= 0 {
		cfg.PositionNotional = def.PositionNotional
	}
	if cfg.HistoryLength <= 0 {
		cfg.HistoryLength = def.HistoryLength
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, errors.New("maker: nil submitter")
	}
	m := &MarketMaker{
		cfg:    cfg,
		log:    zerolog.Nop(),
		exec:   exec,
		modes:  make(map[string]strategy.Mode),
		now:    time.Now,
		states: make(map[string]pairState),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.comps.Quotes == nil {
		m.comps = NewComponents(DefaultComponentConfig(), m.log, m.now)
	}
	m.positions = strategy.NewPositionManager(m.comps.Bins, cfg.MinProfitThreshold, cfg.MaxPositions)
	m.positions.SetClock(m.now)
	return m, nil
}

// Config returns the trading config.
func (m *MarketMaker) Config() TradingConfig { return m.cfg }

// ModeFor returns the liquidity mode for pair.
func (m *MarketMaker) ModeFor(pair string) strategy.Mode {
	if mode, ok := m.modes[pair]; ok {
		return mode
	}
	return strategy.ModeBoth
}

// ActivePositions returns every open position.
func (m *MarketMaker) ActivePositions() []market.Position {
	return m.positions.Active()
}

// CollectedFees returns the running fee total.
func (m *MarketMaker) CollectedFees() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fees.InexactFloat64()
}

// Restore loads positions and fees from the store, if one is configured.
func (m *MarketMaker) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	positions, fees, err := m.store.Load(ctx)
	if err != nil {
		return 0, err
	}
	n := m.positions.Restore(positions)
	m.mu.Lock()
	m.fees = decimal.NewFromFloat(fees)
	m.mu.Unlock()
	m.publishGauges()
	m.log.Info().Int("positions", n).Float64("fees", fees).Msg("restored maker state")
	return n, nil
}

type pairResult struct {
	eval  evaluation
	state pairState
	err   error
}

// Update drives one cycle over the given snapshots. Pair failures are reported, not returned;
// the error is non-nil only when ctx ends before any position is touched.
func (m *MarketMaker) Update(ctx context.Context, snapshots map[string]market.Snapshot) (CycleReport, error) {
	m.cycle.Lock()
	defer m.cycle.Unlock()

	report := CycleReport{Failed: make(map[string]error)}
	now := m.now()

	pairs := make([]string, 0, len(snapshots))
	for pair := range snapshots {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	m.mu.Lock()
	prev := make([]pairState, len(pairs))
	for i, pair := range pairs {
		prev[i] = m.states[pair]
	}
	m.mu.Unlock()

	results := make([]pairResult, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snap := snapshots[pair]
			snap.Pair = pair
			ev, next, err := m.evaluate(snap, prev[i], now)
			results[i] = pairResult{eval: ev, state: next, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	evals := make(map[string]evaluation, len(pairs))
	m.mu.Lock()
	for i, pair := range pairs {
		res := results[i]
		if res.err != nil {
			report.Failed[pair] = res.err
			continue
		}
		m.states[pair] = res.state
		evals[pair] = res.eval
	}
	m.mu.Unlock()
	report.Evaluated = len(evals)

	for _, pair := range pairs {
		if err, failed := report.Failed[pair]; failed {
			metrics.Cycles.WithLabelValues(pair, "error").Inc()
			m.log.Warn().Err(err).Str("pair", pair).Msg("pair cycle aborted")
			continue
		}
		result := "ok"
		if !evals[pair].ready {
			result = "warmup"
		}
		metrics.Cycles.WithLabelValues(pair, result).Inc()
	}

	// Position mutations run to completion once started.
	dctx := context.WithoutCancel(ctx)
	exited := m.manageOpen(dctx, evals, &report)
	m.enter(dctx, evals, exited, &report)

	m.publishGauges()
	if m.store != nil {
		if err := m.store.Save(dctx, m.positions.Active(), m.CollectedFees()); err != nil {
			m.log.Warn().Err(err).Msg("position mirror save failed")
		}
	}
	return report, nil
}

// Run polls source every UpdateInterval until ctx ends.
func (m *MarketMaker) Run(ctx context.Context, source SnapshotSource) error {
	ticker := time.NewTicker(m.cfg.UpdateInterval)
	defer ticker.Stop()
	for {
		snapshots := m.collect(ctx, source)
		if len(snapshots) > 0 {
			report, err := m.Update(ctx, snapshots)
			if err != nil {
				return err
			}
			m.log.Info().
				Int("evaluated", report.Evaluated).
				Int("failed", len(report.Failed)).
				Int("opened", report.Opened).
				Int("closed", report.Closed).
				Int("rebalanced", report.Rebalanced).
				Int("rotated", report.Rotated).
				Float64("fees", report.Fees).
				Int("active", m.positions.ActiveCount()).
				Msg("cycle complete")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *MarketMaker) collect(ctx context.Context, source SnapshotSource) map[string]market.Snapshot {
	pairs := source.Pairs()
	out := make(map[string]market.Snapshot, len(pairs))
	for _, pair := range pairs {
		snap, err := source.Snapshot(ctx, pair)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.Cycles.WithLabelValues(pair, "no_data").Inc()
			m.log.Warn().Err(err).Str("pair", pair).Msg("no fresh data this cycle")
			continue
		}
		out[pair] = snap
	}
	return out
}

func (m *MarketMaker) addFees(fees float64) {
	if fees == 0 {
		return
	}
	m.mu.Lock()
	m.fees = m.fees.Add(decimal.NewFromFloat(fees))
	m.mu.Unlock()
}

func (m *MarketMaker) publishGauges() {
	metrics.ActivePositions.Set(float64(m.positions.ActiveCount()))
	metrics.CollectedFees.Set(m.CollectedFees())
}

func (m *MarketMaker) warn(pair, kind string) *zerolog.Event {
	metrics.DataWarnings.WithLabelValues(pair, kind).Inc()
	return m.log.Warn().Str("pair", pair).Str("kind", kind)
}

func (m *MarketMaker) noteQuality(pair string, report market.DataQualityReport) {
	if n := report.SuspiciousCount(); n > 0 {
		metrics.DataWarnings.WithLabelValues(pair, "suspicious_spread").Add(float64(n))
	}
	if n := len(report.PriceJumps); n > 0 {
		metrics.DataWarnings.WithLabelValues(pair, "price_jump").Add(float64(n))
	}
	if report.StaleCount > 0 {
		metrics.DataWarnings.WithLabelValues(pair, "stale").Add(float64(report.StaleCount))
	}
}

func (m *MarketMaker) deployed() float64 {
	var total float64
	for _, pos := range m.positions.Active() {
		total += pos.Notional
	}
	return total
}

func describe(change execution.Change) string {
	return fmt.Sprintf("%s %s/%s", change.Kind, change.Pair, change.PositionID)
}
