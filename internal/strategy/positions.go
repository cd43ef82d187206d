package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"lpmaker-go/internal/market"
)

var (
	// ErrUnknownPosition is returned for ids the manager does not own.
	ErrUnknownPosition = errors.New("unknown position")
	// ErrInvalidTransition is returned for lifecycle moves the state machine forbids.
	ErrInvalidTransition = errors.New("invalid position transition")
	// ErrCapacity is returned when opening beyond the position limit.
	ErrCapacity = errors.New("position capacity reached")
)

// Entry rejection reasons.
const (
	ReasonBelowMinProfit = "below_min_profit"
	ReasonMaxPositions   = "max_positions"
)

// EntryDecision is the outcome of an entry evaluation.
type EntryDecision struct {
	ShouldEnter bool
	Range       market.BinRange
	Reason      string
}

// HealthStatus is the outcome of monitoring an active position. Healthy is always !ShouldExit.
type HealthStatus struct {
	Healthy    bool
	ShouldExit bool
	Reason     string
}

// ExitDecision is the outcome of an exit evaluation.
type ExitDecision struct {
	ShouldExit bool
	Reason     string
}

// OpenRequest describes a position to create.
type OpenRequest struct {
	Pair           string
	Range          market.BinRange
	EntryPrice     float64
	TargetSpread   float64
	ExpectedProfit float64
	Notional       float64
}

// PositionManager owns the set of liquidity positions and their lifecycle
// Pending -> Active -> Exiting -> Closed (Pending -> Closed on a rejected open).
type PositionManager struct {
	bins         *BinManager
	minProfit    float64
	maxPositions int
	now          func() time.Time

	mu        sync.Mutex
	positions map[string]*market.Position
}

// NewPositionManager builds a manager; a non-positive maxPositions allows one position.
func NewPositionManager(bins *BinManager, minProfit float64, maxPositions int) *PositionManager {
	if bins == nil {
		bins = NewBinManager(DefaultBinConfig())
	}
	if maxPositions <= 0 {
		maxPositions = 1
	}
	return &PositionManager{
		bins:         bins,
		minProfit:    minProfit,
		maxPositions: maxPositions,
		now:          time.Now,
		positions:    make(map[string]*market.Position),
	}
}

// SetClock overrides the clock used for position timestamps.
func (m *PositionManager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// MaxPositions returns the configured position limit.
func (m *PositionManager) MaxPositions() int { return m.maxPositions }

// EvaluateEntry decides whether to open a position and suggests its range.
func (m *PositionManager) EvaluateEntry(predictedSpread float64, vol market.VolatilityMetrics, price, expectedProfit float64) (EntryDecision, error) {
	if expectedProfit <= m.minProfit {
		return EntryDecision{Reason: ReasonBelowMinProfit}, nil
	}
	if m.ActiveCount() >= m.maxPositions {
		return EntryDecision{Reason: ReasonMaxPositions}, nil
	}
	r, err := m.bins.CalculateBinRange(price, vol, predictedSpread)
	if err != nil {
		return EntryDecision{}, err
	}
	return EntryDecision{ShouldEnter: true, Range: r}, nil
}

// Open registers a Pending position.
func (m *PositionManager) Open(req OpenRequest) (market.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openCountLocked() >= m.maxPositions {
		return market.Position{}, fmt.Errorf("%w: %d open", ErrCapacity, m.maxPositions)
	}
	now := m.now()
	pos := &market.Position{
		ID:             uuid.NewString(),
		Pair:           req.Pair,
		Range:          req.Range,
		EntryPrice:     req.EntryPrice,
		TargetSpread:   req.TargetSpread,
		ExpectedProfit: req.ExpectedProfit,
		Notional:       req.Notional,
		State:          market.Pending,
		OpenedAt:       now,
		UpdatedAt:      now,
	}
	m.positions[pos.ID] = pos
	return *pos, nil
}

// Activate moves a Pending position to Active once its open is confirmed.
func (m *PositionManager) Activate(id string) error {
	_, err := m.transition(id, market.Active, market.Pending)
	return err
}

// Abort closes a Pending position whose open was rejected.
func (m *PositionManager) Abort(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	if pos.State != market.Pending {
		return fmt.Errorf("%w: abort from %s", ErrInvalidTransition, pos.State)
	}
	delete(m.positions, id)
	return nil
}

// MonitorPosition checks an Active position against the exit triggers without changing its state.
// A non-positive targetSpread falls back to the position's own target.
func (m *PositionManager) MonitorPosition(id string, price, realizedSpread, targetSpread float64) (HealthStatus, error) {
	pos, err := m.Get(id)
	if err != nil {
		return HealthStatus{}, err
	}
	if pos.State != market.Active {
		return HealthStatus{}, fmt.Errorf("%w: monitor in state %s", ErrInvalidTransition, pos.State)
	}
	if targetSpread <= 0 {
		targetSpread = pos.TargetSpread
	}
	reason := m.bins.ExitReason(pos.Range, price, realizedSpread, targetSpread)
	exit := reason != ReasonNone
	return HealthStatus{Healthy: !exit, ShouldExit: exit, Reason: reason}, nil
}

// EvaluateExit checks an Active position against its own target spread and moves it to Exiting on a trigger.
func (m *PositionManager) EvaluateExit(id string, price, realizedSpread float64) (ExitDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return ExitDecision{}, fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	if pos.State != market.Active {
		return ExitDecision{}, fmt.Errorf("%w: evaluate exit in state %s", ErrInvalidTransition, pos.State)
	}
	reason := m.bins.ExitReason(pos.Range, price, realizedSpread, pos.TargetSpread)
	if reason == ReasonNone {
		return ExitDecision{}, nil
	}
	pos.State = market.Exiting
	pos.UpdatedAt = m.now()
	return ExitDecision{ShouldExit: true, Reason: reason}, nil
}

// BeginExit moves an Active position to Exiting regardless of triggers, e.g. for rotation.
func (m *PositionManager) BeginExit(id string) error {
	_, err := m.transition(id, market.Exiting, market.Active)
	return err
}

// Reactivate returns an Exiting position to Active when its close was rejected.
func (m *PositionManager) Reactivate(id string) error {
	_, err := m.transition(id, market.Active, market.Exiting)
	return err
}

// Close finalizes an Exiting position, adds its last fees, and drops it from the managed set.
func (m *PositionManager) Close(id string, fees float64) (market.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return market.Position{}, fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	if pos.State != market.Exiting {
		return market.Position{}, fmt.Errorf("%w: close from %s", ErrInvalidTransition, pos.State)
	}
	pos.State = market.Closed
	pos.Fees += fees
	pos.UpdatedAt = m.now()
	delete(m.positions, id)
	return *pos, nil
}

// AddFees credits claimed fees to a position.
func (m *PositionManager) AddFees(id string, fees float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	pos.Fees += fees
	pos.UpdatedAt = m.now()
	return nil
}

// Recenter moves an Active position onto a new range and counts the rebalance.
func (m *PositionManager) Recenter(id string, r market.BinRange, entryPrice float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	if pos.State != market.Active {
		return fmt.Errorf("%w: recenter in state %s", ErrInvalidTransition, pos.State)
	}
	pos.Range = r
	pos.EntryPrice = entryPrice
	pos.Rebalances++
	pos.UpdatedAt = m.now()
	return nil
}

// Get returns a copy of a managed position.
func (m *PositionManager) Get(id string) (market.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return market.Position{}, fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	return *pos, nil
}

// Active returns copies of every non-closed position ordered by open time then id.
func (m *PositionManager) Active() []market.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]market.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActiveCount returns the number of non-closed positions.
func (m *PositionManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCountLocked()
}

// ForPair returns the Active positions held on pair.
func (m *PositionManager) ForPair(pair string) []market.Position {
	var out []market.Position
	for _, pos := range m.Active() {
		if pos.Pair == pair && pos.State == market.Active {
			out = append(out, pos)
		}
	}
	return out
}

// Weakest returns the Active position with the lowest expected profit.
func (m *PositionManager) Weakest() (market.Position, bool) {
	var weakest market.Position
	found := false
	for _, pos := range m.Active() {
		if pos.State != market.Active {
			continue
		}
		if !found || pos.ExpectedProfit < weakest.ExpectedProfit {
			weakest, found = pos, true
		}
	}
	return weakest, found
}

// Restore loads previously persisted positions; closed ones are ignored.
func (m *PositionManager) Restore(positions []market.Position) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, pos := range positions {
		if pos.State == market.Closed || pos.ID == "" {
			continue
		}
		p := pos
		m.positions[p.ID] = &p
		n++
	}
	return n
}

func (m *PositionManager) transition(id string, to market.PositionState, from market.PositionState) (market.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return market.Position{}, fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	if pos.State != from {
		return market.Position{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, pos.State, to)
	}
	pos.State = to
	pos.UpdatedAt = m.now()
	return *pos, nil
}

func (m *PositionManager) openCountLocked() int {
	return len(m.positions)
}
