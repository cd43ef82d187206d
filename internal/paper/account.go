// Package paper simulates a liquidity venue so the maker can run without signing transactions.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lpmaker-go/internal/execution"
)

var (
	errInsufficientCash = errors.New("insufficient cash for deposit")
	errPositionLimit    = errors.New("position notional limit exceeded")
	errUnknownPosition  = errors.New("unknown paper position")
)

// Account tracks virtual cash, deployed liquidity, and accrued fees while making markets in paper mode.
// Amounts are kept as decimals so repeated fee accrual does not drift.
type Account struct {
	mu                  sync.Mutex
	startingCash        decimal.Decimal
	cash                decimal.Decimal
	fees                decimal.Decimal
	feeRate             decimal.Decimal
	poolShare           decimal.Decimal
	maxPositionNotional decimal.Decimal
	deployed            map[string]decimal.Decimal
	pairs               map[string]string
}

// AccountOption configures fee simulation.
type AccountOption func(*Account)

// WithFeeRate sets the pool swap fee as a fraction of traded volume.
func WithFeeRate(rate float64) AccountOption {
	return func(a *Account) {
		if rate > 0 {
			a.feeRate = decimal.NewFromFloat(rate)
		}
	}
}

// WithPoolShare sets the fraction of pool fees the simulated position captures.
func WithPoolShare(share float64) AccountOption {
	return func(a *Account) {
		if share > 0 && share <= 1 {
			a.poolShare = decimal.NewFromFloat(share)
		}
	}
}

// PositionSnapshot is the deployed notional for one position.
type PositionSnapshot struct {
	Pair     string
	Deployed float64
}

// Snapshot represents a thread-safe view of the account state.
type Snapshot struct {
	Cash      float64
	Deployed  float64
	Fees      float64
	Equity    float64
	Positions map[string]PositionSnapshot
}

// NewAccount constructs an account with starting cash and an optional per-position notional cap.
func NewAccount(startingCash, maxPositionNotional float64, opts ...AccountOption) *Account {
	a := &Account{
		startingCash:        decimal.NewFromFloat(startingCash),
		cash:                decimal.NewFromFloat(startingCash),
		feeRate:             decimal.NewFromFloat(0.0025),
		poolShare:           decimal.NewFromFloat(0.01),
		maxPositionNotional: decimal.NewFromFloat(maxPositionNotional),
		deployed:            make(map[string]decimal.Decimal),
		pairs:               make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// StartingCash returns the initial bankroll.
func (a *Account) StartingCash() float64 { return a.startingCash.InexactFloat64() }

// Apply executes a liquidity change against the simulated venue.
func (a *Account) Apply(_ context.Context, change execution.Change) (execution.Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	receipt := execution.Receipt{TxID: "paper-" + uuid.NewString(), Ts: time.Now().UTC()}
	notional := decimal.NewFromFloat(change.Notional)

	switch change.Kind {
	case execution.Open, execution.Add:
		if !notional.IsPositive() {
			return receipt, errors.New("notional must be positive")
		}
		if notional.GreaterThan(a.cash) {
			return receipt, errInsufficientCash
		}
		next := a.deployed[change.PositionID].Add(notional)
		if a.maxPositionNotional.IsPositive() && next.GreaterThan(a.maxPositionNotional) {
			return receipt, errPositionLimit
		}
		a.cash = a.cash.Sub(notional)
		a.deployed[change.PositionID] = next
		a.pairs[change.PositionID] = change.Pair

	case execution.Remove:
		current, ok := a.deployed[change.PositionID]
		if !ok {
			return receipt, fmt.Errorf("%w: %s", errUnknownPosition, change.PositionID)
		}
		if !notional.IsPositive() || notional.GreaterThan(current) {
			notional = current
		}
		a.cash = a.cash.Add(notional)
		a.deployed[change.PositionID] = current.Sub(notional)

	case execution.Claim:
		if _, ok := a.deployed[change.PositionID]; !ok {
			return receipt, fmt.Errorf("%w: %s", errUnknownPosition, change.PositionID)
		}
		receipt.Fees = a.accrueLocked(change.Volume)

	case execution.Close:
		current, ok := a.deployed[change.PositionID]
		if !ok {
			return receipt, fmt.Errorf("%w: %s", errUnknownPosition, change.PositionID)
		}
		receipt.Fees = a.accrueLocked(change.Volume)
		a.cash = a.cash.Add(current)
		delete(a.deployed, change.PositionID)
		delete(a.pairs, change.PositionID)

	default:
		return receipt, fmt.Errorf("unknown change kind %q", change.Kind)
	}
	receipt.OK = true
	return receipt, nil
}

func (a *Account) accrueLocked(volume float64) float64 {
	if volume <= 0 {
		return 0
	}
	fee := decimal.NewFromFloat(volume).Mul(a.feeRate).Mul(a.poolShare)
	a.fees = a.fees.Add(fee)
	a.cash = a.cash.Add(fee)
	return fee.InexactFloat64()
}

// Snapshot returns a copy of balances.
func (a *Account) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.deployed))
	deployed := decimal.Zero
	for id, amt := range a.deployed {
		positions[id] = PositionSnapshot{Pair: a.pairs[id], Deployed: amt.InexactFloat64()}
		deployed = deployed.Add(amt)
	}
	return Snapshot{
		Cash:      a.cash.InexactFloat64(),
		Deployed:  deployed.InexactFloat64(),
		Fees:      a.fees.InexactFloat64(),
		Equity:    a.cash.Add(deployed).InexactFloat64(),
		Positions: positions,
	}
}

// AvailableCash reports free cash that can be deployed into new positions.
func (a *Account) AvailableCash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash.InexactFloat64()
}

// Fees returns total fees accrued.
func (a *Account) Fees() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fees.InexactFloat64()
}
