// Package execution handles the liquidity change lifecycle and interaction with venues.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lpmaker-go/internal/market"
	"lpmaker-go/internal/metrics"
)

// Kind enumerates liquidity change operations.
type Kind string

const (
	Open   Kind = "open"
	Add    Kind = "add"
	Remove Kind = "remove"
	Close  Kind = "close"
	Claim  Kind = "claim"
)

// Change is a liquidity change request. Volume is the traded volume observed through the range
// since the previous claim; simulated backends use it to accrue fees.
type Change struct {
	Pair       string          `json:"pair"`
	PositionID string          `json:"position_id"`
	Kind       Kind            `json:"kind"`
	Range      market.BinRange `json:"range"`
	Notional   float64         `json:"notional"`
	Price      float64         `json:"price"`
	Volume     float64         `json:"volume,omitempty"`
}

// Receipt is the venue response to a Change.
type Receipt struct {
	Change Change    `json:"change"`
	OK     bool      `json:"ok"`
	TxID   string    `json:"tx_id,omitempty"`
	Fees   float64   `json:"fees"`
	Error  string    `json:"error,omitempty"`
	Ts     time.Time `json:"ts"`
}

// Backend applies liquidity changes against a venue.
type Backend interface {
	Apply(ctx context.Context, change Change) (Receipt, error)
}

// Recorder captures receipts for later inspection.
type Recorder interface {
	Record(Receipt)
}

// Executor wraps a backend with logging, metrics, and receipt recording.
// A nil backend runs in dry-run mode and accepts every change.
type Executor struct {
	log       zerolog.Logger
	backend   Backend
	recorders []Recorder
}

// NewExecutor builds an executor.
func NewExecutor(log zerolog.Logger, backend Backend, recorders ...Recorder) *Executor {
	return &Executor{log: log, backend: backend, recorders: recorders}
}

// Submit applies a change and returns the receipt. A rejected change returns a receipt with OK=false and an error.
func (executor *Executor) Submit(ctx context.Context, change Change) (Receipt, error) {
	var (
		receipt Receipt
		err     error
	)
	if executor.backend == nil {
		receipt = Receipt{OK: true, TxID: "dry-run-" + uuid.NewString()}
	} else {
		receipt, err = executor.backend.Apply(ctx, change)
	}
	receipt.Change = change
	if receipt.Ts.IsZero() {
		receipt.Ts = time.Now().UTC()
	}
	if err == nil && !receipt.OK {
		err = fmt.Errorf("%s rejected for %s", change.Kind, change.Pair)
	}
	if err != nil {
		receipt.OK = false
		if receipt.Error == "" {
			receipt.Error = err.Error()
		}
	}

	result := "ok"
	if !receipt.OK {
		result = "rejected"
	}
	metrics.LiquidityChanges.WithLabelValues(change.Pair, string(change.Kind), result).Inc()
	for _, rec := range executor.recorders {
		rec.Record(receipt)
	}

	event := executor.log.Info()
	if err != nil {
		event = executor.log.Error().Err(err)
	}
	event.Str("pair", change.Pair).
		Str("kind", string(change.Kind)).
		Str("position", change.PositionID).
		Float64("notional", change.Notional).
		Float64("px", change.Price).
		Float64("fees", receipt.Fees).
		Str("tx", receipt.TxID).
		Msg("submit liquidity change")
	return receipt, err
}
