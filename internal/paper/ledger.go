package paper

import (
	"sort"
	"sync"

	"lpmaker-go/internal/execution"
)

// Ledger stores liquidity change receipts in memory for quick inspection.
type Ledger struct {
	mu       sync.Mutex
	receipts []execution.Receipt
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{receipts: make([]execution.Receipt, 0, capacity)}
}

// Record appends a receipt to the ledger.
func (l *Ledger) Record(receipt execution.Receipt) {
	l.mu.Lock()
	l.receipts = append(l.receipts, receipt)
	l.mu.Unlock()
}

// Snapshot returns a copy of the recorded receipts.
func (l *Ledger) Snapshot() []execution.Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]execution.Receipt, len(l.receipts))
	copy(out, l.receipts)
	return out
}

// Count returns how many receipts of kind were recorded.
func (l *Ledger) Count(kind execution.Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.receipts {
		if r.Change.Kind == kind {
			n++
		}
	}
	return n
}

// PairSummary aggregates receipts for one pair.
type PairSummary struct {
	Pair     string
	Opens    int
	Closes   int
	Claims   int
	Rejected int
	Fees     float64
}

// Summaries groups the recorded receipts by pair, sorted by pair name. Rejected receipts only
// count toward Rejected.
func (l *Ledger) Summaries() []PairSummary {
	l.mu.Lock()
	byPair := make(map[string]*PairSummary)
	for _, r := range l.receipts {
		sum, ok := byPair[r.Change.Pair]
		if !ok {
			sum = &PairSummary{Pair: r.Change.Pair}
			byPair[r.Change.Pair] = sum
		}
		if !r.OK {
			sum.Rejected++
			continue
		}
		switch r.Change.Kind {
		case execution.Open:
			sum.Opens++
		case execution.Close:
			sum.Closes++
		case execution.Claim:
			sum.Claims++
		}
		sum.Fees += r.Fees
	}
	l.mu.Unlock()

	out := make([]PairSummary, 0, len(byPair))
	for _, sum := range byPair {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// Reset clears all stored receipts.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.receipts = l.receipts[:0]
	l.mu.Unlock()
}
