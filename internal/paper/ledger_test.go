package paper

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lpmaker-go/internal/execution"
)

func TestLedgerRecordSnapshot(t *testing.T) {
	ledger := NewLedger(2)
	receipt := execution.Receipt{Change: execution.Change{Pair: "SOL-USDC", Kind: execution.Open}, OK: true}
	ledger.Record(receipt)

	snapshot := ledger.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 receipt, got %d", len(snapshot))
	}
	if snapshot[0].Change.Pair != receipt.Change.Pair {
		t.Fatalf("unexpected receipt pair")
	}
	if ledger.Count(execution.Open) != 1 || ledger.Count(execution.Close) != 0 {
		t.Fatalf("unexpected kind counts")
	}

	ledger.Reset()
	if len(ledger.Snapshot()) != 0 {
		t.Fatalf("expected ledger reset")
	}
}

func TestLedgerSummariesGroupByPair(t *testing.T) {
	ledger := NewLedger(0)
	ledger.Record(execution.Receipt{Change: execution.Change{Pair: "SOL-USDC", Kind: execution.Open}, OK: true})
	ledger.Record(execution.Receipt{Change: execution.Change{Pair: "SOL-USDC", Kind: execution.Claim}, OK: true, Fees: 0.5})
	ledger.Record(execution.Receipt{Change: execution.Change{Pair: "SOL-USDC", Kind: execution.Close}, OK: true, Fees: 0.25})
	ledger.Record(execution.Receipt{Change: execution.Change{Pair: "JUP-USDC", Kind: execution.Open}, OK: false, Fees: 9})

	sums := ledger.Summaries()
	require.Len(t, sums, 2)
	require.Equal(t, PairSummary{Pair: "JUP-USDC", Rejected: 1}, sums[0])
	require.Equal(t, "SOL-USDC", sums[1].Pair)
	require.Equal(t, 1, sums[1].Opens)
	require.Equal(t, 1, sums[1].Claims)
	require.Equal(t, 1, sums[1].Closes)
	require.InDelta(t, 0.75, sums[1].Fees, 1e-9)
}
