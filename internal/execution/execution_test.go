package execution

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type stubBackend struct {
	receipt Receipt
	err     error
	calls   int
}

func (s *stubBackend) Apply(_ context.Context, _ Change) (Receipt, error) {
	s.calls++
	return s.receipt, s.err
}

type captureRecorder struct{ receipts []Receipt }

func (c *captureRecorder) Record(r Receipt) { c.receipts = append(c.receipts, r) }

func TestSubmitDryRunLogsChange(t *testing.T) {
	var buf bytes.Buffer
	rec := &captureRecorder{}
	exec := NewExecutor(zerolog.New(&buf), nil, rec)

	receipt, err := exec.Submit(context.Background(), Change{Pair: "SOL-USDC", Kind: Open, Notional: 100})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if !receipt.OK || !strings.HasPrefix(receipt.TxID, "dry-run-") {
		t.Fatalf("unexpected dry-run receipt %+v", receipt)
	}
	if !strings.Contains(buf.String(), "SOL-USDC") {
		t.Fatalf("log does not contain pair: %s", buf.String())
	}
	if len(rec.receipts) != 1 || rec.receipts[0].Change.Kind != Open {
		t.Fatalf("expected receipt recorded, got %+v", rec.receipts)
	}
}

func TestSubmitBackendRejection(t *testing.T) {
	backend := &stubBackend{receipt: Receipt{OK: false}}
	exec := NewExecutor(zerolog.Nop(), backend)
	receipt, err := exec.Submit(context.Background(), Change{Pair: "SOL-USDC", Kind: Close})
	if err == nil || receipt.OK {
		t.Fatalf("expected rejection, got %+v err=%v", receipt, err)
	}

	backend = &stubBackend{err: errors.New("rpc down")}
	exec = NewExecutor(zerolog.Nop(), backend)
	receipt, err = exec.Submit(context.Background(), Change{Pair: "SOL-USDC", Kind: Claim})
	if err == nil || receipt.Error != "rpc down" {
		t.Fatalf("expected backend error surfaced, got %+v err=%v", receipt, err)
	}
	if backend.calls != 1 {
		t.Fatalf("expected one backend call, got %d", backend.calls)
	}
}
