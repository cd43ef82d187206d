package metrics

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"lpmaker-go/internal/market"
)

func TestServeRegistersMetrics(t *testing.T) {
	srv := Serve(":0")
	defer srv.Close()

	Cycles.WithLabelValues("SOL-USDC", "ok").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "cycles_total" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("cycles_total metric not found")
	}
}

func TestPositionsHandler(t *testing.T) {
	handler := PositionsHandler(func() []market.Position {
		return []market.Position{{ID: "p1", Pair: "SOL-USDC", State: market.Active}}
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/positions", nil))

	var decoded []market.Position
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode positions: %v", err)
	}
	if len(decoded) != 1 || decoded[0].ID != "p1" || decoded[0].State != market.Active {
		t.Fatalf("unexpected positions payload %s", rec.Body.String())
	}

	empty := PositionsHandler(func() []market.Position { return nil })
	rec = httptest.NewRecorder()
	empty.ServeHTTP(rec, httptest.NewRequest("GET", "/positions", nil))
	if rec.Body.String() != "[]\n" {
		t.Fatalf("expected empty array, got %q", rec.Body.String())
	}
}
