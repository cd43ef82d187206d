package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lpmaker-go/internal/market"
)

func TestPositionsURL(t *testing.T) {
	if got := positionsURL(":9090"); got != "http://localhost:9090/positions" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := positionsURL("10.0.0.5:9000"); got != "http://10.0.0.5:9000/positions" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestFetchPositions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]market.Position{{ID: "p1", Pair: "SOL-USDC", State: market.Active, Notional: 250}})
	}))
	defer server.Close()

	positions, err := fetchPositions(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetchPositions error: %v", err)
	}
	if len(positions) != 1 || positions[0].State != market.Active || positions[0].Notional != 250 {
		t.Fatalf("unexpected positions %+v", positions)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" sol, ,jup ,\n")
	if len(got) != 2 || got[0] != "sol" || got[1] != "jup" {
		t.Fatalf("unexpected list %v", got)
	}
}
