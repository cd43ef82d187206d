package risk

import "testing"

func TestAllow(t *testing.T) {
	limits := Limits{MaxNotionalPerPosition: 50, MaxPortfolioNotional: 120}
	if !limits.Allow(49.9, 0) {
		t.Fatalf("expected notional under limit to pass")
	}
	if limits.Allow(50.1, 0) {
		t.Fatalf("expected notional above limit to fail")
	}
	if limits.Allow(40, 90) {
		t.Fatalf("expected portfolio limit to fail")
	}
	if limits.Allow(0, 0) {
		t.Fatalf("expected zero notional to fail")
	}
}

func TestHeadroom(t *testing.T) {
	if got := (Limits{}).Headroom(1e9); got != -1 {
		t.Fatalf("expected unlimited headroom, got %.2f", got)
	}
	limits := Limits{MaxPortfolioNotional: 100}
	if got := limits.Headroom(30); got != 70 {
		t.Fatalf("expected 70 headroom, got %.2f", got)
	}
	if got := limits.Headroom(130); got != 0 {
		t.Fatalf("expected 0 headroom, got %.2f", got)
	}
}
