package redis

import (
	"context"
	"testing"
	"time"

	"lpmaker-go/internal/market"
)

func TestNewFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := New(ctx, ClientConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}); err == nil {
		t.Fatalf("expected ping error for unreachable server")
	}
}

func TestDecodePositionsOrdersByOpenTime(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	positions := []market.Position{
		{ID: "b", Pair: "SOL-USDC", State: market.Active, OpenedAt: base.Add(time.Minute)},
		{ID: "a", Pair: "JUP-USDC", State: market.Exiting, OpenedAt: base},
	}
	fields, err := encodePositions(positions)
	if err != nil {
		t.Fatalf("encodePositions error: %v", err)
	}
	raw := make(map[string]string, len(fields))
	for id, v := range fields {
		raw[id] = string(v.([]byte))
	}
	decoded, err := decodePositions(raw)
	if err != nil {
		t.Fatalf("decodePositions error: %v", err)
	}
	if len(decoded) != 2 || decoded[0].ID != "a" || decoded[1].ID != "b" {
		t.Fatalf("unexpected order %+v", decoded)
	}
	if decoded[0].State != market.Exiting {
		t.Fatalf("expected state preserved, got %s", decoded[0].State)
	}
	if _, err := decodePositions(map[string]string{"x": "{"}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNewPositionStoreDefaultPrefix(t *testing.T) {
	store := NewPositionStore(&Client{}, "")
	if store.positionsKey() != "lpmaker:positions" || store.feesKey() != "lpmaker:fees" {
		t.Fatalf("unexpected keys %s %s", store.positionsKey(), store.feesKey())
	}
}
