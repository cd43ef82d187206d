package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"lpmaker-go/internal/config"
)

func TestPairDiscoveryRefreshMergesSymbols(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"pairs": [{
				"chainId": "solana",
				"pairAddress": "ADDR1",
				"baseToken": {"address": "BASE", "name": "Dog Wif Hat", "symbol": "WIF"},
				"quoteToken": {"address": "QUOTE", "name": "Wrapped SOL", "symbol": "SOL"},
				"priceUsd": "0.1",
				"txns": {"m5": {"buys": 10, "sells": 2}},
				"volume": {"h24": 10000},
				"liquidity": {"usd": 15000},
				"priceChange": {"h24": 2.5}
			}]
		}`))
	}))
	defer server.Close()

	feed := NewFeed(ProviderDexScreener, []string{"MANUAL@solana/MANUAL"}, zerolog.Nop())

	discCfg := config.Discovery{
		Enabled:         true,
		Keywords:        []string{"wif"},
		Chains:          []string{"solana"},
		MaxPairs:        5,
		RefreshInterval: 1000,
		MinLiquidityUSD: 5000,
	}
	deConfig := config.DexScreener{BaseURL: server.URL, DefaultChain: "solana"}
	disc := NewPairDiscovery(zerolog.Nop(), feed, []string{"MANUAL@solana/MANUAL"}, deConfig, discCfg)
	if disc == nil {
		t.Fatalf("expected discovery to be constructed")
	}
	disc.client = server.Client()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := disc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	symbols := feed.snapshotSymbols()
	if len(symbols) != 2 {
		t.Fatalf("expected 2 symbols, got %d: %+v", len(symbols), symbols)
	}
	var hasManual, hasDiscovered bool
	for _, sym := range symbols {
		switch sym {
		case "MANUAL@solana/MANUAL":
			hasManual = true
		case "WIFSOL_ADDR1@solana/ADDR1":
			hasDiscovered = true
		}
	}
	if !hasManual {
		t.Fatalf("manual symbol missing: %+v", symbols)
	}
	if !hasDiscovered {
		t.Fatalf("discovered symbol missing: %+v", symbols)
	}
}

func TestPairDiscoveryVolumeFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs": [{"chainId": "solana","pairAddress": "ADDRLOW","baseToken": {"address": "BASE", "name": "Low Vol", "symbol": "LOW"},"quoteToken": {"address": "QUOTE", "name": "Wrapped SOL", "symbol": "SOL"},"priceUsd": "0.01","txns": {"m5": {"buys": 1, "sells": 1}},"volume": {"h24": 100},"liquidity": {"usd": 12000},"priceChange": {"h24": 0.5}}]}`))
	}))
	defer server.Close()

	feed := NewFeed(ProviderDexScreener, []string{"MANUAL@solana/MANUAL"}, zerolog.Nop())
	discCfg := config.Discovery{
		Enabled:         true,
		Keywords:        []string{"low"},
		Chains:          []string{"solana"},
		MaxPairs:        5,
		RefreshInterval: 1000,
		MinLiquidityUSD: 500,
		MinVolumeUSD:    5000,
	}
	deConfig := config.DexScreener{BaseURL: server.URL, DefaultChain: "solana"}
	disc := NewPairDiscovery(zerolog.Nop(), feed, []string{"MANUAL@solana/MANUAL"}, deConfig, discCfg)
	if disc == nil {
		t.Fatalf("expected discovery to be constructed")
	}
	disc.client = server.Client()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := disc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	symbols := feed.snapshotSymbols()
	if len(symbols) != 1 || symbols[0] != "MANUAL@solana/MANUAL" {
		t.Fatalf("expected only manual symbol, got %+v", symbols)
	}
}

func TestPairDiscoveryRanksByTurnover(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs": [
			{"chainId": "solana","pairAddress": "DEEP01","baseToken": {"symbol": "DEEP"},"quoteToken": {"symbol": "USDC"},"priceUsd": "1","volume": {"h24": 10000},"liquidity": {"usd": 1000000}},
			{"chainId": "solana","pairAddress": "BUSY01","baseToken": {"symbol": "BUSY"},"quoteToken": {"symbol": "USDC"},"priceUsd": "1","volume": {"h24": 50000},"liquidity": {"usd": 20000}}
		]}`))
	}))
	defer server.Close()

	feed := NewFeed(ProviderDexScreener, nil, zerolog.Nop())
	discCfg := config.Discovery{Enabled: true, Keywords: []string{"usdc"}, Chains: []string{"solana"}, MaxPairs: 1, MaxPairsPerKeyword: 5}
	disc := NewPairDiscovery(zerolog.Nop(), feed, nil, config.DexScreener{BaseURL: server.URL}, discCfg)
	disc.client = server.Client()

	if err := disc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	symbols := feed.snapshotSymbols()
	if len(symbols) != 1 || symbols[0] != "BUSYUSDC_BUSY01@solana/BUSY01" {
		t.Fatalf("expected high turnover pool kept, got %+v", symbols)
	}
}

func TestPairDiscoveryDisabled(t *testing.T) {
	feed := NewFeed(ProviderDexScreener, nil, zerolog.Nop())
	if disc := NewPairDiscovery(zerolog.Nop(), feed, nil, config.DexScreener{}, config.Discovery{}); disc != nil {
		t.Fatalf("expected nil discovery when disabled")
	}
}

func TestPairDiscoveryFiltersDexIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pairs": [
			{"chainId": "solana","dexId": "raydium","pairAddress": "AMM001","baseToken": {"symbol": "SOL"},"quoteToken": {"symbol": "USDC"},"volume": {"h24": 90000},"liquidity": {"usd": 30000}},
			{"chainId": "solana","dexId": "meteora","pairAddress": "DLMM01","baseToken": {"symbol": "SOL"},"quoteToken": {"symbol": "USDC"},"volume": {"h6": 20000},"liquidity": {"usd": 40000}},
			{"chainId": "base","dexId": "meteora","pairAddress": "BASE01","baseToken": {"symbol": "ETH"},"quoteToken": {"symbol": "USDC"},"volume": {"h24": 20000},"liquidity": {"usd": 40000}}
		]}`))
	}))
	defer server.Close()

	feed := NewFeed(ProviderDexScreener, nil, zerolog.Nop())
	discCfg := config.Discovery{Enabled: true, Keywords: []string{"sol"}, DexIDs: []string{"Meteora"}, MinVolumeUSD: 1000}
	disc := NewPairDiscovery(zerolog.Nop(), feed, nil, config.DexScreener{BaseURL: server.URL, DefaultChain: "solana"}, discCfg)
	disc.client = server.Client()

	if err := disc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	want := "SOLUSDC_DLMM01@solana/DLMM01"
	if got := disc.Universe(); len(got) != 1 || got[0] != want {
		t.Fatalf("expected only the meteora solana pool, got %+v", got)
	}
	if pairs := feed.Pairs(); len(pairs) != 1 || pairs[0] != "SOLUSDC_DLMM01" {
		t.Fatalf("unexpected feed pairs %+v", pairs)
	}
}

func TestMergeSymbols(t *testing.T) {
	got := mergeSymbols([]string{" B ", "A", "", "B"})
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("unexpected merge %+v", got)
	}
}

func TestComposeDexAlias(t *testing.T) {
	cases := map[[2]string]string{
		{"sol-usdc", "abcdef123456"}: "SOLUSDC_123456",
		{"", "xy"}:                   "PAIR_XY",
		{"wif", ""}:                  "WIF",
		{"", ""}:                     "PAIR",
		{"SOLUSDC_DLMM01", "DLMM01"}: "SOLUSDC_DLMM01",
	}
	for in, want := range cases {
		if got := composeDexAlias(in[0], in[1]); got != want {
			t.Fatalf("composeDexAlias(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}
