package collect

import (
	"math"
	"testing"
	"time"

	"lpmaker-go/internal/market"
)

func TestFilterTradesBySizeAndAge(t *testing.T) {
	now := baseTime.Add(time.Hour)
	c := NewTradeCollector(TradeConfig{MaxHistory: 30 * time.Minute, MinTradeSize: 0.5}, WithClock(fixedClock(now)))
	trades := []market.Trade{
		{Timestamp: now.Add(-time.Minute), Price: 100, Size: 1},
		{Timestamp: now.Add(-time.Minute), Price: 100, Size: 0.1},
		{Timestamp: now.Add(-time.Hour), Price: 100, Size: 2},
		{Timestamp: now.Add(-time.Minute), Price: math.NaN(), Size: 2},
	}
	out := c.FilterTrades(trades)
	if len(out) != 1 || out[0].Size != 1 {
		t.Fatalf("unexpected filtered trades %+v", out)
	}
}

func TestClassifyTrades(t *testing.T) {
	c := NewTradeCollector(TradeConfig{})
	trades := []market.Trade{
		{Price: 101, BidPrice: 99, AskPrice: 101},
		{Price: 99, BidPrice: 99, AskPrice: 101},
		{Price: 100.5, BidPrice: 99, AskPrice: 101},
		{Price: 99.5, BidPrice: 99, AskPrice: 101},
		{Price: 100, Side: market.SideSell},
	}
	out := c.ClassifyTrades(trades)
	want := []string{"buyer", "seller", "buyer", "seller", "seller"}
	for i, tr := range out {
		if tr.Aggressor() != want[i] {
			t.Fatalf("trade %d: expected %s got %s", i, want[i], tr.Aggressor())
		}
	}
	if trades[0].Side != market.SideUnknown {
		t.Fatalf("input trades must not be mutated")
	}
}

func TestAggregateTradesBuckets(t *testing.T) {
	c := NewTradeCollector(TradeConfig{MicroTradeSize: 0.1})
	trades := []market.Trade{
		{Timestamp: baseTime, Price: 100, Size: 1, Side: market.SideBuy},
		{Timestamp: baseTime.Add(10 * time.Second), Price: 102, Size: 3, Side: market.SideSell},
		{Timestamp: baseTime.Add(70 * time.Second), Price: 101, Size: 2, Side: market.SideBuy},
	}
	buckets := c.AggregateTrades(trades, time.Minute)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	first := buckets[0]
	if first.Volume != 4 || first.Count != 2 {
		t.Fatalf("unexpected first bucket %+v", first)
	}
	if math.Abs(first.VWAP-101.5) > 1e-9 {
		t.Fatalf("expected vwap 101.5 got %f", first.VWAP)
	}
	if first.BuyVolume != 1 || first.SellVolume != 3 {
		t.Fatalf("unexpected side volumes %+v", first)
	}
}

func TestMergeMicroTrades(t *testing.T) {
	trades := []market.Trade{
		{Timestamp: baseTime, Price: 100, Size: 1, Side: market.SideBuy},
		{Timestamp: baseTime.Add(time.Second), Price: 100, Size: 0.05, Side: market.SideBuy},
		{Timestamp: baseTime.Add(2 * time.Second), Price: 101, Size: 2, Side: market.SideSell},
		{Timestamp: baseTime.Add(3 * time.Second), Price: 102, Size: 0.05, Side: market.SideBuy},
	}
	out := MergeMicroTrades(trades, 0.1)
	if len(out) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(out))
	}
	merged := out[1]
	if math.Abs(merged.Size-0.1) > 1e-12 || math.Abs(merged.Price-101) > 1e-9 {
		t.Fatalf("unexpected merged trade %+v", merged)
	}
	if merged.Side != market.SideBuy {
		t.Fatalf("expected net buy side on merged trade")
	}
	if out[0].Size != 1 || out[2].Size != 2 {
		t.Fatalf("large trades must be preserved")
	}
}
