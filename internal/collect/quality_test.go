package collect

import (
	"errors"
	"testing"
	"time"

	"lpmaker-go/internal/market"
)

func TestCheckSpreads(t *testing.T) {
	c := NewQualityChecker(QualityConfig{MaxSpreadRatio: 0.01, MaxPriceChange: 0.1})
	flags := c.CheckSpreads([]market.Quote{
		{Bid: 99.9, Ask: 100.1},
		{Bid: 95, Ask: 105},
	})
	if flags[0] || !flags[1] {
		t.Fatalf("unexpected flags %v", flags)
	}
}

func TestDetectPriceJumps(t *testing.T) {
	c := NewQualityChecker(QualityConfig{MaxSpreadRatio: 0.01, MaxPriceChange: 0.1})
	prices := make([]float64, 10)
	for i := range prices {
		prices[i] = 100 + float64(i)*0.1
	}
	prices[5] = 200
	jumps := c.DetectPriceJumps(prices)
	if len(jumps) != 1 || jumps[0] != 5 {
		t.Fatalf("expected jump at index 5, got %v", jumps)
	}
	if got := c.DetectPriceJumps([]float64{100, 101, 102}); len(got) != 0 {
		t.Fatalf("expected no jumps, got %v", got)
	}
}

func TestDetectPriceJumpsLevelShiftReportedOnce(t *testing.T) {
	c := NewQualityChecker(QualityConfig{MaxSpreadRatio: 0.01, MaxPriceChange: 0.1})
	jumps := c.DetectPriceJumps([]float64{100, 100.5, 120, 120.1, 120.2, 120.3, 120.4})
	if len(jumps) != 1 || jumps[0] != 2 {
		t.Fatalf("expected a single jump at index 2, got %v", jumps)
	}
	// A shift up then back down is two jumps once the new level held.
	jumps = c.DetectPriceJumps([]float64{100, 130, 130.5, 100.2})
	if len(jumps) != 2 || jumps[0] != 1 || jumps[1] != 3 {
		t.Fatalf("expected jumps at 1 and 3, got %v", jumps)
	}
}

func TestReportCountsAndSufficiency(t *testing.T) {
	c := NewQualityChecker(QualityConfig{MaxSpreadRatio: 0.01, MaxPriceChange: 0.1, MinQuoteCount: 3})
	quotes := series(4, 30*time.Second)
	quotes[0].Stale = true

	report, err := c.Report(quotes)
	if err != nil {
		t.Fatalf("Report returned error: %v", err)
	}
	if report.StaleCount != 1 || report.UsableCount != 3 || !report.Sufficient {
		t.Fatalf("unexpected report %+v", report)
	}

	quotes[1].Stale = true
	report, err = c.Report(quotes)
	if !errors.Is(err, market.ErrInsufficientData) {
		t.Fatalf("expected insufficient data error, got %v", err)
	}
	if report.UsableCount != 2 {
		t.Fatalf("report should still be populated, got %+v", report)
	}
}
