package integration

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"lpmaker-go/internal/exchange"
	"lpmaker-go/internal/execution"
	"lpmaker-go/internal/maker"
	"lpmaker-go/internal/market"
	"lpmaker-go/internal/paper"
	"lpmaker-go/internal/risk"
)

const pair = "SOL-USDC"

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

// publish records one second of market activity per tick over the last interval.
func publish(feed *exchange.Feed, from time.Time, ticks, offset int, mid float64) {
	for i := 0; i < ticks; i++ {
		ts := from.Add(time.Duration(i+1) * time.Second)
		step := offset + i
		m := mid * (1 + 0.0005*math.Sin(float64(step)))
		q := market.Quote{Timestamp: ts, Bid: m * 0.999, Ask: m * 1.001}
		feed.RecordQuote(pair, q)
		px, side := q.Ask, market.SideBuy
		if step%2 == 1 {
			px, side = q.Bid, market.SideSell
		}
		feed.RecordTrade(pair, market.Trade{Timestamp: ts, Price: px, Size: 1 + float64(step%3), Side: side})
		if i == ticks-1 {
			book := market.OrderBook{Timestamp: ts}
			for lvl := 0; lvl < 5; lvl++ {
				gap := mid * 0.001 * float64(lvl)
				book.Bids = append(book.Bids, market.Level{Price: q.Bid - gap, Size: 100})
				book.Asks = append(book.Asks, market.Level{Price: q.Ask + gap, Size: 100})
			}
			feed.RecordBook(pair, book)
		}
	}
}

func TestPaperFlowOpensAndAccruesFees(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}

	feed := exchange.NewFeed(exchange.ProviderStub, []string{pair}, zerolog.Nop())
	account := paper.NewAccount(5000, 2000, paper.WithFeeRate(0.003), paper.WithPoolShare(0.05))
	ledger := paper.NewLedger(16)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	exec := execution.NewExecutor(logger, account, ledger)

	cfg := maker.TradingConfig{UpdateInterval: 30 * time.Second, MaxPositions: 1, MinProfitThreshold: 0.1, PositionNotional: 1000}
	mm, err := maker.New(cfg, exec,
		maker.WithClock(clk.now),
		maker.WithComponents(maker.NewComponents(maker.DefaultComponentConfig(), zerolog.Nop(), clk.now)),
		maker.WithRiskLimits(risk.Limits{MaxPortfolioNotional: 1500}),
	)
	require.NoError(t, err)

	offset := 0
	opened := false
	for cycle := 0; cycle < 14; cycle++ {
		publish(feed, clk.t, 30, offset, 100)
		offset += 30
		clk.t = clk.t.Add(30 * time.Second)

		snap, err := feed.Snapshot(ctx, pair)
		require.NoError(t, err)
		report, err := mm.Update(ctx, map[string]market.Snapshot{pair: snap})
		require.NoError(t, err)
		require.Empty(t, report.Failed)
		if report.Opened > 0 {
			opened = true
		}
		if opened && mm.CollectedFees() > 0 {
			break
		}
	}
	require.True(t, opened, "maker never opened a position")

	active := mm.ActivePositions()
	require.Len(t, active, 1)
	require.Equal(t, pair, active[0].Pair)

	snap := account.Snapshot()
	require.InDelta(t, active[0].Notional, snap.Deployed, 1e-6)
	require.InDelta(t, 5000-snap.Deployed+snap.Fees, snap.Cash, 1e-6)

	require.Greater(t, mm.CollectedFees(), 0.0)
	require.InDelta(t, account.Fees(), mm.CollectedFees(), 1e-6)
	require.Equal(t, 1, ledger.Count(execution.Open))
	require.GreaterOrEqual(t, ledger.Count(execution.Claim), 1)

	if !strings.Contains(buf.String(), "liquidity change") {
		t.Fatalf("expected executor to log the change, got %q", buf.String())
	}
}
