package maker

import (
	"context"
	"sort"

	"lpmaker-go/internal/analytics"
	"lpmaker-go/internal/execution"
	"lpmaker-go/internal/market"
	"lpmaker-go/internal/strategy"
)

// manageOpen claims fees on every active position with fresh data, then exits or re-centres the
// ones whose triggers fired. It returns the pairs exited this cycle.
func (m *MarketMaker) manageOpen(ctx context.Context, evals map[string]evaluation, report *CycleReport) map[string]bool {
	exited := make(map[string]bool)
	for _, pos := range m.positions.Active() {
		if pos.State != market.Active {
			continue
		}
		ev, ok := evals[pos.Pair]
		if !ok {
			continue
		}
		mode := m.ModeFor(pos.Pair)
		if !mode.Submits() {
			continue
		}

		if ev.volume > 0 {
			receipt, err := m.exec.Submit(ctx, execution.Change{
				Pair: pos.Pair, PositionID: pos.ID, Kind: execution.Claim,
				Range: pos.Range, Price: ev.price, Volume: ev.volume,
			})
			if err == nil {
				if ferr := m.positions.AddFees(pos.ID, receipt.Fees); ferr != nil {
					m.log.Error().Err(ferr).Str("position", pos.ID).Float64("fees", receipt.Fees).Msg("fee bookkeeping failed")
				}
				m.addFees(receipt.Fees)
				report.Fees += receipt.Fees
			}
		}

		health, err := m.positions.MonitorPosition(pos.ID, ev.price, ev.realizedSpread, 0)
		if err != nil {
			m.log.Warn().Err(err).Str("position", pos.ID).Msg("monitor failed")
			continue
		}
		if !health.ShouldExit {
			continue
		}
		if health.Reason == strategy.ReasonPriceOutOfRange && mode.Rebalances(pos.Range, ev.price) {
			if m.rebalance(ctx, pos, ev, report) {
				report.Rebalanced++
			} else if _, err := m.positions.Get(pos.ID); err != nil {
				exited[pos.Pair] = true
			}
			continue
		}
		decision, err := m.positions.EvaluateExit(pos.ID, ev.price, ev.realizedSpread)
		if err != nil || !decision.ShouldExit {
			continue
		}
		m.log.Info().Str("pair", pos.Pair).Str("position", pos.ID).Str("reason", decision.Reason).Msg("exiting position")
		if m.close(ctx, pos, ev.price, report) {
			report.Closed++
			exited[pos.Pair] = true
		}
	}
	return exited
}

// rebalance withdraws the position and redeploys it around the current price.
// A failed redeploy closes the position since its liquidity is already out of the pool.
func (m *MarketMaker) rebalance(ctx context.Context, pos market.Position, ev evaluation, report *CycleReport) bool {
	spread := ev.forecast.Spread
	if !ev.ready {
		spread = ev.realizedSpread
	}
	next, err := m.comps.Bins.CalculateBinRange(ev.price, ev.vol, spread)
	if err != nil {
		m.log.Warn().Err(err).Str("position", pos.ID).Msg("rebalance range failed")
		return false
	}
	remove := execution.Change{Pair: pos.Pair, PositionID: pos.ID, Kind: execution.Remove, Range: pos.Range, Notional: pos.Notional, Price: ev.price}
	if _, err := m.exec.Submit(ctx, remove); err != nil {
		return false
	}
	add := execution.Change{Pair: pos.Pair, PositionID: pos.ID, Kind: execution.Add, Range: next, Notional: pos.Notional, Price: ev.price}
	if _, err := m.exec.Submit(ctx, add); err != nil {
		m.log.Warn().Str("change", describe(add)).Msg("redeploy failed, closing position")
		if err := m.positions.BeginExit(pos.ID); err == nil && m.close(ctx, pos, ev.price, report) {
			report.Closed++
		}
		return false
	}
	if err := m.positions.Recenter(pos.ID, next, ev.price); err != nil {
		m.log.Warn().Err(err).Str("position", pos.ID).Msg("recenter failed")
		return false
	}
	m.log.Info().Str("pair", pos.Pair).Str("position", pos.ID).
		Float64("lower", next.Lower()).Float64("upper", next.Upper()).Msg("rebalanced position")
	return true
}

// close submits the close of an Exiting position and finalizes it, or returns it to Active on rejection.
// exitPrice is the pair's price this cycle, or the entry price when the pair had no fresh snapshot.
func exitPrice(evals map[string]evaluation, pos market.Position) float64 {
	if ev, ok := evals[pos.Pair]; ok && ev.price > 0 {
		return ev.price
	}
	return pos.EntryPrice
}

func (m *MarketMaker) close(ctx context.Context, pos market.Position, price float64, report *CycleReport) bool {
	receipt, err := m.exec.Submit(ctx, execution.Change{
		Pair: pos.Pair, PositionID: pos.ID, Kind: execution.Close,
		Range: pos.Range, Notional: pos.Notional, Price: price,
	})
	if err != nil {
		if rerr := m.positions.Reactivate(pos.ID); rerr != nil {
			m.log.Error().Err(rerr).Str("position", pos.ID).Msg("reactivate failed")
		}
		return false
	}
	if _, err := m.positions.Close(pos.ID, receipt.Fees); err != nil {
		m.log.Error().Err(err).Str("position", pos.ID).Msg("close bookkeeping failed")
		return false
	}
	m.addFees(receipt.Fees)
	report.Fees += receipt.Fees
	return true
}

// enter ranks pairs without a position and opens the profitable ones, rotating out the weakest
// position when capacity is full and a candidate strictly dominates it. Pairs in skip sit out the cycle.
func (m *MarketMaker) enter(ctx context.Context, evals map[string]evaluation, skip map[string]bool, report *CycleReport) {
	held := make(map[string]bool)
	for _, pos := range m.positions.Active() {
		held[pos.Pair] = true
	}
	candidates := make([]analytics.Candidate, 0, len(evals))
	for pair, ev := range evals {
		if !ev.ready || held[pair] || skip[pair] || !m.ModeFor(pair).Submits() {
			continue
		}
		candidates = append(candidates, analytics.Candidate{
			Name:            pair,
			PredictedSpread: ev.forecast.Spread,
			Size:            m.cfg.PositionNotional,
			Slippage:        ev.slippage,
			InventoryRisk:   ev.inventoryRisk(),
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })

	for _, ranked := range m.comps.Profit.RankPairs(candidates) {
		ev := evals[ranked.Name]
		decision, err := m.positions.EvaluateEntry(ev.forecast.Spread, ev.vol, ev.price, ranked.Profit)
		if err != nil {
			m.log.Warn().Err(err).Str("pair", ranked.Name).Msg("entry evaluation failed")
			continue
		}
		switch {
		case decision.ShouldEnter:
		case decision.Reason == strategy.ReasonMaxPositions:
			weakest, ok := m.positions.Weakest()
			if !ok || ranked.Profit <= weakest.ExpectedProfit {
				continue
			}
			if err := m.positions.BeginExit(weakest.ID); err != nil {
				continue
			}
			m.log.Info().Str("out", weakest.Pair).Str("in", ranked.Name).
				Float64("out_profit", weakest.ExpectedProfit).Float64("in_profit", ranked.Profit).Msg("rotating position")
			if !m.close(ctx, weakest, exitPrice(evals, weakest), report) {
				continue
			}
			report.Closed++
			report.Rotated++
			r, err := m.comps.Bins.CalculateBinRange(ev.price, ev.vol, ev.forecast.Spread)
			if err != nil {
				continue
			}
			decision.Range = r
		default:
			// Ranked by profit, so every later candidate is below the threshold too.
			return
		}
		if !m.limits.Allow(m.cfg.PositionNotional, m.deployed()) {
			m.warn(ranked.Name, "risk_limit").Float64("notional", m.cfg.PositionNotional).Msg("entry blocked by risk limits")
			continue
		}
		if m.open(ctx, ranked, ev, decision.Range) {
			report.Opened++
		}
	}
}

func (m *MarketMaker) open(ctx context.Context, ranked analytics.Ranked, ev evaluation, r market.BinRange) bool {
	pos, err := m.positions.Open(strategy.OpenRequest{
		Pair:           ranked.Name,
		Range:          r,
		EntryPrice:     ev.price,
		TargetSpread:   ev.forecast.Spread,
		ExpectedProfit: ranked.Profit,
		Notional:       m.cfg.PositionNotional,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("pair", ranked.Name).Msg("open refused")
		return false
	}
	_, err = m.exec.Submit(ctx, execution.Change{
		Pair: pos.Pair, PositionID: pos.ID, Kind: execution.Open,
		Range: r, Notional: pos.Notional, Price: ev.price,
	})
	if err != nil {
		_ = m.positions.Abort(pos.ID)
		return false
	}
	if err := m.positions.Activate(pos.ID); err != nil {
		m.log.Error().Err(err).Str("position", pos.ID).Msg("activate failed")
		return false
	}
	m.log.Info().Str("pair", pos.Pair).Str("position", pos.ID).
		Float64("lower", r.Lower()).Float64("upper", r.Upper()).Int("bins", r.BinCount).
		Float64("expected_profit", ranked.Profit).Msg("opened position")
	return true
}
