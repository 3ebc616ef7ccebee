package engine

import (
	"context"
	"time"

	"pairbridge/internal/logger"
	"pairbridge/internal/types"
)

// refreshLeg fetches a leg's latest P/L from its channel and writes it onto
// the given snapshot and into the live record (persist deferred to the
// batched cycle save). Returns whether the channel still reports the
// position open; a failed fetch keeps the cached values and assumes open.
func (a *Automation) refreshLeg(ctx context.Context, tradeID string, leg int, snap *types.LegRecord) bool {
	ch := a.ch1
	if leg == 2 {
		ch = a.ch2
	}
	info, err := ch.Profit(ctx, snap.Position)
	if err != nil {
		logger.Debug(ctx, "Profit refresh failed, using cached values",
			"trade_id", tradeID, "leg", leg, "error", err.Error())
		return true
	}
	if info.Open {
		snap.LastProfit = info.Profit
		snap.LastCommission = info.Commission
		snap.LastSwap = info.Swap
		_, _ = a.state.UpdateTrade(tradeID, false, func(rec *types.TradeRecord) {
			target := &rec.Leg1
			if leg == 2 {
				target = &rec.Leg2
			}
			target.LastProfit = info.Profit
			target.LastCommission = info.Commission
			target.LastSwap = info.Swap
		})
	}
	return info.Open
}

// reconcile refreshes every active trade's leg P/L and finalizes trades
// whose legs were both closed outside this system (by the channel itself or
// an operator acting on the terminal directly). Runs once per cycle, before
// exit evaluation, so the evaluator always sees fresh combined profit.
func (a *Automation) reconcile(ctx context.Context, now time.Time) bool {
	changed := false
	for _, rec := range a.state.ActiveTrades() {
		open1 := a.refreshLeg(ctx, rec.TradeID, 1, &rec.Leg1)
		open2 := a.refreshLeg(ctx, rec.TradeID, 2, &rec.Leg2)
		if !open1 && !open2 {
			logger.Pair(ctx, "closed_externally", rec.TradeID, rec.RuleID)
			if err := a.finalizeClose(ctx, rec, types.ReasonExternal); err != nil {
				logger.ErrorWithErr(ctx, "Failed to finalize externally closed trade", err,
					"trade_id", rec.TradeID)
			}
			changed = true
		}
	}
	return changed
}
