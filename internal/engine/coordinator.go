package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"pairbridge/internal/logger"
	"pairbridge/internal/metrics"
	"pairbridge/internal/tradelog"
	"pairbridge/internal/types"
)

const (
	// Base for the per-leg magic numbers the channels use to associate
	// their positions with this system's trades.
	magicBase  = 973451000
	magicLeg1  = magicBase + 1
	magicLeg2  = magicBase + 2
	legTimeout = 25 * time.Second
)

// OpenPair opens a manually requested pair with no exit policy attached.
// Manual trades close only by operator action, drawdown stop, or external
// close.
func (a *Automation) OpenPair(ctx context.Context, symbol1 string, lot1 float64, side1 types.Side, symbol2 string, lot2 float64, side2 types.Side) (string, error) {
	tradeID, err := a.openPair(ctx, "", "", types.ExitPolicy{}, symbol1, lot1, side1, symbol2, lot2, side2)
	if err != nil {
		return "", err
	}
	metrics.PairOpens.WithLabelValues("manual").Inc()
	return tradeID, nil
}

// openPair allocates a trade id and submits both leg orders concurrently.
// Both legs must confirm a position reference; a single failed or timed-out
// leg fails the whole open without inserting a record. A filled orphan leg
// is reported, not unwound.
func (a *Automation) openPair(ctx context.Context, ruleID, ruleName string, exit types.ExitPolicy, symbol1 string, lot1 float64, side1 types.Side, symbol2 string, lot2 float64, side2 types.Side) (string, error) {
	if !a.ch1.Connected() || !a.ch2.Connected() {
		return "", types.Validationf("both channels must be connected")
	}
	if symbol1 == "" || symbol2 == "" {
		return "", types.Validationf("both symbols are required")
	}
	if lot1 <= 0 || lot2 <= 0 {
		return "", types.Validationf("lots must be positive, got %v and %v", lot1, lot2)
	}

	tradeID := a.state.NextTradeID()
	reqs := [2]types.OrderReq{
		{Symbol: symbol1, Side: side1, Volume: lot1, TradeTag: tradeID, Magic: magicLeg1},
		{Symbol: symbol2, Side: side2, Volume: lot2, TradeTag: tradeID, Magic: magicLeg2},
	}

	// Both legs go out at once to bound the fill skew between channels.
	var (
		wg    sync.WaitGroup
		resps [2]types.OrderResp
		errs  [2]error
	)
	for i, ch := range a.channels() {
		i, ch := i, ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			legCtx, cancel := context.WithTimeout(ctx, legTimeout)
			defer cancel()
			resps[i], errs[i] = ch.PlaceOrder(legCtx, reqs[i])
		}()
	}
	wg.Wait()

	if errs[0] != nil || errs[1] != nil {
		if errs[0] == nil || errs[1] == nil {
			perr := &types.PartialExecutionError{
				TradeID: tradeID,
				Op:      "open",
				Leg1Err: errs[0],
				Leg2Err: errs[1],
				Leg1Pos: resps[0].Position,
				Leg2Pos: resps[1].Position,
			}
			logger.Error(ctx, "Pair open left an orphan leg",
				"trade_id", tradeID, "detail", perr.Error())
			return "", perr
		}
		return "", errors.Join(errs[0], errs[1])
	}

	rec := &types.TradeRecord{
		TradeID:  tradeID,
		RuleID:   ruleID,
		RuleName: ruleName,
		OpenedAt: time.Now().UTC(),
		Leg1:     legRecord(reqs[0], resps[0]),
		Leg2:     legRecord(reqs[1], resps[1]),
		Exit:     exit,
	}
	if err := a.state.InsertTrade(rec); err != nil {
		// In-memory state stays authoritative; durability catches up on
		// the next successful write.
		logger.ErrorWithErr(ctx, "Failed to persist opened trade", err, "trade_id", tradeID)
	}

	logger.Pair(ctx, "opened", tradeID, ruleID,
		"symbol1", symbol1, "side1", side1,
		"symbol2", symbol2, "side2", side2,
	)
	_ = tradelog.Append(tradelog.Entry{Event: "open", TradeID: tradeID, RuleID: ruleID})
	return tradeID, nil
}

func legRecord(req types.OrderReq, resp types.OrderResp) types.LegRecord {
	return types.LegRecord{
		Symbol:         req.Symbol,
		Lot:            req.Volume,
		Side:           req.Side,
		Position:       resp.Position,
		Magic:          req.Magic,
		EntryPrice:     resp.EntryPrice,
		EntryTime:      resp.EntryTime,
		LastCommission: resp.Commission,
		LastSwap:       resp.Swap,
	}
}

// ClosePair closes both legs of a trade. Unknown trade ids are a no-op, so
// a close can be re-issued safely. Leg P/L is refreshed best-effort before
// closing; on fetch failure the cached last-known values stand. A leg the
// channel already reports closed is skipped, which lets a previously
// half-failed close converge on retry.
func (a *Automation) ClosePair(ctx context.Context, tradeID, reason string) error {
	rec, ok := a.state.GetTrade(tradeID)
	if !ok {
		return nil
	}

	open1 := a.refreshLeg(ctx, tradeID, 1, &rec.Leg1)
	open2 := a.refreshLeg(ctx, tradeID, 2, &rec.Leg2)

	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	legs := [2]*types.LegRecord{&rec.Leg1, &rec.Leg2}
	opens := [2]bool{open1, open2}
	for i, ch := range a.channels() {
		i, ch := i, ch
		if !opens[i] {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			legCtx, cancel := context.WithTimeout(ctx, legTimeout)
			defer cancel()
			_, errs[i] = ch.ClosePosition(legCtx, types.CloseReq{
				Position: legs[i].Position,
				Symbol:   legs[i].Symbol,
				Side:     legs[i].Side,
				Volume:   legs[i].Lot,
				Magic:    legs[i].Magic,
			})
		}()
	}
	wg.Wait()

	if errs[0] != nil || errs[1] != nil {
		if errs[0] == nil || errs[1] == nil {
			perr := &types.PartialExecutionError{
				TradeID: tradeID,
				Op:      "close",
				Leg1Err: errs[0],
				Leg2Err: errs[1],
			}
			logger.Error(ctx, "Pair close left an asymmetric position",
				"trade_id", tradeID, "detail", perr.Error())
			return perr
		}
		return errors.Join(errs[0], errs[1])
	}

	return a.finalizeClose(ctx, rec, reason)
}

// CloseAll closes every active trade with the given reason. Failures do
// not stop the sweep; failed trades stay active and are retried next cycle.
func (a *Automation) CloseAll(ctx context.Context, reason string) error {
	var errs []error
	for _, rec := range a.state.ActiveTrades() {
		if err := a.ClosePair(ctx, rec.TradeID, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// finalizeClose moves a trade to history, rewrites the CSV export and
// records the close event.
func (a *Automation) finalizeClose(ctx context.Context, rec types.TradeRecord, reason string) error {
	entry := closedEntry(rec, time.Now().UTC(), reason)
	removed, err := a.state.CloseTrade(rec.TradeID, entry)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist closed trade", err, "trade_id", rec.TradeID)
	}
	if !removed {
		return nil
	}

	if path := a.cfg.History.CSVPath; path != "" {
		if err := tradelog.ExportCSV(path, a.state.History()); err != nil {
			logger.ErrorWithErr(ctx, "Failed to export trade history", err, "path", path)
		}
	}
	_ = tradelog.Append(tradelog.Entry{
		Event:   "close",
		TradeID: rec.TradeID,
		RuleID:  rec.RuleID,
		Reason:  reason,
		Profit:  entry.CombinedProfit,
	})
	metrics.PairCloses.WithLabelValues(reason).Inc()

	logger.Pair(ctx, "closed", rec.TradeID, rec.RuleID,
		"reason", reason,
		"combined_profit", entry.CombinedProfit,
	)
	return nil
}

func closedEntry(rec types.TradeRecord, closedAt time.Time, reason string) types.ClosedTrade {
	leg := func(l types.LegRecord) types.ClosedLeg {
		return types.ClosedLeg{
			Symbol:     l.Symbol,
			Lot:        l.Lot,
			Side:       l.Side,
			EntryPrice: l.EntryPrice,
			EntryTime:  l.EntryTime,
			Profit:     l.LastProfit,
			Commission: l.LastCommission,
			Swap:       l.LastSwap,
		}
	}
	return types.ClosedTrade{
		TradeID:            rec.TradeID,
		RuleID:             rec.RuleID,
		RuleName:           rec.RuleName,
		OpenedAt:           rec.OpenedAt,
		ClosedAt:           closedAt,
		Leg1:               leg(rec.Leg1),
		Leg2:               leg(rec.Leg2),
		CombinedProfit:     rec.Leg1.LastProfit + rec.Leg2.LastProfit,
		CombinedCommission: rec.Leg1.LastCommission + rec.Leg2.LastCommission,
		CombinedSwap:       rec.Leg1.LastSwap + rec.Leg2.LastSwap,
		CloseReason:        reason,
	}
}
