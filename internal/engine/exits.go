package engine

import (
	"time"

	"pairbridge/internal/types"
)

// SpreadLookup resolves the current spread for a leg's symbol on its
// channel. leg is 1 or 2. ok is false when no quote is available.
type SpreadLookup func(leg int, symbol string) (spread float64, ok bool)

// ExitDecision is the evaluator's verdict for one trade on one tick.
type ExitDecision struct {
	Close  bool
	Reason string
	// FlagsChanged reports that a sticky runtime flag on the record was
	// newly set and must be persisted.
	FlagsChanged bool
}

// EvaluateExit runs one trade through its denormalized exit policy. The
// record is a snapshot copy; sticky flag changes are applied to it and
// written back by the caller.
func EvaluateExit(tr *types.TradeRecord, now time.Time, spreads SpreadLookup) ExitDecision {
	if tr.Exit.CloseLogicMode == types.CloseLogicNetPnl {
		return evaluateNetPnl(tr, now)
	}
	return evaluateConditions(tr, now, spreads)
}

// evaluateConditions handles the spread/profit/combined policies: minimum
// hold gate, then the optional close window, then the condition itself.
func evaluateConditions(tr *types.TradeRecord, now time.Time, spreads SpreadLookup) ExitDecision {
	minutesOpen := now.Sub(tr.OpenedAt).Minutes()
	if tr.Exit.CloseAfterMinutes > 0 && minutesOpen < float64(tr.Exit.CloseAfterMinutes) {
		return ExitDecision{}
	}

	winStart, hasStart := types.ParseTimeOfDay(tr.Exit.CloseWindowStart)
	winEnd, hasEnd := types.ParseTimeOfDay(tr.Exit.CloseWindowEnd)
	if hasStart || hasEnd {
		var start, end *types.TimeOfDay
		if hasStart {
			start = &winStart
		}
		if hasEnd {
			end = &winEnd
		}
		if !types.TimeOfDayOf(now).InWindow(start, end) {
			return ExitDecision{}
		}
	}

	cond := tr.Exit.CloseCondition
	if cond == "" {
		cond = types.CloseOnSpread
	}

	spreadOK := true
	if cond == types.CloseOnSpread || cond == types.CloseOnSpreadAndProfit {
		spreadOK = spreadSatisfied(tr, spreads)
	}
	profitOK := true
	if cond == types.CloseOnProfit || cond == types.CloseOnSpreadAndProfit {
		profitOK = tr.Exit.MinCombinedProfit <= 0 || tr.CombinedProfit() >= tr.Exit.MinCombinedProfit
	}

	var met bool
	switch cond {
	case types.CloseOnProfit:
		met = profitOK
	case types.CloseOnSpreadAndProfit:
		met = spreadOK && profitOK
	default:
		met = spreadOK
	}
	if !met {
		return ExitDecision{}
	}
	return ExitDecision{Close: true, Reason: types.AutoReasonPrefix + string(cond)}
}

// spreadSatisfied requires every leg's current spread to be known and at or
// below the limit. A non-positive limit disables the check entirely.
func spreadSatisfied(tr *types.TradeRecord, spreads SpreadLookup) bool {
	if tr.Exit.MaxExitSpread <= 0 {
		return true
	}
	for i, leg := range []types.LegRecord{tr.Leg1, tr.Leg2} {
		if leg.Symbol == "" {
			continue
		}
		s, ok := spreads(i+1, leg.Symbol)
		if !ok || s > tr.Exit.MaxExitSpread {
			return false
		}
	}
	return true
}

// evaluateNetPnl is the stateful threshold policy. Three phases: dormant
// until the check-start mark, then a profit check every tick, with an
// independent unconditional force-close at the check-stop mark. The three
// runtime flags are sticky; a repeated close request after the stop mark is
// issued again (closing is idempotent) without re-flipping the flag.
func evaluateNetPnl(tr *types.TradeRecord, now time.Time) ExitDecision {
	minutesOpen := now.Sub(tr.OpenedAt).Minutes()
	var dec ExitDecision

	if minutesOpen >= float64(tr.Exit.CheckStartMinutes) {
		if !tr.CheckingActive {
			tr.CheckingActive = true
			dec.FlagsChanged = true
		}
		if tr.CombinedProfit() >= tr.Exit.NetPnlThreshold {
			if tr.ConditionMetAt == nil {
				at := now
				tr.ConditionMetAt = &at
				dec.FlagsChanged = true
			}
			dec.Close = true
			dec.Reason = types.ReasonNetPnl
		}
	}

	if tr.Exit.CheckStopMinutes > 0 && minutesOpen >= float64(tr.Exit.CheckStopMinutes) {
		if !dec.Close {
			dec.Close = true
			dec.Reason = types.ReasonNetPnlStop
		}
		if !tr.ForceClosedAtStop {
			tr.ForceClosedAtStop = true
			dec.FlagsChanged = true
		}
	}
	return dec
}
