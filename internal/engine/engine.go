package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"pairbridge/internal/interfaces"
	"pairbridge/internal/logger"
	"pairbridge/internal/metrics"
	"pairbridge/internal/store"
	"pairbridge/internal/types"
)

// Automation is the control loop tying the scheduler, exit evaluator,
// drawdown monitor and execution coordinator together. One instance drives
// both channels.
type Automation struct {
	cfg   *store.Config
	state *store.StateStore
	ch1   interfaces.Channel
	ch2   interfaces.Channel

	statusMu sync.Mutex
	status   Status

	// Written only from Cycle, which runs on the loop goroutine; readers
	// go through Status.
	lastDrawdownPct float64
}

// Compile-time interface check
var _ interfaces.Engine = (*Automation)(nil)

// Status is the operator-facing snapshot of the last completed cycle.
type Status struct {
	Time         time.Time
	Summary      string
	ActiveTrades int
	DrawdownPct  float64
	NextEntry    *time.Time
}

func New(cfg *store.Config, state *store.StateStore, ch1, ch2 interfaces.Channel) *Automation {
	return &Automation{cfg: cfg, state: state, ch1: ch1, ch2: ch2}
}

func (a *Automation) channels() [2]interfaces.Channel {
	return [2]interfaces.Channel{a.ch1, a.ch2}
}

// LastStatus returns the most recent cycle summary.
func (a *Automation) LastStatus() Status {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	return a.status
}

func (a *Automation) setStatus(s Status) {
	a.statusMu.Lock()
	a.status = s
	a.statusMu.Unlock()
}

// Cycle runs one full evaluation pass: reconcile leg state, check the
// drawdown stop, fire due entry rules, then evaluate exits. The drawdown
// stop takes precedence over all other exit logic in the same cycle.
func (a *Automation) Cycle(ctx context.Context, now time.Time) (*types.CycleResult, error) {
	started := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(started).Seconds())
	}()

	res := &types.CycleResult{Skipped: map[string]string{}}

	if a.reconcile(ctx, now) {
		res.StateChanged = true
	}

	if stop := a.checkDrawdown(ctx, res); !stop {
		a.runEntries(ctx, now, res)
		a.runExits(ctx, now, res)
	}

	metrics.ActiveTrades.Set(float64(a.state.ActiveCount()))
	a.setStatus(Status{
		Time:         now,
		Summary:      summarize(res),
		ActiveTrades: a.state.ActiveCount(),
		DrawdownPct:  a.lastDrawdownPct,
		NextEntry:    a.nextEntry(now),
	})
	return res, nil
}

// nextEntry projects the earliest upcoming trigger across all rules.
func (a *Automation) nextEntry(now time.Time) *time.Time {
	var next *time.Time
	for _, rule := range a.cfg.Rules() {
		n := NextRun(rule, now, a.state.LastRunDate(rule.ID))
		if n == nil {
			continue
		}
		if next == nil || n.Before(*next) {
			next = n
		}
	}
	return next
}

// checkDrawdown gathers account snapshots from the connected channels and
// force-closes everything when the aggregate drawdown reaches the stop.
func (a *Automation) checkDrawdown(ctx context.Context, res *types.CycleResult) bool {
	var accounts []types.AccountInfo
	for _, ch := range a.channels() {
		if !ch.Connected() {
			continue
		}
		info, err := ch.AccountInfo(ctx)
		if err != nil {
			logger.Debug(ctx, "Account info unavailable", "channel", ch.Name(), "error", err.Error())
			continue
		}
		accounts = append(accounts, info)
	}

	var balance, equity float64
	for _, acc := range accounts {
		balance += acc.Balance
		equity += acc.Equity
	}
	metrics.AccountBalance.Set(balance)
	metrics.AccountEquity.Set(equity)

	pct, breached := DrawdownBreached(a.cfg.Risk.DrawdownEnabled, a.cfg.Risk.DrawdownStop, accounts)
	a.lastDrawdownPct = pct
	metrics.DrawdownPct.Set(pct)
	if !breached {
		return false
	}

	res.DrawdownStop = true
	if a.state.ActiveCount() == 0 {
		return true
	}
	logger.Risk(ctx, "drawdown_stop",
		"drawdown_pct", pct,
		"stop", a.cfg.Risk.DrawdownStop,
		"active_trades", a.state.ActiveCount(),
	)
	for _, rec := range a.state.ActiveTrades() {
		if err := a.ClosePair(ctx, rec.TradeID, types.ReasonDrawdown); err != nil {
			logger.ErrorWithErr(ctx, "Drawdown force-close failed", err, "trade_id", rec.TradeID)
			continue
		}
		res.Closed = append(res.Closed, types.CloseRequest{TradeID: rec.TradeID, Reason: types.ReasonDrawdown})
		res.StateChanged = true
	}
	return true
}

// runEntries fires every due rule. The trigger date is recorded only after
// both legs confirm, so a failed open retries while the window is still
// live instead of skipping the whole day.
func (a *Automation) runEntries(ctx context.Context, now time.Time, res *types.CycleResult) {
	if !riskDatesAllow(a.cfg.Risk, now) {
		return
	}
	for _, rule := range a.cfg.Rules() {
		if !ShouldTrigger(rule, now, a.state.LastRunDate(rule.ID)) {
			continue
		}
		if reason, ok := a.entrySpreadGate(ctx, rule); !ok {
			res.Skipped[rule.ID] = reason
			metrics.EntrySkips.WithLabelValues("entry_spread").Inc()
			logger.Debug(ctx, "Entry skipped", "rule_id", rule.ID, "reason", reason)
			continue
		}

		side1, side2 := rule.Direction.Sides()
		tradeID, err := a.openPair(ctx, rule.ID, rule.Name, rule.Exit,
			rule.Symbol1, rule.Lot1, side1, rule.Symbol2, rule.Lot2, side2)
		if err != nil {
			res.Skipped[rule.ID] = err.Error()
			metrics.EntrySkips.WithLabelValues("open_failed").Inc()
			logger.ErrorWithErr(ctx, "Scheduled pair open failed", err, "rule_id", rule.ID)
			continue
		}
		metrics.PairOpens.WithLabelValues("schedule").Inc()
		if err := a.state.MarkTriggered(rule.ID, now.Format("2006-01-02")); err != nil {
			logger.ErrorWithErr(ctx, "Failed to persist trigger date", err, "rule_id", rule.ID)
		}
		res.Triggered = append(res.Triggered, tradeID)
		res.StateChanged = true
	}
}

// entrySpreadGate checks the current spread of each required symbol against
// the rule's entry limit. A missing quote counts as a failed gate.
func (a *Automation) entrySpreadGate(ctx context.Context, rule types.ScheduleRule) (string, bool) {
	if rule.MaxEntrySpread <= 0 {
		return "", true
	}
	chans := a.channels()
	for i, sym := range []string{rule.Symbol1, rule.Symbol2} {
		if sym == "" {
			continue
		}
		q, err := chans[i].Quote(ctx, sym)
		if err != nil {
			return fmt.Sprintf("no quote for %s", sym), false
		}
		if q.Spread > rule.MaxEntrySpread {
			return fmt.Sprintf("spread %.2f over %.2f for %s", q.Spread, rule.MaxEntrySpread, sym), false
		}
	}
	return "", true
}

// runExits evaluates every scheduled trade against its denormalized exit
// policy. Manual trades carry no policy and close only by operator action,
// the drawdown stop, or externally.
func (a *Automation) runExits(ctx context.Context, now time.Time, res *types.CycleResult) {
	quotes := a.quoteCache(ctx)
	for _, rec := range a.state.ActiveTrades() {
		if rec.RuleID == "" {
			continue
		}
		dec := EvaluateExit(&rec, now, quotes)
		if dec.FlagsChanged {
			_, err := a.state.UpdateTrade(rec.TradeID, true, func(live *types.TradeRecord) {
				live.CheckingActive = rec.CheckingActive
				live.ConditionMetAt = rec.ConditionMetAt
				if !live.ForceClosedAtStop && rec.ForceClosedAtStop {
					logger.Pair(ctx, "force_stopped", rec.TradeID, rec.RuleID,
						"minutes_open", int(now.Sub(rec.OpenedAt).Minutes()))
				}
				live.ForceClosedAtStop = rec.ForceClosedAtStop
			})
			if err != nil {
				logger.ErrorWithErr(ctx, "Failed to persist exit flags", err, "trade_id", rec.TradeID)
			}
			res.StateChanged = true
		}
		if !dec.Close {
			continue
		}
		if err := a.ClosePair(ctx, rec.TradeID, dec.Reason); err != nil {
			logger.ErrorWithErr(ctx, "Exit close failed", err,
				"trade_id", rec.TradeID, "reason", dec.Reason)
			continue
		}
		res.Closed = append(res.Closed, types.CloseRequest{TradeID: rec.TradeID, Reason: dec.Reason})
		res.StateChanged = true
	}
}

// quoteCache returns a spread lookup that fetches each (channel, symbol)
// quote at most once per cycle.
func (a *Automation) quoteCache(ctx context.Context) SpreadLookup {
	type key struct {
		leg    int
		symbol string
	}
	type cached struct {
		spread float64
		ok     bool
	}
	cache := map[key]cached{}
	chans := a.channels()
	return func(leg int, symbol string) (float64, bool) {
		k := key{leg, symbol}
		if c, hit := cache[k]; hit {
			return c.spread, c.ok
		}
		q, err := chans[leg-1].Quote(ctx, symbol)
		c := cached{spread: q.Spread, ok: err == nil}
		cache[k] = c
		return c.spread, c.ok
	}
}

// reasonLabel maps a close-reason tag to the wording used in the status
// summary.
func reasonLabel(reason string) string {
	switch reason {
	case types.AutoReasonPrefix + string(types.CloseOnSpread):
		return "spread window"
	case types.AutoReasonPrefix + string(types.CloseOnProfit):
		return "profit target"
	case types.AutoReasonPrefix + string(types.CloseOnSpreadAndProfit):
		return "spread and profit"
	case types.ReasonNetPnl:
		return "net PnL threshold"
	case types.ReasonNetPnlStop:
		return "net PnL stop"
	case types.ReasonDrawdown:
		return "drawdown stop"
	case types.ReasonExternal:
		return "external close"
	default:
		return reason
	}
}

// summarize renders the cycle outcome for the status surface, e.g.
// "opened 1; closed 2 via spread window; 1 via profit target".
func summarize(res *types.CycleResult) string {
	var parts []string
	if n := len(res.Triggered); n > 0 {
		parts = append(parts, fmt.Sprintf("opened %d", n))
	}
	if len(res.Closed) > 0 {
		counts := map[string]int{}
		for _, c := range res.Closed {
			counts[reasonLabel(c.Reason)]++
		}
		labels := make([]string, 0, len(counts))
		for label := range counts {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			parts = append(parts, fmt.Sprintf("%d via %s", counts[label], label))
		}
	}
	if res.DrawdownStop {
		parts = append(parts, "drawdown stop active")
	}
	if len(parts) == 0 {
		return "idle"
	}
	return strings.Join(parts, "; ")
}
