package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pairbridge/internal/channel"
	"pairbridge/internal/store"
	"pairbridge/internal/types"
)

func newTestAutomation(t *testing.T) (*Automation, *channel.SimChannel, *channel.SimChannel, *store.StateStore, *store.Config) {
	t.Helper()
	dir := t.TempDir()

	state, err := store.NewStateStore(filepath.Join(dir, "state.json"), 250)
	if err != nil {
		t.Fatalf("Failed to create state store: %v", err)
	}

	cfg := &store.Config{}
	cfg.History.CSVPath = filepath.Join(dir, "trade_history.csv")

	ch1 := channel.NewSim("A1")
	ch2 := channel.NewSim("A2")
	ctx := context.Background()
	if _, err := ch1.Connect(ctx, ""); err != nil {
		t.Fatalf("Failed to connect channel 1: %v", err)
	}
	if _, err := ch2.Connect(ctx, ""); err != nil {
		t.Fatalf("Failed to connect channel 2: %v", err)
	}

	return New(cfg, state, ch1, ch2), ch1, ch2, state, cfg
}

func TestOpenPair(t *testing.T) {
	auto, _, _, state, _ := newTestAutomation(t)
	ctx := context.Background()

	tradeID, err := auto.OpenPair(ctx, "EURUSD", 0.1, types.SideBuy, "GBPUSD", 0.2, types.SideSell)
	if err != nil {
		t.Fatalf("Failed to open pair: %v", err)
	}
	if tradeID != "T00001" {
		t.Errorf("Expected trade id T00001, got %s", tradeID)
	}

	rec, ok := state.GetTrade(tradeID)
	if !ok {
		t.Fatal("Expected the opened trade to be active")
	}
	if rec.Leg1.Magic != magicLeg1 || rec.Leg2.Magic != magicLeg2 {
		t.Errorf("Expected leg magics %d/%d, got %d/%d",
			magicLeg1, magicLeg2, rec.Leg1.Magic, rec.Leg2.Magic)
	}
	if rec.Leg1.Position == 0 || rec.Leg2.Position == 0 {
		t.Error("Expected both legs to carry a position reference")
	}
	if rec.RuleID != "" {
		t.Errorf("Expected a manual trade with no rule id, got %s", rec.RuleID)
	}
}

func TestOpenPairValidation(t *testing.T) {
	auto, _, _, state, _ := newTestAutomation(t)
	ctx := context.Background()

	if _, err := auto.OpenPair(ctx, "", 0.1, types.SideBuy, "GBPUSD", 0.2, types.SideSell); !types.IsValidation(err) {
		t.Errorf("Expected a validation error for an empty symbol, got %v", err)
	}
	if _, err := auto.OpenPair(ctx, "EURUSD", 0, types.SideBuy, "GBPUSD", 0.2, types.SideSell); !types.IsValidation(err) {
		t.Errorf("Expected a validation error for a zero lot, got %v", err)
	}
	if state.ActiveCount() != 0 {
		t.Error("Expected no trades after rejected opens")
	}
}

func TestOpenPairLegFailureInsertsNothing(t *testing.T) {
	auto, _, ch2, state, _ := newTestAutomation(t)
	ctx := context.Background()

	ch2.OrderErr = errors.New("order rejected")
	_, err := auto.OpenPair(ctx, "EURUSD", 0.1, types.SideBuy, "GBPUSD", 0.2, types.SideSell)
	if err == nil {
		t.Fatal("Expected an error when leg 2 fails")
	}
	if !types.IsPartialExecution(err) {
		t.Errorf("Expected a partial execution error, got %v", err)
	}
	if state.ActiveCount() != 0 {
		t.Error("Expected no trade record after a half-failed open")
	}
}

func TestClosePair(t *testing.T) {
	auto, ch1, ch2, state, cfg := newTestAutomation(t)
	ctx := context.Background()

	tradeID, err := auto.OpenPair(ctx, "EURUSD", 0.1, types.SideBuy, "GBPUSD", 0.2, types.SideSell)
	if err != nil {
		t.Fatalf("Failed to open pair: %v", err)
	}
	rec, _ := state.GetTrade(tradeID)
	ch1.SetProfit(rec.Leg1.Position, types.ProfitInfo{Open: true, Profit: 7.5, Commission: -0.5})
	ch2.SetProfit(rec.Leg2.Position, types.ProfitInfo{Open: true, Profit: 4.5, Swap: -0.1})

	if err := auto.ClosePair(ctx, tradeID, types.ReasonManual); err != nil {
		t.Fatalf("Failed to close pair: %v", err)
	}

	if state.ActiveCount() != 0 {
		t.Error("Expected no active trades after the close")
	}
	history := state.History()
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
	closed := history[0]
	if closed.CloseReason != types.ReasonManual {
		t.Errorf("Expected close reason %s, got %s", types.ReasonManual, closed.CloseReason)
	}
	if closed.CombinedProfit != 12.0 {
		t.Errorf("Expected combined profit 12.0, got %f", closed.CombinedProfit)
	}

	if _, err := os.Stat(cfg.History.CSVPath); err != nil {
		t.Errorf("Expected the history CSV to be written: %v", err)
	}
}

func TestClosePairIdempotent(t *testing.T) {
	auto, _, _, _, _ := newTestAutomation(t)
	if err := auto.ClosePair(context.Background(), "T09999", types.ReasonManual); err != nil {
		t.Errorf("Expected closing an unknown trade to be a no-op, got %v", err)
	}
}

func TestClosePairLegFailureKeepsTrade(t *testing.T) {
	auto, _, ch2, state, _ := newTestAutomation(t)
	ctx := context.Background()

	tradeID, err := auto.OpenPair(ctx, "EURUSD", 0.1, types.SideBuy, "GBPUSD", 0.2, types.SideSell)
	if err != nil {
		t.Fatalf("Failed to open pair: %v", err)
	}

	ch2.CloseErr = errors.New("close rejected")
	err = auto.ClosePair(ctx, tradeID, types.ReasonManual)
	if err == nil {
		t.Fatal("Expected an error when leg 2 close fails")
	}
	if !types.IsPartialExecution(err) {
		t.Errorf("Expected a partial execution error, got %v", err)
	}
	if state.ActiveCount() != 1 {
		t.Error("Expected the trade to stay active for retry")
	}

	// The failed leg recovers; the retry skips the already-closed leg.
	ch2.CloseErr = nil
	if err := auto.ClosePair(ctx, tradeID, types.ReasonManual); err != nil {
		t.Fatalf("Expected the retried close to succeed: %v", err)
	}
	if state.ActiveCount() != 0 {
		t.Error("Expected the trade closed after the retry")
	}
}

func TestReconcileExternallyClosed(t *testing.T) {
	auto, ch1, ch2, state, _ := newTestAutomation(t)
	ctx := context.Background()

	tradeID, err := auto.OpenPair(ctx, "EURUSD", 0.1, types.SideBuy, "GBPUSD", 0.2, types.SideSell)
	if err != nil {
		t.Fatalf("Failed to open pair: %v", err)
	}
	rec, _ := state.GetTrade(tradeID)

	// Both legs vanish channel-side.
	ch1.SetProfit(rec.Leg1.Position, types.ProfitInfo{Open: false})
	ch2.SetProfit(rec.Leg2.Position, types.ProfitInfo{Open: false})

	if changed := auto.reconcile(ctx, time.Now()); !changed {
		t.Error("Expected reconcile to report a state change")
	}
	if state.ActiveCount() != 0 {
		t.Error("Expected the externally closed trade to be finalized")
	}
	history := state.History()
	if len(history) != 1 || history[0].CloseReason != types.ReasonExternal {
		t.Fatalf("Expected one history entry with reason %s, got %+v", types.ReasonExternal, history)
	}
}

func TestCycleDrawdownForceClose(t *testing.T) {
	auto, ch1, ch2, state, cfg := newTestAutomation(t)
	ctx := context.Background()
	cfg.Risk.DrawdownEnabled = true
	cfg.Risk.DrawdownStop = 5

	tradeID, err := auto.OpenPair(ctx, "EURUSD", 0.1, types.SideBuy, "GBPUSD", 0.2, types.SideSell)
	if err != nil {
		t.Fatalf("Failed to open pair: %v", err)
	}

	ch1.SetAccount(1000, 900)
	ch2.SetAccount(2000, 1800)

	res, err := auto.Cycle(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if !res.DrawdownStop {
		t.Error("Expected the cycle to report a drawdown stop")
	}
	if state.ActiveCount() != 0 {
		t.Error("Expected every trade force-closed on breach")
	}
	history := state.History()
	if len(history) != 1 || history[0].CloseReason != types.ReasonDrawdown {
		t.Fatalf("Expected %s close for %s, got %+v", types.ReasonDrawdown, tradeID, history)
	}
}

func TestCycleScheduledEntry(t *testing.T) {
	auto, _, _, state, cfg := newTestAutomation(t)
	ctx := context.Background()

	cfg.Groups.Primary = []types.ScheduleRule{{
		ID:         "r1",
		Name:       "morning pair",
		Enabled:    true,
		EntryStart: "00:00",
		EntryEnd:   "23:59",
		Symbol1:    "EURUSD",
		Symbol2:    "GBPUSD",
		Lot1:       0.1,
		Lot2:       0.1,
		Direction:  types.DirectionBuySell,
		Exit:       types.ExitPolicy{CloseAfterMinutes: 60, MaxExitSpread: 0.5},
	}}

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	res, err := auto.Cycle(ctx, now)
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if len(res.Triggered) != 1 {
		t.Fatalf("Expected 1 triggered trade, got %d", len(res.Triggered))
	}
	if state.ActiveCount() != 1 {
		t.Error("Expected the scheduled pair to be active")
	}
	rec, _ := state.GetTrade(res.Triggered[0])
	if rec.RuleID != "r1" {
		t.Errorf("Expected rule id r1 on the trade, got %s", rec.RuleID)
	}
	if rec.Exit.CloseAfterMinutes != 60 {
		t.Error("Expected the exit policy snapshot on the trade record")
	}
	if state.LastRunDate("r1") != now.Format("2006-01-02") {
		t.Errorf("Expected trigger date recorded, got %q", state.LastRunDate("r1"))
	}

	// Second cycle on the same date must not fire again.
	res, err = auto.Cycle(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}
	if len(res.Triggered) != 0 {
		t.Error("Expected no second trigger on the same date")
	}
}

func TestCycleEntrySpreadGate(t *testing.T) {
	auto, ch1, ch2, state, cfg := newTestAutomation(t)
	ctx := context.Background()

	cfg.Groups.Primary = []types.ScheduleRule{{
		ID:             "r1",
		Enabled:        true,
		EntryStart:     "00:00",
		EntryEnd:       "23:59",
		Symbol1:        "EURUSD",
		Symbol2:        "GBPUSD",
		Lot1:           0.1,
		Lot2:           0.1,
		MaxEntrySpread: 0.5,
	}}
	ch1.SetQuote("EURUSD", 1.1, 1.101, 0.4)
	ch2.SetQuote("GBPUSD", 1.3, 1.302, 0.9)

	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	res, err := auto.Cycle(ctx, now)
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if len(res.Triggered) != 0 {
		t.Error("Expected the wide spread to block the trigger")
	}
	if _, skipped := res.Skipped["r1"]; !skipped {
		t.Error("Expected a surfaced skip reason for r1")
	}
	if state.LastRunDate("r1") != "" {
		t.Error("Expected a skipped trigger not to consume the day")
	}

	// Spread tightens: the rule fires on a later tick the same day.
	ch2.SetQuote("GBPUSD", 1.3, 1.3004, 0.4)
	res, err = auto.Cycle(ctx, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}
	if len(res.Triggered) != 1 {
		t.Errorf("Expected the trigger once the spread tightened, got %d", len(res.Triggered))
	}
}
