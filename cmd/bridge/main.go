package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairbridge/internal/interfaces"
	"pairbridge/internal/logger"
	"pairbridge/internal/store"
	"pairbridge/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer trace.Shutdown(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		os.Exit(1)
	}
	compressOldLogs(ctx)

	state, err := openState(ctx, cfg)
	if err != nil {
		os.Exit(1)
	}

	ch1, ch2, err := connectChannels(ctx, cfg)
	if err != nil {
		os.Exit(1)
	}
	defer ch1.Shutdown(ctx)
	defer ch2.Shutdown(ctx)

	eng, auto := buildEngine(cfg, state, ch1, ch2)
	startMetrics(ctx, cfg)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	logger.Info(ctx, "Automation loop starting",
		"timezone", cfg.Timezone,
		"rules", len(cfg.Rules()),
		"active_trades", state.ActiveCount(),
	)

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	statusTick := time.NewTicker(time.Minute)
	defer statusTick.Stop()

	for {
		select {
		case <-tick.C:
			runCycle(ctx, eng, cfg)
		case <-statusTick.C:
			st := auto.LastStatus()
			next := "none"
			if st.NextEntry != nil {
				next = st.NextEntry.Format(time.RFC3339)
			}
			logger.Info(ctx, "Automation status",
				"summary", st.Summary,
				"active_trades", st.ActiveTrades,
				"drawdown_pct", st.DrawdownPct,
				"next_entry", next,
			)
		case <-sigc:
			logger.Info(ctx, "Shutting down")
			if n := state.ActiveCount(); n > 0 {
				logger.Warn(ctx, "Active trades remain open", "count", n)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// runCycle drives one tick. A panicking cycle is recovered and logged so
// the loop survives to the next tick.
func runCycle(ctx context.Context, eng interfaces.Engine, cfg *store.Config) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Automation cycle panicked", "panic", fmt.Sprint(r))
		}
	}()
	now := time.Now().In(cfg.Location())
	if _, err := eng.Cycle(ctx, now); err != nil {
		logger.ErrorWithErr(ctx, "Automation cycle failed", err)
	}
}
