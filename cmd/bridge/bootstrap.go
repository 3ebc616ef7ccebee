package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"pairbridge/internal/channel"
	"pairbridge/internal/channel/channelobs"
	"pairbridge/internal/engine"
	"pairbridge/internal/engine/engineobs"
	"pairbridge/internal/interfaces"
	"pairbridge/internal/logger"
	"pairbridge/internal/metrics"
	"pairbridge/internal/store"
	"pairbridge/internal/trace"
	"pairbridge/internal/tradelog"
)

// initializeSystem initializes the environment, logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("PAIR_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		logger.ErrorWithErr(ctx, "Invalid config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old tradelog files if retention is configured
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("PAIR_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}

// openState loads the crash-recoverable automation state
func openState(ctx context.Context, cfg *store.Config) (*store.StateStore, error) {
	state, err := store.NewStateStore(cfg.StateFile, cfg.History.Limit)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load state", err, "path", cfg.StateFile)
		return nil, err
	}
	logger.Info(ctx, "State loaded",
		"path", cfg.StateFile,
		"active_trades", state.ActiveCount(),
	)
	return state, nil
}

// buildChannel constructs one execution channel from its config and wraps
// it with observability middleware
func buildChannel(ctx context.Context, cc store.ChannelConfig) interfaces.Channel {
	var ch interfaces.Channel
	if cc.Mode == "sim" {
		logger.Warn(ctx, "Channel running in sim mode - orders will be simulated", "channel", cc.Name)
		ch = channel.NewSim(cc.Name)
	} else {
		ch = channel.NewWS(cc.Name, cc.URL)
	}
	return channelobs.Wrap(ch)
}

// connectChannels builds and connects both execution channels
func connectChannels(ctx context.Context, cfg *store.Config) (interfaces.Channel, interfaces.Channel, error) {
	ch1 := buildChannel(ctx, cfg.Channels.Channel1)
	ch2 := buildChannel(ctx, cfg.Channels.Channel2)

	if _, err := ch1.Connect(ctx, cfg.Channels.Channel1.Path); err != nil {
		return nil, nil, err
	}
	if _, err := ch2.Connect(ctx, cfg.Channels.Channel2.Path); err != nil {
		ch1.Shutdown(ctx)
		return nil, nil, err
	}
	return ch1, ch2, nil
}

// buildEngine constructs the automation engine wrapped with observability.
// The concrete Automation is returned alongside for the status surface.
func buildEngine(cfg *store.Config, state *store.StateStore, ch1, ch2 interfaces.Channel) (interfaces.Engine, *engine.Automation) {
	auto := engine.New(cfg, state, ch1, ch2)
	return engineobs.Wrap(auto), auto
}

// startMetrics serves the Prometheus endpoint when enabled
func startMetrics(ctx context.Context, cfg *store.Config) {
	if !cfg.Metrics.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	go func() {
		logger.Info(ctx, "Metrics listener starting", "addr", cfg.Metrics.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorWithErr(ctx, "Metrics listener failed", err)
		}
	}()
}
