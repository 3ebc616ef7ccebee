package engineobs

import (
	"context"
	"time"

	"pairbridge/internal/interfaces"
	"pairbridge/internal/logger"
	"pairbridge/internal/trace"
	"pairbridge/internal/types"
)

// observableEngine wraps an Engine with observability (logging & tracing)
type observableEngine struct {
	engine interfaces.Engine
}

// Compile-time interface check
var _ interfaces.Engine = (*observableEngine)(nil)

// Wrap wraps an engine with observability middleware
func Wrap(engine interfaces.Engine) interfaces.Engine {
	return &observableEngine{engine: engine}
}

// Cycle runs one automation pass with observability
func (oe *observableEngine) Cycle(ctx context.Context, now time.Time) (*types.CycleResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Cycle")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Starting automation cycle", "now", now.Format(time.RFC3339))

	res, err := oe.engine.Cycle(ctx, now)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Automation cycle failed", err)
		return res, err
	}

	if res != nil && res.StateChanged {
		logger.InfoSkip(ctx, 1, "Automation cycle changed state",
			"triggered", len(res.Triggered),
			"closed", len(res.Closed),
			"drawdown_stop", res.DrawdownStop,
		)
	}
	return res, nil
}

// OpenPair opens a manual pair with observability
func (oe *observableEngine) OpenPair(ctx context.Context, symbol1 string, lot1 float64, side1 types.Side, symbol2 string, lot2 float64, side2 types.Side) (string, error) {
	ctx, span := trace.StartSpan(ctx, "engine.OpenPair")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Opening pair",
		"symbol1", symbol1, "lot1", lot1, "side1", side1,
		"symbol2", symbol2, "lot2", lot2, "side2", side2,
	)

	tradeID, err := oe.engine.OpenPair(ctx, symbol1, lot1, side1, symbol2, lot2, side2)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to open pair", err,
			"symbol1", symbol1, "symbol2", symbol2)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Pair opened successfully", "trade_id", tradeID)
	return tradeID, nil
}

// ClosePair closes a pair with observability
func (oe *observableEngine) ClosePair(ctx context.Context, tradeID, reason string) error {
	ctx, span := trace.StartSpan(ctx, "engine.ClosePair")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Closing pair", "trade_id", tradeID, "reason", reason)

	if err := oe.engine.ClosePair(ctx, tradeID, reason); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to close pair", err,
			"trade_id", tradeID, "reason", reason)
		return err
	}

	logger.InfoSkip(ctx, 1, "Pair closed successfully", "trade_id", tradeID, "reason", reason)
	return nil
}

// CloseAll closes every active pair with observability
func (oe *observableEngine) CloseAll(ctx context.Context, reason string) error {
	ctx, span := trace.StartSpan(ctx, "engine.CloseAll")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Closing all pairs", "reason", reason)

	if err := oe.engine.CloseAll(ctx, reason); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to close all pairs", err, "reason", reason)
		return err
	}

	logger.InfoSkip(ctx, 1, "All pairs closed", "reason", reason)
	return nil
}
