package interfaces

import (
	"context"
	"time"

	"pairbridge/internal/types"
)

// Engine runs one automation evaluation pass per tick and exposes the
// operator-facing pair operations.
type Engine interface {
	Cycle(ctx context.Context, now time.Time) (*types.CycleResult, error)
	OpenPair(ctx context.Context, symbol1 string, lot1 float64, side1 types.Side, symbol2 string, lot2 float64, side2 types.Side) (string, error)
	ClosePair(ctx context.Context, tradeID, reason string) error
	CloseAll(ctx context.Context, reason string) error
}
