package channelobs

import (
	"context"

	"pairbridge/internal/interfaces"
	"pairbridge/internal/logger"
	"pairbridge/internal/trace"
	"pairbridge/internal/types"
)

// observableChannel wraps a Channel with observability (logging & tracing)
type observableChannel struct {
	ch interfaces.Channel
}

// Compile-time interface check
var _ interfaces.Channel = (*observableChannel)(nil)

// Wrap wraps a channel with observability middleware
func Wrap(ch interfaces.Channel) interfaces.Channel {
	return &observableChannel{ch: ch}
}

func (oc *observableChannel) Name() string { return oc.ch.Name() }

func (oc *observableChannel) Connected() bool { return oc.ch.Connected() }

// Connect establishes the channel session with observability
func (oc *observableChannel) Connect(ctx context.Context, path string) (types.ConnectInfo, error) {
	ctx, span := trace.StartSpan(ctx, "channel.Connect")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Connecting channel", "channel", oc.ch.Name(), "path", path)

	info, err := oc.ch.Connect(ctx, path)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to connect channel", err, "channel", oc.ch.Name())
		return types.ConnectInfo{}, err
	}

	logger.InfoSkip(ctx, 1, "Channel connected",
		"channel", oc.ch.Name(),
		"login", info.Login,
		"server", info.Server,
	)
	return info, nil
}

// PlaceOrder places an order with observability
func (oc *observableChannel) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "channel.PlaceOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"channel", oc.ch.Name(),
		"symbol", req.Symbol,
		"side", req.Side,
		"volume", req.Volume,
		"tag", req.TradeTag,
	)

	resp, err := oc.ch.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"channel", oc.ch.Name(),
			"symbol", req.Symbol,
			"side", req.Side,
		)
		return types.OrderResp{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed successfully",
		"channel", oc.ch.Name(),
		"symbol", req.Symbol,
		"position", resp.Position,
		"entry_price", resp.EntryPrice,
	)
	return resp, nil
}

// Profit fetches running position profit with observability
func (oc *observableChannel) Profit(ctx context.Context, position int64) (types.ProfitInfo, error) {
	ctx, span := trace.StartSpan(ctx, "channel.Profit")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching profit", "channel", oc.ch.Name(), "position", position)

	info, err := oc.ch.Profit(ctx, position)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch profit", err,
			"channel", oc.ch.Name(), "position", position)
		return types.ProfitInfo{}, err
	}

	logger.DebugSkip(ctx, 1, "Profit fetched",
		"channel", oc.ch.Name(), "position", position, "profit", info.Profit, "open", info.Open)
	return info, nil
}

// Quote fetches a symbol quote with observability
func (oc *observableChannel) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	ctx, span := trace.StartSpan(ctx, "channel.Quote")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching quote", "channel", oc.ch.Name(), "symbol", symbol)

	q, err := oc.ch.Quote(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch quote", err,
			"channel", oc.ch.Name(), "symbol", symbol)
		return types.Quote{}, err
	}

	logger.DebugSkip(ctx, 1, "Quote fetched",
		"channel", oc.ch.Name(), "symbol", symbol, "spread", q.Spread)
	return q, nil
}

// AccountInfo fetches balance and equity with observability
func (oc *observableChannel) AccountInfo(ctx context.Context) (types.AccountInfo, error) {
	ctx, span := trace.StartSpan(ctx, "channel.AccountInfo")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching account info", "channel", oc.ch.Name())

	info, err := oc.ch.AccountInfo(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch account info", err, "channel", oc.ch.Name())
		return types.AccountInfo{}, err
	}

	logger.DebugSkip(ctx, 1, "Account info fetched",
		"channel", oc.ch.Name(), "balance", info.Balance, "equity", info.Equity)
	return info, nil
}

// ClosePosition closes a position with observability
func (oc *observableChannel) ClosePosition(ctx context.Context, req types.CloseReq) (types.CloseResult, error) {
	ctx, span := trace.StartSpan(ctx, "channel.ClosePosition")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Closing position",
		"channel", oc.ch.Name(),
		"position", req.Position,
		"symbol", req.Symbol,
	)

	res, err := oc.ch.ClosePosition(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to close position", err,
			"channel", oc.ch.Name(),
			"position", req.Position,
			"symbol", req.Symbol,
		)
		return types.CloseResult{}, err
	}

	logger.InfoSkip(ctx, 1, "Position closed successfully",
		"channel", oc.ch.Name(), "position", req.Position)
	return res, nil
}

// Shutdown tears down the channel with observability
func (oc *observableChannel) Shutdown(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "channel.Shutdown")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Shutting down channel", "channel", oc.ch.Name())
	oc.ch.Shutdown(ctx)
	logger.InfoSkip(ctx, 1, "Channel shut down", "channel", oc.ch.Name())
}
