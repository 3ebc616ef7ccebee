package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pairbridge/internal/interfaces"
	"pairbridge/internal/types"
)

// SimChannel is an in-process channel for sim mode and tests. Orders fill
// immediately at the configured quote; positions and their running profit
// are tracked in memory.
type SimChannel struct {
	name string

	mu        sync.Mutex
	connected bool
	nextPos   int64
	balance   float64
	equity    float64
	quotes    map[string]types.Quote
	profits   map[int64]types.ProfitInfo

	// Failure hooks for tests.
	OrderErr   error
	CloseErr   error
	ProfitErr  error
	QuoteErr   error
	AccountErr error
	OrderDelay time.Duration
}

var _ interfaces.Channel = (*SimChannel)(nil)

func NewSim(name string) *SimChannel {
	return &SimChannel{
		name:    name,
		nextPos: 100000,
		balance: 10000,
		equity:  10000,
		quotes:  make(map[string]types.Quote),
		profits: make(map[int64]types.ProfitInfo),
	}
}

func (c *SimChannel) Name() string { return c.name }

func (c *SimChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *SimChannel) Connect(ctx context.Context, path string) (types.ConnectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return types.ConnectInfo{Login: "sim", Server: "sim"}, nil
}

// SetQuote seeds the bid/ask returned for a symbol.
func (c *SimChannel) SetQuote(symbol string, bid, ask, spread float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[symbol] = types.Quote{Bid: bid, Ask: ask, Spread: spread}
}

// SetAccount seeds the balance and equity reported by AccountInfo.
func (c *SimChannel) SetAccount(balance, equity float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance, c.equity = balance, equity
}

// SetProfit seeds the running profit for an open position.
func (c *SimChannel) SetProfit(position int64, info types.ProfitInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profits[position] = info
}

func (c *SimChannel) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if c.OrderDelay > 0 {
		select {
		case <-time.After(c.OrderDelay):
		case <-ctx.Done():
			return types.OrderResp{}, &types.ChannelError{Channel: c.name, Op: "order", Timeout: true, Err: ctx.Err()}
		}
	}
	if c.OrderErr != nil {
		return types.OrderResp{}, &types.ChannelError{Channel: c.name, Op: "order", Err: c.OrderErr}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextPos++
	pos := c.nextPos
	price := 1.0
	if q, ok := c.quotes[req.Symbol]; ok {
		if req.Side == types.SideBuy {
			price = q.Ask
		} else {
			price = q.Bid
		}
	}
	c.profits[pos] = types.ProfitInfo{Open: true}
	return types.OrderResp{
		Position:   pos,
		EntryPrice: price,
		EntryTime:  time.Now().Unix(),
	}, nil
}

func (c *SimChannel) Profit(ctx context.Context, position int64) (types.ProfitInfo, error) {
	if c.ProfitErr != nil {
		return types.ProfitInfo{}, &types.ChannelError{Channel: c.name, Op: "get_profit", Err: c.ProfitErr}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.profits[position]
	if !ok {
		return types.ProfitInfo{Open: false}, nil
	}
	return info, nil
}

func (c *SimChannel) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	if c.QuoteErr != nil {
		return types.Quote{}, &types.ChannelError{Channel: c.name, Op: "get_quote", Err: c.QuoteErr}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[symbol]
	if !ok {
		return types.Quote{}, &types.ChannelError{
			Channel: c.name, Op: "get_quote",
			Err: fmt.Errorf("no quote for %s", symbol),
		}
	}
	return q, nil
}

func (c *SimChannel) AccountInfo(ctx context.Context) (types.AccountInfo, error) {
	if c.AccountErr != nil {
		return types.AccountInfo{}, &types.ChannelError{Channel: c.name, Op: "get_account_info", Err: c.AccountErr}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.AccountInfo{Balance: c.balance, Equity: c.equity}, nil
}

func (c *SimChannel) ClosePosition(ctx context.Context, req types.CloseReq) (types.CloseResult, error) {
	if c.CloseErr != nil {
		return types.CloseResult{}, &types.ChannelError{Channel: c.name, Op: "close", Err: c.CloseErr}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.profits[req.Position]
	if !ok || !info.Open {
		return types.CloseResult{}, &types.ChannelError{
			Channel: c.name, Op: "close",
			Err: errors.New("position not open"),
		}
	}
	info.Open = false
	c.profits[req.Position] = info
	return types.CloseResult{Closed: true}, nil
}

func (c *SimChannel) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}
