// Package channel implements the execution-channel clients. Each channel is
// a remote command endpoint (one per brokerage account) that accepts order
// placement, closing and quoting commands over a websocket request/response
// protocol with per-request correlation ids.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pairbridge/internal/interfaces"
	"pairbridge/internal/types"
)

const (
	// Order and close commands may wait on a fill; quotes and account
	// queries should come back quickly.
	orderTimeout   = 20 * time.Second
	queryTimeout   = 5 * time.Second
	connectTimeout = 25 * time.Second
)

type request struct {
	ID     string          `json:"id"`
	Cmd    string          `json:"cmd"`
	Params json.RawMessage `json:"params"`
}

type response struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

// WSChannel talks to one execution endpoint over a websocket. The protocol
// allows exactly one outstanding call at a time, enforced by the call mutex;
// responses with a stale correlation id are discarded.
type WSChannel struct {
	name string
	url  string

	callMu    sync.Mutex
	connMu    sync.Mutex
	conn      *websocket.Conn
	connected bool
}

var _ interfaces.Channel = (*WSChannel)(nil)

func NewWS(name, url string) *WSChannel {
	return &WSChannel{name: name, url: url}
}

func (c *WSChannel) Name() string { return c.name }

func (c *WSChannel) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}

// Connect dials the endpoint and issues the connect command with the
// terminal path. The endpoint answers with login and server identifiers.
func (c *WSChannel) Connect(ctx context.Context, path string) (types.ConnectInfo, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return types.ConnectInfo{}, &types.ChannelError{Channel: c.name, Op: "connect", Err: err}
	}
	conn.SetReadLimit(1 << 20)

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	var info types.ConnectInfo
	if err := c.rpc(ctx, "connect", map[string]any{"path": path}, connectTimeout, &info); err != nil {
		c.Shutdown(ctx)
		return types.ConnectInfo{}, err
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()
	return info, nil
}

func (c *WSChannel) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	cmd := "buy"
	if req.Side == types.SideSell {
		cmd = "sell"
	}
	params := map[string]any{
		"symbol":    req.Symbol,
		"volume":    req.Volume,
		"trade_tag": req.TradeTag,
		"magic":     req.Magic,
	}
	var resp types.OrderResp
	if err := c.rpc(ctx, cmd, params, orderTimeout, &resp); err != nil {
		return types.OrderResp{}, err
	}
	if resp.Position <= 0 {
		return types.OrderResp{}, &types.ChannelError{
			Channel: c.name, Op: cmd,
			Err: fmt.Errorf("no position reference for %s", req.Symbol),
		}
	}
	return resp, nil
}

func (c *WSChannel) Profit(ctx context.Context, position int64) (types.ProfitInfo, error) {
	var info types.ProfitInfo
	err := c.rpc(ctx, "get_profit", map[string]any{"position": position}, queryTimeout, &info)
	return info, err
}

func (c *WSChannel) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	var q types.Quote
	err := c.rpc(ctx, "get_quote", map[string]any{"symbol": symbol}, queryTimeout, &q)
	return q, err
}

func (c *WSChannel) AccountInfo(ctx context.Context) (types.AccountInfo, error) {
	var info types.AccountInfo
	err := c.rpc(ctx, "get_account_info", map[string]any{}, queryTimeout, &info)
	return info, err
}

func (c *WSChannel) ClosePosition(ctx context.Context, req types.CloseReq) (types.CloseResult, error) {
	params := map[string]any{
		"position": req.Position,
		"symbol":   req.Symbol,
		"side":     req.Side,
		"volume":   req.Volume,
		"magic":    req.Magic,
	}
	var res types.CloseResult
	if err := c.rpc(ctx, "close", params, orderTimeout, &res); err != nil {
		return types.CloseResult{}, err
	}
	if !res.Closed {
		return res, &types.ChannelError{
			Channel: c.name, Op: "close",
			Err: fmt.Errorf("position %d not closed", req.Position),
		}
	}
	return res, nil
}

// Shutdown tears down the websocket. In-flight calls fail with a read error.
func (c *WSChannel) Shutdown(ctx context.Context) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// rpc issues one command and waits for the matching response within the
// timeout. A timed-out call is abandoned, not cancelled: the endpoint may
// still execute it, which is why the reconciliation sweep exists.
func (c *WSChannel) rpc(ctx context.Context, cmd string, params any, timeout time.Duration, out any) error {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return &types.ChannelError{Channel: c.name, Op: cmd, Err: errors.New("not connected")}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return &types.ChannelError{Channel: c.name, Op: cmd, Err: err}
	}
	req := request{ID: uuid.NewString(), Cmd: cmd, Params: raw}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(&req); err != nil {
		return &types.ChannelError{Channel: c.name, Op: cmd, Err: err}
	}

	for {
		_ = conn.SetReadDeadline(deadline)
		var resp response
		if err := conn.ReadJSON(&resp); err != nil {
			timedOut := errors.Is(err, context.DeadlineExceeded)
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				timedOut = true
			}
			return &types.ChannelError{Channel: c.name, Op: cmd, Timeout: timedOut, Err: err}
		}
		if resp.ID != req.ID {
			// Response to an abandoned earlier call; drop it.
			continue
		}
		if resp.Status != "ok" {
			msg := resp.Error
			if msg == "" {
				msg = "unknown error"
			}
			return &types.ChannelError{Channel: c.name, Op: cmd, Err: errors.New(msg)}
		}
		if out == nil || len(resp.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return &types.ChannelError{Channel: c.name, Op: cmd, Err: err}
		}
		return nil
	}
}
