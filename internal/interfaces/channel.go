package interfaces

import (
	"context"

	"pairbridge/internal/types"
)

// Channel is one execution endpoint (one per connected account). Every call
// is request/response with exactly one outstanding call per channel.
type Channel interface {
	Name() string
	Connect(ctx context.Context, path string) (types.ConnectInfo, error)
	Connected() bool
	PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error)
	Profit(ctx context.Context, position int64) (types.ProfitInfo, error)
	Quote(ctx context.Context, symbol string) (types.Quote, error)
	AccountInfo(ctx context.Context) (types.AccountInfo, error)
	ClosePosition(ctx context.Context, req types.CloseReq) (types.CloseResult, error)
	Shutdown(ctx context.Context)
}
