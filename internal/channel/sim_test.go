package channel

import (
	"context"
	"testing"

	"pairbridge/internal/types"
)

func TestSimChannelLifecycle(t *testing.T) {
	ch := NewSim("A1")
	ctx := context.Background()

	if ch.Connected() {
		t.Error("Expected disconnected before Connect")
	}
	if _, err := ch.Connect(ctx, ""); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if !ch.Connected() {
		t.Error("Expected connected after Connect")
	}

	ch.SetQuote("EURUSD", 1.1000, 1.1004, 0.4)
	q, err := ch.Quote(ctx, "EURUSD")
	if err != nil {
		t.Fatalf("Failed to fetch quote: %v", err)
	}
	if q.Spread != 0.4 {
		t.Errorf("Expected spread 0.4, got %f", q.Spread)
	}
	if _, err := ch.Quote(ctx, "UNSET"); err == nil {
		t.Error("Expected an error for an unseeded symbol")
	}

	resp, err := ch.PlaceOrder(ctx, types.OrderReq{Symbol: "EURUSD", Side: types.SideBuy, Volume: 0.1})
	if err != nil {
		t.Fatalf("Failed to place order: %v", err)
	}
	if resp.Position == 0 {
		t.Fatal("Expected a position reference")
	}
	if resp.EntryPrice != 1.1004 {
		t.Errorf("Expected a buy to fill at the ask, got %f", resp.EntryPrice)
	}

	info, err := ch.Profit(ctx, resp.Position)
	if err != nil {
		t.Fatalf("Failed to fetch profit: %v", err)
	}
	if !info.Open {
		t.Error("Expected the position to be open")
	}

	if _, err := ch.ClosePosition(ctx, types.CloseReq{Position: resp.Position, Symbol: "EURUSD"}); err != nil {
		t.Fatalf("Failed to close position: %v", err)
	}
	info, _ = ch.Profit(ctx, resp.Position)
	if info.Open {
		t.Error("Expected the position closed")
	}
	if _, err := ch.ClosePosition(ctx, types.CloseReq{Position: resp.Position}); err == nil {
		t.Error("Expected closing twice to fail")
	}
}
