package engine

import (
	"math"
	"testing"

	"pairbridge/internal/types"
)

func TestDrawdownNotBreached(t *testing.T) {
	// Aggregate balance 3000, equity 2910: -3% against a 5% stop.
	accounts := []types.AccountInfo{
		{Balance: 1000, Equity: 930},
		{Balance: 2000, Equity: 1980},
	}
	pct, breached := DrawdownBreached(true, 5, accounts)
	if breached {
		t.Error("Expected -3% drawdown not to breach a 5% stop")
	}
	if math.Abs(pct-(-3.0)) > 1e-9 {
		t.Errorf("Expected drawdown -3%%, got %f", pct)
	}
}

func TestDrawdownBreached(t *testing.T) {
	// Aggregate balance 3000, equity 2700: -10% breaches a 5% stop.
	accounts := []types.AccountInfo{
		{Balance: 1000, Equity: 900},
		{Balance: 2000, Equity: 1800},
	}
	pct, breached := DrawdownBreached(true, 5, accounts)
	if !breached {
		t.Error("Expected -10% drawdown to breach a 5% stop")
	}
	if math.Abs(pct-(-10.0)) > 1e-9 {
		t.Errorf("Expected drawdown -10%%, got %f", pct)
	}
}

func TestDrawdownDisabled(t *testing.T) {
	accounts := []types.AccountInfo{{Balance: 1000, Equity: 100}}
	if _, breached := DrawdownBreached(false, 5, accounts); breached {
		t.Error("Expected no breach while the monitor is disabled")
	}
}

func TestDrawdownZeroBalance(t *testing.T) {
	accounts := []types.AccountInfo{{Balance: 0, Equity: -50}}
	pct, breached := DrawdownBreached(true, 5, accounts)
	if breached {
		t.Error("Expected no breach with non-positive aggregate balance")
	}
	if pct != 0 {
		t.Errorf("Expected 0%% with non-positive balance, got %f", pct)
	}
}

func TestDrawdownStopSign(t *testing.T) {
	accounts := []types.AccountInfo{{Balance: 1000, Equity: 900}}
	// The stop is a magnitude; -5 and 5 behave identically.
	if _, breached := DrawdownBreached(true, -5, accounts); !breached {
		t.Error("Expected a negative stop value to behave as its magnitude")
	}
}
