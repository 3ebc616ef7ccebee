package engine

import (
	"math"

	"pairbridge/internal/types"
)

// DrawdownPct computes the aggregate drawdown across the connected
// accounts as a percentage of combined balance. Negative means equity is
// under water. A non-positive aggregate balance yields 0, since the ratio
// is meaningless.
func DrawdownPct(accounts []types.AccountInfo) float64 {
	var balance, equity float64
	for _, a := range accounts {
		balance += a.Balance
		equity += a.Equity
	}
	if balance <= 0 {
		return 0
	}
	return (equity - balance) / balance * 100
}

// DrawdownBreached reports whether the aggregate drawdown has reached the
// configured stop. The stop is treated as a magnitude, so 5 and -5 both
// mean "stop at -5%".
func DrawdownBreached(enabled bool, stop float64, accounts []types.AccountInfo) (float64, bool) {
	pct := DrawdownPct(accounts)
	if !enabled {
		return pct, false
	}
	var balance float64
	for _, a := range accounts {
		balance += a.Balance
	}
	if balance <= 0 {
		return pct, false
	}
	return pct, pct <= -math.Abs(stop)
}
