// Package metrics exposes the automation loop's Prometheus metrics:
//   - pair_opens_total{source}            – pairs opened (source: schedule|manual)
//   - pair_closes_total{reason}           – pairs closed, split by close reason
//   - pair_entry_skips_total{reason}      – entry triggers skipped (spread gate, channel errors)
//   - pair_active_trades                  – open paired trades (gauge)
//   - pair_drawdown_pct                   – aggregate drawdown percentage (gauge)
//   - pair_account_balance / pair_account_equity – aggregate account snapshot (gauges)
//   - pair_cycle_seconds                  – automation cycle duration histogram
//   - pair_cycle_errors_total             – cycles that ended in a recovered error
//
// Registered in init() and served at /metrics when the listener is enabled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PairOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pair_opens_total",
			Help: "Paired trades opened",
		},
		[]string{"source"},
	)

	PairCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pair_closes_total",
			Help: "Paired trades closed, split by close reason",
		},
		[]string{"reason"},
	)

	EntrySkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pair_entry_skips_total",
			Help: "Entry triggers skipped, split by skip reason",
		},
		[]string{"reason"},
	)

	ActiveTrades = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pair_active_trades",
			Help: "Open paired trades",
		},
	)

	DrawdownPct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pair_drawdown_pct",
			Help: "Aggregate drawdown percentage across connected accounts",
		},
	)

	AccountBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pair_account_balance",
			Help: "Aggregate balance across connected accounts",
		},
	)

	AccountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pair_account_equity",
			Help: "Aggregate equity across connected accounts",
		},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pair_cycle_seconds",
			Help:    "Automation cycle duration",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	CycleErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pair_cycle_errors_total",
			Help: "Automation cycles that ended in a recovered error",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PairOpens,
		PairCloses,
		EntrySkips,
		ActiveTrades,
		DrawdownPct,
		AccountBalance,
		AccountEquity,
		CycleDuration,
		CycleErrors,
	)
}

// Handler returns the Prometheus exposition handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
