// Package metrics exposes Prometheus instrumentation for the ledger core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations counts ledger operations by name and outcome.
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dompet_ledger_operations_total",
		Help: "Ledger operations processed, by operation and outcome.",
	}, []string{"operation", "outcome"})

	// TransactionsCreated counts appended transaction log entries by type.
	TransactionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dompet_transactions_created_total",
		Help: "Transaction log entries appended, by type.",
	}, []string{"type"})

	// BudgetCloses counts budget-cycle closes by trigger.
	BudgetCloses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dompet_budget_closes_total",
		Help: "Budget pocket closes, by trigger (auto or manual).",
	}, []string{"trigger"})

	// TotalAssetsCents tracks the last computed total across all cards.
	TotalAssetsCents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dompet_total_assets_cents",
		Help: "Sum of all card balances, in cents, as of the last overview.",
	})

	// PocketsTotalCents tracks the last computed total across real pockets.
	PocketsTotalCents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dompet_pockets_total_cents",
		Help: "Sum of pocket balances excluding the reward pool, in cents, as of the last overview.",
	})

	// HTTPDuration observes request latency by route and status.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dompet_http_request_duration_seconds",
		Help:    "HTTP request latency by method, route, and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// ObserveOperation records one ledger operation outcome.
func ObserveOperation(operation, outcome string) {
	Operations.WithLabelValues(operation, outcome).Inc()
}
