// Package observability exposes Prometheus metrics for the ledger core:
// reconciliation runs, automatic payments, interest passes, and enrichment
// lookups. The API server mounts them at /metrics when enabled.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Reconciliation Metrics ─────────────────────────────────────────────────

// ReconcileRuns counts reconciliation passes over the transaction log.
var ReconcileRuns = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sidekick",
	Subsystem: "reconcile",
	Name:      "runs_total",
	Help:      "Total reconciliation passes over the transaction log.",
})

// FetchErrors counts failed transaction-log fetches.
var FetchErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sidekick",
	Subsystem: "reconcile",
	Name:      "fetch_errors_total",
	Help:      "Total failed transaction-log fetches (retried next tick).",
})

// PaymentsApplied counts automatically applied repayments.
var PaymentsApplied = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sidekick",
	Subsystem: "reconcile",
	Name:      "payments_applied_total",
	Help:      "Total repayments auto-applied from matched log events.",
})

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// OpenObligations tracks the current number of non-completed obligations.
var OpenObligations = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "sidekick",
	Subsystem: "ledger",
	Name:      "open_obligations",
	Help:      "Current number of open obligations by kind.",
}, []string{"kind"})

// LedgerSaves counts persisted ledger snapshots.
var LedgerSaves = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "sidekick",
	Subsystem: "ledger",
	Name:      "saves_total",
	Help:      "Total ledger snapshots written to the persistent store.",
})

// InterestPasses counts interest accrual passes that changed a balance.
var InterestPasses = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sidekick",
	Subsystem: "ledger",
	Name:      "interest_passes_total",
	Help:      "Total interest accrual passes by outcome (changed or noop).",
}, []string{"outcome"})

// ─── Enrichment Metrics ─────────────────────────────────────────────────────

// EnrichmentLookups counts remote profile lookups by result.
var EnrichmentLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sidekick",
	Subsystem: "enrich",
	Name:      "lookups_total",
	Help:      "Total counterparty profile lookups by result.",
}, []string{"result"})
