package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmarket_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentmarket_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	AgentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentmarket_agents_created_total",
			Help: "Total agents created",
		},
	)

	TransactionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmarket_transactions_created_total",
			Help: "Total transactions created",
		},
		[]string{"token", "origin"}, // origin: "user" or "synthetic"
	)

	TransactionsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmarket_transactions_confirmed_total",
			Help: "Total transactions confirmed",
		},
		[]string{"token"},
	)

	DuplicateConfirmations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentmarket_duplicate_confirmations_total",
			Help: "Confirmation deliveries ignored because the transaction was no longer pending",
		},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmarket_jobs_processed_total",
			Help: "Total deferred jobs processed",
		},
		[]string{"kind", "status"},
	)

	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentmarket_maintenance_runs_total",
			Help: "Total periodic maintenance runs",
		},
		[]string{"task", "result"},
	)

	ChatMessagesEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentmarket_chat_messages_evicted_total",
			Help: "Total chat messages deleted by retention",
		},
	)
)
