package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerd_http_requests_total",
		Help: "HTTP requests by method, route and status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgerd_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerd_transfers_total",
		Help: "Transfers by type and terminal status",
	}, []string{"type", "status"})

	LedgerEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerd_ledger_entries_total",
		Help: "Ledger entries written by entry type",
	}, []string{"entry_type"})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerd_outbox_published_total",
		Help: "Outbox events published",
	})

	OutboxFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerd_outbox_failed_total",
		Help: "Outbox dispatch attempts that failed",
	})

	OutboxDeadLetterTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerd_outbox_dead_letter_total",
		Help: "Outbox events that exhausted their attempts",
	})

	IdempotencyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerd_idempotency_total",
		Help: "Idempotency pre-filter outcomes (replay, conflict, lock_timeout, stored)",
	}, []string{"outcome"})

	DeadlockRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerd_deadlock_retries_total",
		Help: "Transactions retried after a deadlock or serialization failure",
	})

	ReconciliationRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerd_reconciliation_runs_total",
		Help: "Reconciliation runs by trigger and result",
	}, []string{"trigger", "result"})

	ReconciliationExceptionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledgerd_reconciliation_exceptions",
		Help: "Accounts per discrepancy class found by the last reconciliation run",
	}, []string{"class"})

	RateLimitDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerd_rate_limit_drops_total",
		Help: "Requests rejected by the rate limiter",
	})

	DatabaseConnectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledgerd_database_connections",
		Help: "Database pool connections by state",
	}, []string{"state"})
)

// Middleware records request counts and latency per route. The route
// template (not the raw path) is used so ids do not explode cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
