package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const namespace = "bounty"

// Операции леджера
var LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Total ledger operations by operation and result.",
}, []string{"op", "result"})

var LedgerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "operation_duration_seconds",
	Help:      "Ledger operation latency.",
	Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
}, []string{"op"})

var PlatformRevenue = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "platform_revenue_total",
	Help:      "Fees kept by the platform, in currency units.",
}, []string{"source"})

var ConservationViolations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "conservation_violations_total",
	Help:      "Bounties whose held amount does not match payouts, refunds and fees.",
})

// Сверка платежей
var WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "payments",
	Name:      "webhook_events_total",
	Help:      "Provider events by type and outcome.",
}, []string{"type", "outcome"})

var PaymentFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "payments",
	Name:      "failures_total",
	Help:      "Failed payment attempts reported by the provider.",
}, []string{"kind"})

// Свипер
var SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sweeper",
	Name:      "runs_total",
	Help:      "Sweep runs by result (ok, partial, skipped, error).",
}, []string{"result"})

var SweepExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sweeper",
	Name:      "expired_total",
	Help:      "Bounties expired by the sweeper.",
})

var SweepBoostsReset = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sweeper",
	Name:      "boosts_reset_total",
	Help:      "Expired boosts reset to level zero.",
})

var SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "sweeper",
	Name:      "duration_seconds",
	Help:      "Sweep run latency.",
	Buckets:   prometheus.DefBuckets,
})

// HTTP
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by method, route and status.",
}, []string{"method", "route", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// ObserveLedger фиксирует результат и длительность операции леджера.
func ObserveLedger(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	LedgerOperations.WithLabelValues(op, result).Inc()
	LedgerDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// AddRevenue учитывает комиссию платформы. Отрицательные суммы (возвраты) не учитываются в счётчике.
func AddRevenue(source string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	PlatformRevenue.WithLabelValues(source).Add(amount.InexactFloat64())
}
