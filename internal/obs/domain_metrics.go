package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuotesTotal counts order quote computations by outcome.
	QuotesTotal *prometheus.CounterVec
	// OrderWritesTotal counts order creates and edits by outcome.
	OrderWritesTotal *prometheus.CounterVec
	// PointsRedeemedTotal sums loyalty points debited by orders.
	PointsRedeemedTotal prometheus.Counter
	// ValidationFailuresTotal counts rejected requests by error code.
	ValidationFailuresTotal *prometheus.CounterVec
	// TasksProcessedTotal counts worker task outcomes by type.
	TasksProcessedTotal *prometheus.CounterVec
	// LockWaitSeconds observes time spent acquiring resource locks.
	LockWaitSeconds *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_quotes_total",
			Help:      "Count of order quote computations by outcome.",
		}, []string{"result"})
		OrderWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_writes_total",
			Help:      "Count of order creates and edits by outcome.",
		}, []string{"op", "result"})
		PointsRedeemedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_points_redeemed_total",
			Help:      "Loyalty points debited by order writes.",
		})
		ValidationFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Requests rejected before persistence, by error code.",
		}, []string{"code"})
		TasksProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_tasks_processed_total",
			Help:      "Worker task outcomes grouped by type and status.",
		}, []string{"type", "status"})
		LockWaitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a resource lock, by outcome.",
			Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 2, 10},
		}, []string{"resource", "result"})

		mustRegisterCollector(reg, QuotesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuotesTotal = v
			}
		})
		mustRegisterCollector(reg, OrderWritesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderWritesTotal = v
			}
		})
		mustRegisterCollector(reg, PointsRedeemedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PointsRedeemedTotal = v
			}
		})
		mustRegisterCollector(reg, ValidationFailuresTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ValidationFailuresTotal = v
			}
		})
		mustRegisterCollector(reg, TasksProcessedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TasksProcessedTotal = v
			}
		})
		mustRegisterCollector(reg, LockWaitSeconds, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				LockWaitSeconds = v
			}
		})
	})
}

// IncQuote records a quote outcome. Safe before registration.
func IncQuote(result string) {
	if QuotesTotal != nil {
		QuotesTotal.WithLabelValues(result).Inc()
	}
}

// IncOrderWrite records a create or update outcome.
func IncOrderWrite(op, result string) {
	if OrderWritesTotal != nil {
		OrderWritesTotal.WithLabelValues(op, result).Inc()
	}
}

// AddPointsRedeemed adds debited points.
func AddPointsRedeemed(points int64) {
	if PointsRedeemedTotal != nil && points > 0 {
		PointsRedeemedTotal.Add(float64(points))
	}
}

// IncValidationFailure records a rejected request.
func IncValidationFailure(code string) {
	if ValidationFailuresTotal != nil {
		ValidationFailuresTotal.WithLabelValues(code).Inc()
	}
}

// IncTaskProcessed records a worker task outcome.
func IncTaskProcessed(taskType, status string) {
	if TasksProcessedTotal != nil {
		TasksProcessedTotal.WithLabelValues(taskType, status).Inc()
	}
}

// ObserveLockWait records how long a lock acquisition took.
func ObserveLockWait(resource, result string, seconds float64) {
	if LockWaitSeconds != nil {
		LockWaitSeconds.WithLabelValues(resource, result).Observe(seconds)
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
