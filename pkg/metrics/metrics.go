package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Dispatcher metrics
	DispatcherTicks     prometheus.Counter
	ExecutionsClaimed   prometheus.Counter
	ExecutionsCompleted prometheus.Counter
	ExecutionsFailed    prometheus.Counter
	DispatchLatency     prometheus.Histogram

	// Campaign metrics
	CohortSize    prometheus.Histogram
	RunsStarted   prometheus.Counter
	RunsCompleted prometheus.Counter

	// Delivery metrics
	EmailsQueued    prometheus.Counter
	EmailsSent      prometheus.Counter
	EmailsDelivered prometheus.Counter
}

// NewMetrics creates and registers all application metrics on the default
// registry.
func NewMetrics(namespace, subsystem string) *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer, namespace, subsystem)
}

// NewMetricsWithRegisterer registers on an explicit registry. Tests use this
// with a fresh registry per test to avoid duplicate registration.
func NewMetricsWithRegisterer(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DispatcherTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatcher_ticks_total",
			Help:      "Total number of dispatcher polling ticks",
		}),
		ExecutionsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scheduled_executions_claimed_total",
			Help:      "Total number of scheduled executions claimed for dispatch",
		}),
		ExecutionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scheduled_executions_completed_total",
			Help:      "Total number of scheduled executions that completed",
		}),
		ExecutionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scheduled_executions_failed_total",
			Help:      "Total number of scheduled executions that failed",
		}),
		DispatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent executing one due scheduled execution",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		CohortSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cohort_size",
			Help:      "Number of eligible vehicles per cohort computation",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rule_runs_started_total",
			Help:      "Total number of rule runs started",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rule_runs_completed_total",
			Help:      "Total number of rule runs fully delivered",
		}),
		EmailsQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "emails_queued_total",
			Help:      "Total number of emails queued",
		}),
		EmailsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "emails_sent_total",
			Help:      "Total number of emails sent",
		}),
		EmailsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "emails_delivered_total",
			Help:      "Total number of emails delivered",
		}),
	}
}
