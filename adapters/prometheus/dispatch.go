package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/kvclstr-go/core/dispatch"
)

// dispatchMetrics implements dispatch.DispatchMetrics using Prometheus.
type dispatchMetrics struct {
	attemptDuration     prometheus.Histogram
	operationsCompleted *prometheus.CounterVec
	redirects           *prometheus.CounterVec
	connectionFailures  prometheus.Counter
	slotRenewals        *prometheus.CounterVec
}

// NewDispatchMetrics creates a new Prometheus implementation of
// dispatch.DispatchMetrics and registers its collectors on reg.
func NewDispatchMetrics(reg prometheus.Registerer) dispatch.DispatchMetrics {
	m := &dispatchMetrics{
		attemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kvclstr_dispatch_attempt_duration_seconds",
			Help:    "Latency of one physical dispatch attempt in seconds",
			Buckets: defaultBuckets,
		}),

		operationsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvclstr_dispatch_operations_total",
			Help: "Total number of completed logical calls by outcome",
		}, []string{"outcome"}),

		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvclstr_dispatch_redirects_total",
			Help: "Total number of cluster redirections followed, by kind",
		}, []string{"kind"}),

		connectionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kvclstr_dispatch_connection_failures_total",
			Help: "Total number of retryable connection failures",
		}),

		slotRenewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kvclstr_dispatch_slot_renewals_total",
			Help: "Total number of slot-map renewals requested, by hintedness",
		}, []string{"hinted"}),
	}

	reg.MustRegister(
		m.attemptDuration,
		m.operationsCompleted,
		m.redirects,
		m.connectionFailures,
		m.slotRenewals,
	)

	return m
}

func (m *dispatchMetrics) AttemptDuration() dispatch.Timer {
	return newTimer(m.attemptDuration)
}

func (m *dispatchMetrics) OperationCompleted(outcome string) {
	m.operationsCompleted.WithLabelValues(outcome).Inc()
}

func (m *dispatchMetrics) Redirected(kind string) {
	m.redirects.WithLabelValues(kind).Inc()
}

func (m *dispatchMetrics) ConnectionFailure() {
	m.connectionFailures.Inc()
}

func (m *dispatchMetrics) SlotCacheRenewal(hinted bool) {
	m.slotRenewals.WithLabelValues(strconv.FormatBool(hinted)).Inc()
}
