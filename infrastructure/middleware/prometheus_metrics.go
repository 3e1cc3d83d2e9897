// Package middleware provides cross-cutting concerns for the tally engine.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-tally/internal/ports"
)

// Metric names understood by PrometheusMetrics. Anything else recorded as a
// counter or gauge lands in the generic operation and state vectors.
const (
	MetricBallots   = "tally_ballots_total"
	MetricRounds    = "tally_rounds"
	MetricQuota     = "tally_quota"
	MetricDecisions = "tally_decisions_total"

	MetricTransferValues = "tally_transfer_values"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It tracks ballot intake, count progress and unit latency.
type PrometheusMetrics struct {
	ballots          *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	rounds           *prometheus.GaugeVec
	quota            *prometheus.GaugeVec
	transferValues   *prometheus.HistogramVec
	executionLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers its
// collectors with reg. Pass prometheus.DefaultRegisterer for the process-wide
// registry, or a fresh prometheus.NewRegistry() in tests.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		ballots: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricBallots,
				Help: "Ballots read per question, split by valid, blank and null.",
			},
			[]string{"election", "question", "status"},
		),
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricDecisions,
				Help: "Candidates elected, seated by shortcut or eliminated.",
			},
			[]string{"election", "question", "kind"},
		),
		rounds: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricRounds,
				Help: "Rounds played by the latest count of a question.",
			},
			[]string{"election", "question"},
		),
		quota: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: MetricQuota,
				Help: "Quota used by the latest count of a question.",
			},
			[]string{"election", "question"},
		),
		transferValues: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricTransferValues,
				Help:    "Vote value carried by candidates when they are seated or eliminated.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"election", "question", "kind"},
		),

		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_unit_duration_seconds",
				Help:    "Execution time of tally pipeline units.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "unit"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_operations_total",
				Help: "Total number of unit executions by outcome.",
			},
			[]string{"operation", "status", "unit"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tally_system_state",
				Help: "Miscellaneous state values reported by tally units.",
			},
			[]string{"metric", "unit"},
		),
	}
}

func unitLabel(labels map[string]string) string {
	if unit := labels["unit"]; unit != "" {
		return unit
	}
	return "unknown"
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.executionLatency.WithLabelValues(operation, unitLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricBallots:
		pm.ballots.WithLabelValues(labels["election"], labels["question"], labels["status"]).Add(value)
	case MetricDecisions:
		pm.decisions.WithLabelValues(labels["election"], labels["question"], labels["kind"]).Add(value)
	default:
		status := labels["status"]
		if status == "" {
			status = "success"
		}
		pm.operationCounter.WithLabelValues(metric, status, unitLabel(labels)).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricRounds:
		pm.rounds.WithLabelValues(labels["election"], labels["question"]).Set(value)
	case MetricQuota:
		pm.quota.WithLabelValues(labels["election"], labels["question"]).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric, unitLabel(labels)).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface. Transfer
// values have their own histogram; any other metric is treated as a
// duration in seconds and lands in the unit latency histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricTransferValues:
		pm.transferValues.WithLabelValues(labels["election"], labels["question"], labels["kind"]).Observe(value)
	default:
		pm.executionLatency.WithLabelValues(metric, unitLabel(labels)).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
