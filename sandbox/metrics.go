package sandbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects execution metrics for the sandbox.
// All methods are safe on a nil receiver so executors can run unmetered.
type Metrics struct {
	executionsTotal    *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	securityViolations prometheus.Counter
	installFailures    prometheus.Counter
}

// NewMetrics creates sandbox metrics registered on the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		executionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "stepbox",
				Name:      "executions_total",
				Help:      "Total number of code-step executions",
			},
			[]string{"language", "outcome"},
		),
		executionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "stepbox",
				Name:      "execution_duration_seconds",
				Help:      "Code-step execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"language"},
		),
		securityViolations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "stepbox",
				Name:      "security_violations_total",
				Help:      "Total number of requests rejected by the static security gate",
			},
		),
		installFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "stepbox",
				Name:      "dependency_install_failures_total",
				Help:      "Total number of best-effort dependency installs that failed",
			},
		),
	}
}

// ObserveExecution records one finished execution
func (m *Metrics) ObserveExecution(language Language, outcome Outcome, duration time.Duration) {
	if m == nil {
		return
	}
	label := "success"
	if !outcome.Success {
		label = string(outcome.Error.Kind)
		if outcome.Error.Kind == ErrSecurityViolation {
			m.securityViolations.Inc()
		}
	}
	m.executionsTotal.WithLabelValues(string(language), label).Inc()
	m.executionDuration.WithLabelValues(string(language)).Observe(duration.Seconds())
}

// ObserveInstallFailure records one degraded dependency-install sub-step
func (m *Metrics) ObserveInstallFailure() {
	if m == nil {
		return
	}
	m.installFailures.Inc()
}
