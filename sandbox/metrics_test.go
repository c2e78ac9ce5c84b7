package sandbox

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsObserveExecution(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.ObserveExecution(LanguageJavaScript, successOutcome("ok"), 10*time.Millisecond)
	metrics.ObserveExecution(LanguagePython, failureOutcome(ErrTimeout, "too slow"), 50*time.Millisecond)
	metrics.ObserveExecution(LanguagePython, failureOutcome(ErrSecurityViolation, "denied"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.executionsTotal.WithLabelValues("javascript", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.executionsTotal.WithLabelValues("python", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.executionsTotal.WithLabelValues("python", "security_violation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.securityViolations))
}

func TestMetricsObserveInstallFailure(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.ObserveInstallFailure()
	metrics.ObserveInstallFailure()
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.installFailures))
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var metrics *Metrics

	assert.NotPanics(t, func() {
		metrics.ObserveExecution(LanguagePython, successOutcome("ok"), time.Millisecond)
		metrics.ObserveInstallFailure()
	})
}
