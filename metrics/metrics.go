// Package metrics registers the prometheus instruments for the issuance
// pipeline and the background refreshers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by endpoint and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citadel",
		Name:      "requests_total",
		Help:      "HTTP requests by endpoint and status.",
	}, []string{"endpoint", "status"})

	// ErrorsTotal counts terminal request failures by error tag.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citadel",
		Name:      "errors_total",
		Help:      "Terminal request failures by error tag.",
	}, []string{"endpoint", "tag"})

	// KeysIssuedTotal counts derived keys returned to callers.
	KeysIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "citadel",
		Name:      "keys_issued_total",
		Help:      "Derived keys returned to callers.",
	})

	// RequestDuration observes end-to-end handler latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "citadel",
		Name:      "request_duration_seconds",
		Help:      "End-to-end handler latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	// PolicyCheckDuration observes dry-run round trips.
	PolicyCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "citadel",
		Name:      "policy_check_duration_seconds",
		Help:      "Dry-run policy evaluation round trips.",
		Buckets:   prometheus.DefBuckets,
	})

	// CheckpointDelay gauges how far behind the freshest checkpoint is.
	CheckpointDelay = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "citadel",
		Name:      "checkpoint_delay_seconds",
		Help:      "Age of the latest observed checkpoint.",
	})

	// RefreshDuration observes background refresher calls by value name.
	RefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "citadel",
		Name:      "refresh_duration_seconds",
		Help:      "Background snapshot refresh latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"value"})

	// RefreshFailures counts failed background refresh ticks.
	RefreshFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citadel",
		Name:      "refresh_failures_total",
		Help:      "Failed background snapshot refresh ticks.",
	}, []string{"value"})
)

// ObserveRefresh records one background refresh tick.
func ObserveRefresh(value string, started time.Time, err error) {
	RefreshDuration.WithLabelValues(value).Observe(time.Since(started).Seconds())
	if err != nil {
		RefreshFailures.WithLabelValues(value).Inc()
	}
}
