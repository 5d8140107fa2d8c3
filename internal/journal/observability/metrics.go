// Package observability exposes journal sync metrics to Prometheus.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pushCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pj",
		Subsystem: "sync",
		Name:      "pushes_total",
		Help:      "Remote pushes attempted, labeled by kind and outcome.",
	}, []string{"kind", "outcome"})

	pushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pj",
		Subsystem: "sync",
		Name:      "push_duration_seconds",
		Help:      "Latency of remote pushes, successful or not.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	resolveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pj",
		Subsystem: "sync",
		Name:      "resolve_duration_seconds",
		Help:      "Time spent in a full resolver pass.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	resolvedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pj",
		Subsystem: "sync",
		Name:      "resolved_records_total",
		Help:      "Records changed by the resolver, labeled by kind and action.",
	}, []string{"kind", "action"})

	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pj",
		Subsystem: "sync",
		Name:      "pending_records",
		Help:      "Records waiting in the retry queue.",
	})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pj",
		Subsystem: "sync",
		Name:      "last_sync_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed resolver pass.",
	})

	reauthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pj",
		Subsystem: "auth",
		Name:      "reauth_required",
		Help:      "1 when the remote rejected the session and the user must sign in again.",
	})
)

func init() {
	prometheus.MustRegister(pushCounter, pushDuration, resolveDuration, resolvedCounter, pendingGauge, lastSyncGauge, reauthGauge)
}

// RecordPush counts one push attempt.
func RecordPush(kind, outcome string, took time.Duration) {
	pushCounter.WithLabelValues(kind, outcome).Inc()
	pushDuration.Observe(took.Seconds())
}

// RecordResolve observes a resolver pass.
func RecordResolve(took time.Duration) {
	resolveDuration.Observe(took.Seconds())
}

// RecordResolved adds n records to the given resolver action.
func RecordResolved(kind, action string, n int) {
	if n <= 0 {
		return
	}
	resolvedCounter.WithLabelValues(kind, action).Add(float64(n))
}

// SetPending updates the retry queue gauge.
func SetPending(n int) {
	pendingGauge.Set(float64(n))
}

// SetLastSync updates the sync watermark gauge.
func SetLastSync(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSyncGauge.Set(float64(ts.Unix()))
}

// SetNeedsReauth flips the re-authentication gauge.
func SetNeedsReauth(v bool) {
	if v {
		reauthGauge.Set(1)
		return
	}
	reauthGauge.Set(0)
}
