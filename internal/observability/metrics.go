// Package observability holds the service-wide Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncRunsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "fit_sync",
		Name:      "runs_total",
		Help:      "Google Fit sync runs grouped by outcome.",
	}, []string{"outcome"})

	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "healthsync",
		Subsystem: "fit_sync",
		Name:      "duration_seconds",
		Help:      "End-to-end duration of a sync run, refresh and store writes included.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	syncedRowsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "fit_sync",
		Name:      "rows_upserted_total",
		Help:      "Reconciled rows written by sync runs, labeled by store.",
	}, []string{"store"})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthsync",
		Subsystem: "fit_sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sync run.",
	})

	tokenRefreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "oauth",
		Name:      "token_refresh_total",
		Help:      "Access token refresh attempts grouped by result.",
	}, []string{"result"})

	scoreCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "score",
		Name:      "computations_total",
		Help:      "Health scores computed on request.",
	})

	rateLimitCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Rate limiter decisions grouped by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(syncRunsCounter, syncDuration, syncedRowsCounter, lastSyncGauge, tokenRefreshCounter, scoreCounter, rateLimitCounter)
}

// RecordSync tracks a finished sync run.
func RecordSync(outcome string, started time.Time) {
	syncRunsCounter.WithLabelValues(outcome).Inc()
	syncDuration.Observe(time.Since(started).Seconds())
	if outcome == "success" {
		lastSyncGauge.Set(float64(time.Now().Unix()))
	}
}

// RecordRowsUpserted counts rows written to the named store.
func RecordRowsUpserted(store string, n int) {
	if n <= 0 {
		return
	}
	syncedRowsCounter.WithLabelValues(store).Add(float64(n))
}

// RecordTokenRefresh counts refresh attempts by result.
func RecordTokenRefresh(result string) {
	tokenRefreshCounter.WithLabelValues(result).Inc()
}

// RecordScoreComputed counts a score computation.
func RecordScoreComputed() {
	scoreCounter.Inc()
}

// RecordRateLimit counts a limiter decision: allowed, limited or error.
func RecordRateLimit(result string) {
	rateLimitCounter.WithLabelValues(result).Inc()
}
