// Package observability holds the process-wide Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activitiesPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kinetic",
		Subsystem: "store",
		Name:      "activities_persisted_total",
		Help:      "Activities committed to the store, by sport.",
	}, []string{"sport"})
	streamSamplesPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kinetic",
		Subsystem: "store",
		Name:      "stream_samples_persisted_total",
		Help:      "Stream samples bulk-loaded into the store.",
	})
	ingestFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kinetic",
		Subsystem: "ingest",
		Name:      "failures_total",
		Help:      "Ingestion failures, by reason.",
	}, []string{"reason"})
	ingestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kinetic",
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "Wall time spent decoding, normalizing and persisting one file.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	powerCurveRecomputes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kinetic",
		Subsystem: "analytics",
		Name:      "power_curve_recomputes_total",
		Help:      "Full power-curve recomputations completed.",
	})
	powerCurveActivities = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kinetic",
		Subsystem: "analytics",
		Name:      "power_curve_activities",
		Help:      "Activities scanned per power-curve recomputation.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(
		activitiesPersisted,
		streamSamplesPersisted,
		ingestFailures,
		ingestDuration,
		powerCurveRecomputes,
		powerCurveActivities,
	)
}

// RecordActivityPersisted counts a committed activity bundle.
func RecordActivityPersisted(sport string, samples int) {
	activitiesPersisted.WithLabelValues(sport).Inc()
	streamSamplesPersisted.Add(float64(samples))
}

// RecordIngestFailure counts a failed ingestion.
func RecordIngestFailure(reason string) {
	ingestFailures.WithLabelValues(reason).Inc()
}

// ObserveIngestDuration records the end-to-end time for one file.
func ObserveIngestDuration(d time.Duration) {
	ingestDuration.Observe(d.Seconds())
}

// RecordPowerCurveRecompute counts one replace-all curve computation.
func RecordPowerCurveRecompute(activities int) {
	powerCurveRecomputes.Inc()
	powerCurveActivities.Observe(float64(activities))
}
