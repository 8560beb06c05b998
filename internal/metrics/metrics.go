package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	DispatchRuns     prometheus.Counter
	DigestsSent      prometheus.Counter
	DigestsFailed    prometheus.Counter
	DigestsSkipped   prometheus.Counter
	GenerationTokens prometheus.Counter
	StaleReclaimed   prometheus.Counter
	ProcessingTime   prometheus.Histogram
	FacultyActive    prometheus.Gauge
	FacultyDue       prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		DispatchRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rfp_digest_dispatch_runs_total",
			Help: "Total number of dispatch cycles started",
		}),
		DigestsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rfp_digest_digests_sent_total",
			Help: "Total number of digests delivered successfully",
		}),
		DigestsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rfp_digest_digests_failed_total",
			Help: "Total number of digest attempts that failed",
		}),
		DigestsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rfp_digest_digests_skipped_total",
			Help: "Total number of digests skipped as duplicates",
		}),
		GenerationTokens: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rfp_digest_generation_tokens_total",
			Help: "Total generation API tokens consumed",
		}),
		StaleReclaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "rfp_digest_stale_reclaimed_total",
			Help: "Total schedules reclaimed from a stuck processing state",
		}),
		ProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "rfp_digest_processing_duration_seconds",
			Help:    "Time spent processing one faculty digest end to end",
			Buckets: prometheus.DefBuckets,
		}),
		FacultyActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rfp_digest_faculty_active",
			Help: "Number of active faculty profiles",
		}),
		FacultyDue: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "rfp_digest_faculty_due",
			Help: "Number of faculty currently due for a digest",
		}),
	}
}
