package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the various metrics used for monitoring the client.
// It includes counters for cookie and session operations, histograms for
// API and storage latency, and gauges describing the session and the
// secure store tier in use.
type Metrics struct {
	CookieOps            *prometheus.CounterVec
	CookiesPurged        prometheus.Counter
	CookieRecordsSkipped prometheus.Counter
	SessionOps           *prometheus.CounterVec
	APIRequestDuration   *prometheus.HistogramVec
	StorageQueryDuration *prometheus.HistogramVec
	SecureStoreTier      *prometheus.GaugeVec
	LastSuccessfulCheck  prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with the provided Registerer.
//
// Parameters:
//   - reg: A prometheus.Registerer used to register the metrics.
//
// Returns:
//   - A pointer to the newly created Metrics instance.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		CookieOps: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "oeee_cookie_operations_total",
			Help: "Total cookie store operations by kind.",
		}, []string{"op"}), // op: add, get, remove, clear
		CookiesPurged: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "oeee_cookies_purged_total",
			Help: "Total number of expired cookies dropped from the store.",
		}),
		CookieRecordsSkipped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "oeee_cookie_records_skipped_total",
			Help: "Total number of malformed persisted cookie records skipped on load.",
		}),
		SessionOps: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "oeee_session_operations_total",
			Help: "Total session operations by kind and outcome.",
		}, []string{"op", "status"}),
		APIRequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oeee_api_request_duration_seconds",
			Help:    "Duration of oeee.cafe API requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		StorageQueryDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oeee_storage_query_duration_seconds",
			Help:    "Duration of durable key/value storage queries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "op"}),
		SecureStoreTier: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "oeee_secure_store_tier",
			Help: "Set to 1 for the secure store tier opened for a namespace.",
		}, []string{"namespace", "tier"}),
		LastSuccessfulCheck: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "oeee_last_successful_auth_check_timestamp",
			Help: "Last time the session was confirmed by the server.",
		}),
	}

	metrics.SessionOps.WithLabelValues("check", "success")
	metrics.SessionOps.WithLabelValues("check", "failure")

	return metrics
}
