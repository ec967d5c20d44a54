// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Ingestion metrics
	IngestRunsTotal   *prometheus.CounterVec
	IngestDuration    prometheus.Histogram
	SkippedPoints     prometheus.Counter
	RowsSubmitted     *prometheus.CounterVec
	RowsInserted      *prometheus.CounterVec
	ChunksWritten     *prometheus.CounterVec
	FeedFetchDuration *prometheus.HistogramVec
	MessagesPublished prometheus.Counter

	// Query metrics
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
	CacheRequests *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg. A nil reg
// registers with the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "traffic_server"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		IngestRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "runs_total",
			Help:      "Total number of ingestion runs by status",
		}, []string{"status"}),
		IngestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "run_duration_seconds",
			Help:      "Ingestion run duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		SkippedPoints: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "skipped_points_total",
			Help:      "Total number of measuring points skipped for lack of a location",
		}),
		RowsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "rows_submitted_total",
			Help:      "Total number of rows submitted to batch inserts by table",
		}, []string{"table"}),
		RowsInserted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "rows_inserted_total",
			Help:      "Total number of rows actually inserted by table",
		}, []string{"table"}),
		ChunksWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "chunks_written_total",
			Help:      "Total number of insert chunks committed by table",
		}, []string{"table"}),
		FeedFetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetch_duration_seconds",
			Help:      "Feed document fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"document"}),
		MessagesPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "messages_published_total",
			Help:      "Total number of measurement messages published",
		}),

		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Measurement query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		QueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "errors_total",
			Help:      "Total number of failed measurement queries",
		}, []string{"operation"}),
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Total number of query cache lookups by result",
		}, []string{"result"}),

		LastSuccessfulIngestion: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful ingestion",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint serving g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordIngestRun records the outcome of one ingestion run.
func (m *Metrics) RecordIngestRun(err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	} else {
		m.LastSuccessfulIngestion.SetToCurrentTime()
	}
	m.IngestRunsTotal.WithLabelValues(status).Inc()
	m.IngestDuration.Observe(d.Seconds())
}

// AddSkippedPoints counts measuring points dropped for lack of a location.
func (m *Metrics) AddSkippedPoints(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedPoints.Add(float64(n))
}

// RecordBatch records a batch insert into table.
func (m *Metrics) RecordBatch(table string, chunks, submitted int, inserted int64) {
	if m == nil {
		return
	}
	m.ChunksWritten.WithLabelValues(table).Add(float64(chunks))
	m.RowsSubmitted.WithLabelValues(table).Add(float64(submitted))
	m.RowsInserted.WithLabelValues(table).Add(float64(inserted))
}

// RecordFetch records how long fetching a feed document took.
func (m *Metrics) RecordFetch(document string, d time.Duration) {
	if m == nil {
		return
	}
	m.FeedFetchDuration.WithLabelValues(document).Observe(d.Seconds())
}

// AddPublished counts published measurement messages.
func (m *Metrics) AddPublished(n int) {
	if m == nil {
		return
	}
	m.MessagesPublished.Add(float64(n))
}

// RecordQuery records a read-path query.
func (m *Metrics) RecordQuery(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		m.QueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordCache records a cache lookup as "hit", "miss" or "error".
func (m *Metrics) RecordCache(result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}
