// Package metrics exposes Prometheus counters and histograms for indexing
// and search. Every collector lives on a private registry so several
// indexes can coexist in one process and tests stay isolated.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "repoindex"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	DocumentsWritten *prometheus.CounterVec
	DocumentsDeleted *prometheus.CounterVec
	BatchesTotal     *prometheus.CounterVec
	BatchDuration    *prometheus.HistogramVec
	SearchesTotal    *prometheus.CounterVec
	SearchDuration   *prometheus.HistogramVec
	SearchHitsTotal  *prometheus.CounterVec
	SkippedHitsTotal *prometheus.CounterVec
	LockWaitsTotal   *prometheus.CounterVec
	OptimizeDuration *prometheus.HistogramVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.DocumentsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_written_total",
			Help:      "Documents written to a collection",
		},
		[]string{"collection"},
	)

	m.DocumentsDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_deleted_total",
			Help:      "Documents removed from a collection",
		},
		[]string{"collection"},
	)

	m.BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_batches_total",
			Help:      "Indexing batches by outcome",
		},
		[]string{"collection", "status"},
	)

	m.BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_batch_duration_seconds",
			Help:      "Duration of indexing batches in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"collection"},
	)

	m.SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches by outcome",
		},
		[]string{"collection", "status"},
	)

	m.SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of searches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	m.SearchHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_hits_total",
			Help:      "Hits returned by searches",
		},
		[]string{"collection"},
	)

	m.SkippedHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_skipped_hits_total",
			Help:      "Matched documents skipped because they could not be reconstructed",
		},
		[]string{"collection"},
	)

	m.LockWaitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_lock_waits_total",
			Help:      "Writer lock acquisitions by outcome",
		},
		[]string{"collection", "status"},
	)

	m.OptimizeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "optimize_duration_seconds",
			Help:      "Duration of optimize runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	reg.MustRegister(
		m.DocumentsWritten,
		m.DocumentsDeleted,
		m.BatchesTotal,
		m.BatchDuration,
		m.SearchesTotal,
		m.SearchDuration,
		m.SearchHitsTotal,
		m.SkippedHitsTotal,
		m.LockWaitsTotal,
		m.OptimizeDuration,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordBatch records one IndexRecords call.
func (m *Metrics) RecordBatch(collection string, written int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(collection, status(err)).Inc()
	m.BatchDuration.WithLabelValues(collection).Observe(d.Seconds())
	if written > 0 {
		m.DocumentsWritten.WithLabelValues(collection).Add(float64(written))
	}
}

// RecordDelete records documents removed by one delete.
func (m *Metrics) RecordDelete(collection string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DocumentsDeleted.WithLabelValues(collection).Add(float64(n))
}

// RecordSearch records one search over a collection.
func (m *Metrics) RecordSearch(collection string, hits, skipped int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(collection, status(err)).Inc()
	m.SearchDuration.WithLabelValues(collection).Observe(d.Seconds())
	if hits > 0 {
		m.SearchHitsTotal.WithLabelValues(collection).Add(float64(hits))
	}
	if skipped > 0 {
		m.SkippedHitsTotal.WithLabelValues(collection).Add(float64(skipped))
	}
}

// RecordLockWait records a writer lock acquisition attempt.
func (m *Metrics) RecordLockWait(collection string, err error) {
	if m == nil {
		return
	}
	m.LockWaitsTotal.WithLabelValues(collection, status(err)).Inc()
}

// RecordOptimize records one optimize run.
func (m *Metrics) RecordOptimize(collection string, d time.Duration) {
	if m == nil {
		return
	}
	m.OptimizeDuration.WithLabelValues(collection).Observe(d.Seconds())
}
