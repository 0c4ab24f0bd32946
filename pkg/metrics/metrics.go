// Package metrics defines the Prometheus collectors used by the tokenizer
// pipeline, the term dictionary builder, the write-ahead log and the
// ingestion HTTP API, and exposes an HTTP handler for scraping.
//
// All recording methods are safe to call on a nil *Metrics, so components
// can run without instrumentation in tests and tools.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the ingest engine.
type Metrics struct {
	TokensProduced          prometheus.Counter
	LinesProcessedTotal     *prometheus.CounterVec
	DictionaryBuildsTotal   prometheus.Counter
	DictionaryTermsTotal    prometheus.Counter
	DictionaryBytesTotal    prometheus.Counter
	DictionaryRejectedTotal prometheus.Counter
	WALAppendsTotal         prometheus.Counter
	WALAppendBytesTotal     prometheus.Counter
	WALErrorsTotal          *prometheus.CounterVec
	WALFsyncsTotal          prometheus.Counter
	WALFsyncDuration        prometheus.Histogram
	WALRotationsTotal       prometheus.Counter
	WALActiveSegmentBytes   prometheus.Gauge
	IngestRecordsTotal      *prometheus.CounterVec
	HTTPRequestsTotal       *prometheus.CounterVec
	HTTPRequestDuration     *prometheus.HistogramVec
	HTTPRequestsInFlight    prometheus.Gauge
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensProduced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tokens_produced_total",
				Help: "Total n-gram tokens produced by the tokenizer, duplicates included.",
			},
		),
		LinesProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_lines_total",
				Help: "Input lines seen by the indexer by outcome (indexed, skipped).",
			},
			[]string{"outcome"},
		),
		DictionaryBuildsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "term_dictionary_builds_total",
				Help: "Total term dictionaries finalized.",
			},
		),
		DictionaryTermsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "term_dictionary_terms_total",
				Help: "Total terms written into finalized dictionaries.",
			},
		),
		DictionaryBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "term_dictionary_bytes_total",
				Help: "Total encoded bytes written by dictionary builders.",
			},
		),
		DictionaryRejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "term_dictionary_rejected_inserts_total",
				Help: "Inserts rejected because they were not in sorted order.",
			},
		),
		WALAppendsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wal_appends_total",
				Help: "Total records appended to the write-ahead log.",
			},
		),
		WALAppendBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wal_append_bytes_total",
				Help: "Total framed bytes appended to the write-ahead log.",
			},
		),
		WALErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wal_errors_total",
				Help: "Write-ahead log failures by operation (open, append, fsync, rotate).",
			},
			[]string{"op"},
		),
		WALFsyncsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wal_fsyncs_total",
				Help: "Total fsync calls issued against the active segment.",
			},
		),
		WALFsyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wal_fsync_duration_seconds",
				Help:    "Latency of fsync on the active segment.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
		),
		WALRotationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wal_rotations_total",
				Help: "Total segments sealed by rotation or close.",
			},
		),
		WALActiveSegmentBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wal_active_segment_bytes",
				Help: "Bytes written to the currently active segment.",
			},
		),
		IngestRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_total",
				Help: "Raw records received by source (http, kafka) and status (ok, error).",
			},
			[]string{"source", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests by method, path, and status code.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
	}

	reg.MustRegister(
		m.TokensProduced,
		m.LinesProcessedTotal,
		m.DictionaryBuildsTotal,
		m.DictionaryTermsTotal,
		m.DictionaryBytesTotal,
		m.DictionaryRejectedTotal,
		m.WALAppendsTotal,
		m.WALAppendBytesTotal,
		m.WALErrorsTotal,
		m.WALFsyncsTotal,
		m.WALFsyncDuration,
		m.WALRotationsTotal,
		m.WALActiveSegmentBytes,
		m.IngestRecordsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)

	return m
}

func (m *Metrics) TokensAdded(n int) {
	if m == nil {
		return
	}
	m.TokensProduced.Add(float64(n))
}

func (m *Metrics) LineProcessed(outcome string) {
	if m == nil {
		return
	}
	m.LinesProcessedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DictionaryBuilt(terms uint64, bytes int64) {
	if m == nil {
		return
	}
	m.DictionaryBuildsTotal.Inc()
	m.DictionaryTermsTotal.Add(float64(terms))
	m.DictionaryBytesTotal.Add(float64(bytes))
}

func (m *Metrics) DictionaryInsertRejected() {
	if m == nil {
		return
	}
	m.DictionaryRejectedTotal.Inc()
}

func (m *Metrics) WALAppended(frameBytes int, segmentBytes int64) {
	if m == nil {
		return
	}
	m.WALAppendsTotal.Inc()
	m.WALAppendBytesTotal.Add(float64(frameBytes))
	m.WALActiveSegmentBytes.Set(float64(segmentBytes))
}

func (m *Metrics) WALError(op string) {
	if m == nil {
		return
	}
	m.WALErrorsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) WALSynced(seconds float64) {
	if m == nil {
		return
	}
	m.WALFsyncsTotal.Inc()
	m.WALFsyncDuration.Observe(seconds)
}

func (m *Metrics) WALRotated() {
	if m == nil {
		return
	}
	m.WALRotationsTotal.Inc()
	m.WALActiveSegmentBytes.Set(0)
}

func (m *Metrics) RecordIngested(source, status string) {
	if m == nil {
		return
	}
	m.IngestRecordsTotal.WithLabelValues(source, status).Inc()
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
