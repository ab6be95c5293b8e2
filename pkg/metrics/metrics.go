// Package metrics provides Prometheus metrics for indexing, extraction and
// the query server.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Extraction outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomePanic   = "panic"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// several can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	// Indexing
	FilesIndexed   *prometheus.CounterVec
	RowsWritten    *prometheus.CounterVec
	RecordsScanned prometheus.Counter
	FramingSkips   prometheus.Counter

	// Extraction
	Extractions        *prometheus.CounterVec
	ExtractionDuration *prometheus.HistogramVec

	// Query server
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FilesIndexed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metawarc_files_indexed_total",
			Help: "Container files processed, by result",
		}, []string{"result"}),
		RowsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metawarc_rows_written_total",
			Help: "Catalog rows written, by table",
		}, []string{"table"}),
		RecordsScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "metawarc_records_scanned_total",
			Help: "WARC records read from containers",
		}),
		FramingSkips: factory.NewCounter(prometheus.CounterOpts{
			Name: "metawarc_framing_skips_total",
			Help: "Damaged container units skipped",
		}),
		Extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metawarc_extractions_total",
			Help: "Metadata extractions, by family and outcome",
		}, []string{"family", "outcome"}),
		ExtractionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metawarc_extraction_duration_seconds",
			Help:    "Duration of metadata extractions",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		}, []string{"family"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "metawarc_http_requests_total",
			Help: "Query server requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "metawarc_http_request_duration_seconds",
			Help:    "Query server request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ObserveExtraction records one extraction attempt.
func (m *Metrics) ObserveExtraction(family, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(family, outcome).Inc()
	m.ExtractionDuration.WithLabelValues(family).Observe(d.Seconds())
}

// AddRows counts rows written to a table.
func (m *Metrics) AddRows(table string, n int) {
	if m == nil {
		return
	}
	m.RowsWritten.WithLabelValues(table).Add(float64(n))
}

// WriteTextfile writes a snapshot in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
