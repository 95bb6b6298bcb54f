// Package metrics exposes Prometheus collectors for ingestion and queries.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestRecordsTotal       prometheus.Counter
	ingestBatchesTotal       *prometheus.CounterVec
	ingestFlushSeconds       *prometheus.HistogramVec
	queryDurationSeconds     *prometheus.HistogramVec
	queryErrorsTotal         *prometheus.CounterVec
	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDurationHisto *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		ingestRecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "logscope_ingest_records_total",
			Help: "Parsed records accepted into batches.",
		})
		ingestBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "logscope_ingest_batches_total",
			Help: "Batches flushed to storage, labeled by mode and outcome.",
		}, []string{"mode", "outcome"})
		ingestFlushSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logscope_ingest_flush_seconds",
			Help:    "Time to persist one batch.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"mode"})
		queryDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logscope_query_duration_seconds",
			Help:    "Dataset query latency, labeled by query name.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"query"})
		queryErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "logscope_query_errors_total",
			Help: "Dataset queries that returned an error, labeled by query name.",
		}, []string{"query"})
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "logscope_http_requests_total",
			Help: "HTTP API requests, labeled by route and status code.",
		}, []string{"route", "code"})
		httpRequestDurationHisto = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logscope_http_request_duration_seconds",
			Help:    "HTTP API request latency, labeled by route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}, []string{"route"})
	})
}

// Handler returns an http.Handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRecords counts n records accepted by the accumulator.
func ObserveRecords(n int) {
	Init()
	ingestRecordsTotal.Add(float64(n))
}

// ObserveFlush records one batch flush.
func ObserveFlush(mode string, d time.Duration, err error) {
	Init()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ingestBatchesTotal.WithLabelValues(mode, outcome).Inc()
	ingestFlushSeconds.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveQuery records one dataset query.
func ObserveQuery(name string, d time.Duration, err error) {
	Init()
	queryDurationSeconds.WithLabelValues(name).Observe(d.Seconds())
	if err != nil {
		queryErrorsTotal.WithLabelValues(name).Inc()
	}
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(route, code string, d time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(route, code).Inc()
	httpRequestDurationHisto.WithLabelValues(route).Observe(d.Seconds())
}
