package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Document outcomes
const (
	StatusSuccess  = "success"
	StatusInvalid  = "invalid"
	StatusFailed   = "failed"
	StatusClosed   = "closed"
	StatusCanceled = "canceled"
)

// Metrics collects pipeline and HTTP metrics in a private registry
type Metrics struct {
	registry *prometheus.Registry

	documentsTotal      *prometheus.CounterVec
	documentsInFlight   prometheus.Gauge
	recognitionDuration prometheus.Histogram
	fieldHitsTotal      *prometheus.CounterVec
	lineItemFallbacks   prometheus.Counter

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "billscan",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Total processed documents by status.",
		},
		[]string{"status"},
	)
	documentsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "billscan",
			Subsystem: "pipeline",
			Name:      "documents_in_flight",
			Help:      "Number of documents being processed.",
		},
	)
	recognitionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "billscan",
			Subsystem: "pipeline",
			Name:      "recognition_duration_seconds",
			Help:      "Text recognition duration in seconds, including queueing.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)
	fieldHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "billscan",
			Subsystem: "extraction",
			Name:      "field_hits_total",
			Help:      "Number of documents a field was extracted from.",
		},
		[]string{"field"},
	)
	lineItemFallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "billscan",
			Subsystem: "extraction",
			Name:      "line_item_fallbacks_total",
			Help:      "Documents whose only line item was synthesized from a subtotal or total.",
		},
	)
	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "billscan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "billscan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	registry.MustRegister(
		documentsTotal,
		documentsInFlight,
		recognitionDuration,
		fieldHitsTotal,
		lineItemFallbacks,
		requestTotal,
		requestDuration,
	)

	return &Metrics{
		registry:            registry,
		documentsTotal:      documentsTotal,
		documentsInFlight:   documentsInFlight,
		recognitionDuration: recognitionDuration,
		fieldHitsTotal:      fieldHitsTotal,
		lineItemFallbacks:   lineItemFallbacks,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
	}
}

// Registry returns the private registry holding every collector
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartDocument marks a document as in flight
func (m *Metrics) StartDocument() {
	m.documentsInFlight.Inc()
}

// FinishDocument ends a document started with StartDocument and counts it under status
func (m *Metrics) FinishDocument(status string) {
	m.documentsInFlight.Dec()
	m.documentsTotal.WithLabelValues(status).Inc()
}

// ObserveRecognition records how long text recognition took
func (m *Metrics) ObserveRecognition(duration time.Duration) {
	m.recognitionDuration.Observe(duration.Seconds())
}

// RecordFields counts one hit for each extracted field name
func (m *Metrics) RecordFields(fields []string) {
	for _, field := range fields {
		m.fieldHitsTotal.WithLabelValues(field).Inc()
	}
}

// RecordLineItemFallback counts a document whose line item was synthesized
func (m *Metrics) RecordLineItemFallback() {
	m.lineItemFallbacks.Inc()
}

// Middleware counts and times requests by method, route and status
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps bill IDs out of the label values
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/api/bills/") {
		return path
	}
	if strings.HasSuffix(path, "/file") {
		return "/api/bills/{id}/file"
	}
	return "/api/bills/{id}"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
