// Package metrics exposes Prometheus metrics for the HTTP layer, SP3
// ingestion, CZML document builds and streaming clients.
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

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "czmlgo_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "czmlgo_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	sp3ParseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "czmlgo_sp3_parse_total",
			Help: "SP3 texts parsed, by result.",
		},
		[]string{"result"},
	)

	sp3ParseDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "czmlgo_sp3_parse_duration_seconds",
			Help:    "Time to parse one SP3 text.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	sp3FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "czmlgo_sp3_fetch_total",
			Help: "Remote SP3 fetches, by result.",
		},
		[]string{"result"},
	)

	satellitesLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "czmlgo_satellites_loaded",
			Help: "Distinct satellites in the current dataset.",
		},
	)

	datasetAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "czmlgo_dataset_age_seconds",
			Help: "Age of the current SP3 dataset.",
		},
	)

	eventRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "czmlgo_event_runs",
			Help: "Continuous event runs in the current event set.",
		},
	)

	packetsBuiltTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "czmlgo_packets_built_total",
			Help: "CZML packets built, by kind (orbit, event, document).",
		},
		[]string{"kind"},
	)

	documentRebuildsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "czmlgo_document_rebuilds_total",
			Help: "CZML document cache rebuilds.",
		},
	)

	documentRebuildDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "czmlgo_document_rebuild_duration_seconds",
			Help:    "Time to rebuild the CZML document.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	documentVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "czmlgo_document_version",
			Help: "Version of the currently served CZML document.",
		},
	)

	streamClientsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "czmlgo_stream_clients_active",
			Help: "Connected streaming clients, by transport.",
		},
		[]string{"transport"},
	)

	streamClientsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "czmlgo_stream_clients_rejected_total",
			Help: "Streaming clients rejected by the connection limit, by transport.",
		},
		[]string{"transport"},
	)

	streamPacketsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "czmlgo_stream_packets_sent_total",
			Help: "CZML packets written to streaming clients, by transport.",
		},
		[]string{"transport"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		sp3ParseTotal,
		sp3ParseDurationSeconds,
		sp3FetchTotal,
		satellitesLoaded,
		datasetAgeSeconds,
		eventRuns,
		packetsBuiltTotal,
		documentRebuildsTotal,
		documentRebuildDurationSeconds,
		documentVersion,
		streamClientsActive,
		streamClientsRejectedTotal,
		streamPacketsSentTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveParse records one SP3 parse.
func ObserveParse(d time.Duration, err error) {
	sp3ParseTotal.WithLabelValues(result(err)).Inc()
	if err == nil {
		sp3ParseDurationSeconds.Observe(d.Seconds())
	}
}

// ObserveFetch records one remote fetch attempt.
func ObserveFetch(err error) {
	sp3FetchTotal.WithLabelValues(result(err)).Inc()
}

// SetDataset publishes the size and age of the current dataset.
func SetDataset(satellites int, ageSeconds float64) {
	satellitesLoaded.Set(float64(satellites))
	datasetAgeSeconds.Set(ageSeconds)
}

// SetEventRuns publishes the run count of the current event set.
func SetEventRuns(n int) {
	eventRuns.Set(float64(n))
}

// AddPackets counts built packets of one kind.
func AddPackets(kind string, n int) {
	packetsBuiltTotal.WithLabelValues(kind).Add(float64(n))
}

// ObserveRebuild records a document cache rebuild.
func ObserveRebuild(d time.Duration, version uint64) {
	documentRebuildsTotal.Inc()
	documentRebuildDurationSeconds.Observe(d.Seconds())
	documentVersion.Set(float64(version))
}

// StreamConnected and StreamDisconnected track active streaming clients.
func StreamConnected(transport string) {
	streamClientsActive.WithLabelValues(transport).Inc()
}

func StreamDisconnected(transport string) {
	streamClientsActive.WithLabelValues(transport).Dec()
}

// StreamRejected counts a client turned away by the connection limit.
func StreamRejected(transport string) {
	streamClientsRejectedTotal.WithLabelValues(transport).Inc()
}

// StreamSent counts packets written to a client.
func StreamSent(transport string, n int) {
	streamPacketsSentTotal.WithLabelValues(transport).Add(float64(n))
}

// knownRoutes are the fixed API paths used as-is for the path label.
var knownRoutes = map[string]bool{
	"/":                      true,
	"/healthz":               true,
	"/readyz":                true,
	"/metrics":               true,
	"/api/v1/convert/sp3":    true,
	"/api/v1/convert/events": true,
	"/api/v1/czml":           true,
	"/api/v1/sp3/metadata":   true,
	"/api/v1/sp3/fetch":      true,
	"/api/v1/cache/stats":    true,
	"/api/v1/stream/czml":    true,
	"/api/v1/ws/czml":        true,
}

const satellitePrefix = "/api/v1/czml/satellites/"

// normalizeRoute maps a request path to a bounded label set so that
// per-satellite paths and scanner noise cannot explode label cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if id, ok := strings.CutPrefix(path, satellitePrefix); ok && id != "" && !strings.Contains(id, "/") {
		return satellitePrefix + "{id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through so streaming handlers keep working behind the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack passes through for WebSocket upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
