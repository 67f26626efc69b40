package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_scans_total",
			Help: "Badge scans grouped by outcome.",
		},
		[]string{"result"},
	)

	scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkin_scan_duration_seconds",
		Help:    "End-to-end scan reconciliation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, scansTotal, scanDuration)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScan records one scan attempt and its latency. Result is one of
// new, duplicate, invalid, expired, timeout, storage_error.
func ObserveScan(result string, d time.Duration) {
	scansTotal.WithLabelValues(result).Inc()
	scanDuration.Observe(d.Seconds())
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric labels stay
// low-cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return path
	}
	switch parts[1] {
	case "events":
		out := "/v1/events/:id"
		if len(parts) == 3 {
			return out
		}
		if len(parts) == 4 && (parts[3] == "registrations" || parts[3] == "attendance") {
			return out + "/" + parts[3]
		}
	case "registrations":
		if len(parts) == 4 {
			return "/v1/registrations/:id/" + parts[3]
		}
		if len(parts) == 3 {
			return "/v1/registrations/:id"
		}
	case "attendance":
		if len(parts) == 4 && parts[3] == "bank" {
			return "/v1/attendance/:id/bank"
		}
	case "badges":
		if len(parts) == 3 {
			return "/v1/badges/:registrationId"
		}
	}
	return path
}

// statusWriter tracks the response code written by downstream handlers.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
