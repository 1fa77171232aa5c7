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
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "caffe",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caffe",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "caffe",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	feedRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caffe",
			Subsystem: "feeds",
			Name:      "refreshes_total",
			Help:      "Total number of traffic and weather feed refreshes.",
		},
		[]string{"kind", "status"},
	)

	feedRefreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "caffe",
			Subsystem: "feeds",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of feed refresh cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"kind"},
	)

	analysisRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caffe",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total number of AI analysis resolutions.",
		},
		[]string{"kind", "status"},
	)

	analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "caffe",
			Subsystem: "analysis",
			Name:      "run_duration_seconds",
			Help:      "Duration of AI analysis resolutions.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"kind"},
	)

	alertDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "caffe",
			Subsystem: "alerts",
			Name:      "deliveries_total",
			Help:      "Total number of alert delivery attempts.",
		},
		[]string{"channel", "status"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		feedRefreshes,
		feedRefreshDuration,
		analysisRuns,
		analysisDuration,
		alertDeliveries,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordFeedRefresh records one refresh cycle for a traffic or weather feed.
func RecordFeedRefresh(kind, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	feedRefreshes.WithLabelValues(kind, status).Inc()
	feedRefreshDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordAnalysisRun records one AI analysis resolution.
func RecordAnalysisRun(kind, status string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	analysisRuns.WithLabelValues(kind, status).Inc()
	analysisDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordAlertDelivery records one alert delivery attempt.
func RecordAlertDelivery(channel, status string) {
	if channel == "" {
		channel = "unknown"
	}
	alertDeliveries.WithLabelValues(channel, status).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Hijack lets protocol upgrades (websocket streams) pass through the
// instrumentation wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	conn, rw, err := hj.Hijack()
	if err == nil {
		r.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

// canonicalPath collapses resource IDs so metric label cardinality stays
// bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")

	switch parts[0] {
	case "observers", "stations", "courses", "enrollments", "certificates", "alerts", "analysis", "admin":
	default:
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/" + parts[0]
	}
	if len(parts) == 2 {
		return "/" + parts[0] + "/:id"
	}
	return "/" + parts[0] + "/:id/" + parts[2]
}
