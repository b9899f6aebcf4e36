package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sfpctl"

var (
	registerOnce sync.Once

	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Protocol frames by direction (in/out) and message code.",
		},
		[]string{"direction", "code"},
	)
	framingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "framing_errors_total",
			Help:      "Frames rejected because they were not exactly 256 bytes.",
		},
		[]string{"transport"},
	)
	devices = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Registry entries by state.",
		},
		[]string{"state"},
	)
	diagnosticSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "diagnostic_sessions",
			Help:      "Open diagnostic monitoring sessions.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesTotal, framingErrors, devices, diagnosticSessions, httpRequests, httpDuration)
	})
}

func RecordFrame(direction, code string) {
	RegisterMetrics()
	framesTotal.WithLabelValues(direction, code).Inc()
}

func RecordFramingError(transport string) {
	RegisterMetrics()
	framingErrors.WithLabelValues(transport).Inc()
}

func SetDevices(state string, n int) {
	RegisterMetrics()
	devices.WithLabelValues(state).Set(float64(n))
}

func SetDiagnosticSessions(n int) {
	RegisterMetrics()
	diagnosticSessions.Set(float64(n))
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
