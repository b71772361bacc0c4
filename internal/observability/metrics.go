package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Connection close reasons.
const (
	CloseClean     = "clean"
	CloseReset     = "reset"
	CloseMalformed = "malformed"
	CloseTooLarge  = "too_large"
	CloseTransport = "transport"
	CloseShutdown  = "shutdown"
)

// Accept error classes.
const (
	AcceptErrorResourceExhaustion = "resource_exhaustion"
	AcceptErrorOther              = "other"
)

var (
	registerOnce sync.Once

	connectionsAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ingressd",
			Subsystem: "acceptor",
			Name:      "connections_total",
			Help:      "Total accepted TCP connections.",
		},
	)
	acceptErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingressd",
			Subsystem: "acceptor",
			Name:      "errors_total",
			Help:      "Accept failures by class.",
		},
		[]string{"class"},
	)
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ingressd",
			Subsystem: "connection",
			Name:      "active",
			Help:      "Connections currently being read.",
		},
	)
	connectionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingressd",
			Subsystem: "connection",
			Name:      "closed_total",
			Help:      "Closed connections by reason.",
		},
		[]string{"reason"},
	)
	bytesRead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ingressd",
			Subsystem: "connection",
			Name:      "read_bytes_total",
			Help:      "Bytes read from peers.",
		},
	)
	framesDecoded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ingressd",
			Subsystem: "frame",
			Name:      "decoded_total",
			Help:      "Complete frames decoded.",
		},
	)
	frameSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ingressd",
			Subsystem: "frame",
			Name:      "size_bytes",
			Help:      "Decoded frame size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(4, 4, 10),
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ingressd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ingressd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectionsAccepted,
			acceptErrors,
			connectionsActive,
			connectionsClosed,
			bytesRead,
			framesDecoded,
			frameSize,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordAccepted() {
	RegisterMetrics()
	connectionsAccepted.Inc()
	connectionsActive.Inc()
}

func RecordAcceptError(class string) {
	RegisterMetrics()
	acceptErrors.WithLabelValues(class).Inc()
}

func RecordClosed(reason string) {
	RegisterMetrics()
	connectionsActive.Dec()
	connectionsClosed.WithLabelValues(reason).Inc()
}

func RecordBytesRead(n int) {
	RegisterMetrics()
	bytesRead.Add(float64(n))
}

func RecordFrame(size int) {
	RegisterMetrics()
	framesDecoded.Inc()
	frameSize.Observe(float64(size))
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}
