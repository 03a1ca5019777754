package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dorepo"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames dispatched by message type.",
		},
		[]string{"role", "type"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded before or during dispatch.",
		},
		[]string{"role", "reason"},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the peer by message type.",
		},
		[]string{"role", "type"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handling one inbound frame.",
			Buckets:   []float64{.00005, .0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"role"},
	)
	objectsTracked = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "objects",
			Help:      "Objects currently held in the object table.",
		},
		[]string{"role", "table"},
	)
	allocatorUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "allocator_fraction_used",
			Help:      "Fraction of an id pool currently allocated.",
		},
		[]string{"pool"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			framesReceived, framesDropped, framesSent, dispatchDuration,
			objectsTracked, allocatorUsed,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrameReceived(role, msgType string, duration time.Duration) {
	RegisterMetrics()
	framesReceived.WithLabelValues(role, msgType).Inc()
	dispatchDuration.WithLabelValues(role).Observe(duration.Seconds())
}

func RecordFrameDropped(role, reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(role, reason).Inc()
}

func RecordFrameSent(role, msgType string) {
	RegisterMetrics()
	framesSent.WithLabelValues(role, msgType).Inc()
}

func SetObjectCount(role, table string, n int) {
	RegisterMetrics()
	objectsTracked.WithLabelValues(role, table).Set(float64(n))
}

func SetAllocatorUsage(pool string, fraction float64) {
	RegisterMetrics()
	allocatorUsed.WithLabelValues(pool).Set(fraction)
}
