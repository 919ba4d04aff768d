package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgekv",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgekv",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	commandRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgekv",
			Subsystem: "command",
			Name:      "requests_total",
			Help:      "Commands dispatched, by command and result tag.",
		},
		[]string{"command", "result"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgekv",
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Time from task submission to result, in seconds.",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05, .1, .5, 1},
		},
		[]string{"command"},
	)
	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "edgekv",
			Subsystem: "server",
			Name:      "connections",
			Help:      "Open client connections.",
		},
	)
	frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgekv",
			Subsystem: "server",
			Name:      "frame_bytes_total",
			Help:      "Frame payload bytes by direction.",
		},
		[]string{"direction"},
	)
	poolTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgekv",
			Subsystem: "pool",
			Name:      "tasks_total",
			Help:      "Worker pool task transitions (submitted, rejected, completed, panicked, exited).",
		},
		[]string{"pool", "event"},
	)
	poolQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgekv",
			Subsystem: "pool",
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker.",
		},
		[]string{"pool"},
	)
	pubsubDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgekv",
			Subsystem: "pubsub",
			Name:      "dropped_total",
			Help:      "Messages dropped because a subscriber buffer was full.",
		},
		[]string{"channel"},
	)
)

const (
	TaskSubmitted = "submitted"
	TaskRejected  = "rejected"
	TaskCompleted = "completed"
	TaskPanicked  = "panicked"
	TaskExited    = "exited"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			commandRequests, commandDuration,
			connections, frameBytes,
			poolTasks, poolQueueDepth,
			pubsubDropped,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordCommand(command, result string, duration time.Duration) {
	RegisterMetrics()
	commandRequests.WithLabelValues(command, result).Inc()
	commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func ConnectionOpened() {
	RegisterMetrics()
	connections.Inc()
}

func ConnectionClosed() {
	RegisterMetrics()
	connections.Dec()
}

func RecordFrameBytes(direction string, n int) {
	RegisterMetrics()
	frameBytes.WithLabelValues(direction).Add(float64(n))
}

func RecordPoolTask(pool, event string) {
	RegisterMetrics()
	poolTasks.WithLabelValues(pool, event).Inc()
}

func SetPoolQueueDepth(pool string, depth int) {
	RegisterMetrics()
	poolQueueDepth.WithLabelValues(pool).Set(float64(depth))
}

func RecordPubSubDrop(channel string) {
	RegisterMetrics()
	pubsubDropped.WithLabelValues(channel).Inc()
}
