package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relayctl"

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
	sessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "sessions_active",
			Help:      "Live agent connections held by the hub registry.",
		},
		[]string{"node"},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "frames_total",
			Help:      "Frames sent or received, by message kind.",
		},
		[]string{"node", "direction", "kind"},
	)
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "dispatch_total",
			Help:      "Operator directives handled by the dispatcher.",
		},
		[]string{"node", "directive", "result"},
	)
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "commands_total",
			Help:      "Commands executed by the agent, by outcome.",
		},
		[]string{"node", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "command_duration_seconds",
			Help:      "Command execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			sessionsActive,
			framesTotal,
			dispatchTotal,
			commandsTotal,
			commandDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func SetSessionsActive(node string, n int) {
	RegisterMetrics()
	sessionsActive.WithLabelValues(node).Set(float64(n))
}

// RecordFrame counts one frame; direction is "in" or "out".
func RecordFrame(node, direction, kind string) {
	RegisterMetrics()
	framesTotal.WithLabelValues(node, direction, kind).Inc()
}

func RecordDispatch(node, directive, result string) {
	RegisterMetrics()
	dispatchTotal.WithLabelValues(node, directive, result).Inc()
}

func RecordCommand(node, outcome string, duration time.Duration) {
	RegisterMetrics()
	commandsTotal.WithLabelValues(node, outcome).Inc()
	commandDuration.WithLabelValues(node, outcome).Observe(duration.Seconds())
}
