package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "zk_carbon",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zk_carbon",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zk_carbon",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "path"},
	)

	commandsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "zk_carbon",
			Subsystem: "chain",
			Name:      "inflight_commands",
			Help:      "Current number of running injectived processes.",
		},
	)

	commandRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zk_carbon",
			Subsystem: "chain",
			Name:      "commands_total",
			Help:      "Total number of injectived invocations.",
		},
		[]string{"kind", "function", "status"},
	)

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "zk_carbon",
			Subsystem: "chain",
			Name:      "command_duration_seconds",
			Help:      "Duration of injectived invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"kind"},
	)
)

// contractFunctions are the messages the deployed contract understands. Any other
// function name is recorded as "other" so callers of /command cannot grow the label set.
var contractFunctions = map[string]bool{
	"update_organization_name":  true,
	"add_organization_emission": true,
	"create_claim":              true,
	"create_lend_token":         true,
	"cast_vote":                 true,
	"finalize_voting":           true,
	"lend_tokens":               true,
	"repay_tokens":              true,
	"verify_eligibility":        true,
	"get_config":                true,
	"user_lend_requests":        true,
	"get_claim":                 true,
	"get_all_organizations":     true,
	"get_organization":          true,
	"get_total_carbon_credits":  true,
	"get_claims":                true,
	"get_claims_by_status":      true,
}

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		commandsInFlight,
		commandRuns,
		commandDuration,
	)
}

// Handler exposes the registry for scraping
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies per route template
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// CommandStarted marks an injectived process as running and returns the func that ends it
func CommandStarted() func() {
	commandsInFlight.Inc()
	return commandsInFlight.Dec
}

// RecordCommand records a finished injectived invocation
func RecordCommand(kind, function string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	commandRuns.WithLabelValues(kind, functionLabel(function), status).Inc()
	commandDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func functionLabel(function string) string {
	if contractFunctions[function] {
		return function
	}
	return "other"
}
