package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"inferd/pkg/types"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inferd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "inferd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "inferd",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)
)

// runtimeSource supplies snapshots for the runtime collector. NewMux points
// it at the service it was built for; the collector reports nothing until
// the first mux exists.
var runtimeSource func() types.MetricsSnapshot

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight)
	prometheus.MustRegister(newRuntimeCollector())
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePatternOrPath(r)
		method := r.Method
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()

		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		statusLabel := itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, method, statusLabel).Observe(dur)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// fast integer to ascii for small set of status codes
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// runtimeCollector exposes the runtime counters as Prometheus metrics.
type runtimeCollector struct {
	requests   *prometheus.Desc
	tokens     *prometheus.Desc
	genSeconds *prometheus.Desc
	memUsed    *prometheus.Desc
	memPeak    *prometheus.Desc
	activeCtx  *prometheus.Desc
	poolCtx    *prometheus.Desc
}

func newRuntimeCollector() *runtimeCollector {
	return &runtimeCollector{
		requests: prometheus.NewDesc(
			"inferd_runtime_requests_total",
			"Completed generation requests", nil, nil),
		tokens: prometheus.NewDesc(
			"inferd_runtime_tokens_generated_total",
			"Tokens produced across completed requests", nil, nil),
		genSeconds: prometheus.NewDesc(
			"inferd_runtime_generation_seconds_total",
			"Aggregate wall-clock generation time in seconds", nil, nil),
		memUsed: prometheus.NewDesc(
			"inferd_runtime_memory_used_bytes",
			"Estimated memory held by loaded models", nil, nil),
		memPeak: prometheus.NewDesc(
			"inferd_runtime_memory_peak_bytes",
			"Peak estimated memory observed since start", nil, nil),
		activeCtx: prometheus.NewDesc(
			"inferd_runtime_active_contexts",
			"Execution contexts currently checked out", nil, nil),
		poolCtx: prometheus.NewDesc(
			"inferd_runtime_pool_contexts",
			"Execution contexts held across all pools", nil, nil),
	}
}

func (c *runtimeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.tokens
	ch <- c.genSeconds
	ch <- c.memUsed
	ch <- c.memPeak
	ch <- c.activeCtx
	ch <- c.poolCtx
}

func (c *runtimeCollector) Collect(ch chan<- prometheus.Metric) {
	if runtimeSource == nil {
		return
	}
	s := runtimeSource()
	ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.TotalRequests))
	ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.CounterValue, float64(s.TotalTokensGenerated))
	ch <- prometheus.MustNewConstMetric(c.genSeconds, prometheus.CounterValue, float64(s.TotalGenerationTimeMS)/1000.0)
	ch <- prometheus.MustNewConstMetric(c.memUsed, prometheus.GaugeValue, float64(s.MemoryUsageBytes))
	ch <- prometheus.MustNewConstMetric(c.memPeak, prometheus.GaugeValue, float64(s.PeakMemoryBytes))
	ch <- prometheus.MustNewConstMetric(c.activeCtx, prometheus.GaugeValue, float64(s.ActiveContexts))
	ch <- prometheus.MustNewConstMetric(c.poolCtx, prometheus.GaugeValue, float64(s.PoolSize))
}
