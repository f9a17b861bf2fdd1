package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics HTTP 层指标：请求数、耗时、响应大小与在途请求
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewMetrics reg 为 nil 时指标不注册，只在内存中计数
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: "sandbox", Subsystem: "http", Name: name, Help: help}
	}
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts(opts("requests_total", "HTTP requests by route and status")),
			[]string{"method", "route", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sandbox", Subsystem: "http",
			Name:    "request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 9),
		}, []string{"method", "route"}),
		size: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sandbox", Subsystem: "http",
			Name:    "response_size_bytes",
			Help:    "HTTP response body size by route",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"method", "route"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts(opts("in_flight_requests", "HTTP requests currently being served"))),
	}
}

// Middleware 以路由模板作为标签，未匹配的路径统一记为 unmatched
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.inFlight.Inc()
		start := time.Now()
		defer m.inFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n > 0 {
			m.size.WithLabelValues(method, route).Observe(float64(n))
		}
	}
}
