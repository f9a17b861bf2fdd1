// Package metrics 沙箱的 Prometheus 指标
//
// 所有采集器注册在应用级注册表上（而非全局默认注册表），
// 同一进程内的多个沙箱实例（例如测试）互不冲突。
// *Metrics 的方法对 nil 接收者是空操作，未接入指标的组件可直接传 nil。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sandbox"

// Metrics 沙箱指标集合
type Metrics struct {
	registry *prometheus.Registry

	commits        *prometheus.CounterVec
	commitDuration prometheus.Histogram

	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	footprintRetries   prometheus.Counter

	requestStates *prometheus.CounterVec
	writeQueue    prometheus.Gauge
}

// New 创建指标集合并注册到新的注册表
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "commits_total",
			Help:      "Ledger commit attempts by result",
		}, []string{"result"}),
		commitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "commit_duration_seconds",
			Help:      "Time spent persisting a commit",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invocation",
			Name:      "total",
			Help:      "Invocations by engine and outcome status",
		}, []string{"engine", "status"}),
		invocationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "invocation",
			Name:      "duration_seconds",
			Help:      "Engine execution time per invocation",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"engine"}),
		footprintRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invocation",
			Name:      "footprint_retries_total",
			Help:      "Invocations re-executed with an expanded footprint",
		}),
		requestStates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "request_state_transitions_total",
			Help:      "Request lifecycle transitions by target state",
		}, []string{"state"}),
		writeQueue: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "write_queue_depth",
			Help:      "Writers waiting for the write lock",
		}),
	}
}

// Registry 应用级注册表
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Gatherer 供 promhttp 暴露
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// ObserveCommit 记录一次提交尝试，result 为 committed / conflict / rejected / failed
func (m *Metrics) ObserveCommit(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(result).Inc()
	if result == "committed" {
		m.commitDuration.Observe(d.Seconds())
	}
}

// ObserveInvocation 记录一次引擎执行
func (m *Metrics) ObserveInvocation(engine, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(engine, status).Inc()
	m.invocationDuration.WithLabelValues(engine).Observe(d.Seconds())
}

// IncFootprintRetry 记录一次足迹扩展重试
func (m *Metrics) IncFootprintRetry() {
	if m == nil {
		return
	}
	m.footprintRetries.Inc()
}

// ObserveRequestState 记录请求状态迁移
func (m *Metrics) ObserveRequestState(state string) {
	if m == nil {
		return
	}
	m.requestStates.WithLabelValues(state).Inc()
}

// AddWriteQueue 调整写队列深度
func (m *Metrics) AddWriteQueue(delta float64) {
	if m == nil {
		return
	}
	m.writeQueue.Add(delta)
}

// MustRegister 注册额外采集器（API 中间件、账本快照采集器）
func (m *Metrics) MustRegister(cs ...prometheus.Collector) {
	if m == nil {
		return
	}
	m.registry.MustRegister(cs...)
}
