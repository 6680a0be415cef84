// Package metrics 暴露上传任务引擎和 HTTP 层的 Prometheus 指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	tasksTotal      *prometheus.CounterVec
	filesTotal      *prometheus.CounterVec
	fileDuration    *prometheus.HistogramVec
	tasksInFlight   prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New 创建使用独立 registry 的指标集合，测试中可以多次创建。
func New() *Metrics {
	registry := prometheus.NewRegistry()

	tasksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbadmin",
			Subsystem: "upload",
			Name:      "tasks_total",
			Help:      "Total finished upload tasks by final status.",
		},
		[]string{"status"},
	)
	filesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbadmin",
			Subsystem: "upload",
			Name:      "files_total",
			Help:      "Total processed upload files by outcome.",
		},
		[]string{"status"},
	)
	fileDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kbadmin",
			Subsystem: "upload",
			Name:      "file_duration_seconds",
			Help:      "Per-file processing duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	tasksInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kbadmin",
			Subsystem: "upload",
			Name:      "tasks_in_flight",
			Help:      "Number of upload tasks currently running.",
		},
	)
	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kbadmin",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route and status code.",
		},
		[]string{"method", "route", "code"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kbadmin",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	registry.MustRegister(tasksTotal, filesTotal, fileDuration, tasksInFlight, requestsTotal, requestDuration)

	return &Metrics{
		registry:        registry,
		tasksTotal:      tasksTotal,
		filesTotal:      filesTotal,
		fileDuration:    fileDuration,
		tasksInFlight:   tasksInFlight,
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// nil *Metrics 的方法都是空操作，未开启指标时直接传 nil。
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksInFlight.Inc()
}

func (m *Metrics) TaskFinished(status string) {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
	m.tasksTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) FileProcessed(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.filesTotal.WithLabelValues(status).Inc()
	m.fileDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *Metrics) ObserveRequest(method, route, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, route, code).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
