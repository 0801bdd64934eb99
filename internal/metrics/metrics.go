// Package metrics exposes Prometheus collectors for the analysis pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Collector owns a registry and the pipeline's collectors. A nil *Collector
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	analyzeRequestsTotal *prometheus.CounterVec
	admissionRejections  *prometheus.CounterVec
	executionDuration    *prometheus.HistogramVec
	executionFaults      *prometheus.CounterVec
	resultKindTotal      *prometheus.CounterVec
	generationDuration   *prometheus.HistogramVec
	droppedLinesTotal    *prometheus.CounterVec
}

// New creates a collector on a fresh registry. Process and Go runtime
// collectors are registered alongside.
func New(namespace string, logger *zap.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	c := &Collector{registry: reg}

	c.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	c.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	c.analyzeRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyze_requests_total",
			Help:      "Pipeline runs by outcome",
		},
		[]string{"outcome"},
	)
	c.admissionRejections = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejections_total",
			Help:      "Code rejected by the admission gate",
		},
		[]string{"reason"},
	)
	c.executionDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Sandbox execution time",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"mode"},
	)
	c.executionFaults = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_faults_total",
			Help:      "Sandbox executions that failed, by fault kind",
		},
		[]string{"kind"},
	)
	c.resultKindTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_kind_total",
			Help:      "Successful executions by result kind",
		},
		[]string{"kind"},
	)
	c.generationDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Model code generation latency",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"status"},
	)
	c.droppedLinesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_dropped_lines_total",
			Help:      "Lines removed from model output during normalization",
		},
		[]string{"reason"},
	)

	if logger != nil {
		logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	}
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordOutcome counts a finished pipeline run.
func (c *Collector) RecordOutcome(outcome string) {
	if c == nil {
		return
	}
	c.analyzeRequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordRejection counts a gate rejection.
func (c *Collector) RecordRejection(reason string) {
	if c == nil {
		return
	}
	c.admissionRejections.WithLabelValues(reason).Inc()
}

// RecordExecution observes a sandbox run. An empty faultKind means success.
func (c *Collector) RecordExecution(mode, faultKind string, duration time.Duration) {
	if c == nil {
		return
	}
	if mode != "" {
		c.executionDuration.WithLabelValues(mode).Observe(duration.Seconds())
	}
	if faultKind != "" {
		c.executionFaults.WithLabelValues(faultKind).Inc()
	}
}

// RecordResult counts a classified result.
func (c *Collector) RecordResult(kind string) {
	if c == nil {
		return
	}
	c.resultKindTotal.WithLabelValues(kind).Inc()
}

// RecordGeneration observes a model call.
func (c *Collector) RecordGeneration(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.generationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordDroppedLine counts a line removed by intake.
func (c *Collector) RecordDroppedLine(reason string) {
	if c == nil {
		return
	}
	c.droppedLinesTotal.WithLabelValues(reason).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return strconv.Itoa(code)
	}
}
