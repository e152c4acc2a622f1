package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// PipelineMetrics counts what the collector does. It is served on /metrics
// and is separate from the four host gauges written to the textfile.
type PipelineMetrics struct {
	registry *prometheus.Registry

	eventsParsed   *prometheus.CounterVec
	alerts         *prometheus.CounterVec
	exportFailures *prometheus.CounterVec
	sourceErrors   *prometheus.CounterVec
	loopDuration   *prometheus.HistogramVec
	loopPanics     *prometheus.CounterVec
	bufferSize     *prometheus.GaugeVec
	indicators     prometheus.Gauge
	httpRequests   *prometheus.CounterVec
}

// NewPipelineMetrics creates the metrics on a private registry
func NewPipelineMetrics() *PipelineMetrics {
	m := &PipelineMetrics{
		registry: prometheus.NewRegistry(),
		eventsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seccollector_events_parsed_total",
			Help: "Security events parsed from log sources",
		}, []string{"source", "severity"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seccollector_alerts_total",
			Help: "Alerts generated",
		}, []string{"type"}),
		exportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seccollector_export_failures_total",
			Help: "Failed alert or metric exports",
		}, []string{"kind"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seccollector_source_errors_total",
			Help: "Failed reads of log sources",
		}, []string{"source"}),
		loopDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seccollector_loop_duration_seconds",
			Help:    "Duration of one loop iteration",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 2, 5, 10, 30},
		}, []string{"loop", "outcome"}),
		loopPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seccollector_loop_panics_total",
			Help: "Recovered panics per loop",
		}, []string{"loop"}),
		bufferSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "seccollector_buffer_size",
			Help: "Items held in the in-memory buffers",
		}, []string{"buffer"}),
		indicators: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seccollector_threat_indicators",
			Help: "Threat indicators loaded",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seccollector_http_requests_total",
			Help: "Requests served by the status server",
		}, []string{"path", "status"}),
	}

	m.registry.MustRegister(
		m.eventsParsed,
		m.alerts,
		m.exportFailures,
		m.sourceErrors,
		m.loopDuration,
		m.loopPanics,
		m.bufferSize,
		m.indicators,
		m.httpRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the metrics
func (m *PipelineMetrics) Registry() *prometheus.Registry { return m.registry }

// EventsParsed counts n events of one source and severity
func (m *PipelineMetrics) EventsParsed(source, severity string, n int) {
	m.eventsParsed.WithLabelValues(source, severity).Add(float64(n))
}

// AlertGenerated counts one alert
func (m *PipelineMetrics) AlertGenerated(alertType string) {
	m.alerts.WithLabelValues(alertType).Inc()
}

// ExportFailed counts a failed export of the given error kind
func (m *PipelineMetrics) ExportFailed(kind string) {
	m.exportFailures.WithLabelValues(kind).Inc()
}

// SourceError counts a failed source read
func (m *PipelineMetrics) SourceError(source string) {
	m.sourceErrors.WithLabelValues(source).Inc()
}

// LoopIteration records how long one loop iteration took
func (m *PipelineMetrics) LoopIteration(loop string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.loopDuration.WithLabelValues(loop, outcome).Observe(d.Seconds())
}

// LoopPanic counts a recovered panic
func (m *PipelineMetrics) LoopPanic(loop string) {
	m.loopPanics.WithLabelValues(loop).Inc()
}

// SetBufferSize records the fill level of a buffer
func (m *PipelineMetrics) SetBufferSize(buffer string, n int) {
	m.bufferSize.WithLabelValues(buffer).Set(float64(n))
}

// SetIndicators records the indicator table size
func (m *PipelineMetrics) SetIndicators(n int) {
	m.indicators.Set(float64(n))
}
