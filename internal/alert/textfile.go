package alert

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/shizukutanaka/seccollector/internal/errors"
	"github.com/shizukutanaka/seccollector/internal/model"
)

// DefaultMetricsFile is the textfile-collector path used when none is configured
const DefaultMetricsFile = "/tmp/security_metrics.prom"

// TextfileWriter renders the latest snapshot as four gauges in the Prometheus
// text format for a node exporter textfile collector. Each write replaces the
// whole file.
type TextfileWriter struct {
	path     string
	registry *prometheus.Registry

	cpu         prometheus.Gauge
	memory      prometheus.Gauge
	connections prometheus.Gauge
	compliance  prometheus.Gauge
}

// NewTextfileWriter creates a writer for path
func NewTextfileWriter(path string) *TextfileWriter {
	if path == "" {
		path = DefaultMetricsFile
	}
	w := &TextfileWriter{
		path:     path,
		registry: prometheus.NewRegistry(),
		cpu: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "security_cpu_usage",
			Help: "CPU usage percentage",
		}),
		memory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "security_memory_usage",
			Help: "Memory usage percentage",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "security_network_connections",
			Help: "Active network connections",
		}),
		compliance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "security_compliance_score",
			Help: "Compliance score percentage",
		}),
	}
	w.registry.MustRegister(w.cpu, w.memory, w.connections, w.compliance)
	return w
}

// Path returns the output file
func (w *TextfileWriter) Path() string { return w.path }

// Write overwrites the file with the values of snap
func (w *TextfileWriter) Write(snap model.MetricsSnapshot) error {
	w.cpu.Set(snap.CPUUsage)
	w.memory.Set(snap.MemoryUsage)
	w.connections.Set(float64(snap.NetworkConnections))
	w.compliance.Set(snap.ComplianceScore)

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.KindExportWrite, "textfile", "create metrics directory")
	}
	if err := prometheus.WriteToTextfile(w.path, w.registry); err != nil {
		return apperrors.Wrap(err, apperrors.KindExportWrite, "textfile", fmt.Sprintf("write %s", w.path))
	}
	return nil
}
