package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shizukutanaka/seccollector/internal/errors"
	"github.com/shizukutanaka/seccollector/internal/model"
)

func snapshots(cpu ...float64) []model.MetricsSnapshot {
	out := make([]model.MetricsSnapshot, len(cpu))
	for i, v := range cpu {
		out[i] = model.MetricsSnapshot{CPUUsage: v, MemoryUsage: 40, NetworkConnections: 10}
	}
	return out
}

func series(from, to float64) []float64 {
	var out []float64
	for v := from; v <= to; v++ {
		out = append(out, v)
	}
	return out
}

func TestComputeBaselinesUsesLastWindow(t *testing.T) {
	// 1..60: the first ten must be ignored
	history := snapshots(series(1, 60)...)
	at := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	baselines, err := ComputeBaselines(history, at)
	require.NoError(t, err)

	cpu := baselines[model.MetricCPUUsage]
	assert.InDelta(t, 35.5, cpu.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(208.25), cpu.Std, 1e-9)
	assert.Equal(t, 11.0, cpu.Min)
	assert.Equal(t, 60.0, cpu.Max)
	assert.Equal(t, BaselineWindow, cpu.Samples)
	assert.Equal(t, at, cpu.ComputedAt)

	mem := baselines[model.MetricMemoryUsage]
	assert.Equal(t, 40.0, mem.Mean)
	assert.Equal(t, 0.0, mem.Std)

	again, err := ComputeBaselines(history, at)
	require.NoError(t, err)
	assert.Equal(t, baselines, again)
}

func TestComputeBaselinesNeedsFullWindow(t *testing.T) {
	_, err := ComputeBaselines(snapshots(series(1, 49)...), time.Now())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindBaselineUnavailable))
}

func TestEstimatorComputesOnce(t *testing.T) {
	e := NewEstimator(0)
	_, ok := e.Baselines()
	assert.False(t, ok)

	first, err := e.Ensure(snapshots(series(1, 50)...))
	require.NoError(t, err)

	second, err := e.Ensure(snapshots(series(100, 149)...))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	e.Reset()
	third, err := e.Ensure(snapshots(series(100, 149)...))
	require.NoError(t, err)
	assert.InDelta(t, 124.5, third[model.MetricCPUUsage].Mean, 1e-9)
}

func TestEstimatorRefresh(t *testing.T) {
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	e := NewEstimator(time.Hour)
	e.now = func() time.Time { return now }

	_, err := e.Ensure(snapshots(series(1, 50)...))
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	b, _ := e.Ensure(snapshots(series(101, 150)...))
	assert.InDelta(t, 25.5, b[model.MetricCPUUsage].Mean, 1e-9)

	now = now.Add(31 * time.Minute)
	b, _ = e.Ensure(snapshots(series(101, 150)...))
	assert.InDelta(t, 125.5, b[model.MetricCPUUsage].Mean, 1e-9)
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		z        float64
		severity model.Severity
		anomaly  bool
	}{
		{0, "", false},
		{2.000, "", false},
		{2.001, model.SeverityMedium, true},
		{3.000, model.SeverityMedium, true},
		{3.001, model.SeverityHigh, true},
		{12, model.SeverityHigh, true},
	}
	for _, tt := range tests {
		severity, ok := Classify(tt.z)
		assert.Equal(t, tt.anomaly, ok, "z=%v", tt.z)
		assert.Equal(t, tt.severity, severity, "z=%v", tt.z)
	}
}

func TestDetectBoundaries(t *testing.T) {
	baselines := map[string]model.Baseline{
		model.MetricCPUUsage: {Metric: model.MetricCPUUsage, Mean: 0, Std: 1},
	}
	tests := []struct {
		recent   float64
		severity model.Severity
	}{
		{2.000, ""},
		{2.001, model.SeverityMedium},
		{3.000, model.SeverityMedium},
		{3.001, model.SeverityHigh},
	}
	for _, tt := range tests {
		history := snapshots(0, 0, 0, 0, 0)
		for i := 0; i < RecentWindow; i++ {
			history = append(history, snapshots(tt.recent)...)
		}

		anomalies := Detect(history, baselines)
		if tt.severity == "" {
			assert.Empty(t, anomalies, "recent=%v", tt.recent)
			continue
		}
		require.Len(t, anomalies, 1, "recent=%v", tt.recent)
		assert.Equal(t, tt.severity, anomalies[0].Severity)
		assert.Equal(t, model.MetricCPUUsage, anomalies[0].Metric)
		assert.InDelta(t, tt.recent, anomalies[0].ZScore, 1e-9)
	}
}

func TestDetectFlatBaselineNeverFires(t *testing.T) {
	baselines := map[string]model.Baseline{
		model.MetricMemoryUsage: {Metric: model.MetricMemoryUsage, Mean: 40, Std: 0},
	}
	history := []model.MetricsSnapshot{{MemoryUsage: 99}, {MemoryUsage: 99}}

	assert.Empty(t, Detect(history, baselines))
	_, ok := ZScore(99, baselines[model.MetricMemoryUsage])
	assert.False(t, ok)
}

func TestDetectWithoutBaseline(t *testing.T) {
	assert.Nil(t, Detect(snapshots(1, 2, 3), nil))
}
