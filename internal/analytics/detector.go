package analytics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/shizukutanaka/seccollector/internal/model"
)

// RecentWindow is the number of latest snapshots averaged against the baseline
const RecentWindow = 10

// Z-score bands. A score equal to a bound falls in the lower band.
const (
	MediumZScore = 2.0
	HighZScore   = 3.0
)

// Anomaly is one metric whose recent mean deviates from its baseline
type Anomaly struct {
	Metric       string
	CurrentValue float64
	ZScore       float64
	Baseline     model.Baseline
	Severity     model.Severity
}

// Description renders the anomaly for alert payloads
func (a Anomaly) Description() string {
	return fmt.Sprintf("Anomalous %s detected (z-score: %.2f)", a.Metric, a.ZScore)
}

// Classify maps a z-score to a severity; ok is false when it is not anomalous.
func Classify(z float64) (model.Severity, bool) {
	switch {
	case z > HighZScore:
		return model.SeverityHigh, true
	case z > MediumZScore:
		return model.SeverityMedium, true
	}
	return "", false
}

// ZScore returns |recent - mean| / std. ok is false when std is zero, since a
// flat baseline gives no scale to measure deviation against.
func ZScore(recent float64, b model.Baseline) (float64, bool) {
	if b.Std == 0 || math.IsNaN(b.Std) {
		return 0, false
	}
	return math.Abs(recent-b.Mean) / b.Std, true
}

// Detect compares the mean of the last RecentWindow snapshots with each
// baseline. Metrics with no baseline are skipped.
func Detect(history []model.MetricsSnapshot, baselines map[string]model.Baseline) []Anomaly {
	if len(history) == 0 || len(baselines) == 0 {
		return nil
	}
	recent := history
	if len(recent) > RecentWindow {
		recent = recent[len(recent)-RecentWindow:]
	}

	var anomalies []Anomaly
	values := make([]float64, len(recent))
	for _, metric := range model.BaselineMetrics {
		b, ok := baselines[metric]
		if !ok {
			continue
		}
		for i, snap := range recent {
			values[i], _ = snap.Value(metric)
		}
		current := stat.Mean(values, nil)

		z, ok := ZScore(current, b)
		if !ok {
			continue
		}
		severity, anomalous := Classify(z)
		if !anomalous {
			continue
		}
		anomalies = append(anomalies, Anomaly{
			Metric:       metric,
			CurrentValue: current,
			ZScore:       z,
			Baseline:     b,
			Severity:     severity,
		})
	}
	return anomalies
}
