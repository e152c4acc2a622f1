// Package analytics keeps the statistical baseline of host metrics and flags
// deviations from it.
package analytics

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/shizukutanaka/seccollector/internal/errors"
	"github.com/shizukutanaka/seccollector/internal/model"
)

// BaselineWindow is both the minimum history needed and the number of most
// recent snapshots the baseline is computed over.
const BaselineWindow = 50

// Estimator computes and holds the baseline. Without a refresh interval the
// baseline is computed once and kept for the life of the process.
type Estimator struct {
	mu        sync.RWMutex
	baselines map[string]model.Baseline
	computed  time.Time
	refresh   time.Duration
	now       func() time.Time
}

// NewEstimator creates an estimator. refresh <= 0 disables recomputation.
func NewEstimator(refresh time.Duration) *Estimator {
	return &Estimator{
		refresh: refresh,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ComputeBaselines summarises the last BaselineWindow snapshots of history.
// It fails with BaselineUnavailable when history is shorter than the window.
func ComputeBaselines(history []model.MetricsSnapshot, at time.Time) (map[string]model.Baseline, error) {
	if len(history) < BaselineWindow {
		return nil, apperrors.New(apperrors.KindBaselineUnavailable, "baseline",
			fmt.Sprintf("need %d samples, have %d", BaselineWindow, len(history)))
	}
	window := history[len(history)-BaselineWindow:]

	out := make(map[string]model.Baseline, len(model.BaselineMetrics))
	values := make([]float64, len(window))
	for _, metric := range model.BaselineMetrics {
		for i, snap := range window {
			values[i], _ = snap.Value(metric)
		}
		mean, std := stat.PopMeanStdDev(values, nil)
		out[metric] = model.Baseline{
			Metric:     metric,
			Mean:       mean,
			Std:        std,
			Min:        floats.Min(values),
			Max:        floats.Max(values),
			Samples:    len(window),
			ComputedAt: at,
		}
	}
	return out, nil
}

// Ensure returns the current baseline, computing it from history when none
// exists yet or the existing one is older than the refresh interval.
func (e *Estimator) Ensure(history []model.MetricsSnapshot) (map[string]model.Baseline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	stale := e.refresh > 0 && now.Sub(e.computed) >= e.refresh
	if e.baselines != nil && !stale {
		return copyBaselines(e.baselines), nil
	}

	baselines, err := ComputeBaselines(history, now)
	if err != nil {
		if e.baselines != nil {
			// keep serving the previous baseline until enough history exists again
			return copyBaselines(e.baselines), nil
		}
		return nil, err
	}
	e.baselines = baselines
	e.computed = now
	return copyBaselines(baselines), nil
}

// Baselines returns a copy of the current baseline; ok is false before the first computation.
func (e *Estimator) Baselines() (map[string]model.Baseline, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.baselines == nil {
		return nil, false
	}
	return copyBaselines(e.baselines), true
}

// Reset drops the baseline so the next Ensure recomputes it
func (e *Estimator) Reset() {
	e.mu.Lock()
	e.baselines = nil
	e.computed = time.Time{}
	e.mu.Unlock()
}

// SetRefresh changes the refresh interval
func (e *Estimator) SetRefresh(d time.Duration) {
	e.mu.Lock()
	e.refresh = d
	e.mu.Unlock()
}

func copyBaselines(in map[string]model.Baseline) map[string]model.Baseline {
	out := make(map[string]model.Baseline, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
