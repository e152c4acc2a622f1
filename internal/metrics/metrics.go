// Package metrics samples host and pipeline metrics into snapshots.
package metrics

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	apperrors "github.com/shizukutanaka/seccollector/internal/errors"
	"github.com/shizukutanaka/seccollector/internal/model"
)

// Sample keys understood by the snapshot builder
const (
	KeyCPUUsage           = model.MetricCPUUsage
	KeyMemoryUsage        = model.MetricMemoryUsage
	KeyNetworkConnections = model.MetricNetworkConnections
	KeyActiveProcesses    = "active_processes"
	KeyFailedLogins       = "failed_logins"
	KeySecurityAlerts     = "security_alerts"
	KeyComplianceScore    = "compliance_score"

	// diskPrefix is followed by the mount point, e.g. "disk_usage:/var"
	diskPrefix = "disk_usage:"
)

// DiskKey returns the sample key for the usage of a mount point
func DiskKey(mount string) string {
	return diskPrefix + mount
}

// Sample is the partial result of one sub-collector
type Sample map[string]float64

// SubCollector produces one part of a snapshot
type SubCollector interface {
	Name() string
	Collect(ctx context.Context) (Sample, error)
}

// Composite merges the samples of its sub-collectors into one snapshot
type Composite struct {
	subs []SubCollector
	now  func() time.Time
}

// NewComposite creates a composite over subs, merged in order
func NewComposite(subs ...SubCollector) *Composite {
	return &Composite{
		subs: subs,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Collect runs every sub-collector and merges their samples. A failing
// sub-collector contributes nothing; its error is returned alongside the
// snapshot, which is always usable. Missing keys are zero.
func (c *Composite) Collect(ctx context.Context) (model.MetricsSnapshot, error) {
	merged := make(Sample)
	var errs []error

	for _, sub := range c.subs {
		sample, err := sub.Collect(ctx)
		if err != nil {
			errs = append(errs, apperrors.Wrap(err, apperrors.KindMetricSample, sub.Name(), "collect "+sub.Name()+" metrics"))
			continue
		}
		for k, v := range sample {
			merged[k] = v
		}
	}

	return c.snapshot(merged), stderrors.Join(errs...)
}

func (c *Composite) snapshot(s Sample) model.MetricsSnapshot {
	snap := model.MetricsSnapshot{
		Timestamp:          c.now(),
		CPUUsage:           s[KeyCPUUsage],
		MemoryUsage:        s[KeyMemoryUsage],
		DiskUsage:          make(map[string]float64),
		NetworkConnections: int(s[KeyNetworkConnections]),
		ActiveProcesses:    int(s[KeyActiveProcesses]),
		FailedLogins:       int(s[KeyFailedLogins]),
		SecurityAlerts:     int(s[KeySecurityAlerts]),
		ComplianceScore:    s[KeyComplianceScore],
	}
	for k, v := range s {
		if mount, ok := strings.CutPrefix(k, diskPrefix); ok {
			snap.DiskUsage[mount] = v
		}
	}
	return snap
}
