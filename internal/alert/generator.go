// Package alert builds alerts from pipeline findings and ships them to the
// local alert log and the configured sinks.
package alert

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shizukutanaka/seccollector/internal/model"
)

// idLength is the number of hex characters kept from the content hash
const idLength = 16

// Generator builds the four alert shapes
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator stamping alerts with the current UTC time
func NewGenerator() *Generator {
	return &Generator{now: func() time.Time { return time.Now().UTC() }}
}

// ID derives an alert id from content and the second at which it is generated.
// Identical content within the same second yields the same id, which makes it a
// deduplication key rather than a unique identifier.
func ID(content string, at time.Time) string {
	sum := md5.Sum([]byte(content + "_" + strconv.FormatInt(at.Unix(), 10)))
	return hex.EncodeToString(sum[:])[:idLength]
}

func eventContent(prefix string, ev model.SecurityEvent) string {
	return fmt.Sprintf("%s_%s_%s_%s", prefix, ev.Timestamp.UTC().Format(time.RFC3339Nano), ev.EventType, ev.Source)
}

// Security builds an alert for a high-severity event
func (g *Generator) Security(ev model.SecurityEvent) model.Alert {
	now := g.now()
	return model.Alert{
		Type:      model.AlertSecurity,
		Timestamp: now,
		Payload:   model.SecurityPayload{Event: ev},
		ID:        ID(eventContent("sec", ev), now),
	}
}

// Threat builds an alert for an event that matched a threat indicator
func (g *Generator) Threat(ev model.SecurityEvent, ind model.ThreatIndicator) model.Alert {
	now := g.now()
	return model.Alert{
		Type:      model.AlertThreat,
		Timestamp: now,
		Payload:   model.ThreatPayload{Event: ev, Indicator: ind},
		ID:        ID(eventContent("threat", ev)+"_"+ind.Key(), now),
	}
}

// Resource builds an alert for a metric over its threshold
func (g *Generator) Resource(resource string, value, threshold float64, mount string) model.Alert {
	now := g.now()
	desc := fmt.Sprintf("High %s usage: %.2f", resource, value)
	if resource != ResourceNetwork && resource != ResourceAuth {
		desc += "%"
	}
	if mount != "" {
		desc += " on " + mount
	}
	return model.Alert{
		Type:      model.AlertResource,
		Timestamp: now,
		Payload: model.ResourcePayload{
			Resource:    resource,
			Value:       value,
			Threshold:   threshold,
			Mount:       mount,
			Description: desc,
		},
		ID: ID(fmt.Sprintf("%s_%v_%s", resource, value, mount), now),
	}
}

// Anomaly builds an alert for a metric deviating from its baseline
func (g *Generator) Anomaly(metric string, current, z float64, baseline model.Baseline, severity model.Severity) model.Alert {
	now := g.now()
	return model.Alert{
		Type:      model.AlertAnomaly,
		Timestamp: now,
		Payload: model.AnomalyPayload{
			Metric:       metric,
			CurrentValue: current,
			ZScore:       z,
			Baseline:     baseline,
			Severity:     severity,
			Description: fmt.Sprintf("Anomaly detected in %s: %.2f (baseline: %.2f, z-score: %.2f)",
				metric, current, baseline.Mean, z),
		},
		ID: ID("anomaly_"+metric, now),
	}
}

// Resource kinds checked against thresholds
const (
	ResourceCPU     = "cpu"
	ResourceMemory  = "memory"
	ResourceDisk    = "disk"
	ResourceNetwork = "network"
	ResourceAuth    = "auth"
)

// Thresholds are the limits a snapshot is checked against
type Thresholds struct {
	CPUHigh                float64
	MemoryHigh             float64
	DiskHigh               float64
	NetworkConnectionsHigh float64
	FailedLoginCount       float64
}

// CheckResources returns a resource alert for every value strictly over its
// threshold. Disk mounts are checked in sorted order.
func (g *Generator) CheckResources(snap model.MetricsSnapshot, th Thresholds) []model.Alert {
	var alerts []model.Alert
	if snap.CPUUsage > th.CPUHigh {
		alerts = append(alerts, g.Resource(ResourceCPU, snap.CPUUsage, th.CPUHigh, ""))
	}
	if snap.MemoryUsage > th.MemoryHigh {
		alerts = append(alerts, g.Resource(ResourceMemory, snap.MemoryUsage, th.MemoryHigh, ""))
	}
	for _, mount := range sortedMounts(snap.DiskUsage) {
		if usage := snap.DiskUsage[mount]; usage > th.DiskHigh {
			alerts = append(alerts, g.Resource(ResourceDisk, usage, th.DiskHigh, mount))
		}
	}
	if conns := float64(snap.NetworkConnections); conns > th.NetworkConnectionsHigh {
		alerts = append(alerts, g.Resource(ResourceNetwork, conns, th.NetworkConnectionsHigh, ""))
	}
	if th.FailedLoginCount > 0 {
		if failed := float64(snap.FailedLogins); failed >= th.FailedLoginCount {
			alerts = append(alerts, g.Resource(ResourceAuth, failed, th.FailedLoginCount, ""))
		}
	}
	return alerts
}

func sortedMounts(usage map[string]float64) []string {
	mounts := make([]string, 0, len(usage))
	for m := range usage {
		mounts = append(mounts, m)
	}
	sort.Strings(mounts)
	return mounts
}
