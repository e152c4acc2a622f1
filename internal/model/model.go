// Package model holds the data types shared by the collector pipeline.
package model

import (
	"fmt"
	"time"
)

// Severity is the severity of a security event or alert
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Valid reports whether s is one of the five known severities
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Alerting reports whether events of this severity raise a security alert
func (s Severity) Alerting() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// SecurityEvent is one classified log line. Events are immutable once built.
type SecurityEvent struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	Source      string            `json:"source"`
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details"`
	Host        string            `json:"host"`
	User        string            `json:"user,omitempty"`
	Process     string            `json:"process,omitempty"`
	NetworkInfo map[string]string `json:"network_info,omitempty"`
	FileInfo    map[string]string `json:"file_info,omitempty"`
}

// MetricsSnapshot is the merged output of one metric collection cycle
type MetricsSnapshot struct {
	Timestamp          time.Time          `json:"timestamp"`
	CPUUsage           float64            `json:"cpu_usage"`
	MemoryUsage        float64            `json:"memory_usage"`
	DiskUsage          map[string]float64 `json:"disk_usage"`
	NetworkConnections int                `json:"network_connections"`
	ActiveProcesses    int                `json:"active_processes"`
	FailedLogins       int                `json:"failed_logins"`
	SecurityAlerts     int                `json:"security_alerts"`
	ComplianceScore    float64            `json:"compliance_score"`
}

// Names of the metrics tracked by the baseline
const (
	MetricCPUUsage           = "cpu_usage"
	MetricMemoryUsage        = "memory_usage"
	MetricNetworkConnections = "network_connections"
)

// BaselineMetrics lists the metrics the baseline and anomaly detector track, in report order.
var BaselineMetrics = []string{MetricCPUUsage, MetricMemoryUsage, MetricNetworkConnections}

// Value returns the named baseline metric from the snapshot
func (m MetricsSnapshot) Value(name string) (float64, bool) {
	switch name {
	case MetricCPUUsage:
		return m.CPUUsage, true
	case MetricMemoryUsage:
		return m.MemoryUsage, true
	case MetricNetworkConnections:
		return float64(m.NetworkConnections), true
	}
	return 0, false
}

// IndicatorType is the kind of a threat indicator
type IndicatorType string

const (
	IndicatorIP     IndicatorType = "ip"
	IndicatorDomain IndicatorType = "domain"
	IndicatorHash   IndicatorType = "hash"
	IndicatorURL    IndicatorType = "url"
)

// ThreatIndicator is a known malicious artifact. Count never decreases.
type ThreatIndicator struct {
	Type       IndicatorType `json:"indicator_type" yaml:"indicator_type"`
	Value      string        `json:"value" yaml:"value"`
	ThreatType string        `json:"threat_type" yaml:"threat_type"`
	Confidence float64       `json:"confidence" yaml:"confidence"`
	FirstSeen  time.Time     `json:"first_seen" yaml:"first_seen"`
	LastSeen   time.Time     `json:"last_seen" yaml:"last_seen"`
	Count      int           `json:"count" yaml:"count"`
	Source     string        `json:"source" yaml:"source"`
}

// Key returns the lookup key "{type}:{value}"
func (t ThreatIndicator) Key() string {
	return IndicatorKey(t.Type, t.Value)
}

// IndicatorKey builds the lookup key for an indicator
func IndicatorKey(typ IndicatorType, value string) string {
	return fmt.Sprintf("%s:%s", typ, value)
}

// Baseline summarises one metric over the trailing baseline window
type Baseline struct {
	Metric     string    `json:"metric_name"`
	Mean       float64   `json:"mean"`
	Std        float64   `json:"std"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Samples    int       `json:"samples"`
	ComputedAt time.Time `json:"computed_at"`
}

// AlertType tags the four alert shapes
type AlertType string

const (
	AlertSecurity AlertType = "security_alert"
	AlertThreat   AlertType = "threat_alert"
	AlertResource AlertType = "resource_alert"
	AlertAnomaly  AlertType = "anomaly_alert"
)

// Alert is a generated alert. Payload carries the type-specific body.
type Alert struct {
	Type      AlertType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
	ID        string      `json:"alert_id"`
}

// SecurityPayload is the body of a security alert
type SecurityPayload struct {
	Event SecurityEvent `json:"event"`
}

// ThreatPayload is the body of a threat alert
type ThreatPayload struct {
	Event     SecurityEvent   `json:"event"`
	Indicator ThreatIndicator `json:"threat"`
}

// ResourcePayload is the body of a resource alert
type ResourcePayload struct {
	Resource    string  `json:"resource_type"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	Mount       string  `json:"mount,omitempty"`
	Description string  `json:"description"`
}

// AnomalyPayload is the body of an anomaly alert
type AnomalyPayload struct {
	Metric       string   `json:"metric_name"`
	CurrentValue float64  `json:"current_value"`
	ZScore       float64  `json:"z_score"`
	Baseline     Baseline `json:"baseline"`
	Severity     Severity `json:"severity"`
	Description  string   `json:"description"`
}
