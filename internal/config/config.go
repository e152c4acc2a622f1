// Package config loads the collector configuration from YAML, the environment
// and defaults, and reloads it when the file changes.
package config

import (
	"time"
)

// Config is the collector configuration
type Config struct {
	// CollectionInterval is the metric sampling period in seconds
	CollectionInterval int               `yaml:"collection_interval"`
	LogPaths           map[string]string `yaml:"log_paths"`
	Thresholds         ThresholdsConfig  `yaml:"thresholds"`
	Retention          RetentionConfig   `yaml:"retention"`
	Export             ExportConfig      `yaml:"export"`
	Analytics          AnalyticsConfig   `yaml:"analytics"`
	ThreatIntel        ThreatIntelConfig `yaml:"threat_intel"`
	Management         ManagementConfig  `yaml:"management"`
	Monitoring         MonitoringConfig  `yaml:"monitoring"`
	Logging            LoggingConfig     `yaml:"logging"`
}

// ThresholdsConfig holds the resource alert limits
type ThresholdsConfig struct {
	CPUHigh                float64 `yaml:"cpu_high"`
	MemoryHigh             float64 `yaml:"memory_high"`
	DiskHigh               float64 `yaml:"disk_high"`
	FailedLoginCount       int     `yaml:"failed_login_count"`
	NetworkConnectionsHigh int     `yaml:"network_connections_high"`
}

// RetentionConfig bounds how far back status output looks
type RetentionConfig struct {
	EventsDays  int `yaml:"events_days"`
	MetricsDays int `yaml:"metrics_days"`
}

// ExportConfig selects the alert and metric outputs
type ExportConfig struct {
	Prometheus    bool          `yaml:"prometheus"`
	Elasticsearch bool          `yaml:"elasticsearch"`
	Syslog        bool          `yaml:"syslog"`
	MetricsFile   string        `yaml:"metrics_file"`
	AlertLog      string        `yaml:"alert_log"`
	SyslogTag     string        `yaml:"syslog_tag"`
	// SyslogNetwork and SyslogAddress select a remote or non-default daemon;
	// both empty means the local syslog socket.
	SyslogNetwork string        `yaml:"syslog_network"`
	SyslogAddress string        `yaml:"syslog_address"`
	DedupWindow   time.Duration `yaml:"dedup_window"`
	NATS          NATSConfig    `yaml:"nats"`
}

// NATSConfig configures the NATS alert sink. An empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// AnalyticsConfig tunes the baseline
type AnalyticsConfig struct {
	// BaselineRefresh recomputes the baseline when older than this; zero computes it once.
	BaselineRefresh time.Duration `yaml:"baseline_refresh"`
	ComplianceScore float64       `yaml:"compliance_score"`
}

// ThreatIntelConfig points at the indicator file
type ThreatIntelConfig struct {
	File            string        `yaml:"file"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ManagementConfig configures the fleet management client. An empty server URL disables it.
type ManagementConfig struct {
	ServerURL         string        `yaml:"server_url"`
	APIToken          string        `yaml:"api_token"`
	NodeID            string        `yaml:"node_id"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	CheckInterval     time.Duration `yaml:"check_interval"`
	Compress          bool          `yaml:"compress"`
}

// MonitoringConfig configures the local status server. An empty address disables it.
type MonitoringConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		CollectionInterval: 60,
		LogPaths: map[string]string{
			"auth":   "/var/log/auth.log",
			"syslog": "/var/log/syslog",
			"audit":  "/var/log/audit/audit.log",
			"apache": "/var/log/apache2/access.log",
			"nginx":  "/var/log/nginx/access.log",
		},
		Thresholds: ThresholdsConfig{
			CPUHigh:                80,
			MemoryHigh:             85,
			DiskHigh:               90,
			FailedLoginCount:       5,
			NetworkConnectionsHigh: 1000,
		},
		Retention: RetentionConfig{
			EventsDays:  30,
			MetricsDays: 90,
		},
		Export: ExportConfig{
			Prometheus:  true,
			MetricsFile: "/tmp/security_metrics.prom",
			AlertLog:    "/var/log/security-alerts.log",
			SyslogTag:   "seccollector",
			DedupWindow: 5 * time.Minute,
			NATS: NATSConfig{
				Subject: "security.alerts",
			},
		},
		Analytics: AnalyticsConfig{
			ComplianceScore: 85,
		},
		ThreatIntel: ThreatIntelConfig{
			RefreshInterval: time.Hour,
		},
		Management: ManagementConfig{
			HeartbeatInterval: 5 * time.Minute,
			CheckInterval:     time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// Interval returns the metric collection interval
func (c *Config) Interval() time.Duration {
	return time.Duration(c.CollectionInterval) * time.Second
}

// Clone returns a deep copy of the configuration
func (c *Config) Clone() *Config {
	out := *c
	out.LogPaths = make(map[string]string, len(c.LogPaths))
	for k, v := range c.LogPaths {
		out.LogPaths[k] = v
	}
	return &out
}
