package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validator checks a configuration for values the collector cannot run with
type Validator struct{}

// NewValidator creates a configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks every section of cfg
func (v *Validator) Validate(cfg *Config) error {
	if cfg.CollectionInterval <= 0 {
		return errors.New("collection_interval must be positive")
	}
	if err := v.validateLogPaths(cfg.LogPaths); err != nil {
		return fmt.Errorf("log_paths: %w", err)
	}
	if err := v.validateThresholds(&cfg.Thresholds); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if err := v.validateRetention(&cfg.Retention); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	if err := v.validateExport(&cfg.Export); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if cfg.Analytics.BaselineRefresh < 0 {
		return errors.New("analytics: baseline_refresh must not be negative")
	}
	if s := cfg.Analytics.ComplianceScore; s < 0 || s > 100 {
		return fmt.Errorf("analytics: compliance_score %v out of range [0, 100]", s)
	}
	if cfg.ThreatIntel.File != "" && cfg.ThreatIntel.RefreshInterval <= 0 {
		return errors.New("threat_intel: refresh_interval must be positive")
	}
	if err := v.validateManagement(&cfg.Management); err != nil {
		return fmt.Errorf("management: %w", err)
	}
	if addr := cfg.Monitoring.ListenAddr; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("monitoring: invalid listen_addr %q: %w", addr, err)
		}
	}
	if err := v.validateLogging(&cfg.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

func (v *Validator) validateLogPaths(paths map[string]string) error {
	for name := range paths {
		if strings.TrimSpace(name) == "" {
			return errors.New("empty source name")
		}
	}
	return nil
}

func (v *Validator) validateThresholds(cfg *ThresholdsConfig) error {
	for name, pct := range map[string]float64{
		"cpu_high":    cfg.CPUHigh,
		"memory_high": cfg.MemoryHigh,
		"disk_high":   cfg.DiskHigh,
	} {
		if pct <= 0 || pct > 100 {
			return fmt.Errorf("%s %v out of range (0, 100]", name, pct)
		}
	}
	if cfg.FailedLoginCount < 0 {
		return errors.New("failed_login_count must not be negative")
	}
	if cfg.NetworkConnectionsHigh <= 0 {
		return errors.New("network_connections_high must be positive")
	}
	return nil
}

func (v *Validator) validateRetention(cfg *RetentionConfig) error {
	if cfg.EventsDays <= 0 || cfg.MetricsDays <= 0 {
		return errors.New("events_days and metrics_days must be positive")
	}
	return nil
}

func (v *Validator) validateExport(cfg *ExportConfig) error {
	if cfg.Prometheus && cfg.MetricsFile == "" {
		return errors.New("metrics_file is required when prometheus export is enabled")
	}
	if cfg.DedupWindow < 0 {
		return errors.New("dedup_window must not be negative")
	}
	switch cfg.SyslogNetwork {
	case "", "udp", "tcp", "unix", "unixgram":
	default:
		return fmt.Errorf("unsupported syslog_network %q", cfg.SyslogNetwork)
	}
	if (cfg.SyslogNetwork == "") != (cfg.SyslogAddress == "") {
		return errors.New("syslog_network and syslog_address must be set together")
	}
	if cfg.NATS.URL != "" {
		if _, err := url.Parse(cfg.NATS.URL); err != nil {
			return fmt.Errorf("invalid nats url: %w", err)
		}
	}
	return nil
}

func (v *Validator) validateManagement(cfg *ManagementConfig) error {
	if cfg.ServerURL == "" {
		return nil
	}
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server_url %q", cfg.ServerURL)
	}
	if cfg.NodeID == "" {
		return errors.New("node_id is required when server_url is set")
	}
	if cfg.HeartbeatInterval <= 0 || cfg.CheckInterval <= 0 {
		return errors.New("heartbeat_interval and check_interval must be positive")
	}
	return nil
}

func (v *Validator) validateLogging(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.Level) {
		return fmt.Errorf("invalid log level: %s", cfg.Level)
	}
	if cfg.File != "" && cfg.MaxSizeMB <= 0 {
		return errors.New("max_size_mb must be positive when a log file is set")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
