package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/shizukutanaka/seccollector/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, NewValidator().Validate(cfg))

	assert.Equal(t, 60*time.Second, cfg.Interval())
	assert.Len(t, cfg.LogPaths, 5)
	assert.Equal(t, "/var/log/auth.log", cfg.LogPaths["auth"])
	assert.Equal(t, 80.0, cfg.Thresholds.CPUHigh)
	assert.Equal(t, 5, cfg.Thresholds.FailedLoginCount)
	assert.True(t, cfg.Export.Prometheus)
	assert.False(t, cfg.Export.Elasticsearch)
	assert.False(t, cfg.Export.Syslog)
	assert.Equal(t, "/tmp/security_metrics.prom", cfg.Export.MetricsFile)
	assert.Equal(t, 30, cfg.Retention.EventsDays)
	assert.Equal(t, 90, cfg.Retention.MetricsDays)
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  bool
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name: "overrides",
			content: `
collection_interval: 30
log_paths:
  auth: /var/log/secure
thresholds:
  cpu_high: 90
  failed_login_count: 10
export:
  syslog: true
  dedup_window: 2m
analytics:
  baseline_refresh: 24h
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 30, cfg.CollectionInterval)
				assert.Equal(t, map[string]string{"auth": "/var/log/secure"}, cfg.LogPaths)
				assert.Equal(t, 90.0, cfg.Thresholds.CPUHigh)
				assert.Equal(t, 85.0, cfg.Thresholds.MemoryHigh)
				assert.Equal(t, 10, cfg.Thresholds.FailedLoginCount)
				assert.True(t, cfg.Export.Syslog)
				assert.True(t, cfg.Export.Prometheus)
				assert.Equal(t, 2*time.Minute, cfg.Export.DedupWindow)
				assert.Equal(t, 24*time.Hour, cfg.Analytics.BaselineRefresh)
			},
		},
		{
			name:    "missing log_paths keeps default sources",
			content: "collection_interval: 15\n",
			validate: func(t *testing.T, cfg *Config) {
				assert.Len(t, cfg.LogPaths, 5)
			},
		},
		{
			name:    "malformed yaml",
			content: "thresholds: [unterminated",
			wantErr: true,
		},
		{
			name:    "invalid threshold",
			content: "thresholds:\n  cpu_high: 150\n",
			wantErr: true,
		},
		{
			name:    "management without node id",
			content: "management:\n  server_url: https://fleet.example.com\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(zap.NewNop(), writeConfig(t, tt.content))
			require.NotNil(t, m)
			cfg := m.Get()

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.Is(err, apperrors.KindConfigLoad))
				// falls back to defaults
				assert.Equal(t, DefaultConfig(), cfg)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	m, err := NewManager(zap.NewNop(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), m.Get())
}

func TestInvalidFileFallbackKeepsEnvOverrides(t *testing.T) {
	t.Setenv("SECCOLLECTOR_THRESHOLDS_CPU_HIGH", "65")
	t.Setenv("SECCOLLECTOR_EXPORT_METRICS_FILE", "/var/lib/node_exporter/security.prom")
	path := writeConfig(t, "thresholds:\n  cpu_high: 500\n")

	m, err := NewManager(zap.NewNop(), path)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConfigLoad))

	cfg := m.Get()
	assert.Equal(t, 65.0, cfg.Thresholds.CPUHigh)
	assert.Equal(t, "/var/lib/node_exporter/security.prom", cfg.Export.MetricsFile)
	assert.Equal(t, DefaultConfig().Thresholds.MemoryHigh, cfg.Thresholds.MemoryHigh)
}

func TestInvalidEnvOverridesFallBackToDefaults(t *testing.T) {
	t.Setenv("SECCOLLECTOR_THRESHOLDS_CPU_HIGH", "900")
	path := writeConfig(t, "collection_interval: -1\n")

	m, err := NewManager(zap.NewNop(), path)
	require.Error(t, err)
	assert.Equal(t, DefaultConfig(), m.Get())
}

func TestSyslogTargetValidation(t *testing.T) {
	v := NewValidator()

	cfg := DefaultConfig()
	cfg.Export.SyslogNetwork = "unixgram"
	cfg.Export.SyslogAddress = "/run/systemd/journal/syslog"
	assert.NoError(t, v.Validate(cfg))

	cfg.Export.SyslogNetwork = "quic"
	assert.Error(t, v.Validate(cfg))

	cfg.Export.SyslogNetwork = "udp"
	cfg.Export.SyslogAddress = ""
	assert.Error(t, v.Validate(cfg))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SECCOLLECTOR_THRESHOLDS_MEMORY_HIGH", "70.5")
	t.Setenv("SECCOLLECTOR_EXPORT_PROMETHEUS", "false")
	t.Setenv("SECCOLLECTOR_MANAGEMENT_HEARTBEAT_INTERVAL", "90s")
	t.Setenv("SECCOLLECTOR_LOG_PATHS_CUSTOM", "/srv/app/auth.log")

	cfg := DefaultConfig()
	loader := NewEnvLoader(EnvPrefix, "")
	require.NoError(t, loader.Load(cfg))

	assert.Equal(t, 70.5, cfg.Thresholds.MemoryHigh)
	assert.False(t, cfg.Export.Prometheus)
	assert.Equal(t, 90*time.Second, cfg.Management.HeartbeatInterval)
	assert.Equal(t, "/srv/app/auth.log", cfg.LogPaths["custom"])
}

func TestEnvOverrideRejectsBadValue(t *testing.T) {
	t.Setenv("SECCOLLECTOR_COLLECTION_INTERVAL", "soon")
	assert.Error(t, NewEnvLoader(EnvPrefix, "").Load(DefaultConfig()))
}

func TestDotenvFile(t *testing.T) {
	dotenv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("SECCOLLECTOR_MONITORING_LISTEN_ADDR=127.0.0.1:9109\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SECCOLLECTOR_MONITORING_LISTEN_ADDR") })

	cfg := DefaultConfig()
	require.NoError(t, NewEnvLoader(EnvPrefix, dotenv).Load(cfg))
	assert.Equal(t, "127.0.0.1:9109", cfg.Monitoring.ListenAddr)
}

func TestGetReturnsCopy(t *testing.T) {
	m, _ := NewManager(zap.NewNop(), "")
	cfg := m.Get()
	cfg.LogPaths["auth"] = "/tmp/other"
	cfg.Thresholds.CPUHigh = 1

	fresh := m.Get()
	assert.Equal(t, "/var/log/auth.log", fresh.LogPaths["auth"])
	assert.Equal(t, 80.0, fresh.Thresholds.CPUHigh)
}

func TestReloadKeepsConfigOnError(t *testing.T) {
	path := writeConfig(t, "thresholds:\n  cpu_high: 70\n")
	m, err := NewManager(zap.NewNop(), path)
	require.NoError(t, err)

	var got []*Config
	m.OnChange(func(c *Config) { got = append(got, c) })

	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  cpu_high: 0\n"), 0o644))
	require.Error(t, m.Reload())
	assert.Equal(t, 70.0, m.Get().Thresholds.CPUHigh)
	assert.Empty(t, got)

	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  cpu_high: 95\n"), 0o644))
	require.NoError(t, m.Reload())
	assert.Equal(t, 95.0, m.Get().Thresholds.CPUHigh)
	require.Len(t, got, 1)
	assert.Equal(t, 95.0, got[0].Thresholds.CPUHigh)
}

func TestWatcherHotReload(t *testing.T) {
	path := writeConfig(t, "thresholds:\n  disk_high: 90\n")
	m, err := NewManager(zap.NewNop(), path)
	require.NoError(t, err)

	var mu sync.Mutex
	var latest float64
	m.OnChange(func(c *Config) {
		mu.Lock()
		latest = c.Thresholds.DiskHigh
		mu.Unlock()
	})

	require.NoError(t, m.StartWatcher())
	m.watcher.SetDebounce(50 * time.Millisecond)
	defer m.StopWatcher()

	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  disk_high: 75\n"), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return latest == 75
	}, 5*time.Second, 20*time.Millisecond)
}
