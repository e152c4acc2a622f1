package config

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	apperrors "github.com/shizukutanaka/seccollector/internal/errors"
)

// Manager owns the live configuration: it loads it, hands out copies and
// reloads it when the file changes.
type Manager struct {
	logger     *zap.Logger
	configPath string

	config   *Config
	configMu sync.RWMutex

	validator *Validator
	envLoader *EnvLoader
	watcher   *Watcher

	callbacksMu       sync.Mutex
	onChangeCallbacks []func(*Config)
}

// NewManager creates a manager and performs the initial load. A file that
// cannot be parsed or validated is logged and the defaults, still subject to
// the environment overrides, are used instead, so the returned manager always
// holds a usable configuration. The returned error reports that fallback.
func NewManager(logger *zap.Logger, configPath string) (*Manager, error) {
	m := &Manager{
		logger:     logger.Named("config"),
		configPath: configPath,
		validator:  NewValidator(),
		envLoader:  NewEnvLoader(EnvPrefix, ".env"),
	}

	cfg, err := m.read()
	if err != nil {
		m.logger.Error("Invalid configuration, continuing with defaults",
			zap.String("path", configPath),
			zap.Error(err),
		)
		cfg = m.fallback()
	}
	m.config = cfg
	return m, err
}

// fallback is the defaults with the environment overrides applied. Overrides
// that fail to load or validate are dropped as well.
func (m *Manager) fallback() *Config {
	cfg := DefaultConfig()
	if err := m.envLoader.Load(cfg); err != nil {
		m.logger.Error("Ignoring environment overrides", zap.Error(err))
		return DefaultConfig()
	}
	if err := m.validator.Validate(cfg); err != nil {
		m.logger.Error("Ignoring environment overrides", zap.Error(err))
		return DefaultConfig()
	}
	return cfg
}

// read builds a configuration from defaults, the file and the environment
func (m *Manager) read() (*Config, error) {
	cfg := DefaultConfig()

	if m.configPath != "" {
		data, err := os.ReadFile(m.configPath)
		switch {
		case os.IsNotExist(err):
			m.logger.Info("No configuration file, using defaults", zap.String("path", m.configPath))
		case err != nil:
			return nil, apperrors.Wrap(err, apperrors.KindConfigLoad, "config", "read config file")
		default:
			// a log_paths section in the file replaces the default sources
			defaults := cfg.LogPaths
			cfg.LogPaths = nil
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, apperrors.Wrap(err, apperrors.KindConfigLoad, "config", "parse config file")
			}
			if cfg.LogPaths == nil {
				cfg.LogPaths = defaults
			}
		}
	}

	if err := m.envLoader.Load(cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConfigLoad, "config", "apply environment")
	}
	if err := m.validator.Validate(cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindConfigLoad, "config", "validate")
	}
	return cfg, nil
}

// Reload re-reads the configuration. On failure the current configuration is kept.
func (m *Manager) Reload() error {
	cfg, err := m.read()
	if err != nil {
		return err
	}

	m.configMu.Lock()
	m.config = cfg
	m.configMu.Unlock()

	m.logger.Info("Configuration reloaded", zap.String("path", m.configPath))
	m.notifyChange(cfg)
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.configMu.RLock()
	defer m.configMu.RUnlock()
	return m.config.Clone()
}

// Path returns the configuration file path
func (m *Manager) Path() string { return m.configPath }

// OnChange registers a callback run after every successful reload
func (m *Manager) OnChange(callback func(*Config)) {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()
	m.onChangeCallbacks = append(m.onChangeCallbacks, callback)
}

func (m *Manager) notifyChange(cfg *Config) {
	m.callbacksMu.Lock()
	callbacks := make([]func(*Config), len(m.onChangeCallbacks))
	copy(callbacks, m.onChangeCallbacks)
	m.callbacksMu.Unlock()

	for _, callback := range callbacks {
		callback(cfg.Clone())
	}
}

// StartWatcher reloads the configuration whenever the file changes
func (m *Manager) StartWatcher() error {
	if m.configPath == "" {
		return fmt.Errorf("no configuration file to watch")
	}
	w, err := NewWatcher(m.logger, m.configPath)
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	m.watcher = w

	return w.Start(func() {
		if err := m.Reload(); err != nil {
			m.logger.Error("Failed to hot-reload configuration", zap.Error(err))
		}
	})
}

// StopWatcher stops the file watcher
func (m *Manager) StopWatcher() {
	if m.watcher != nil {
		m.watcher.Stop()
	}
}
