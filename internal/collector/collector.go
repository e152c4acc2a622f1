// Package collector wires the pipeline together. A Collector owns every piece
// of shared state (buffers, cursors, baseline, indicators, exporter) and runs
// the collection loops over it.
package collector

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shizukutanaka/seccollector/internal/alert"
	"github.com/shizukutanaka/seccollector/internal/analytics"
	"github.com/shizukutanaka/seccollector/internal/buffer"
	"github.com/shizukutanaka/seccollector/internal/config"
	apperrors "github.com/shizukutanaka/seccollector/internal/errors"
	"github.com/shizukutanaka/seccollector/internal/management"
	"github.com/shizukutanaka/seccollector/internal/metrics"
	"github.com/shizukutanaka/seccollector/internal/model"
	"github.com/shizukutanaka/seccollector/internal/monitoring"
	"github.com/shizukutanaka/seccollector/internal/tailer"
	"github.com/shizukutanaka/seccollector/internal/threat"
)

// Sampler produces one metrics snapshot per call
type Sampler interface {
	Collect(ctx context.Context) (model.MetricsSnapshot, error)
}

// Options are the parts of a Collector that do not come from configuration
type Options struct {
	Version string
	// Sampler replaces the host metric collectors when set.
	Sampler Sampler
	// Runner executes management tasks; nil rejects them.
	Runner management.TaskRunner
	// MaxRead bounds a single source read; zero uses the tailer default.
	MaxRead int64
}

// Collector is the pipeline state shared by all loops
type Collector struct {
	logger  *zap.Logger
	configs *config.Manager
	cfg     atomic.Pointer[config.Config]
	errs    *apperrors.Handler
	metrics *monitoring.PipelineMetrics

	host      string
	version   string
	startedAt time.Time

	tailer    *tailer.Tailer
	tailMu    sync.Mutex
	tails     map[string]partialLine
	events    *buffer.Ring[model.SecurityEvent]
	snapshots *buffer.Ring[model.MetricsSnapshot]
	sampler   Sampler
	counters  *metrics.Counters
	estimator *analytics.Estimator
	table     *threat.Table
	generator *alert.Generator
	exporter  *alert.Exporter
	textfile  atomic.Pointer[alert.TextfileWriter]

	feedMu sync.Mutex
	feed   threat.Feed

	sinkMu  sync.Mutex
	sinkKey string

	mgmt  *management.Client
	agent *management.Agent

	esWarn sync.Once
}

// New builds a collector from the manager's current configuration
func New(logger *zap.Logger, configs *config.Manager, opts Options) (*Collector, error) {
	cfg := configs.Get()

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	c := &Collector{
		logger:    logger,
		configs:   configs,
		errs:      apperrors.NewHandler(logger.Named("errors")),
		metrics:   monitoring.NewPipelineMetrics(),
		host:      host,
		version:   opts.Version,
		startedAt: time.Now().UTC(),
		tailer:    tailer.New(logger.Named("tailer"), opts.MaxRead),
		tails:     make(map[string]partialLine),
		events:    buffer.NewRing[model.SecurityEvent](buffer.EventCapacity),
		snapshots: buffer.NewRing[model.MetricsSnapshot](buffer.MetricsCapacity),
		counters:  &metrics.Counters{},
		estimator: analytics.NewEstimator(cfg.Analytics.BaselineRefresh),
		table:     threat.NewTable(),
		generator: alert.NewGenerator(),
	}
	c.cfg.Store(cfg)

	c.sampler = opts.Sampler
	if c.sampler == nil {
		c.sampler = metrics.NewComposite(
			metrics.NewSystemCollector(logger.Named("metrics")),
			metrics.NewNetworkCollector(),
			metrics.NewSecurityCollector(c.counters),
			metrics.NewComplianceCollector(c.complianceScore),
		)
	}

	if cfg.Management.ServerURL != "" {
		c.mgmt, err = management.NewClient(logger.Named("management"), management.Config{
			ServerURL: cfg.Management.ServerURL,
			APIToken:  cfg.Management.APIToken,
			NodeID:    cfg.Management.NodeID,
			Compress:  cfg.Management.Compress,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create management client: %w", err)
		}
		c.agent = management.NewAgent(logger.Named("agent"), c.mgmt, opts.Runner, opts.Version)
	}

	c.exporter, err = alert.NewExporter(logger.Named("exporter"), cfg.Export.AlertLog, cfg.Export.DedupWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	c.apply(cfg)
	return c, nil
}

// config returns the active configuration. Callers must not modify it.
func (c *Collector) config() *config.Config {
	return c.cfg.Load()
}

func (c *Collector) complianceScore() float64 {
	return c.config().Analytics.ComplianceScore
}

// apply makes cfg the active configuration. Thresholds, export flags and the
// baseline refresh take effect on the next cycle; the alert log path, the
// dedup window and the management settings are fixed at startup.
func (c *Collector) apply(cfg *config.Config) {
	c.cfg.Store(cfg)
	c.estimator.SetRefresh(cfg.Analytics.BaselineRefresh)

	if tf := c.textfile.Load(); tf == nil || tf.Path() != cfg.Export.MetricsFile {
		c.textfile.Store(alert.NewTextfileWriter(cfg.Export.MetricsFile))
	}

	c.feedMu.Lock()
	if cfg.ThreatIntel.File == "" {
		c.feed = nil
	} else if c.feed == nil || c.feed.Name() != "file:"+cfg.ThreatIntel.File {
		c.feed = threat.NewFileFeed(cfg.ThreatIntel.File)
	}
	c.feedMu.Unlock()

	if err := c.applySinks(cfg); err != nil {
		c.errs.Handle(err, zap.String("stage", "configure_sinks"))
	}

	if cfg.Export.Elasticsearch {
		c.esWarn.Do(func() {
			c.logger.Warn("Elasticsearch export is not supported, flag ignored")
		})
	}
}

// applySinks rebuilds the alert sinks when their settings changed. A sink
// that could not be built is attempted again on the next call, so the export
// loop calls it every cycle.
func (c *Collector) applySinks(cfg *config.Config) error {
	exp := cfg.Export
	key := fmt.Sprintf("%t|%s|%s|%s|%s|%s", exp.Syslog, exp.SyslogNetwork, exp.SyslogAddress, exp.SyslogTag, exp.NATS.URL, exp.NATS.Subject)

	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	if key == c.sinkKey {
		return nil
	}

	var sinks []alert.Sink
	var errs []error
	if exp.Syslog {
		s, err := alert.NewSyslogSink(exp.SyslogNetwork, exp.SyslogAddress, exp.SyslogTag)
		if err != nil {
			errs = append(errs, apperrors.Wrap(err, apperrors.KindExportWrite, "syslog", "connect to syslog"))
		} else {
			sinks = append(sinks, s)
		}
	}
	if exp.NATS.URL != "" {
		s, err := alert.NewNATSSink(c.logger.Named("nats"), exp.NATS.URL, exp.NATS.Subject, "seccollector-"+c.host)
		if err != nil {
			errs = append(errs, apperrors.Wrap(err, apperrors.KindRemoteUnreachable, "nats", "connect to "+exp.NATS.URL))
		} else {
			sinks = append(sinks, s)
		}
	}
	if c.mgmt != nil {
		sinks = append(sinks, alert.NewPushSink("management", c.mgmt))
	}

	old := c.exporter.SetSinks(sinks...)
	closeSinks(old)

	if len(errs) > 0 {
		c.sinkKey = ""
		c.logger.Warn("Alert sinks incomplete, retrying next export cycle", zap.Strings("sinks", c.exporter.Sinks()))
		return stderrors.Join(errs...)
	}
	c.sinkKey = key
	c.logger.Info("Alert sinks configured", zap.Strings("sinks", c.exporter.Sinks()))
	return nil
}

func closeSinks(sinks []alert.Sink) {
	for _, s := range sinks {
		if cl, ok := s.(interface{ Close() error }); ok {
			_ = cl.Close()
		}
	}
}

func (c *Collector) thresholds() alert.Thresholds {
	th := c.config().Thresholds
	return alert.Thresholds{
		CPUHigh:                th.CPUHigh,
		MemoryHigh:             th.MemoryHigh,
		DiskHigh:               th.DiskHigh,
		NetworkConnectionsHigh: float64(th.NetworkConnectionsHigh),
		FailedLoginCount:       float64(th.FailedLoginCount),
	}
}

// Metrics returns the pipeline metrics
func (c *Collector) Metrics() *monitoring.PipelineMetrics { return c.metrics }

// Events returns a copy of the event buffer, oldest first
func (c *Collector) Events() []model.SecurityEvent { return c.events.Snapshot() }

// Snapshots returns a copy of the metrics buffer, oldest first
func (c *Collector) Snapshots() []model.MetricsSnapshot { return c.snapshots.Snapshot() }

// Indicators returns the indicator table
func (c *Collector) Indicators() *threat.Table { return c.table }

// Estimator returns the baseline estimator
func (c *Collector) Estimator() *analytics.Estimator { return c.estimator }

// Status implements monitoring.StatusProvider
func (c *Collector) Status() monitoring.Status {
	cfg := c.config()
	now := time.Now().UTC()

	st := monitoring.Status{
		Version:    c.version,
		StartedAt:  c.startedAt,
		Uptime:     now.Sub(c.startedAt).Truncate(time.Second).String(),
		Indicators: c.table.Len(),
		Sinks:      c.exporter.Sinks(),
		Errors:     c.errs.Counts(),
		Buffers: []monitoring.BufferStatus{
			{Name: "events", Len: c.events.Len(), Capacity: c.events.Cap(), Evicted: c.events.Evicted()},
			{Name: "metrics", Len: c.snapshots.Len(), Capacity: c.snapshots.Cap(), Evicted: c.snapshots.Evicted()},
		},
	}

	for _, name := range sortedSources(cfg.LogPaths) {
		src := monitoring.SourceStatus{Name: name, Path: cfg.LogPaths[name], OffsetText: monitoring.HumanOffset(0)}
		if cur, ok := c.tailer.Cursor(name); ok {
			src.Read = true
			src.Offset = cur.Offset
			src.OffsetText = monitoring.HumanOffset(cur.Offset)
			src.Inode = cur.Identity.Inode
		}
		st.Sources = append(st.Sources, src)
	}

	if b, ok := c.estimator.Baselines(); ok {
		st.Baseline = b
	}
	if snap, ok := c.snapshots.Latest(); ok {
		st.Latest = &snap
	}

	cutoff := now.AddDate(0, 0, -cfg.Retention.EventsDays)
	for _, ev := range c.events.Snapshot() {
		if !ev.Timestamp.Before(cutoff) {
			st.RecentEvents++
		}
	}
	return st
}

func sortedSources(paths map[string]string) []string {
	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases the exporter and its sinks
func (c *Collector) Close() error {
	return c.exporter.Close()
}
