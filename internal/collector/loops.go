package collector

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shizukutanaka/seccollector/internal/analytics"
	apperrors "github.com/shizukutanaka/seccollector/internal/errors"
	"github.com/shizukutanaka/seccollector/internal/model"
	"github.com/shizukutanaka/seccollector/internal/monitoring"
	"github.com/shizukutanaka/seccollector/internal/parser"
)

// Loop periods and the pause after an iteration that panicked
const (
	LogInterval     = 10 * time.Second
	AnomalyInterval = 300 * time.Second
	ExportInterval  = 60 * time.Second

	LogBackoff     = 30 * time.Second
	MetricsBackoff = 60 * time.Second
	AnomalyBackoff = 300 * time.Second
	ExportBackoff  = 120 * time.Second
)

type loop struct {
	name     string
	interval func() time.Duration
	backoff  time.Duration
	run      func(ctx context.Context) error
}

// Run starts every loop and blocks until ctx is cancelled and the loops have
// returned. Loops finish their current iteration before exiting.
func (c *Collector) Run(ctx context.Context) error {
	c.configs.OnChange(c.apply)
	if c.configs.Path() != "" {
		if err := c.configs.StartWatcher(); err != nil {
			c.logger.Warn("Config hot reload disabled", zap.Error(err))
		}
		defer c.configs.StopWatcher()
	}

	var server *monitoring.Server
	if addr := c.config().Monitoring.ListenAddr; addr != "" {
		server = monitoring.NewServer(c.logger.Named("status"), addr, c, c.metrics)
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	if c.agent != nil {
		if err := c.agent.Register(ctx); err != nil {
			c.errs.Handle(err, zap.String("loop", "management"))
		}
	}

	var wg sync.WaitGroup
	for _, l := range c.loops() {
		wg.Add(1)
		go func(l loop) {
			defer wg.Done()
			c.runLoop(ctx, l)
		}(l)
	}

	c.logger.Info("Collector started",
		zap.String("version", c.version),
		zap.Int("sources", len(c.config().LogPaths)),
		zap.Duration("collection_interval", c.config().Interval()),
	)

	<-ctx.Done()
	wg.Wait()

	if server != nil {
		if err := server.Stop(context.Background()); err != nil {
			c.logger.Warn("Status server shutdown failed", zap.Error(err))
		}
	}
	c.logger.Info("Collector stopped")
	return nil
}

func (c *Collector) loops() []loop {
	fixed := func(d time.Duration) func() time.Duration {
		return func() time.Duration { return d }
	}

	loops := []loop{
		{name: "logs", interval: fixed(LogInterval), backoff: LogBackoff, run: c.CollectLogsOnce},
		{name: "metrics", interval: func() time.Duration { return c.config().Interval() }, backoff: MetricsBackoff, run: c.CollectMetricsOnce},
		{name: "anomaly", interval: fixed(AnomalyInterval), backoff: AnomalyBackoff, run: c.DetectOnce},
		{name: "export", interval: fixed(ExportInterval), backoff: ExportBackoff, run: c.ExportOnce},
		{name: "threat_intel", interval: func() time.Duration { return c.config().ThreatIntel.RefreshInterval }, backoff: ExportBackoff, run: c.RefreshIndicatorsOnce},
	}
	if c.agent != nil {
		loops = append(loops,
			loop{name: "heartbeat", interval: func() time.Duration { return c.config().Management.HeartbeatInterval }, backoff: ExportBackoff, run: c.agent.SendHeartbeat},
			loop{name: "tasks", interval: func() time.Duration { return c.config().Management.CheckInterval }, backoff: ExportBackoff, run: c.pollTasks},
		)
	}
	return loops
}

// runLoop runs l until ctx is cancelled. Cancellation is checked between
// iterations; an iteration already in progress runs to completion.
func (c *Collector) runLoop(ctx context.Context, l loop) {
	for ctx.Err() == nil {
		wait := l.interval()
		if wait <= 0 {
			wait = l.backoff
		}
		if panicked := c.iterate(ctx, l); panicked {
			wait = l.backoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// iterate runs one iteration of l, handling its errors. It reports whether the
// iteration panicked.
func (c *Collector) iterate(ctx context.Context, l loop) (panicked bool) {
	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("panic: %v", r)
			c.metrics.LoopPanic(l.name)
			c.logger.Error("Loop iteration panicked",
				zap.String("loop", l.name),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
				zap.Duration("backoff", l.backoff),
			)
		}
		c.metrics.LoopIteration(l.name, time.Since(start), err)
	}()

	err = l.run(ctx)
	c.handle(err, zap.String("loop", l.name))
	return false
}

// handle passes every error joined into err to the error handler
func (c *Collector) handle(err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			c.handle(e, fields...)
		}
		return
	}
	c.errs.Handle(err, fields...)
}

// CollectLogsOnce reads the new content of every configured source, parses it
// and processes the resulting events in line order. Missing files are skipped
// quietly; other read failures are returned and the source is retried next cycle.
// A line cut by the read bound or by a writer mid-write is parsed once complete.
func (c *Collector) CollectLogsOnce(ctx context.Context) error {
	cfg := c.config()
	var errs []error

	for _, format := range sortedSources(cfg.LogPaths) {
		if ctx.Err() != nil {
			break
		}
		if !parser.Supported(format) {
			c.logger.Debug("No parser for log source", zap.String("source", format))
			continue
		}

		path := cfg.LogPaths[format]
		data, err := c.tailer.ReadNew(format, path)
		if err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				c.logger.Debug("Log source not present", zap.String("source", format), zap.String("path", path))
				continue
			}
			c.metrics.SourceError(format)
			errs = append(errs, err)
			continue
		}
		cur, _ := c.tailer.Cursor(format)
		data = c.completeLines(format, cur, data)
		if len(data) == 0 {
			continue
		}

		events := parser.Parse(format, parser.SourceName(format), data, c.host)
		for _, ev := range events {
			if err := c.processEvent(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		if len(events) > 0 {
			c.logger.Debug("Parsed log content",
				zap.String("source", format),
				zap.Int("bytes", len(data)),
				zap.Int("events", len(events)),
			)
		}
	}

	c.metrics.SetBufferSize("events", c.events.Len())
	return stderrors.Join(errs...)
}

// processEvent buffers ev and raises the security and threat alerts it calls for
func (c *Collector) processEvent(ctx context.Context, ev model.SecurityEvent) error {
	c.events.Append(ev)
	c.metrics.EventsParsed(ev.Source, string(ev.Severity), 1)
	if ev.EventType == parser.EventAuthFailure {
		c.counters.AddFailedLogins(1)
	}

	var errs []error
	if ev.Severity.Alerting() {
		errs = append(errs, c.emit(ctx, c.generator.Security(ev)))
	}
	for _, ind := range c.table.Correlate(ev) {
		c.logger.Warn("Threat indicator matched",
			zap.String("indicator", ind.Key()),
			zap.String("threat_type", ind.ThreatType),
			zap.Int("count", ind.Count),
			zap.String("event_id", ev.ID),
		)
		errs = append(errs, c.emit(ctx, c.generator.Threat(ev, ind)))
	}
	return stderrors.Join(errs...)
}

// emit counts and exports one alert
func (c *Collector) emit(ctx context.Context, a model.Alert) error {
	c.metrics.AlertGenerated(string(a.Type))
	c.counters.AddSecurityAlerts(1)

	err := c.exporter.Export(ctx, a)
	if err != nil {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				c.metrics.ExportFailed(string(apperrors.KindOf(e)))
			}
		} else {
			c.metrics.ExportFailed(string(apperrors.KindOf(err)))
		}
	}
	return err
}

// CollectMetricsOnce samples a snapshot, buffers it and raises resource
// alerts for every threshold it exceeds.
func (c *Collector) CollectMetricsOnce(ctx context.Context) error {
	snap, sampleErr := c.sampler.Collect(ctx)
	c.snapshots.Append(snap)
	c.metrics.SetBufferSize("metrics", c.snapshots.Len())

	errs := []error{sampleErr}
	for _, a := range c.generator.CheckResources(snap, c.thresholds()) {
		c.logger.Warn("Resource threshold exceeded", zap.Any("alert", a.Payload))
		errs = append(errs, c.emit(ctx, a))
	}
	if c.mgmt != nil {
		errs = append(errs, c.mgmt.PushMetrics(ctx, snap))
	}
	return stderrors.Join(errs...)
}

// DetectOnce compares the recent metrics with the baseline and raises an
// anomaly alert per deviating metric. It does nothing until the metrics
// buffer holds RecentWindow snapshots; until the baseline can be computed it
// returns BaselineUnavailable.
func (c *Collector) DetectOnce(ctx context.Context) error {
	history := c.snapshots.Snapshot()
	if len(history) < analytics.RecentWindow {
		return nil
	}

	baselines, err := c.estimator.Ensure(history)
	if err != nil {
		return err
	}

	var errs []error
	for _, an := range analytics.Detect(history, baselines) {
		c.logger.Warn("Metric anomaly detected",
			zap.String("metric", an.Metric),
			zap.Float64("current", an.CurrentValue),
			zap.Float64("z_score", an.ZScore),
			zap.String("severity", string(an.Severity)),
		)
		errs = append(errs, c.emit(ctx, c.generator.Anomaly(an.Metric, an.CurrentValue, an.ZScore, an.Baseline, an.Severity)))
	}
	return stderrors.Join(errs...)
}

// ExportOnce retries any alert sink that could not be built and writes the
// latest snapshot to the Prometheus textfile when that export is enabled.
// With no snapshot yet nothing is written.
func (c *Collector) ExportOnce(ctx context.Context) error {
	cfg := c.config()
	var errs []error
	if err := c.applySinks(cfg); err != nil {
		errs = append(errs, err)
	}

	if cfg.Export.Prometheus {
		if snap, ok := c.snapshots.Latest(); ok {
			errs = append(errs, c.textfile.Load().Write(snap))
		}
	}
	return stderrors.Join(errs...)
}

// RefreshIndicatorsOnce merges the indicators of the configured feed into the table
func (c *Collector) RefreshIndicatorsOnce(ctx context.Context) error {
	c.feedMu.Lock()
	feed := c.feed
	c.feedMu.Unlock()
	if feed == nil {
		return nil
	}

	indicators, err := feed.Indicators(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindSourceRead, "threat_feed", feed.Name())
	}
	added, updated := c.table.Merge(indicators)
	c.metrics.SetIndicators(c.table.Len())
	c.logger.Info("Threat indicators refreshed",
		zap.String("feed", feed.Name()),
		zap.Int("added", added),
		zap.Int("updated", updated),
		zap.Int("total", c.table.Len()),
	)
	return nil
}

func (c *Collector) pollTasks(ctx context.Context) error {
	n, err := c.agent.PollTasks(ctx)
	if n > 0 {
		c.logger.Info("Management tasks handled", zap.Int("tasks", n))
	}
	return err
}
