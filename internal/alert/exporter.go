package alert

import (
	"context"
	"encoding/binary"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"

	apperrors "github.com/shizukutanaka/seccollector/internal/errors"
	"github.com/shizukutanaka/seccollector/internal/model"
)

// DefaultLogPath is where alerts are appended when no path is configured
const DefaultLogPath = "/var/log/security-alerts.log"

// Sink forwards alerts to a remote or system destination
type Sink interface {
	Name() string
	Send(ctx context.Context, a model.Alert) error
}

// Exporter appends every alert to the local alert log and forwards it to the
// sinks. An alert id already forwarded less than the dedup window ago is not
// sent to the sinks again; the local log still records it.
type Exporter struct {
	logger  *zap.Logger
	logPath string
	now     func() time.Time

	writeMu sync.Mutex

	sinksMu sync.RWMutex
	sinks   []Sink

	seenMu sync.Mutex
	seen   *bigcache.BigCache
	window time.Duration
}

// NewExporter creates an exporter writing to logPath. dedupWindow <= 0 disables deduplication.
func NewExporter(logger *zap.Logger, logPath string, dedupWindow time.Duration, sinks ...Sink) (*Exporter, error) {
	if logPath == "" {
		logPath = DefaultLogPath
	}
	e := &Exporter{
		logger:  logger,
		logPath: logPath,
		now:     time.Now,
		sinks:   sinks,
		window:  dedupWindow,
	}

	if dedupWindow > 0 {
		cfg := bigcache.DefaultConfig(dedupWindow)
		cfg.Shards = 64
		cfg.MaxEntriesInWindow = 10000
		cfg.MaxEntrySize = 8
		cfg.CleanWindow = dedupWindow / 2
		if cfg.CleanWindow < time.Second {
			cfg.CleanWindow = time.Second
		}
		cfg.Verbose = false
		seen, err := bigcache.New(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create dedup cache: %w", err)
		}
		e.seen = seen
	}
	return e, nil
}

// SetSinks replaces the sinks and returns the previous ones, which the caller
// is expected to close.
func (e *Exporter) SetSinks(sinks ...Sink) []Sink {
	e.sinksMu.Lock()
	old := e.sinks
	e.sinks = sinks
	e.sinksMu.Unlock()
	return old
}

// Sinks returns the names of the configured sinks
func (e *Exporter) Sinks() []string {
	e.sinksMu.RLock()
	defer e.sinksMu.RUnlock()
	names := make([]string, len(e.sinks))
	for i, s := range e.sinks {
		names[i] = s.Name()
	}
	return names
}

// Export records a and forwards it. The returned error joins the log write
// failure (ExportWrite) and any sink failures (RemoteUnreachable); none of
// them prevent the others from being attempted.
func (e *Exporter) Export(ctx context.Context, a model.Alert) error {
	var errs []error
	if err := e.appendLog(a); err != nil {
		errs = append(errs, err)
	}

	if e.duplicate(a.ID) {
		e.logger.Debug("Alert already forwarded, skipping sinks", zap.String("alert_id", a.ID))
		return stderrors.Join(errs...)
	}

	e.sinksMu.RLock()
	sinks := e.sinks
	e.sinksMu.RUnlock()

	for _, s := range sinks {
		if err := s.Send(ctx, a); err != nil {
			errs = append(errs, apperrors.Wrap(err, apperrors.KindRemoteUnreachable, s.Name(), "forward alert"))
		}
	}
	return stderrors.Join(errs...)
}

// appendLog writes a as one JSON line. The file is reopened on every write so
// an external rotation of the alert log is picked up.
func (e *Exporter) appendLog(a model.Alert) error {
	line, err := json.Marshal(a)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindExportWrite, "alert_log", "encode alert")
	}
	line = append(line, '\n')

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(e.logPath), 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.KindExportWrite, "alert_log", "create alert log directory")
	}
	f, err := os.OpenFile(e.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindExportWrite, "alert_log", "open "+e.logPath)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return apperrors.Wrap(err, apperrors.KindExportWrite, "alert_log", "write "+e.logPath)
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(err, apperrors.KindExportWrite, "alert_log", "close "+e.logPath)
	}
	return nil
}

// duplicate reports whether id was forwarded less than the window ago and, if
// not, records it as forwarded now. The age is checked against the stored
// time, so an entry the cache cleaner has not evicted yet does not extend the window.
func (e *Exporter) duplicate(id string) bool {
	if e.seen == nil || id == "" {
		return false
	}

	e.seenMu.Lock()
	defer e.seenMu.Unlock()

	now := e.now()
	if v, err := e.seen.Get(id); err == nil && len(v) == 8 {
		sent := time.Unix(0, int64(binary.BigEndian.Uint64(v)))
		if now.Sub(sent) < e.window {
			return true
		}
	}

	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(now.UnixNano()))
	if err := e.seen.Set(id, v); err != nil {
		e.logger.Debug("Failed to record alert id", zap.String("alert_id", id), zap.Error(err))
	}
	return false
}

// Close releases the sinks and the dedup cache
func (e *Exporter) Close() error {
	var errs []error
	e.sinksMu.Lock()
	for _, s := range e.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	e.sinks = nil
	e.sinksMu.Unlock()

	if e.seen != nil {
		if err := e.seen.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
