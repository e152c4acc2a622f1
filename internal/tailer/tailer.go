// Package tailer reads newly appended bytes from log files across rotations.
package tailer

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/shizukutanaka/seccollector/internal/errors"
)

// DefaultMaxRead bounds a single ReadNew call. Whatever is left is returned on the next call.
const DefaultMaxRead = 8 << 20

// Identity identifies a file independent of its path
type Identity struct {
	Dev   uint64 `json:"dev"`
	Inode uint64 `json:"inode"`
}

// Cursor is the read position of one source
type Cursor struct {
	Source   string   `json:"source"`
	Path     string   `json:"path"`
	Offset   int64    `json:"offset"`
	Identity Identity `json:"identity"`
}

// Tailer keeps one cursor per source. Cursors live for the process lifetime.
type Tailer struct {
	logger  *zap.Logger
	maxRead int64

	mu      sync.RWMutex
	cursors map[string]Cursor
}

// New creates a tailer. maxRead <= 0 uses DefaultMaxRead.
func New(logger *zap.Logger, maxRead int64) *Tailer {
	if maxRead <= 0 {
		maxRead = DefaultMaxRead
	}
	return &Tailer{
		logger:  logger,
		maxRead: maxRead,
		cursors: make(map[string]Cursor),
	}
}

// ReadNew returns the bytes appended to path since the last successful read for source.
// On any failure it returns a SourceRead error and leaves the cursor untouched.
func (t *Tailer) ReadNew(source, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindSourceRead, "tailer", fmt.Sprintf("open %s", path))
	}
	defer f.Close()

	id, size, err := fileIdentity(f)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindSourceRead, "tailer", fmt.Sprintf("stat %s", path))
	}

	t.mu.RLock()
	cur, known := t.cursors[source]
	t.mu.RUnlock()

	offset := cur.Offset
	switch {
	case known && cur.Identity != id:
		t.logger.Info("Log file rotated, resetting cursor",
			zap.String("source", source),
			zap.String("path", path),
			zap.Uint64("old_inode", cur.Identity.Inode),
			zap.Uint64("new_inode", id.Inode),
		)
		offset = 0
	case size < offset:
		t.logger.Info("Log file truncated, resetting cursor",
			zap.String("source", source),
			zap.Int64("offset", offset),
			zap.Int64("size", size),
		)
		offset = 0
	}

	var data []byte
	if size > offset {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindSourceRead, "tailer", fmt.Sprintf("seek %s", path))
		}
		data, err = io.ReadAll(io.LimitReader(f, t.maxRead))
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindSourceRead, "tailer", fmt.Sprintf("read %s", path))
		}
	}

	t.mu.Lock()
	t.cursors[source] = Cursor{
		Source:   source,
		Path:     path,
		Offset:   offset + int64(len(data)),
		Identity: id,
	}
	t.mu.Unlock()

	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

// Stat opens path and returns its identity and size without reading it
func Stat(path string) (Identity, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Identity{}, 0, apperrors.Wrap(err, apperrors.KindSourceRead, "tailer", fmt.Sprintf("open %s", path))
	}
	defer f.Close()

	id, size, err := fileIdentity(f)
	if err != nil {
		return Identity{}, 0, apperrors.Wrap(err, apperrors.KindSourceRead, "tailer", fmt.Sprintf("stat %s", path))
	}
	return id, size, nil
}

// Cursor returns the cursor of source, if it has been read at least once
func (t *Tailer) Cursor(source string) (Cursor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.cursors[source]
	return c, ok
}

// Cursors returns a copy of every cursor
func (t *Tailer) Cursors() []Cursor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Cursor, 0, len(t.cursors))
	for _, c := range t.cursors {
		out = append(out, c)
	}
	return out
}
