package errors

import (
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Kind classifies a pipeline failure. Every kind has a fixed recovery policy;
// none of them stops the collector.
type Kind string

const (
	KindConfigLoad          Kind = "config_load"
	KindSourceRead          Kind = "source_read"
	KindParse               Kind = "parse"
	KindMetricSample        Kind = "metric_sample"
	KindBaselineUnavailable Kind = "baseline_unavailable"
	KindExportWrite         Kind = "export_write"
	KindRemoteUnreachable   Kind = "remote_unreachable"
)

// AppError is an error tagged with a Kind and the component that raised it
type AppError struct {
	Kind      Kind
	Component string
	Message   string
	wrapped   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.wrapped
}

// New creates a new error of the given kind
func New(kind Kind, component, message string) *AppError {
	return &AppError{Kind: kind, Component: component, Message: message}
}

// Wrap wraps err with a kind. A nil err returns nil.
func Wrap(err error, kind Kind, component, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Kind: kind, Component: component, Message: message, wrapped: err}
}

// KindOf returns the kind of the first AppError in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Handler logs errors by kind and keeps per-kind counters for status output
type Handler struct {
	logger *zap.Logger
	counts sync.Map // Kind -> *atomic.Uint64
}

// NewHandler creates a new error handler
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{logger: logger}
}

// Handle logs err and records it. It never returns the error to the caller:
// every kind the pipeline raises is recoverable by skipping the current cycle.
func (h *Handler) Handle(err error, fields ...zap.Field) {
	if err == nil {
		return
	}

	kind := KindOf(err)
	if kind == "" {
		kind = "unclassified"
	}
	h.counter(kind).Add(1)

	fields = append(fields, zap.String("kind", string(kind)), zap.Error(err))
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr.Component != "" {
		fields = append(fields, zap.String("component", appErr.Component))
	}

	switch kind {
	case KindParse, KindBaselineUnavailable:
		h.logger.Debug("Recoverable condition", fields...)
	case KindRemoteUnreachable, KindSourceRead:
		h.logger.Warn("Operation skipped for this cycle", fields...)
	default:
		h.logger.Error("Operation failed", fields...)
	}
}

// Counts returns the number of handled errors per kind
func (h *Handler) Counts() map[string]uint64 {
	out := make(map[string]uint64)
	h.counts.Range(func(key, value interface{}) bool {
		out[string(key.(Kind))] = value.(*atomic.Uint64).Load()
		return true
	})
	return out
}

func (h *Handler) counter(kind Kind) *atomic.Uint64 {
	v, _ := h.counts.LoadOrStore(kind, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}
