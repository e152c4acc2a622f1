// Package monitoring serves the collector's health, status and pipeline
// metrics over HTTP.
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shizukutanaka/seccollector/internal/model"
)

// Status is the collector state reported by /api/v1/status
type Status struct {
	Version    string                    `json:"version"`
	StartedAt  time.Time                 `json:"started_at"`
	Uptime     string                    `json:"uptime"`
	Buffers    []BufferStatus            `json:"buffers"`
	Sources    []SourceStatus            `json:"sources"`
	Baseline   map[string]model.Baseline `json:"baseline,omitempty"`
	Latest     *model.MetricsSnapshot    `json:"latest_metrics,omitempty"`
	Indicators int                       `json:"threat_indicators"`
	Sinks      []string                  `json:"sinks"`
	Errors     map[string]uint64         `json:"errors"`
	// RecentEvents counts buffered events inside the event retention window
	RecentEvents int `json:"recent_events"`
}

// BufferStatus describes one bounded buffer
type BufferStatus struct {
	Name     string `json:"name"`
	Len      int    `json:"len"`
	Capacity int    `json:"capacity"`
	Evicted  uint64 `json:"evicted"`
}

// SourceStatus describes one log source and its read cursor
type SourceStatus struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Read       bool   `json:"read"`
	Offset     int64  `json:"offset"`
	OffsetText string `json:"offset_human"`
	Inode      uint64 `json:"inode"`
}

// HumanOffset renders a byte offset for people
func HumanOffset(offset int64) string {
	if offset < 0 {
		offset = 0
	}
	return humanize.IBytes(uint64(offset))
}

// StatusProvider supplies the current status
type StatusProvider interface {
	Status() Status
}

// Server is the local status server
type Server struct {
	logger   *zap.Logger
	addr     string
	provider StatusProvider
	metrics  *PipelineMetrics
	server   *http.Server
	listener net.Listener
}

// NewServer creates a status server on addr
func NewServer(logger *zap.Logger, addr string, provider StatusProvider, metrics *PipelineMetrics) *Server {
	s := &Server{
		logger:   logger,
		addr:     addr,
		provider: provider,
		metrics:  metrics,
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Router returns the HTTP routes
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})).Methods(http.MethodGet)
	r.Use(s.metricsMiddleware)
	return r
}

// Start listens and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("Status server listening", zap.String("address", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.provider.Status())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		s.metrics.httpRequests.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
	})
}
