// Package api exposes a diskvfs FileSystem, its health and its metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	stderr "errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/diskvfs/diskvfs/internal/config"
	"github.com/diskvfs/diskvfs/internal/filesystem"
	"github.com/diskvfs/diskvfs/internal/metrics"
	"github.com/diskvfs/diskvfs/pkg/errors"
	"github.com/diskvfs/diskvfs/pkg/health"
	"github.com/diskvfs/diskvfs/pkg/utils"
)

// Version is reported by /info.
var Version = "dev"

// RequestIDHeader carries the id assigned to every request.
const RequestIDHeader = "X-Request-ID"

// Server provides the filesystem, health and metrics endpoints
type Server struct {
	httpServer    *http.Server
	handler       http.Handler
	fsys          *filesystem.FileSystem
	healthTracker *health.Tracker
	collector     *metrics.Collector
	config        ServerConfig
	logger        *utils.StructuredLogger
}

// ServerConfig configures the API server
type ServerConfig struct {
	// Address to bind the server to (e.g., "localhost:8080")
	Address string `yaml:"address" json:"address"`

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// WriteTimeout is the maximum duration for writing the response
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// EnableCORS enables Cross-Origin Resource Sharing
	EnableCORS bool `yaml:"enable_cors" json:"enable_cors"`

	// EnableMetrics serves the Prometheus registry on /metrics
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:       "localhost:8080",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  60 * time.Second,
		IdleTimeout:   120 * time.Second,
		EnableCORS:    false,
		EnableMetrics: true,
	}
}

// ServerConfigFromSettings converts the api section of the configuration file.
func ServerConfigFromSettings(settings config.APIConfig) ServerConfig {
	cfg := DefaultServerConfig()
	cfg.Address = settings.Address
	cfg.ReadTimeout = settings.ReadTimeout
	cfg.WriteTimeout = settings.WriteTimeout
	cfg.IdleTimeout = settings.IdleTimeout
	cfg.EnableMetrics = settings.EnableMetrics
	cfg.EnableCORS = settings.EnableCORS
	return cfg
}

// NewServer creates a new API server. healthTracker, collector and logger may be nil.
func NewServer(config ServerConfig, fsys *filesystem.FileSystem, healthTracker *health.Tracker, collector *metrics.Collector, logger *utils.StructuredLogger) *Server {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	s := &Server{
		fsys:          fsys,
		healthTracker: healthTracker,
		collector:     collector,
		config:        config,
		logger:        logger.WithComponent("api"),
	}

	mux := http.NewServeMux()

	// Filesystem endpoints
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/list", s.handleList)
	mux.HandleFunc("/v1/mkdirs", s.handleMkdirs)
	mux.HandleFunc("/v1/delete", s.handleDelete)
	mux.HandleFunc("/v1/rename", s.handleRename)
	mux.HandleFunc("/v1/owner", s.handleOwner)
	mux.HandleFunc("/v1/open", s.handleOpen)
	mux.HandleFunc("/v1/create", s.handleCreate)
	mux.HandleFunc("/v1/append", s.handleAppend)

	// Health endpoints
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/components", s.handleHealthComponents)
	mux.HandleFunc("/health/live", s.handleLiveness)
	mux.HandleFunc("/health/ready", s.handleReadiness)

	if config.EnableMetrics && collector != nil && collector.Enabled() {
		mux.Handle("/metrics", collector.Handler())
		mux.Handle("/debug/operations", collector.DebugHandler())
	}

	mux.HandleFunc("/info", s.handleInfo)

	handler := s.loggingMiddleware(mux)
	if config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}
	s.handler = s.requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              config.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return s
}

// Handler returns the complete handler chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until the server is shut down
func (s *Server) Start() error {
	s.logger.Info("starting API server", map[string]interface{}{"address": s.config.Address})
	return s.httpServer.ListenAndServe()
}

// StartBackground starts the server in a background goroutine
func (s *Server) StartBackground() {
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("API server error")
		}
	}()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Health endpoint handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}

	if s.healthTracker == nil {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"note":   "Health tracking not configured",
		})
		return
	}

	overallHealth := s.healthTracker.GetOverallHealth()
	response := map[string]interface{}{
		"status":     overallHealth.String(),
		"timestamp":  time.Now(),
		"components": len(s.healthTracker.GetAllComponents()),
	}

	statusCode := http.StatusOK
	switch overallHealth {
	case health.StateUnavailable:
		statusCode = http.StatusServiceUnavailable
	case health.StateDegraded, health.StateReadOnly:
		statusCode = http.StatusPartialContent
	}

	s.respondJSON(w, statusCode, response)
}

func (s *Server) handleHealthComponents(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.healthTracker == nil {
		s.respondError(w, http.StatusServiceUnavailable, errors.ErrCodeUnsupported, "Health tracking not configured")
		return
	}
	s.respondJSON(w, http.StatusOK, s.healthTracker.GetAllComponents())
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}

	if s.healthTracker == nil {
		s.respondJSON(w, http.StatusOK, map[string]interface{}{
			"ready":     true,
			"timestamp": time.Now(),
			"note":      "Health tracking not configured",
		})
		return
	}

	overallHealth := s.healthTracker.GetOverallHealth()
	ready := overallHealth != health.StateUnavailable

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	s.respondJSON(w, statusCode, map[string]interface{}{
		"ready":     ready,
		"status":    overallHealth.String(),
		"timestamp": time.Now(),
	})
}

// Info endpoint

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if !s.allowMethod(w, r, http.MethodGet) {
		return
	}

	endpoints := []string{
		"/v1/status", "/v1/list", "/v1/mkdirs", "/v1/delete", "/v1/rename",
		"/v1/owner", "/v1/open", "/v1/create", "/v1/append",
		"/health", "/health/components", "/health/live", "/health/ready", "/info",
	}
	if s.config.EnableMetrics && s.collector != nil && s.collector.Enabled() {
		endpoints = append(endpoints, "/metrics", "/debug/operations")
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service":           "diskvfs API",
		"version":           Version,
		"uri":               s.fsys.URI(),
		"root":              s.fsys.Root(),
		"working_directory": s.fsys.InitialWorkingDirectory().String(),
		"owner_encoding":    s.fsys.Principals().Codec().Name(),
		"timestamp":         time.Now(),
		"endpoints":         endpoints,
	})
}

// Middleware

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.logger.Debug("request completed", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"bytes":      rec.bytes,
			"duration":   time.Since(start).String(),
			"request_id": RequestID(r.Context()),
		})
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Helper methods

func (s *Server) allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	s.respondError(w, http.StatusMethodNotAllowed, errors.ErrCodeInvalidArgument, "Method not allowed")
	return false
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Warn("failed to encode JSON response")
	}
}

// errorBody is the payload of every error response.
type errorBody struct {
	Code    errors.ErrorCode       `json:"code"`
	Message string                 `json:"message"`
	Path    string                 `json:"path,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, code errors.ErrorCode, message string) {
	s.respondJSON(w, statusCode, map[string]interface{}{
		"error": errorBody{Code: code, Message: message},
	})
}

// respondFSError renders a filesystem error with the status its code maps to.
func (s *Server) respondFSError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Code: errors.CodeOf(err), Message: err.Error()}
	var coded *errors.Error
	if stderr.As(err, &coded) {
		body.Message = coded.Message
		body.Path = coded.Path
		if len(coded.Details) > 0 {
			body.Details = coded.Details
		}
	}
	if body.Code == "" {
		body.Code = errors.ErrCodeIO
	}

	status := errors.HTTPStatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("request failed", map[string]interface{}{
			"path":       r.URL.Path,
			"request_id": RequestID(r.Context()),
		})
	}
	s.respondJSON(w, status, map[string]interface{}{"error": body})
}
