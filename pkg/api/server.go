/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api exposes the tracker over HTTP and a WebSocket event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	srHttp "github.com/carverauto/presenceradar/pkg/http"
	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

var (
	errNoEngine     = errors.New("api: engine not configured")
	errShuttingDown = errors.New("api: server is shutting down")
)

// APIServer serves the control and query interface.
type APIServer struct {
	router   *mux.Router
	engine   Engine
	hub      *Hub
	platform PlatformProvider
	history  HistoryProvider
	location *time.Location
	baseCtx  context.Context
	cors     models.CORSConfig
	logger   logger.Logger

	mu      sync.Mutex
	srv     *http.Server
	closing bool
}

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) func(*APIServer) {
	return func(s *APIServer) {
		s.logger = log
	}
}

// WithEngine sets the tracker the API drives.
func WithEngine(engine Engine) func(*APIServer) {
	return func(s *APIServer) {
		s.engine = engine
	}
}

// WithHub enables the /api/stream WebSocket endpoint.
func WithHub(hub *Hub) func(*APIServer) {
	return func(s *APIServer) {
		s.hub = hub
	}
}

// WithBaseContext sets the context monitoring runs under once started over
// the API. Request contexts end with the request, so they cannot be used.
func WithBaseContext(ctx context.Context) func(*APIServer) {
	return func(s *APIServer) {
		s.baseCtx = ctx
	}
}

// WithLocation sets the time zone used to interpret export dates.
func WithLocation(loc *time.Location) func(*APIServer) {
	return func(s *APIServer) {
		s.location = loc
	}
}

// WithHistory enables the per-device history route.
func WithHistory(h HistoryProvider) func(*APIServer) {
	return func(s *APIServer) {
		s.history = h
	}
}

// WithPlatformProvider replaces the host information source.
func WithPlatformProvider(p PlatformProvider) func(*APIServer) {
	return func(s *APIServer) {
		s.platform = p
	}
}

func NewAPIServer(cors models.CORSConfig, options ...func(*APIServer)) *APIServer {
	s := &APIServer{
		router:   mux.NewRouter(),
		cors:     cors,
		location: time.Local,
		baseCtx:  context.Background(),
		platform: hostPlatform{},
	}

	for _, o := range options {
		o(s)
	}

	if s.logger == nil {
		s.logger = logger.NewTestLogger()
	}

	s.setupRoutes()

	return s
}

// Handler returns the routed handler with the common middleware applied.
func (s *APIServer) Handler() http.Handler {
	return srHttp.CommonMiddleware(s.router, s.cors, s.logger)
}

func (s *APIServer) setupRoutes() {
	r := s.router.PathPrefix("/api").Subrouter()

	r.HandleFunc("/devices", s.handleListDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices/{address}", s.handleGetDevice).Methods(http.MethodGet)
	r.HandleFunc("/devices/{address}", s.handleRegisterDevice).Methods(http.MethodPut)
	r.HandleFunc("/devices/{address}", s.handleUpdateDevice).Methods(http.MethodPatch)
	r.HandleFunc("/devices/{address}", s.handleRemoveDevice).Methods(http.MethodDelete)

	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/events/attendance", s.handleAttendance).Methods(http.MethodGet)
	r.HandleFunc("/events/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/export.csv", s.handleExportCSV).Methods(http.MethodGet)

	r.HandleFunc("/calibration", s.handleGetCalibration).Methods(http.MethodGet)
	r.HandleFunc("/calibration", s.handleUpdateCalibration).Methods(http.MethodPut)

	r.HandleFunc("/scan", s.handleForceScan).Methods(http.MethodPost)
	r.HandleFunc("/monitoring/start", s.handleStartMonitoring).Methods(http.MethodPost)
	r.HandleFunc("/monitoring/stop", s.handleStopMonitoring).Methods(http.MethodPost)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/diagnostics", s.handleDiagnostics).Methods(http.MethodGet)
	r.HandleFunc("/platform", s.handlePlatform).Methods(http.MethodGet)

	if s.history != nil {
		r.HandleFunc("/devices/{address}/history", s.handleDeviceHistory).Methods(http.MethodGet)
	}

	if s.hub != nil {
		r.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)
	}
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed on
// a clean shutdown.
func (s *APIServer) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", addr).Msg("API server listening")

	return srv.ListenAndServe()
}

// Shutdown stops the listener and closes stream clients. Monitoring can no
// longer be started through the API once it has been called.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	srv := s.srv
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Close()
	}

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Error encoding response")
	}
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(statusCode)

	errResponse := ErrorResponse{
		Message: message,
		Status:  statusCode,
	}

	if err := json.NewEncoder(w).Encode(errResponse); err != nil {
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}

// writeEngineError maps tracker errors onto HTTP status codes.
func (s *APIServer) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrUnknownDevice):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrEngineNotRunning), errors.Is(err, models.ErrEngineRunning):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error().Err(err).Msg("Engine request failed")
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// requireEngine writes a 503 and returns false when no engine is wired.
func (s *APIServer) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closing
}

func (s *APIServer) requireEngine(w http.ResponseWriter) bool {
	if s.engine == nil {
		writeError(w, errNoEngine.Error(), http.StatusServiceUnavailable)

		return false
	}

	return true
}
