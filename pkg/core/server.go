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

package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/carverauto/presenceradar/pkg/api"
	"github.com/carverauto/presenceradar/pkg/config"
	"github.com/carverauto/presenceradar/pkg/db"
	"github.com/carverauto/presenceradar/pkg/eventlog"
	"github.com/carverauto/presenceradar/pkg/kv"
	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/metrics"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/natsutil"
	"github.com/carverauto/presenceradar/pkg/scan"
	"github.com/carverauto/presenceradar/pkg/statestore"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

const (
	shutdownTimeout        = 10 * time.Second
	historyCleanupInterval = time.Hour
)

var errNilConfig = errors.New("core: config is nil")

// Server owns the tracking engine and every resource feeding it or fed by it.
type Server struct {
	config    *Config
	engine    *tracker.Engine
	hub       *api.Hub
	history   *metrics.Manager
	apiServer *api.APIServer
	store     tracker.StateStore
	kvStore   kv.KVStore
	ownsKV    bool
	configKey string
	natsConn  *nats.Conn
	pool      *pgxpool.Pool
	logger    logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type serverOptions struct {
	scanner   tracker.Scanner
	store     tracker.StateStore
	kvStore   kv.KVStore
	sinks     []tracker.EventSink
	configKey string
	clock     func() time.Time
}

// Option customises NewServer.
type Option func(*serverOptions)

// WithScanner replaces the neighbor-table scanner.
func WithScanner(s tracker.Scanner) Option {
	return func(o *serverOptions) {
		o.scanner = s
	}
}

// WithStateStore replaces the configured state backend.
func WithStateStore(store tracker.StateStore) Option {
	return func(o *serverOptions) {
		o.store = store
	}
}

// WithKVStore supplies a KV store. The caller keeps ownership of it.
func WithKVStore(store kv.KVStore) Option {
	return func(o *serverOptions) {
		o.kvStore = store
	}
}

// WithSinks adds event sinks next to the built-in ones.
func WithSinks(sinks ...tracker.EventSink) Option {
	return func(o *serverOptions) {
		o.sinks = append(o.sinks, sinks...)
	}
}

// WithConfigKey names the KV key watched for live configuration updates.
func WithConfigKey(key string) Option {
	return func(o *serverOptions) {
		o.configKey = key
	}
}

// WithClock overrides the engine clock.
func WithClock(clock func() time.Time) Option {
	return func(o *serverOptions) {
		o.clock = clock
	}
}

// NewServer builds the engine and its collaborators from cfg. cfg must already
// be validated.
func NewServer(ctx context.Context, cfg *Config, log logger.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errNilConfig
	}

	o := &serverOptions{}
	for _, opt := range opts {
		opt(o)
	}

	s := &Server{
		config:    cfg,
		kvStore:   o.kvStore,
		configKey: o.configKey,
		logger:    log,
	}

	if err := s.init(ctx, o); err != nil {
		s.closeResources()

		return nil, err
	}

	return s, nil
}

func (s *Server) init(ctx context.Context, o *serverOptions) error {
	cfg := s.config

	scanner := o.scanner
	if scanner == nil {
		ns, err := scan.NewNeighborScanner(&cfg.Scanner, s.logger)
		if err != nil {
			return fmt.Errorf("scanner: %w", err)
		}

		scanner = ns
	}

	if s.kvStore == nil && cfg.KV != nil {
		store, err := kv.NewNatsStore(ctx, cfg.KV, s.logger)
		if err != nil {
			return fmt.Errorf("kv: %w", err)
		}

		s.kvStore = store
		s.ownsKV = true
	}

	store, err := s.buildStateStore(o.store)
	if err != nil {
		return err
	}

	s.store = store

	s.hub = api.NewHub(s.logger)

	sinks := []tracker.EventSink{NewLogSink(s.logger), s.hub}

	s.history = metrics.NewManager(cfg.History, s.logger)
	if s.history.Enabled() {
		sinks = append(sinks, s.history)
	}

	publisher, err := s.buildPublisher(ctx)
	if err != nil {
		return err
	}

	if publisher != nil {
		sinks = append(sinks, publisher)
	}

	archive, err := s.buildArchive(ctx)
	if err != nil {
		return err
	}

	if archive != nil {
		sinks = append(sinks, archive)
	}

	sinks = append(sinks, o.sinks...)

	engineOpts := []tracker.Option{
		tracker.WithEventLog(eventlog.New(eventlog.WithMaxAlerts(cfg.EventLog.MaxAlerts))),
		tracker.WithSinks(sinks...),
	}

	if cfg.Calibration != nil {
		engineOpts = append(engineOpts, tracker.WithCalibration(*cfg.Calibration))
	}

	if o.clock != nil {
		engineOpts = append(engineOpts, tracker.WithClock(o.clock))
	}

	engine, err := tracker.NewEngine(cfg.Tracker, scanner, s.logger, engineOpts...)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	s.engine = engine

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	apiOpts := []func(*api.APIServer){
		api.WithLogger(s.logger),
		api.WithEngine(engine),
		api.WithHub(s.hub),
		api.WithLocation(loc),
		api.WithBaseContext(context.WithoutCancel(ctx)),
	}

	if s.history.Enabled() {
		apiOpts = append(apiOpts, api.WithHistory(s.history))
	}

	s.apiServer = api.NewAPIServer(cfg.CORS, apiOpts...)

	return nil
}

func (s *Server) buildStateStore(injected tracker.StateStore) (tracker.StateStore, error) {
	if injected != nil {
		return injected, nil
	}

	switch s.config.State.Backend {
	case StateBackendNone:
		return nil, nil
	case StateBackendKV:
		if s.kvStore == nil {
			return nil, errKVRequired
		}

		return statestore.NewKVStore(s.kvStore, s.config.State.Key), nil
	default:
		store, err := statestore.NewFileStore(s.config.State.Path)
		if err != nil {
			return nil, fmt.Errorf("state store: %w", err)
		}

		return store, nil
	}
}

func (s *Server) buildPublisher(ctx context.Context) (tracker.EventSink, error) {
	cfg := s.config
	if cfg.Events == nil || !cfg.Events.Enabled {
		return nil, nil
	}

	nc, err := natsutil.ConnectWithSecurity(cfg.NATS.URL, cfg.NATS.Security, s.logger)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}

	s.natsConn = nc

	publisher, err := natsutil.CreateEventPublisher(ctx, nc, cfg.Events, cfg.NATS.Domain, s.logger)
	if err != nil {
		return nil, fmt.Errorf("event publisher: %w", err)
	}

	return publisher, nil
}

func (s *Server) buildArchive(ctx context.Context) (tracker.EventSink, error) {
	if s.config.CNPG == nil {
		return nil, nil
	}

	pool, err := db.NewCNPGPool(ctx, s.config.CNPG, s.logger)
	if err != nil {
		return nil, fmt.Errorf("cnpg: %w", err)
	}

	s.pool = pool

	if err := db.RunCNPGMigrations(ctx, pool, s.logger); err != nil {
		return nil, err
	}

	return db.NewArchive(pool, s.logger)
}

// Engine exposes the tracking engine.
func (s *Server) Engine() *tracker.Engine { return s.engine }

// History exposes the signal history manager.
func (s *Server) History() *metrics.Manager { return s.history }

// APIServer exposes the HTTP API; the caller decides where it listens.
func (s *Server) APIServer() *api.APIServer { return s.apiServer }

// Start restores persisted state, applies configured calibration and seed
// devices, then starts monitoring and background persistence.
func (s *Server) Start(ctx context.Context) error {
	if s.store != nil {
		if err := s.engine.LoadState(ctx, s.store); err != nil {
			return fmt.Errorf("load state: %w", err)
		}
	}

	// Restored state replaced the constructor calibration; configuration wins.
	if s.config.Calibration != nil {
		if err := s.engine.UpdateCalibration(*s.config.Calibration); err != nil {
			return fmt.Errorf("calibration: %w", err)
		}
	}

	if err := s.seedDevices(s.config.Devices); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)

	if err := s.engine.Start(runCtx); err != nil {
		cancel()

		return fmt.Errorf("start engine: %w", err)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if s.store != nil {
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()

			s.engine.PersistEvery(runCtx, s.store, time.Duration(s.config.State.SaveInterval))
		}()
	}

	if s.history.Enabled() {
		s.wg.Add(1)

		go func() {
			defer s.wg.Done()

			s.history.RunCleanup(runCtx, historyCleanupInterval, nil)
		}()
	}

	if s.kvStore != nil && s.configKey != "" {
		if err := config.StartKVWatch(runCtx, s.kvStore, s.configKey, s.logger, s.ApplyConfigUpdate); err != nil {
			s.logger.Warn().Err(err).Str("key", s.configKey).Msg("KV config watch unavailable")
		}
	}

	s.logger.Info().
		Int("devices", len(s.engine.Devices())).
		Str("state_backend", s.config.State.Backend).
		Msg("Presence service started")

	return nil
}

func (s *Server) seedDevices(regs []models.DeviceRegistration) error {
	for _, reg := range regs {
		if _, err := s.engine.RegisterDevice(reg); err != nil {
			return fmt.Errorf("seed device %s: %w", reg.Address, err)
		}
	}

	return nil
}

// Stop closes the API, halts monitoring, writes a final state snapshot,
// drains event sinks and releases connections.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.mu.Lock()
	runCancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	var errs []error

	if err := s.apiServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}

	s.engine.Stop()

	if runCancel != nil {
		runCancel()
	}

	s.wg.Wait()

	if s.store != nil {
		if err := s.engine.SaveState(ctx, s.store); err != nil {
			errs = append(errs, fmt.Errorf("save state: %w", err))
		}
	}

	s.engine.Close()
	s.closeResources()

	s.logger.Info().Msg("Presence service stopped")

	return errors.Join(errs...)
}

func (s *Server) closeResources() {
	if s.natsConn != nil {
		if err := s.natsConn.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to drain NATS connection")
		}

		s.natsConn = nil
	}

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}

	if s.ownsKV && s.kvStore != nil {
		if err := s.kvStore.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close KV store")
		}

		s.kvStore = nil
	}
}

// ApplyConfigUpdate applies the live-tunable parts of a configuration
// document: calibration is staged for the next cycle and listed devices are
// upserted. Everything else needs a restart.
func (s *Server) ApplyConfigUpdate(data []byte) {
	var update Config
	if err := json.Unmarshal(data, &update); err != nil {
		s.logger.Warn().Err(err).Msg("Ignoring malformed config update")

		return
	}

	if update.Calibration != nil {
		if err := s.engine.UpdateCalibration(*update.Calibration); err != nil {
			s.logger.Warn().Err(err).Msg("Rejected calibration update")
		} else {
			s.logger.Info().Msg("Calibration update staged")
		}
	}

	for _, reg := range update.Devices {
		if _, err := s.engine.RegisterDevice(reg); err != nil {
			s.logger.Warn().Err(err).Str("address", reg.Address).Msg("Rejected device update")
		}
	}
}
