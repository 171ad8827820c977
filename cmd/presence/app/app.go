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

// Package app boots the presence service from a configuration file.
package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/carverauto/presenceradar/pkg/config"
	"github.com/carverauto/presenceradar/pkg/core"
	"github.com/carverauto/presenceradar/pkg/lifecycle"
	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/version"
)

const serviceName = "presenceradar"

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath   string
	DisableWatch bool
}

// Run boots the presence service and blocks until a signal arrives or the
// HTTP listener fails.
func Run(ctx context.Context, opts Options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	bootLogger, err := lifecycle.CreateComponentLogger(ctx, "presence-bootstrap", logger.DefaultConfig())
	if err != nil {
		return err
	}

	kvMgr, err := config.NewKVManagerFromEnv(ctx, bootLogger)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := kvMgr.Close(); closeErr != nil {
			bootLogger.Warn().Err(closeErr).Msg("Error closing KV connection")
		}
	}()

	var cfg core.Config

	cfgLoader := config.NewConfig(bootLogger)
	kvMgr.SetupConfigLoader(cfgLoader)

	if err := cfgLoader.LoadAndValidate(ctx, opts.ConfigPath, &cfg); err != nil {
		return err
	}

	configKey := config.KeyFor(opts.ConfigPath)

	if err := kvMgr.BootstrapConfig(ctx, configKey, &cfg); err != nil {
		bootLogger.Warn().Err(err).Str("key", configKey).Msg("Failed to seed KV config")
	}

	mainLogger, err := lifecycle.CreateComponentLogger(ctx, "presence-main", cfg.Logging)
	if err != nil {
		return err
	}

	defer func() {
		if shutdownErr := lifecycle.ShutdownLogger(); shutdownErr != nil {
			mainLogger.Error().Err(shutdownErr).Msg("Error shutting down logger")
		}
	}()

	tp, err := logger.InitializeTracing(ctx, logger.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		Logger:         mainLogger,
		OTel:           &cfg.Logging.OTel,
	})
	if err != nil {
		return err
	}

	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			mainLogger.Error().Err(err).Msg("Error shutting down tracer provider")
		}
	}()

	if _, metricsErr := logger.InitializeMetrics(ctx, logger.MetricsConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		OTel:           &cfg.Logging.OTel,
	}); metricsErr != nil && !errors.Is(metricsErr, logger.ErrOTelMetricsDisabled) {
		return metricsErr
	}

	ctx, stop := lifecycle.SignalContext(ctx)
	defer stop()

	serverOpts := []core.Option{}
	if store := kvMgr.Store(); store != nil {
		serverOpts = append(serverOpts, core.WithKVStore(store))
	}

	if !opts.DisableWatch {
		serverOpts = append(serverOpts, core.WithConfigKey(configKey))
	}

	server, err := core.NewServer(ctx, &cfg, mainLogger, serverOpts...)
	if err != nil {
		return err
	}

	if err := server.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)

	go func() {
		mainLogger.Info().
			Str("listen_addr", cfg.ListenAddr).
			Str("version", version.GetFullVersion()).
			Msg("Starting HTTP API server")

		if err := server.APIServer().Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	select {
	case <-ctx.Done():
		mainLogger.Info().Msg("Shutdown signal received")
	case runErr = <-errCh:
		mainLogger.Error().Err(runErr).Msg("HTTP API server error")
	}

	if err := server.Stop(context.Background()); err != nil {
		mainLogger.Error().Err(err).Msg("Error during shutdown")
	}

	return runErr
}
