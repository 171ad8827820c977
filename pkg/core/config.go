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

// Package core wires the tracking engine to its scanner, persistence, event
// sinks and HTTP API.
package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/presenceradar/pkg/kv"
	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/scan"
	"github.com/carverauto/presenceradar/pkg/statestore"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

const (
	defaultListenAddr   = ":8090"
	defaultStatePath    = "/var/lib/presenceradar/state.json"
	defaultSaveInterval = 5 * time.Minute

	StateBackendFile = "file"
	StateBackendKV   = "kv"
	StateBackendNone = "none"
)

var (
	errUnknownStateBackend = errors.New("unknown state backend")
	errKVRequired          = errors.New("kv configuration is required for the kv state backend")
	errNATSRequired        = errors.New("nats configuration is required when events are enabled")
	errCNPGHostRequired    = errors.New("cnpg host is required")
)

// StateConfig selects where engine state is persisted.
type StateConfig struct {
	Backend      string          `json:"backend"`
	Path         string          `json:"path,omitempty"`
	Key          string          `json:"key,omitempty"`
	SaveInterval models.Duration `json:"save_interval,omitempty"`
}

// EventLogConfig bounds the in-memory event log.
type EventLogConfig struct {
	// MaxAlerts keeps only the newest alerts; zero keeps everything.
	MaxAlerts int `json:"max_alerts,omitempty"`
}

// Config is the presence service configuration document.
type Config struct {
	ListenAddr  string                      `json:"listen_addr"`
	Logging     *logger.Config              `json:"logging,omitempty"`
	Tracker     tracker.Config              `json:"tracker"`
	Calibration *models.CalibrationProfile  `json:"calibration,omitempty"`
	Scanner     scan.NeighborConfig         `json:"scanner"`
	Devices     []models.DeviceRegistration `json:"devices,omitempty"`
	State       StateConfig                 `json:"state"`
	KV          *kv.Config                  `json:"kv,omitempty"`
	NATS        *models.NATSConfig          `json:"nats,omitempty"`
	Events      *models.EventsConfig        `json:"events,omitempty"`
	CNPG        *models.CNPGDatabase        `json:"cnpg,omitempty"`
	CORS        models.CORSConfig           `json:"cors"`
	EventLog    EventLogConfig              `json:"event_log"`
	History     models.HistoryConfig        `json:"history"`
	// Timezone names the IANA zone used for day boundaries in exports.
	Timezone string `json:"timezone,omitempty"`
}

// Validate fills defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	if err := c.Tracker.Validate(); err != nil {
		return fmt.Errorf("tracker: %w", err)
	}

	if c.Calibration != nil {
		if err := c.Calibration.Validate(); err != nil {
			return fmt.Errorf("calibration: %w", err)
		}
	}

	for i := range c.Devices {
		if err := c.Devices[i].Validate(); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
	}

	if err := c.validateState(); err != nil {
		return err
	}

	if c.KV != nil {
		if err := c.KV.Validate(); err != nil {
			return fmt.Errorf("kv: %w", err)
		}
	}

	if c.Events != nil && c.Events.Enabled {
		if c.NATS == nil {
			return errNATSRequired
		}

		if err := c.NATS.Validate(); err != nil {
			return err
		}

		if err := c.Events.Validate(); err != nil {
			return err
		}
	}

	if c.CNPG != nil && c.CNPG.Host == "" {
		return errCNPGHostRequired
	}

	if c.EventLog.MaxAlerts < 0 {
		return &models.ValidationError{Field: "event_log.max_alerts", Reason: "must not be negative"}
	}

	if err := c.History.Validate(); err != nil {
		return err
	}

	if _, err := c.Location(); err != nil {
		return &models.ValidationError{Field: "timezone", Reason: err.Error()}
	}

	return nil
}

func (c *Config) validateState() error {
	switch c.State.Backend {
	case "":
		c.State.Backend = StateBackendFile
	case StateBackendFile, StateBackendKV, StateBackendNone:
	default:
		return fmt.Errorf("%w: %s", errUnknownStateBackend, c.State.Backend)
	}

	if c.State.Backend == StateBackendFile && c.State.Path == "" {
		c.State.Path = defaultStatePath
	}

	if c.State.Backend == StateBackendKV {
		if c.KV == nil {
			return errKVRequired
		}

		if c.State.Key == "" {
			c.State.Key = statestore.DefaultKey
		}
	}

	if c.State.SaveInterval == 0 {
		c.State.SaveInterval = models.Duration(defaultSaveInterval)
	}

	return nil
}

// Location resolves Timezone, defaulting to the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}

	return time.LoadLocation(c.Timezone)
}
