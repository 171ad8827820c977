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

package tracker

import (
	"time"

	"github.com/carverauto/presenceradar/pkg/models"
)

const (
	defaultScanInterval     = 30 * time.Second
	defaultScanTimeout      = 20 * time.Second
	defaultDispatchBuffer   = 64
	defaultSinkTimeout      = 5 * time.Second
	defaultDiagnosticsLimit = 100
)

// Config holds the engine's scheduling and delivery settings.
type Config struct {
	ScanInterval models.Duration `json:"scan_interval"`
	ScanTimeout  models.Duration `json:"scan_timeout"`
	// DepartureWindow, when set without an explicit miss_threshold in the
	// calibration, derives the threshold as ceil(window / scan_interval).
	DepartureWindow    models.Duration `json:"departure_window,omitempty"`
	ZoneChangeMinDelta float64         `json:"zone_change_min_delta,omitempty"`
	DispatchBuffer     int             `json:"dispatch_buffer,omitempty"`
	SinkTimeout        models.Duration `json:"sink_timeout,omitempty"`
	DiagnosticsLimit   int             `json:"diagnostics_limit,omitempty"`
}

// Validate fills defaults and rejects impossible values.
func (c *Config) Validate() error {
	if c.ScanInterval == 0 {
		c.ScanInterval = models.Duration(defaultScanInterval)
	}

	if c.ScanInterval < 0 {
		return &models.ValidationError{Field: "scan_interval", Reason: "must be positive"}
	}

	if c.ScanTimeout <= 0 || c.ScanTimeout > c.ScanInterval {
		timeout := models.Duration(defaultScanTimeout)
		if timeout > c.ScanInterval {
			timeout = c.ScanInterval
		}

		c.ScanTimeout = timeout
	}

	if c.DepartureWindow < 0 {
		return &models.ValidationError{Field: "departure_window", Reason: "must not be negative"}
	}

	if c.ZoneChangeMinDelta < 0 {
		return &models.ValidationError{Field: "zone_change_min_delta", Reason: "must not be negative"}
	}

	if c.DispatchBuffer <= 0 {
		c.DispatchBuffer = defaultDispatchBuffer
	}

	if c.SinkTimeout <= 0 {
		c.SinkTimeout = models.Duration(defaultSinkTimeout)
	}

	if c.DiagnosticsLimit <= 0 {
		c.DiagnosticsLimit = defaultDiagnosticsLimit
	}

	return nil
}

// MissThresholdFor converts the departure window into a cycle count, or
// returns 0 when no window is configured.
func (c *Config) MissThresholdFor() int {
	if c.DepartureWindow <= 0 || c.ScanInterval <= 0 {
		return 0
	}

	window := time.Duration(c.DepartureWindow)
	interval := time.Duration(c.ScanInterval)

	n := int(window / interval)
	if window%interval != 0 {
		n++
	}

	return n
}
