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

package models

import "time"

const (
	DefaultHistoryRetention  = 100
	DefaultHistoryMaxDevices = 10000
	DefaultHistoryStaleAfter = 7 * 24 * time.Hour
)

// SignalPoint is one recorded position estimate of a device, taken when its
// zone or status moved.
type SignalPoint struct {
	Timestamp   time.Time        `json:"timestamp"`
	RSSI        *int             `json:"rssi,omitempty"`
	Distance    float64          `json:"distance"`
	HasDistance bool             `json:"has_distance"`
	Zone        Zone             `json:"zone"`
	Status      AttendanceStatus `json:"status"`
}

// HistoryConfig bounds the in-memory signal history.
type HistoryConfig struct {
	Enabled bool `json:"enabled"`
	// Retention is the number of points kept per device.
	Retention  int      `json:"retention,omitempty"`
	MaxDevices int      `json:"max_devices,omitempty"`
	StaleAfter Duration `json:"stale_after,omitempty"`
}

// Validate fills defaults and rejects negative bounds.
func (c *HistoryConfig) Validate() error {
	if c.Retention < 0 {
		return &ValidationError{Field: "history.retention", Reason: "must not be negative"}
	}

	if c.MaxDevices < 0 {
		return &ValidationError{Field: "history.max_devices", Reason: "must not be negative"}
	}

	if c.StaleAfter < 0 {
		return &ValidationError{Field: "history.stale_after", Reason: "must not be negative"}
	}

	if c.Retention == 0 {
		c.Retention = DefaultHistoryRetention
	}

	if c.MaxDevices == 0 {
		c.MaxDevices = DefaultHistoryMaxDevices
	}

	if c.StaleAfter == 0 {
		c.StaleAfter = Duration(DefaultHistoryStaleAfter)
	}

	return nil
}
