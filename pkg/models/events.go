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

import (
	"fmt"
	"time"
)

// AttendanceKind is the direction of an attendance transition.
type AttendanceKind string

const (
	AttendanceArrival   AttendanceKind = "arrival"
	AttendanceDeparture AttendanceKind = "departure"
)

// AttendanceEvent records one debounced status change. Immutable once logged.
type AttendanceEvent struct {
	Address   string         `json:"address"`
	Kind      AttendanceKind `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Zone      Zone           `json:"zone"`
}

// AlertKind classifies an alert.
type AlertKind string

const (
	AlertArrival    AlertKind = "arrival"
	AlertDeparture  AlertKind = "departure"
	AlertLeaving    AlertKind = "leaving"
	AlertZoneChange AlertKind = "zone_change"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// AlertEvent is a human-facing notification derived from tracking.
type AlertEvent struct {
	Address   string    `json:"address"`
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// NATSConfig configures NATS connectivity
type NATSConfig struct {
	URL      string          `json:"url"`
	Domain   string          `json:"domain,omitempty"`
	Security *SecurityConfig `json:"security,omitempty"`
}

// Validate ensures the NATS configuration is valid
func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("nats url is required")
	}

	return nil
}

// EventsConfig configures the event publishing system
type EventsConfig struct {
	Enabled    bool   `json:"enabled"`
	StreamName string `json:"stream_name"`
	Subject    string `json:"subject"`
}

// Validate fills defaults for the events stream.
func (c *EventsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.StreamName == "" {
		c.StreamName = "presence" // Default stream name
	}

	if c.Subject == "" {
		c.Subject = "presence.events"
	}

	return nil
}

// CloudEvent represents a CloudEvents v1.0 compliant event.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}
