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
	"net"
	"strings"
	"time"
)

// Zone is a discrete proximity classification derived from an estimated distance.
// Zones are ordered by distance; see ZoneIndex.
type Zone string

const (
	ZoneOnSite  Zone = "on_site"
	ZoneNear    Zone = "near"
	ZoneLeaving Zone = "leaving"
	ZoneAway    Zone = "away"
)

// Zones lists every zone from nearest to farthest.
var Zones = []Zone{ZoneOnSite, ZoneNear, ZoneLeaving, ZoneAway}

// ZoneIndex returns the distance rank of z (0 is nearest) or -1 for an unknown zone.
func ZoneIndex(z Zone) int {
	for i, candidate := range Zones {
		if candidate == z {
			return i
		}
	}

	return -1
}

// Valid reports whether z is one of the known zones.
func (z Zone) Valid() bool {
	return ZoneIndex(z) >= 0
}

// Category tags a registered device.
type Category string

const (
	CategoryEmployee  Category = "employee"
	CategoryVisitor   Category = "visitor"
	CategoryEquipment Category = "equipment"
	CategoryOther     Category = "other"
)

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryEmployee, CategoryVisitor, CategoryEquipment, CategoryOther:
		return true
	default:
		return false
	}
}

// AttendanceStatus is the debounced presence state of a device.
type AttendanceStatus string

const (
	StatusAbsent  AttendanceStatus = "absent"
	StatusPresent AttendanceStatus = "present"
)

// DeviceRecord is the tracked state of one link-layer address.
// Records are values: the tracker hands out copies and never shares its own.
type DeviceRecord struct {
	Address   string   `json:"address"`
	IP        string   `json:"ip,omitempty"`
	Label     string   `json:"label,omitempty"`
	Category  Category `json:"category"`
	Monitored bool     `json:"monitored"`

	RSSI        *int    `json:"rssi,omitempty"`
	Distance    float64 `json:"distance"`
	HasDistance bool    `json:"has_distance"`
	Zone        Zone    `json:"zone"`

	Status           AttendanceStatus `json:"status"`
	FirstSeen        time.Time        `json:"first_seen"`
	LastSeen         time.Time        `json:"last_seen"`
	LastStatusChange time.Time        `json:"last_status_change"`

	// MissCount is the number of consecutive cycles without an observation.
	MissCount int `json:"miss_count"`
	// DepartureStreak counts consecutive cycles that were either missed or observed at ZoneAway.
	DepartureStreak int `json:"departure_streak"`
	// LeavingAlerted is set once a leaving alert fired in the current presence session.
	LeavingAlerted bool `json:"leaving_alerted"`
}

// Clone returns a deep copy of the record.
func (r *DeviceRecord) Clone() DeviceRecord {
	out := *r
	if r.RSSI != nil {
		rssi := *r.RSSI
		out.RSSI = &rssi
	}

	return out
}

// DisplayName returns the label or, failing that, the address.
func (r *DeviceRecord) DisplayName() string {
	if r.Label != "" {
		return r.Label
	}

	if r.IP != "" {
		return r.IP
	}

	return r.Address
}

// NewDeviceRecord returns an absent, unranged, unmonitored employee record
// for address.
func NewDeviceRecord(address string) DeviceRecord {
	return DeviceRecord{
		Address:  address,
		Category: CategoryEmployee,
		Zone:     ZoneAway,
		Status:   StatusAbsent,
	}
}

// DeviceRegistration carries registry input from the control interface.
// Zero-valued fields leave the existing value untouched on update.
type DeviceRegistration struct {
	Address   string   `json:"address"`
	Label     string   `json:"label,omitempty"`
	Category  Category `json:"category,omitempty"`
	Monitored *bool    `json:"monitored,omitempty"`
}

// Validate checks the registration and normalizes its address in place.
func (r *DeviceRegistration) Validate() error {
	addr, err := NormalizeAddress(r.Address)
	if err != nil {
		return err
	}

	r.Address = addr

	if r.Category != "" && !r.Category.Valid() {
		return &ValidationError{Field: "category", Reason: "must be one of employee, visitor, equipment, other"}
	}

	if len(r.Label) > maxLabelLength {
		return &ValidationError{Field: "label", Reason: "too long"}
	}

	return nil
}

const maxLabelLength = 128

// NormalizeAddress canonicalizes a link-layer address to lower-case, colon separated form.
func NormalizeAddress(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", &ValidationError{Field: "address", Reason: "required"}
	}

	hw, err := net.ParseMAC(trimmed)
	if err != nil {
		return "", &ValidationError{Field: "address", Reason: "not a link-layer address: " + trimmed}
	}

	return hw.String(), nil
}
