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
	// MinRSSI is the weakest reading accepted as a real sample.
	MinRSSI = -127
	// MaxRSSI is the exclusive upper bound of a real sample; 0 dBm means "no reading".
	MaxRSSI = 0
)

// Observation is one sighting of a device produced by a scanner in a single cycle.
type Observation struct {
	Address   string    `json:"address"`
	IP        string    `json:"ip,omitempty"`
	RSSI      *int      `json:"rssi,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Signal returns the usable signal strength, if any.
// Missing, zero and out-of-range readings are reported as absent.
func (o *Observation) Signal() (int, bool) {
	if o.RSSI == nil {
		return 0, false
	}

	rssi := *o.RSSI
	if rssi < MinRSSI || rssi >= MaxRSSI {
		return 0, false
	}

	return rssi, true
}

// RSSIPtr is a helper for building observations.
func RSSIPtr(v int) *int {
	return &v
}
