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

// EngineState is the persisted form of the tracker: the device table and the active calibration.
type EngineState struct {
	Devices     []DeviceRecord     `json:"devices"`
	Calibration CalibrationProfile `json:"calibration"`
	SavedAt     time.Time          `json:"saved_at"`
}

// Validate checks the calibration and that every record is well formed and unique.
func (s *EngineState) Validate() error {
	if err := s.Calibration.Validate(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(s.Devices))

	for i := range s.Devices {
		rec := &s.Devices[i]

		addr, err := NormalizeAddress(rec.Address)
		if err != nil {
			return err
		}

		if _, dup := seen[addr]; dup {
			return &ValidationError{Field: "devices", Reason: "duplicate address " + addr}
		}

		seen[addr] = struct{}{}
		rec.Address = addr

		if !rec.Zone.Valid() {
			return &ValidationError{Field: "zone", Reason: "unknown zone for " + addr}
		}

		if rec.Status != StatusPresent && rec.Status != StatusAbsent {
			return &ValidationError{Field: "status", Reason: "unknown status for " + addr}
		}

		if !rec.Category.Valid() {
			rec.Category = CategoryOther
		}
	}

	return nil
}
