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

// Package proximity converts signal strength readings into distance estimates and proximity zones.
package proximity

import (
	"math"

	"github.com/carverauto/presenceradar/pkg/models"
)

// EstimateDistance applies the log-distance path-loss model to rssi:
//
//	d = 10 ^ ((ref - rssi) / (10 * n))
//
// The result is clamped to [0, profile.MaxDistance]. A missing or degenerate
// reading reports ok == false; callers must treat that as "unknown", not as 0 m.
func EstimateDistance(rssi *int, profile *models.CalibrationProfile) (meters float64, ok bool) {
	if rssi == nil {
		return 0, false
	}

	v := *rssi
	if v < models.MinRSSI || v >= models.MaxRSSI {
		return 0, false
	}

	if profile.PathLossExponent <= 0 {
		return 0, false
	}

	exp := float64(profile.ReferenceRSSI-v) / (10 * profile.PathLossExponent)
	d := math.Pow(10, exp)

	switch {
	case math.IsNaN(d):
		return 0, false
	case d < 0:
		d = 0
	case d > profile.MaxDistance, math.IsInf(d, 1):
		d = profile.MaxDistance
	}

	return d, true
}

// EstimateFromObservation is EstimateDistance over the observation's reading.
func EstimateFromObservation(obs *models.Observation, profile *models.CalibrationProfile) (float64, bool) {
	rssi, ok := obs.Signal()
	if !ok {
		return 0, false
	}

	return EstimateDistance(&rssi, profile)
}
