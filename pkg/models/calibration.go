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
	"math"
)

const (
	DefaultReferenceRSSI    = -40
	DefaultPathLossExponent = 2.0
	DefaultSmoothingAlpha   = 0.5
	DefaultMissThreshold    = 3
	DefaultMaxDistance      = 100.0

	// zoneBoundaryCount is the number of cut points separating the four zones.
	zoneBoundaryCount = 3
)

// DefaultZoneThresholds are the on-site, near and leaving upper bounds in metres.
func DefaultZoneThresholds() []float64 {
	return []float64{10, 30, 50}
}

// CalibrationProfile holds the parameters of the path-loss model and the zone boundaries.
type CalibrationProfile struct {
	ReferenceRSSI    int       `json:"reference_rssi"`
	PathLossExponent float64   `json:"path_loss_exponent"`
	ZoneThresholds   []float64 `json:"zone_thresholds"`
	SmoothingAlpha   float64   `json:"smoothing_alpha"`
	MissThreshold    int       `json:"miss_threshold"`
	MaxDistance      float64   `json:"max_distance"`
}

// DefaultCalibration returns the profile used when nothing is configured.
func DefaultCalibration() CalibrationProfile {
	return CalibrationProfile{
		ReferenceRSSI:    DefaultReferenceRSSI,
		PathLossExponent: DefaultPathLossExponent,
		ZoneThresholds:   DefaultZoneThresholds(),
		SmoothingAlpha:   DefaultSmoothingAlpha,
		MissThreshold:    DefaultMissThreshold,
		MaxDistance:      DefaultMaxDistance,
	}
}

// Clone returns a copy that shares no slices with p.
func (p *CalibrationProfile) Clone() CalibrationProfile {
	out := *p
	out.ZoneThresholds = append([]float64(nil), p.ZoneThresholds...)

	return out
}

// Validate rejects malformed profiles. Values are never clamped.
func (p *CalibrationProfile) Validate() error {
	if p.ReferenceRSSI < MinRSSI || p.ReferenceRSSI >= MaxRSSI {
		return &ValidationError{
			Field:  "reference_rssi",
			Reason: fmt.Sprintf("must be in [%d, %d)", MinRSSI, MaxRSSI),
		}
	}

	if !isFinitePositive(p.PathLossExponent) {
		return &ValidationError{Field: "path_loss_exponent", Reason: "must be a positive number"}
	}

	if len(p.ZoneThresholds) != zoneBoundaryCount {
		return &ValidationError{
			Field:  "zone_thresholds",
			Reason: fmt.Sprintf("expected %d boundaries, got %d", zoneBoundaryCount, len(p.ZoneThresholds)),
		}
	}

	prev := 0.0
	for i, t := range p.ZoneThresholds {
		if !isFinitePositive(t) || t <= prev {
			return &ValidationError{
				Field:  "zone_thresholds",
				Reason: fmt.Sprintf("boundary %d (%v) must be positive and strictly increasing", i, t),
			}
		}

		prev = t
	}

	if math.IsNaN(p.SmoothingAlpha) || p.SmoothingAlpha <= 0 || p.SmoothingAlpha > 1 {
		return &ValidationError{Field: "smoothing_alpha", Reason: "must be in (0, 1]"}
	}

	if p.MissThreshold <= 0 {
		return &ValidationError{Field: "miss_threshold", Reason: "must be a positive integer"}
	}

	if !isFinitePositive(p.MaxDistance) {
		return &ValidationError{Field: "max_distance", Reason: "must be a positive number"}
	}

	return nil
}

func isFinitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
