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

package proximity

import (
	"github.com/carverauto/presenceradar/pkg/models"
)

// Classify maps a distance to a zone using the profile's three ascending boundaries.
// A distance exactly on a boundary belongs to the nearer zone.
func Classify(meters float64, profile *models.CalibrationProfile) models.Zone {
	t := profile.ZoneThresholds
	if len(t) < 3 {
		t = models.DefaultZoneThresholds()
	}

	switch {
	case meters <= t[0]:
		return models.ZoneOnSite
	case meters <= t[1]:
		return models.ZoneNear
	case meters <= t[2]:
		return models.ZoneLeaving
	default:
		return models.ZoneAway
	}
}

// Resolve returns the zone for a possibly unknown distance. When ok is false
// the current zone is kept.
func Resolve(current models.Zone, meters float64, ok bool, profile *models.CalibrationProfile) models.Zone {
	if !ok {
		return current
	}

	return Classify(meters, profile)
}

// Closer reports whether zone a is nearer than zone b.
func Closer(a, b models.Zone) bool {
	return models.ZoneIndex(a) < models.ZoneIndex(b)
}
