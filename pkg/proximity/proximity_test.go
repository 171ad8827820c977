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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/presenceradar/pkg/models"
)

func TestEstimateDistance(t *testing.T) {
	profile := models.DefaultCalibration()

	tests := []struct {
		name   string
		rssi   *int
		want   float64
		wantOK bool
	}{
		{name: "reference power is one metre", rssi: models.RSSIPtr(-40), want: 1, wantOK: true},
		{name: "twenty dB below reference", rssi: models.RSSIPtr(-60), want: 10, wantOK: true},
		{name: "stronger than reference", rssi: models.RSSIPtr(-30), want: 0.316, wantOK: true},
		{name: "clamped to max distance", rssi: models.RSSIPtr(-120), want: models.DefaultMaxDistance, wantOK: true},
		{name: "nil reading", rssi: nil, wantOK: false},
		{name: "zero reading", rssi: models.RSSIPtr(0), wantOK: false},
		{name: "positive reading", rssi: models.RSSIPtr(12), wantOK: false},
		{name: "below floor", rssi: models.RSSIPtr(-200), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := EstimateDistance(tt.rssi, &profile)
			assert.Equal(t, tt.wantOK, ok)

			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 0.01)
			} else {
				assert.Zero(t, got)
			}
		})
	}
}

func TestEstimateDistanceMonotonic(t *testing.T) {
	profiles := []models.CalibrationProfile{
		models.DefaultCalibration(),
		{ReferenceRSSI: -55, PathLossExponent: 3.5, ZoneThresholds: []float64{2, 5, 9}, SmoothingAlpha: 1, MissThreshold: 1, MaxDistance: 40},
		{ReferenceRSSI: -30, PathLossExponent: 1.6, ZoneThresholds: []float64{5, 10, 20}, SmoothingAlpha: 0.2, MissThreshold: 5, MaxDistance: 500},
	}

	for _, p := range profiles {
		require.NoError(t, p.Validate())

		prev := -1.0

		// walk from strongest to weakest; distance must never shrink
		for rssi := -1; rssi >= models.MinRSSI; rssi-- {
			d, ok := EstimateDistance(models.RSSIPtr(rssi), &p)
			require.True(t, ok, "rssi %d", rssi)
			assert.GreaterOrEqual(t, d, prev, "rssi %d", rssi)
			assert.GreaterOrEqual(t, d, 0.0)
			assert.LessOrEqual(t, d, p.MaxDistance)

			prev = d
		}
	}
}

func TestEstimateFromObservation(t *testing.T) {
	profile := models.DefaultCalibration()

	d, ok := EstimateFromObservation(&models.Observation{RSSI: models.RSSIPtr(-60)}, &profile)
	require.True(t, ok)
	assert.InDelta(t, 10, d, 0.001)

	_, ok = EstimateFromObservation(&models.Observation{}, &profile)
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	profile := models.DefaultCalibration()

	tests := []struct {
		meters float64
		want   models.Zone
	}{
		{0, models.ZoneOnSite},
		{9.99, models.ZoneOnSite},
		{10, models.ZoneOnSite},
		{10.01, models.ZoneNear},
		{30, models.ZoneNear},
		{42, models.ZoneLeaving},
		{50, models.ZoneLeaving},
		{50.5, models.ZoneAway},
		{100, models.ZoneAway},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.meters, &profile), "distance %v", tt.meters)
	}
}

func TestClassifyOrderPreserving(t *testing.T) {
	profile := models.DefaultCalibration()

	for d1 := 0.0; d1 <= 100; d1 += 2.5 {
		for d2 := d1; d2 <= 100; d2 += 2.5 {
			z1 := Classify(d1, &profile)
			z2 := Classify(d2, &profile)
			assert.LessOrEqual(t, models.ZoneIndex(z1), models.ZoneIndex(z2), "d1=%v d2=%v", d1, d2)
		}
	}
}

func TestResolveKeepsZoneWhenUnknown(t *testing.T) {
	profile := models.DefaultCalibration()

	assert.Equal(t, models.ZoneLeaving, Resolve(models.ZoneLeaving, 0, false, &profile))
	assert.Equal(t, models.ZoneOnSite, Resolve(models.ZoneLeaving, 3, true, &profile))
}

func TestCloser(t *testing.T) {
	assert.True(t, Closer(models.ZoneOnSite, models.ZoneNear))
	assert.False(t, Closer(models.ZoneAway, models.ZoneLeaving))
	assert.False(t, Closer(models.ZoneNear, models.ZoneNear))
}
