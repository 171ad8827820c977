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

// Package presence implements the per-device debounce state machine.
//
// Every function here is pure: it takes a record by value and returns the
// next record together with the events the step produced. The tracker owns
// the records and decides when to call Observe or Miss.
package presence

import (
	"fmt"
	"math"
	"time"

	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/proximity"
)

// Transition is the outcome of one step of the state machine.
type Transition struct {
	Record      models.DeviceRecord
	Attendance  *models.AttendanceEvent
	Alerts      []models.AlertEvent
	ZoneChanged bool
	PrevZone    models.Zone
}

type options struct {
	zoneChangeMinDelta float64
}

// Option tunes optional alert behaviour.
type Option func(*options)

// WithZoneChangeAlerts enables zone_change alerts when the smoothed distance
// moves by at least minDelta metres and the zone changes. Zero disables them.
func WithZoneChangeAlerts(minDelta float64) Option {
	return func(o *options) {
		o.zoneChangeMinDelta = minDelta
	}
}

// Observe folds a fresh sighting into record. Event timestamps use now (the
// cycle time) so that the event log stays ordered; LastSeen uses the
// observation's own timestamp when it has one.
func Observe(
	record models.DeviceRecord,
	obs *models.Observation,
	profile *models.CalibrationProfile,
	now time.Time,
	opts ...Option,
) Transition {
	o := applyOptions(opts)

	rec := record.Clone()
	prevZone := rec.Zone
	prevDistance, hadDistance := rec.Distance, rec.HasDistance
	prevStatus := rec.Status

	seenAt := obs.Timestamp
	if seenAt.IsZero() {
		seenAt = now
	}

	if rec.FirstSeen.IsZero() {
		rec.FirstSeen = seenAt
	}

	if seenAt.After(rec.LastSeen) {
		rec.LastSeen = seenAt
	}

	if obs.IP != "" {
		rec.IP = obs.IP
	}

	rssi, hasSignal := obs.Signal()
	if hasSignal {
		rec.RSSI = &rssi
	}

	meters, fresh := proximity.EstimateFromObservation(obs, profile)

	switch {
	case fresh && hadDistance:
		alpha := profile.SmoothingAlpha
		rec.Distance = alpha*meters + (1-alpha)*prevDistance
		rec.Zone = proximity.Classify(rec.Distance, profile)
	case fresh:
		rec.Distance = meters
		rec.HasDistance = true
		rec.Zone = proximity.Classify(rec.Distance, profile)
	case !hadDistance:
		// on the LAN, range unknown
		rec.Zone = models.ZoneNear
	case rec.MissCount >= profile.MissThreshold:
		// the zone was forced to away by misses; fall back to the last known range
		rec.Zone = proximity.Classify(rec.Distance, profile)
	default:
		rec.Zone = proximity.Resolve(rec.Zone, 0, false, profile)
	}

	rec.MissCount = 0

	if rec.Zone == models.ZoneAway {
		rec.DepartureStreak++
	} else {
		rec.DepartureStreak = 0
	}

	t := Transition{PrevZone: prevZone, ZoneChanged: rec.Zone != prevZone}

	switch {
	case rec.Status == models.StatusAbsent && (rec.Zone == models.ZoneOnSite || rec.Zone == models.ZoneNear):
		rec.Status = models.StatusPresent
		rec.LastStatusChange = now
		rec.LeavingAlerted = false
	case rec.Status == models.StatusPresent && rec.DepartureStreak >= profile.MissThreshold:
		rec.Status = models.StatusAbsent
		rec.LastStatusChange = now
	}

	if rec.Monitored {
		t.emitStatus(&rec, prevStatus, now)

		if rec.Status == models.StatusPresent && rec.Zone == models.ZoneLeaving && !rec.LeavingAlerted {
			rec.LeavingAlerted = true
			t.Alerts = append(t.Alerts, models.AlertEvent{
				Address:   rec.Address,
				Kind:      models.AlertLeaving,
				Message:   fmt.Sprintf("%s is leaving the area (%.1fm)", rec.DisplayName(), rec.Distance),
				Severity:  models.SeverityWarning,
				Timestamp: now,
			})
		}

		if o.zoneChangeMinDelta > 0 && fresh && hadDistance && t.ZoneChanged &&
			math.Abs(rec.Distance-prevDistance) >= o.zoneChangeMinDelta {
			t.Alerts = append(t.Alerts, models.AlertEvent{
				Address: rec.Address,
				Kind:    models.AlertZoneChange,
				Message: fmt.Sprintf("%s moved from %s to %s (%.1fm -> %.1fm)",
					rec.DisplayName(), prevZone, rec.Zone, prevDistance, rec.Distance),
				Severity:  models.SeverityInfo,
				Timestamp: now,
			})
		}
	}

	t.Record = rec

	return t
}

// Miss advances record through a cycle in which it was not observed.
func Miss(record models.DeviceRecord, profile *models.CalibrationProfile, now time.Time) Transition {
	rec := record.Clone()
	prevZone := rec.Zone
	prevStatus := rec.Status

	rec.MissCount++
	rec.DepartureStreak++

	if rec.MissCount >= profile.MissThreshold {
		rec.Zone = models.ZoneAway
	}

	if rec.Status == models.StatusPresent && rec.DepartureStreak >= profile.MissThreshold {
		rec.Status = models.StatusAbsent
		rec.LastStatusChange = now
	}

	t := Transition{PrevZone: prevZone, ZoneChanged: rec.Zone != prevZone}

	if rec.Monitored {
		t.emitStatus(&rec, prevStatus, now)
	}

	t.Record = rec

	return t
}

func (t *Transition) emitStatus(rec *models.DeviceRecord, prev models.AttendanceStatus, now time.Time) {
	if rec.Status == prev {
		return
	}

	if rec.Status == models.StatusPresent {
		t.Attendance = &models.AttendanceEvent{
			Address:   rec.Address,
			Kind:      models.AttendanceArrival,
			Timestamp: now,
			Zone:      rec.Zone,
		}
		t.Alerts = append(t.Alerts, models.AlertEvent{
			Address:   rec.Address,
			Kind:      models.AlertArrival,
			Message:   fmt.Sprintf("%s arrived (%s)", rec.DisplayName(), rec.Zone),
			Severity:  models.SeverityInfo,
			Timestamp: now,
		})

		return
	}

	t.Attendance = &models.AttendanceEvent{
		Address:   rec.Address,
		Kind:      models.AttendanceDeparture,
		Timestamp: now,
		Zone:      rec.Zone,
	}
	t.Alerts = append(t.Alerts, models.AlertEvent{
		Address:   rec.Address,
		Kind:      models.AlertDeparture,
		Message:   fmt.Sprintf("%s departed", rec.DisplayName()),
		Severity:  models.SeverityWarning,
		Timestamp: now,
	})
}

func applyOptions(opts []Option) options {
	var o options

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
