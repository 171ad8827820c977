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

package tracker

import (
	"errors"
	"time"

	"github.com/carverauto/presenceradar/pkg/models"
)

// ErrNoSavedState is returned by StateStore implementations with nothing to load.
var ErrNoSavedState = errors.New("no saved engine state")

// EventBatch is what one cycle hands to the sinks.
type EventBatch struct {
	Cycle      uint64                   `json:"cycle"`
	Timestamp  time.Time                `json:"timestamp"`
	Attendance []models.AttendanceEvent `json:"attendance,omitempty"`
	Alerts     []models.AlertEvent      `json:"alerts,omitempty"`
	// Changed holds the post-cycle records whose zone or status moved.
	Changed []models.DeviceRecord `json:"changed,omitempty"`
}

// Empty reports whether the batch carries nothing worth delivering.
func (b *EventBatch) Empty() bool {
	return len(b.Attendance) == 0 && len(b.Alerts) == 0 && len(b.Changed) == 0
}

// Diagnostic describes an observation the engine could not use as given.
type Diagnostic struct {
	Time    time.Time `json:"time"`
	Cycle   uint64    `json:"cycle"`
	Address string    `json:"address"`
	Reason  string    `json:"reason"`
}

// CycleResult summarizes one processed cycle.
type CycleResult struct {
	Cycle       uint64                   `json:"cycle"`
	Timestamp   time.Time                `json:"timestamp"`
	Duration    time.Duration            `json:"duration"`
	Observed    int                      `json:"observed"`
	Created     int                      `json:"created"`
	Missed      int                      `json:"missed"`
	Attendance  []models.AttendanceEvent `json:"attendance"`
	Alerts      []models.AlertEvent      `json:"alerts"`
	Diagnostics []Diagnostic             `json:"diagnostics"`
}

// Status is a point-in-time view of the engine for the control interface.
type Status struct {
	Running      bool          `json:"running"`
	Cycles       uint64        `json:"cycles"`
	LastCycle    time.Time     `json:"last_cycle,omitempty"`
	LastScanErr  string        `json:"last_scan_error,omitempty"`
	Devices      int           `json:"devices"`
	Present      int           `json:"present"`
	Monitored    int           `json:"monitored"`
	ScanInterval time.Duration `json:"scan_interval"`
	Dropped      uint64        `json:"dropped_batches"`
}
