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

// Package eventlog keeps the append-only history of attendance events and alerts.
package eventlog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/presenceradar/pkg/models"
)

var (
	// ErrOutOfOrder is returned when an append would break timestamp ordering.
	ErrOutOfOrder  = errors.New("event timestamp precedes the last logged event")
	errMissingAddr = errors.New("event has no address")
)

// Filter restricts queries and exports. Zero values match everything.
// From is inclusive and To is exclusive.
type Filter struct {
	Address string
	From    time.Time
	To      time.Time
}

func (f *Filter) match(address string, ts time.Time) bool {
	if f.Address != "" && f.Address != address {
		return false
	}

	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}

	if !f.To.IsZero() && !ts.Before(f.To) {
		return false
	}

	return true
}

// DayFilter matches every event on the calendar day of date in loc.
func DayFilter(date time.Time, loc *time.Location) Filter {
	if loc == nil {
		loc = time.UTC
	}

	y, m, d := date.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)

	return Filter{From: start, To: start.AddDate(0, 0, 1)}
}

// Log is an in-memory, append-only event log safe for concurrent use.
type Log struct {
	mu         sync.RWMutex
	attendance []models.AttendanceEvent
	alerts     []models.AlertEvent
	maxAlerts  int
}

// Option configures a Log.
type Option func(*Log)

// WithMaxAlerts retains only the newest n alerts. Attendance history is never trimmed.
func WithMaxAlerts(n int) Option {
	return func(l *Log) {
		l.maxAlerts = n
	}
}

// New returns an empty log.
func New(opts ...Option) *Log {
	l := &Log{}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// AppendAttendance appends events atomically: either all are logged or none.
func (l *Log) AppendAttendance(events ...models.AttendanceEvent) error {
	if len(events) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var last time.Time
	if n := len(l.attendance); n > 0 {
		last = l.attendance[n-1].Timestamp
	}

	for i := range events {
		if events[i].Address == "" {
			return fmt.Errorf("attendance event %d: %w", i, errMissingAddr)
		}

		if events[i].Timestamp.Before(last) {
			return fmt.Errorf("attendance event for %s at %s: %w",
				events[i].Address, events[i].Timestamp.Format(time.RFC3339Nano), ErrOutOfOrder)
		}

		last = events[i].Timestamp
	}

	l.attendance = append(l.attendance, events...)

	return nil
}

// AppendAlert appends alerts atomically, trimming the oldest when a retention limit is set.
func (l *Log) AppendAlert(alerts ...models.AlertEvent) error {
	if len(alerts) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var last time.Time
	if n := len(l.alerts); n > 0 {
		last = l.alerts[n-1].Timestamp
	}

	for i := range alerts {
		if alerts[i].Address == "" {
			return fmt.Errorf("alert %d: %w", i, errMissingAddr)
		}

		if alerts[i].Timestamp.Before(last) {
			return fmt.Errorf("alert for %s at %s: %w",
				alerts[i].Address, alerts[i].Timestamp.Format(time.RFC3339Nano), ErrOutOfOrder)
		}

		last = alerts[i].Timestamp
	}

	l.alerts = append(l.alerts, alerts...)

	if l.maxAlerts > 0 && len(l.alerts) > l.maxAlerts {
		drop := len(l.alerts) - l.maxAlerts
		l.alerts = append([]models.AlertEvent(nil), l.alerts[drop:]...)
	}

	return nil
}

// Attendance returns a copy of the attendance events matching f, oldest first.
func (l *Log) Attendance(f Filter) []models.AttendanceEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.AttendanceEvent, 0)

	for _, ev := range l.attendance {
		if f.match(ev.Address, ev.Timestamp) {
			out = append(out, ev)
		}
	}

	return out
}

// Alerts returns a copy of the alerts matching f, oldest first.
func (l *Log) Alerts(f Filter) []models.AlertEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.AlertEvent, 0)

	for _, ev := range l.alerts {
		if f.match(ev.Address, ev.Timestamp) {
			out = append(out, ev)
		}
	}

	return out
}

// Result bundles both event streams returned by Query.
type Result struct {
	Attendance []models.AttendanceEvent `json:"attendance"`
	Alerts     []models.AlertEvent      `json:"alerts"`
}

// Query returns both streams under a single read lock so they are mutually consistent.
func (l *Log) Query(f Filter) Result {
	l.mu.RLock()
	defer l.mu.RUnlock()

	res := Result{
		Attendance: make([]models.AttendanceEvent, 0),
		Alerts:     make([]models.AlertEvent, 0),
	}

	for _, ev := range l.attendance {
		if f.match(ev.Address, ev.Timestamp) {
			res.Attendance = append(res.Attendance, ev)
		}
	}

	for _, ev := range l.alerts {
		if f.match(ev.Address, ev.Timestamp) {
			res.Alerts = append(res.Alerts, ev)
		}
	}

	return res
}

// Len returns the number of logged attendance events and alerts.
func (l *Log) Len() (attendance, alerts int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.attendance), len(l.alerts)
}
