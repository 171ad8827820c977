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

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/carverauto/presenceradar/pkg/eventlog"
	"github.com/carverauto/presenceradar/pkg/models"
)

const dateLayout = "2006-01-02"

func (s *APIServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	f, err := s.parseFilter(r.URL.Query())
	if err != nil {
		s.writeEngineError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, s.engine.Events().Query(f))
}

func (s *APIServer) handleAttendance(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	f, err := s.parseFilter(r.URL.Query())
	if err != nil {
		s.writeEngineError(w, err)

		return
	}

	events := s.engine.Events().Attendance(f)
	if events == nil {
		events = []models.AttendanceEvent{}
	}

	s.writeJSON(w, http.StatusOK, events)
}

func (s *APIServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	f, err := s.parseFilter(r.URL.Query())
	if err != nil {
		s.writeEngineError(w, err)

		return
	}

	alerts := s.engine.Events().Alerts(f)
	if alerts == nil {
		alerts = []models.AlertEvent{}
	}

	s.writeJSON(w, http.StatusOK, alerts)
}

// handleExportCSV streams one day of attendance as CSV. Without a date the
// current day in the server's location is exported.
func (s *APIServer) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	q := r.URL.Query()

	day := time.Now().In(s.location)

	if raw := q.Get("date"); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, s.location)
		if err != nil {
			s.writeEngineError(w, &models.ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"})

			return
		}

		day = parsed
	}

	f := eventlog.DayFilter(day, s.location)

	if raw := q.Get("address"); raw != "" {
		addr, err := models.NormalizeAddress(raw)
		if err != nil {
			s.writeEngineError(w, err)

			return
		}

		f.Address = addr
	}

	var buf bytes.Buffer

	if err := s.engine.Events().ExportCSV(&buf, s.engine.Labels(), f); err != nil {
		s.writeEngineError(w, err)

		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "attendance-"+day.Format(dateLayout)+".csv"))
	w.WriteHeader(http.StatusOK)

	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write CSV export")
	}
}

// parseFilter reads address, from and to. Times accept RFC 3339 or a bare
// date, which is taken as midnight in the server's location.
func (s *APIServer) parseFilter(q url.Values) (eventlog.Filter, error) {
	var f eventlog.Filter

	if raw := q.Get("address"); raw != "" {
		addr, err := models.NormalizeAddress(raw)
		if err != nil {
			return f, err
		}

		f.Address = addr
	}

	var err error

	if f.From, err = s.parseTime("from", q.Get("from")); err != nil {
		return f, err
	}

	if f.To, err = s.parseTime("to", q.Get("to")); err != nil {
		return f, err
	}

	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, &models.ValidationError{Field: "to", Reason: "precedes from"}
	}

	return f, nil
}

func (s *APIServer) parseTime(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}

	if t, err := time.ParseInLocation(dateLayout, raw, s.location); err == nil {
		return t, nil
	}

	return time.Time{}, &models.ValidationError{Field: field, Reason: "expected RFC 3339 time or YYYY-MM-DD"}
}
