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

package eventlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/carverauto/presenceradar/pkg/models"
)

// CSVHeader is the first row of every attendance export.
var CSVHeader = []string{"address", "label", "kind", "timestamp", "zone"}

var errBadHeader = errors.New("unexpected csv header")

// Row is one parsed line of an attendance export.
type Row struct {
	Address   string
	Label     string
	Kind      models.AttendanceKind
	Timestamp time.Time
	Zone      models.Zone
}

// ExportCSV writes the attendance events matching f. labels maps address to
// display label; missing entries leave the column empty. Timestamps are
// written in UTC as RFC 3339 with nanoseconds.
func (l *Log) ExportCSV(w io.Writer, labels map[string]string, f Filter) error {
	events := l.Attendance(f)

	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for i := range events {
		ev := &events[i]

		record := []string{
			ev.Address,
			labels[ev.Address],
			string(ev.Kind),
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
			string(ev.Zone),
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// ParseCSV reads an export produced by ExportCSV.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CSVHeader)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty input", errBadHeader)
	}

	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	for i, name := range CSVHeader {
		if header[i] != name {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", errBadHeader, i, header[i], name)
		}
	}

	var rows []Row

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, record[3])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", record[3], err)
		}

		rows = append(rows, Row{
			Address:   record[0],
			Label:     record[1],
			Kind:      models.AttendanceKind(record[2]),
			Timestamp: ts,
			Zone:      models.Zone(record[4]),
		})
	}

	return rows, nil
}
