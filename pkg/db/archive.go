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

package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

const (
	insertAttendanceSQL = `INSERT INTO presence_attendance (address, kind, zone, event_time, cycle)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (address, event_time, kind) DO NOTHING`

	insertAlertSQL = `INSERT INTO presence_alerts (address, kind, severity, message, event_time, cycle)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (address, event_time, kind) DO NOTHING`
)

var errNilPool = errors.New("cnpg archive: pool is nil")

// BatchSender is satisfied by *pgxpool.Pool.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Archive writes attendance events and alerts to CNPG. It satisfies
// tracker.EventSink. Inserts are idempotent so a retried batch is harmless.
type Archive struct {
	pool   BatchSender
	logger logger.Logger
}

// NewArchive returns an archive sink over pool.
func NewArchive(pool BatchSender, log logger.Logger) (*Archive, error) {
	if pool == nil {
		return nil, errNilPool
	}

	return &Archive{pool: pool, logger: log}, nil
}

// Name implements tracker.EventSink.
func (*Archive) Name() string { return "cnpg" }

// HandleEvents implements tracker.EventSink.
func (a *Archive) HandleEvents(ctx context.Context, batch *tracker.EventBatch) error {
	b := buildArchiveBatch(batch)
	if b.Len() == 0 {
		return nil
	}

	if err := sendBatchExecAll(ctx, b, a.pool.SendBatch, "presence archive"); err != nil {
		return err
	}

	a.logger.Debug().
		Uint64("cycle", batch.Cycle).
		Int("attendance", len(batch.Attendance)).
		Int("alerts", len(batch.Alerts)).
		Msg("Archived event batch")

	return nil
}

func buildArchiveBatch(batch *tracker.EventBatch) *pgx.Batch {
	b := &pgx.Batch{}
	cycle := int64(batch.Cycle)

	for i := range batch.Attendance {
		ev := &batch.Attendance[i]
		b.Queue(insertAttendanceSQL, ev.Address, string(ev.Kind), string(ev.Zone), ev.Timestamp.UTC(), cycle)
	}

	for i := range batch.Alerts {
		alert := &batch.Alerts[i]
		b.Queue(insertAlertSQL, alert.Address, string(alert.Kind), string(alert.Severity),
			alert.Message, alert.Timestamp.UTC(), cycle)
	}

	return b
}
