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

package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func point(minute int, zone models.Zone) models.SignalPoint {
	return models.SignalPoint{
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
		Zone:      zone,
		Status:    models.StatusPresent,
	}
}

func TestBufferWrapsOldestFirst(t *testing.T) {
	b := NewBuffer(3)
	assert.Nil(t, b.LastPoint())
	assert.Empty(t, b.Points())

	for i := 0; i < 5; i++ {
		b.Add(point(i, models.ZoneNear))
	}

	points := b.Points()
	require.Len(t, points, 3)
	assert.Equal(t, base.Add(2*time.Minute), points[0].Timestamp)
	assert.Equal(t, base.Add(4*time.Minute), points[2].Timestamp)
	assert.Equal(t, base.Add(4*time.Minute), b.LastPoint().Timestamp)
}

func TestBufferCopiesRSSI(t *testing.T) {
	b := NewBuffer(2)
	rssi := -55

	p := point(0, models.ZoneOnSite)
	p.RSSI = &rssi
	b.Add(p)

	rssi = -90
	assert.Equal(t, -55, *b.Points()[0].RSSI)
}

func TestManagerDisabledRecordsNothing(t *testing.T) {
	m := NewManager(models.HistoryConfig{}, logger.NewTestLogger())

	m.Record("aa:bb:cc:00:00:01", point(0, models.ZoneNear))

	assert.False(t, m.Enabled())
	assert.Zero(t, m.ActiveDevices())
	assert.Nil(t, m.History("aa:bb:cc:00:00:01"))
}

func TestManagerEvictsLeastRecentlyUpdated(t *testing.T) {
	m := NewManager(models.HistoryConfig{Enabled: true, Retention: 4, MaxDevices: 2}, nil)

	m.Record("a", point(0, models.ZoneNear))
	m.Record("b", point(1, models.ZoneNear))
	m.Record("a", point(2, models.ZoneOnSite))
	m.Record("c", point(3, models.ZoneAway))

	assert.Equal(t, 2, m.ActiveDevices())
	assert.Len(t, m.History("a"), 2)
	assert.Nil(t, m.History("b"))
	assert.Len(t, m.History("c"), 1)

	m.Forget("a")
	assert.Nil(t, m.History("a"))
	assert.Equal(t, 1, m.ActiveDevices())
}

func TestManagerCleanupStale(t *testing.T) {
	m := NewManager(models.HistoryConfig{Enabled: true}, nil)

	m.Record("old", point(0, models.ZoneAway))
	m.Record("new", point(120, models.ZoneNear))

	removed := m.CleanupStale(time.Hour, base.Add(150*time.Minute))

	assert.Equal(t, 1, removed)
	assert.Nil(t, m.History("old"))
	assert.Len(t, m.History("new"), 1)
}

func TestManagerHandlesChangedRecords(t *testing.T) {
	m := NewManager(models.HistoryConfig{Enabled: true}, nil)

	batch := &tracker.EventBatch{
		Cycle:     7,
		Timestamp: base,
		Changed: []models.DeviceRecord{{
			Address:     "aa:bb:cc:00:00:01",
			RSSI:        models.RSSIPtr(-48),
			Distance:    1.8,
			HasDistance: true,
			Zone:        models.ZoneOnSite,
			Status:      models.StatusPresent,
		}},
	}

	require.NoError(t, m.HandleEvents(context.Background(), batch))
	assert.Equal(t, "history", m.Name())

	history := m.History("aa:bb:cc:00:00:01")
	require.Len(t, history, 1)
	assert.Equal(t, base, history[0].Timestamp)
	assert.Equal(t, models.ZoneOnSite, history[0].Zone)
	assert.InDelta(t, 1.8, history[0].Distance, 1e-9)
	assert.Equal(t, -48, *history[0].RSSI)
}

func TestRunCleanupStopsWithContext(t *testing.T) {
	m := NewManager(models.HistoryConfig{Enabled: true, StaleAfter: models.Duration(time.Minute)}, nil)
	m.Record("old", point(0, models.ZoneAway))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		m.RunCleanup(ctx, 5*time.Millisecond, func() time.Time { return base.Add(time.Hour) })
		close(done)
	}()

	assert.Eventually(t, func() bool { return m.ActiveDevices() == 0 }, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup loop did not stop")
	}
}
