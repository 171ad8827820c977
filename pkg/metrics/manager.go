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
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

type deviceHistory struct {
	store   HistoryStore
	element *list.Element
}

// Manager keeps one Buffer per device. When MaxDevices is reached the least
// recently updated device is evicted.
type Manager struct {
	mu        sync.Mutex
	config    models.HistoryConfig
	devices   map[string]*deviceHistory
	evictList *list.List // front is most recent
	logger    logger.Logger
}

var (
	_ HistoryCollector  = (*Manager)(nil)
	_ tracker.EventSink = (*Manager)(nil)
)

// NewManager returns a manager for cfg. cfg is expected to be validated; zero
// bounds fall back to the defaults.
func NewManager(cfg models.HistoryConfig, log logger.Logger) *Manager {
	if cfg.Retention <= 0 {
		cfg.Retention = models.DefaultHistoryRetention
	}

	if cfg.MaxDevices <= 0 {
		cfg.MaxDevices = models.DefaultHistoryMaxDevices
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Manager{
		config:    cfg,
		devices:   make(map[string]*deviceHistory),
		evictList: list.New(),
		logger:    log,
	}
}

// Enabled reports whether points are being recorded.
func (m *Manager) Enabled() bool {
	return m.config.Enabled
}

// Record appends point to the history of address.
func (m *Manager) Record(address string, point models.SignalPoint) {
	if !m.config.Enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.devices[address]
	if ok {
		m.evictList.MoveToFront(entry.element)
	} else {
		if len(m.devices) >= m.config.MaxDevices {
			m.evictOldestLocked()
		}

		entry = &deviceHistory{
			store:   NewBuffer(m.config.Retention),
			element: m.evictList.PushFront(address),
		}
		m.devices[address] = entry
	}

	entry.store.Add(point)
}

func (m *Manager) evictOldestLocked() {
	element := m.evictList.Back()
	if element == nil {
		return
	}

	address := element.Value.(string)
	m.evictList.Remove(element)
	delete(m.devices, address)

	m.logger.Debug().Str("address", address).Msg("Evicted signal history")
}

// History returns the points of address, oldest first.
func (m *Manager) History(address string) []models.SignalPoint {
	m.mu.Lock()
	entry, ok := m.devices[address]
	m.mu.Unlock()

	if !ok {
		return nil
	}

	return entry.store.Points()
}

// Forget drops the history of address.
func (m *Manager) Forget(address string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.devices[address]; ok {
		m.evictList.Remove(entry.element)
		delete(m.devices, address)
	}
}

// ActiveDevices returns the number of devices with history.
func (m *Manager) ActiveDevices() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.devices)
}

// CleanupStale drops devices whose newest point is older than staleDuration
// and returns how many were removed.
func (m *Manager) CleanupStale(staleDuration time.Duration, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	threshold := now.Add(-staleDuration)
	removed := 0

	for address, entry := range m.devices {
		last := entry.store.LastPoint()
		if last != nil && last.Timestamp.Before(threshold) {
			m.evictList.Remove(entry.element)
			delete(m.devices, address)

			removed++
		}
	}

	return removed
}

// RunCleanup calls CleanupStale on every tick until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, interval time.Duration, clock func() time.Time) {
	if interval <= 0 || m.config.StaleAfter <= 0 {
		return
	}

	if clock == nil {
		clock = time.Now
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.CleanupStale(time.Duration(m.config.StaleAfter), clock()); n > 0 {
				m.logger.Info().Int("devices", n).Msg("Dropped stale signal history")
			}
		}
	}
}

// Name implements tracker.EventSink.
func (*Manager) Name() string { return "history" }

// HandleEvents records a point for every record whose zone or status moved.
func (m *Manager) HandleEvents(_ context.Context, batch *tracker.EventBatch) error {
	for i := range batch.Changed {
		rec := &batch.Changed[i]

		m.Record(rec.Address, models.SignalPoint{
			Timestamp:   batch.Timestamp,
			RSSI:        rec.RSSI,
			Distance:    rec.Distance,
			HasDistance: rec.HasDistance,
			Zone:        rec.Zone,
			Status:      rec.Status,
		})
	}

	return nil
}
