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
	"sync"

	"github.com/carverauto/presenceradar/pkg/models"
)

// Buffer is a fixed-size ring of signal points.
type Buffer struct {
	mu     sync.RWMutex
	points []models.SignalPoint
	pos    int
	full   bool
}

var _ HistoryStore = (*Buffer)(nil)

// NewBuffer returns a ring holding at most size points. size below one is
// treated as one.
func NewBuffer(size int) *Buffer {
	if size < 1 {
		size = 1
	}

	return &Buffer{points: make([]models.SignalPoint, size)}
}

// Add stores point, overwriting the oldest once the ring is full.
func (b *Buffer) Add(point models.SignalPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if point.RSSI != nil {
		rssi := *point.RSSI
		point.RSSI = &rssi
	}

	b.points[b.pos] = point
	b.pos = (b.pos + 1) % len(b.points)

	if b.pos == 0 {
		b.full = true
	}
}

// Points returns the stored points, oldest first.
func (b *Buffer) Points() []models.SignalPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.full {
		return append([]models.SignalPoint(nil), b.points[:b.pos]...)
	}

	out := make([]models.SignalPoint, 0, len(b.points))
	out = append(out, b.points[b.pos:]...)

	return append(out, b.points[:b.pos]...)
}

// LastPoint returns the newest point, or nil when empty.
func (b *Buffer) LastPoint() *models.SignalPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.full && b.pos == 0 {
		return nil
	}

	idx := (b.pos - 1 + len(b.points)) % len(b.points)
	p := b.points[idx]

	return &p
}
