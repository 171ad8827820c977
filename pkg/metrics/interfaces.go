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

// Package metrics keeps a bounded, in-memory signal history per device.
package metrics

import (
	"time"

	"github.com/carverauto/presenceradar/pkg/models"
)

// HistoryStore holds the points of a single device.
type HistoryStore interface {
	Add(point models.SignalPoint)
	Points() []models.SignalPoint
	LastPoint() *models.SignalPoint
}

// HistoryCollector tracks history for many devices.
type HistoryCollector interface {
	Record(address string, point models.SignalPoint)
	History(address string) []models.SignalPoint
	Forget(address string)
	CleanupStale(staleDuration time.Duration, now time.Time) int
	ActiveDevices() int
}
