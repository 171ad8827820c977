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

//go:generate mockgen -destination=mock_tracker.go -package=tracker github.com/carverauto/presenceradar/pkg/tracker Scanner,EventSink,StateStore

// Package tracker runs the scan-to-state pipeline: it owns the device table,
// drives scan cycles and hands the resulting events to sinks.
package tracker

import (
	"context"

	"github.com/carverauto/presenceradar/pkg/models"
)

// Scanner discovers devices on the local network. The engine never has more
// than one Scan outstanding.
type Scanner interface {
	Scan(ctx context.Context) ([]models.Observation, error)
}

// EventSink receives the events of every cycle that produced any.
// Sinks run on the dispatcher goroutine, never on the scan path.
type EventSink interface {
	Name() string
	HandleEvents(ctx context.Context, batch *EventBatch) error
}

// StateStore persists the engine state across restarts.
// Load returns ErrNoSavedState when nothing has been saved yet.
type StateStore interface {
	Load(ctx context.Context) (*models.EngineState, error)
	Save(ctx context.Context, state *models.EngineState) error
}
