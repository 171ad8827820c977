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
	"context"

	"github.com/carverauto/presenceradar/pkg/eventlog"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

// Engine is the tracker surface the HTTP API drives. *tracker.Engine satisfies it.
type Engine interface {
	Devices() []models.DeviceRecord
	Device(address string) (models.DeviceRecord, error)
	RegisterDevice(reg models.DeviceRegistration) (models.DeviceRecord, error)
	UpdateDevice(reg models.DeviceRegistration) (models.DeviceRecord, error)
	RemoveDevice(address string) error
	Labels() map[string]string
	Events() *eventlog.Log

	Calibration() models.CalibrationProfile
	PendingCalibration() (models.CalibrationProfile, bool)
	UpdateCalibration(profile models.CalibrationProfile) error

	Start(ctx context.Context) error
	Stop()
	ForceScan() error
	Status() tracker.Status
	Diagnostics() []tracker.Diagnostic
}

// PlatformProvider reports facts about the host the tracker runs on.
type PlatformProvider interface {
	Platform(ctx context.Context) (*PlatformInfo, error)
}

// HistoryProvider returns the recorded signal points of a device, oldest first.
type HistoryProvider interface {
	History(address string) []models.SignalPoint
}

var _ Engine = (*tracker.Engine)(nil)
