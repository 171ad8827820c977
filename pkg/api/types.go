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
	"time"

	"github.com/carverauto/presenceradar/pkg/models"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// CalibrationResponse shows the active profile and any staged replacement.
type CalibrationResponse struct {
	Active  models.CalibrationProfile  `json:"active"`
	Pending *models.CalibrationProfile `json:"pending,omitempty"`
}

// PlatformInfo describes the host machine.
type PlatformInfo struct {
	Hostname        string        `json:"hostname"`
	OS              string        `json:"os"`
	Platform        string        `json:"platform"`
	PlatformVersion string        `json:"platform_version"`
	KernelVersion   string        `json:"kernel_version"`
	Arch            string        `json:"arch"`
	Uptime          time.Duration `json:"uptime"`
	CPUs            int           `json:"cpus"`
	MemoryTotal     uint64        `json:"memory_total"`
	MemoryUsed      float64       `json:"memory_used_percent"`
	GoVersion       string        `json:"go_version"`
}

// StreamMessage is one frame on the event stream.
type StreamMessage struct {
	Type      string      `json:"type"` // "hello" or "events"
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
