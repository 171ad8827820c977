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
	"encoding/json"
	"io"
	"net/http"

	"github.com/carverauto/presenceradar/pkg/tracker"
)

func (s *APIServer) calibrationResponse() CalibrationResponse {
	resp := CalibrationResponse{Active: s.engine.Calibration()}

	if pending, ok := s.engine.PendingCalibration(); ok {
		resp.Pending = &pending
	}

	return resp
}

func (s *APIServer) handleGetCalibration(w http.ResponseWriter, _ *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	s.writeJSON(w, http.StatusOK, s.calibrationResponse())
}

// handleUpdateCalibration stages a profile. It takes effect at the start of
// the next cycle, hence 202.
func (s *APIServer) handleUpdateCalibration(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	profile := s.engine.Calibration()
	if pending, ok := s.engine.PendingCalibration(); ok {
		profile = pending
	}

	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&profile); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)

		return
	}

	if err := s.engine.UpdateCalibration(profile); err != nil {
		s.writeEngineError(w, err)

		return
	}

	s.logger.Info().Msg("Calibration update staged via API")

	s.writeJSON(w, http.StatusAccepted, s.calibrationResponse())
}

func (s *APIServer) handleForceScan(w http.ResponseWriter, _ *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	if err := s.engine.ForceScan(); err != nil {
		s.writeEngineError(w, err)

		return
	}

	s.writeJSON(w, http.StatusAccepted, s.engine.Status())
}

func (s *APIServer) handleStartMonitoring(w http.ResponseWriter, _ *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	if s.shuttingDown() {
		writeError(w, errShuttingDown.Error(), http.StatusServiceUnavailable)

		return
	}

	if err := s.engine.Start(s.baseCtx); err != nil {
		s.writeEngineError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *APIServer) handleStopMonitoring(w http.ResponseWriter, _ *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	s.engine.Stop()

	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *APIServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *APIServer) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	diags := s.engine.Diagnostics()
	if diags == nil {
		diags = []tracker.Diagnostic{}
	}

	s.writeJSON(w, http.StatusOK, diags)
}

func (s *APIServer) handlePlatform(w http.ResponseWriter, r *http.Request) {
	info, err := s.platform.Platform(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to collect platform info")
		writeError(w, "failed to collect platform info", http.StatusInternalServerError)

		return
	}

	s.writeJSON(w, http.StatusOK, info)
}
