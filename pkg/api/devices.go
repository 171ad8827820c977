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
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/carverauto/presenceradar/pkg/models"
)

const maxBodyBytes = 1 << 20

func (s *APIServer) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	s.writeJSON(w, http.StatusOK, s.engine.Devices())
}

func (s *APIServer) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	rec, err := s.engine.Device(mux.Vars(r)["address"])
	if err != nil {
		s.writeEngineError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

// handleRegisterDevice adds a device or replaces its label, category and
// monitoring flag. The address always comes from the path.
func (s *APIServer) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	reg, ok := decodeRegistration(w, r)
	if !ok {
		return
	}

	rec, err := s.engine.RegisterDevice(reg)
	if err != nil {
		s.writeEngineError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

func (s *APIServer) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	reg, ok := decodeRegistration(w, r)
	if !ok {
		return
	}

	rec, err := s.engine.UpdateDevice(reg)
	if err != nil {
		s.writeEngineError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

func (s *APIServer) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	if err := s.engine.RemoveDevice(mux.Vars(r)["address"]); err != nil {
		s.writeEngineError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}

	rec, err := s.engine.Device(mux.Vars(r)["address"])
	if err != nil {
		s.writeEngineError(w, err)

		return
	}

	points := s.history.History(rec.Address)
	if points == nil {
		points = []models.SignalPoint{}
	}

	s.writeJSON(w, http.StatusOK, points)
}

// decodeRegistration reads an optional JSON body. An empty body registers
// the address with defaults.
func decodeRegistration(w http.ResponseWriter, r *http.Request) (models.DeviceRegistration, bool) {
	var reg models.DeviceRegistration

	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&reg); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)

		return reg, false
	}

	reg.Address = mux.Vars(r)["address"]

	return reg, true
}
