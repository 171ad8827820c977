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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/presenceradar/pkg/eventlog"
	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

const (
	macA = "aa:bb:cc:00:00:01"
	macB = "aa:bb:cc:00:00:02"
)

var (
	testNow       = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	errPlatform   = errors.New("no host info")
	errScanFailed = errors.New("scan failed")
)

type staticScanner struct {
	obs []models.Observation
	err error
}

func (s *staticScanner) Scan(context.Context) ([]models.Observation, error) {
	return s.obs, s.err
}

type fakePlatform struct {
	info *PlatformInfo
	err  error
}

func (f fakePlatform) Platform(context.Context) (*PlatformInfo, error) {
	return f.info, f.err
}

func newTestEngine(t *testing.T, scanner tracker.Scanner, opts ...tracker.Option) *tracker.Engine {
	t.Helper()

	opts = append([]tracker.Option{tracker.WithClock(func() time.Time { return testNow })}, opts...)

	e, err := tracker.NewEngine(tracker.Config{ScanInterval: models.Duration(time.Hour)}, scanner, logger.NewTestLogger(), opts...)
	require.NoError(t, err)

	t.Cleanup(e.Close)

	return e
}

func newTestServer(t *testing.T, e Engine, opts ...func(*APIServer)) *APIServer {
	t.Helper()

	opts = append([]func(*APIServer){
		WithEngine(e),
		WithLogger(logger.NewTestLogger()),
		WithLocation(time.UTC),
	}, opts...)

	return NewAPIServer(models.CORSConfig{AllowedOrigins: []string{"*"}}, opts...)
}

func do(t *testing.T, s *APIServer, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())

	return out
}

func TestDeviceLifecycle(t *testing.T) {
	e := newTestEngine(t, nil)
	s := newTestServer(t, e)

	rec := do(t, s, http.MethodPut, "/api/devices/AA-BB-CC-00-00-01", `{"label":"front desk","category":"employee"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	created := decode[models.DeviceRecord](t, rec)
	assert.Equal(t, macA, created.Address)
	assert.Equal(t, "front desk", created.Label)
	assert.Equal(t, models.CategoryEmployee, created.Category)
	assert.True(t, created.Monitored)

	rec = do(t, s, http.MethodPatch, "/api/devices/"+macA, `{"label":"reception","monitored":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated := decode[models.DeviceRecord](t, rec)
	assert.Equal(t, "reception", updated.Label)
	assert.False(t, updated.Monitored)

	rec = do(t, s, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]models.DeviceRecord](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, macA, list[0].Address)

	rec = do(t, s, http.MethodDelete, "/api/devices/"+macA, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/devices/"+macA, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusNotFound, errResp.Status)
	assert.Contains(t, errResp.Message, macA)
}

func TestRegisterWithoutBodyUsesDefaults(t *testing.T) {
	s := newTestServer(t, newTestEngine(t, nil))

	rec := do(t, s, http.MethodPut, "/api/devices/"+macB, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	created := decode[models.DeviceRecord](t, rec)
	assert.Equal(t, macB, created.Address)
	assert.True(t, created.Monitored)
}

func TestDeviceErrors(t *testing.T) {
	s := newTestServer(t, newTestEngine(t, nil))

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{name: "bad address", method: http.MethodGet, target: "/api/devices/not-a-mac", want: http.StatusBadRequest},
		{name: "bad body", method: http.MethodPut, target: "/api/devices/" + macA, body: `{"label":`, want: http.StatusBadRequest},
		{name: "bad category", method: http.MethodPut, target: "/api/devices/" + macA, body: `{"category":"robot"}`, want: http.StatusBadRequest},
		{name: "update unknown", method: http.MethodPatch, target: "/api/devices/" + macB, body: `{"label":"x"}`, want: http.StatusNotFound},
		{name: "remove unknown", method: http.MethodDelete, target: "/api/devices/" + macB, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

type fakeHistory map[string][]models.SignalPoint

func (f fakeHistory) History(address string) []models.SignalPoint {
	return f[address]
}

func TestDeviceHistory(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.RegisterDevice(models.DeviceRegistration{Address: macA})
	require.NoError(t, err)
	_, err = e.RegisterDevice(models.DeviceRegistration{Address: macB})
	require.NoError(t, err)

	history := fakeHistory{macA: {{Timestamp: testNow, Zone: models.ZoneNear, Status: models.StatusPresent}}}
	s := newTestServer(t, e, WithHistory(history))

	rec := do(t, s, http.MethodGet, "/api/devices/AA:BB:CC:00:00:01/history", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	points := decode[[]models.SignalPoint](t, rec)
	require.Len(t, points, 1)
	assert.Equal(t, models.ZoneNear, points[0].Zone)

	rec = do(t, s, http.MethodGet, "/api/devices/"+macB+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/devices/aa:bb:cc:00:00:09/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	without := newTestServer(t, e)
	rec = do(t, without, http.MethodGet, "/api/devices/"+macA+"/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventQueries(t *testing.T) {
	e := newTestEngine(t, nil)
	s := newTestServer(t, e)

	_, err := e.RegisterDevice(models.DeviceRegistration{Address: macA, Label: "front desk"})
	require.NoError(t, err)

	_, err = e.RunCycle(context.Background(), []models.Observation{{Address: macA, RSSI: models.RSSIPtr(-50)}})
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/events/attendance?address="+macA, "")
	require.Equal(t, http.StatusOK, rec.Code)

	attendance := decode[[]models.AttendanceEvent](t, rec)
	require.Len(t, attendance, 1)
	assert.Equal(t, models.AttendanceArrival, attendance[0].Kind)

	rec = do(t, s, http.MethodGet, "/api/events/attendance?from=2026-03-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.AttendanceEvent](t, rec))

	rec = do(t, s, http.MethodGet, "/api/events/alerts?to=2026-03-02T10:00:00Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.AlertEvent](t, rec), 1)

	rec = do(t, s, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode[eventlog.Result](t, rec)
	assert.Len(t, result.Attendance, 1)
	assert.Len(t, result.Alerts, 1)

	rec = do(t, s, http.MethodGet, "/api/events/attendance?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/events/alerts?from=2026-03-02&to=2026-03-01", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportCSV(t *testing.T) {
	e := newTestEngine(t, nil)
	s := newTestServer(t, e)

	_, err := e.RegisterDevice(models.DeviceRegistration{Address: macA, Label: "front desk"})
	require.NoError(t, err)

	_, err = e.RunCycle(context.Background(), []models.Observation{{Address: macA, RSSI: models.RSSIPtr(-50)}})
	require.NoError(t, err)

	rec := do(t, s, http.MethodGet, "/api/export.csv?date=2026-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attendance-2026-03-02.csv")

	rows, err := eventlog.ParseCSV(rec.Body)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, macA, rows[0].Address)
	assert.Equal(t, "front desk", rows[0].Label)

	rec = do(t, s, http.MethodGet, "/api/export.csv?date=2026-03-01", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rows, err = eventlog.ParseCSV(rec.Body)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rec = do(t, s, http.MethodGet, "/api/export.csv?date=03/02/2026", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalibration(t *testing.T) {
	e := newTestEngine(t, nil)
	s := newTestServer(t, e)

	rec := do(t, s, http.MethodGet, "/api/calibration", "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[CalibrationResponse](t, rec)
	assert.Equal(t, models.DefaultCalibration(), got.Active)
	assert.Nil(t, got.Pending)

	rec = do(t, s, http.MethodPut, "/api/calibration", `{"reference_rssi":-45,"path_loss_exponent":3}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	got = decode[CalibrationResponse](t, rec)
	assert.Equal(t, models.DefaultReferenceRSSI, got.Active.ReferenceRSSI, "active profile is unchanged until the next cycle")
	require.NotNil(t, got.Pending)
	assert.Equal(t, -45, got.Pending.ReferenceRSSI)
	assert.InDelta(t, 3.0, got.Pending.PathLossExponent, 1e-9)
	assert.Equal(t, models.DefaultZoneThresholds(), got.Pending.ZoneThresholds)

	_, err := e.RunCycle(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, -45, e.Calibration().ReferenceRSSI)

	rec = do(t, s, http.MethodPut, "/api/calibration", `{"zone_thresholds":[30,10,50]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPut, "/api/calibration", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalibrationPartialUpdatesAccumulate(t *testing.T) {
	e := newTestEngine(t, nil)
	s := newTestServer(t, e)

	rec := do(t, s, http.MethodPut, "/api/calibration", `{"reference_rssi":-45}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPut, "/api/calibration", `{"path_loss_exponent":3}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	got := decode[CalibrationResponse](t, rec)
	require.NotNil(t, got.Pending)
	assert.Equal(t, -45, got.Pending.ReferenceRSSI)
	assert.InDelta(t, 3.0, got.Pending.PathLossExponent, 1e-9)

	_, err := e.RunCycle(context.Background(), nil)
	require.NoError(t, err)

	active := e.Calibration()
	assert.Equal(t, -45, active.ReferenceRSSI)
	assert.InDelta(t, 3.0, active.PathLossExponent, 1e-9)
}

func TestMonitoringControl(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	e := newTestEngine(t, &staticScanner{obs: []models.Observation{{Address: macA, RSSI: models.RSSIPtr(-55)}}})
	s := newTestServer(t, e, WithBaseContext(ctx))

	rec := do(t, s, http.MethodPost, "/api/scan", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/monitoring/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[tracker.Status](t, rec).Running)

	require.Eventually(t, func() bool {
		_, err := e.Device(macA)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "initial scan discovers the device")

	rec = do(t, s, http.MethodPost, "/api/scan", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	status := decode[tracker.Status](t, rec)
	assert.True(t, status.Running)
	assert.Equal(t, 1, status.Devices)

	rec = do(t, s, http.MethodPost, "/api/monitoring/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[tracker.Status](t, rec).Running)

	rec = do(t, s, http.MethodPost, "/api/monitoring/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartMonitoringAfterShutdown(t *testing.T) {
	e := newTestEngine(t, &staticScanner{})
	s := newTestServer(t, e)

	require.NoError(t, s.Shutdown(context.Background()))

	rec := do(t, s, http.MethodPost, "/api/monitoring/start", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, e.Running())

	rec = do(t, s, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartMonitoringWithoutScanner(t *testing.T) {
	s := newTestServer(t, newTestEngine(t, nil))

	rec := do(t, s, http.MethodPost, "/api/monitoring/start", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDiagnostics(t *testing.T) {
	e := newTestEngine(t, nil)
	s := newTestServer(t, e)

	rec := do(t, s, http.MethodGet, "/api/diagnostics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	_, err := e.RunCycle(context.Background(), []models.Observation{{Address: "garbage"}})
	require.NoError(t, err)

	rec = do(t, s, http.MethodGet, "/api/diagnostics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	diags := decode[[]tracker.Diagnostic](t, rec)
	require.Len(t, diags, 1)
	assert.Equal(t, "garbage", diags[0].Address)
}

func TestPlatform(t *testing.T) {
	info := &PlatformInfo{Hostname: "gateway", OS: "linux", CPUs: 4}

	s := newTestServer(t, nil, WithPlatformProvider(fakePlatform{info: info}))

	rec := do(t, s, http.MethodGet, "/api/platform", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, *info, decode[PlatformInfo](t, rec))

	s = newTestServer(t, nil, WithPlatformProvider(fakePlatform{err: errPlatform}))

	rec = do(t, s, http.MethodGet, "/api/platform", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNoEngine(t *testing.T) {
	s := NewAPIServer(models.CORSConfig{})

	rec := do(t, s, http.MethodGet, "/api/devices", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := NewAPIServer(models.CORSConfig{AllowedOrigins: []string{"http://dashboard.local"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/devices", http.NoBody)
	req.Header.Set("Origin", "http://dashboard.local")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://dashboard.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWriteEngineErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		err  error
		want int
	}{
		{err: &models.ValidationError{Field: "x", Reason: "bad"}, want: http.StatusBadRequest},
		{err: &models.UnknownDeviceError{Address: macA}, want: http.StatusNotFound},
		{err: models.ErrEngineNotRunning, want: http.StatusConflict},
		{err: models.ErrEngineRunning, want: http.StatusConflict},
		{err: errScanFailed, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		s.writeEngineError(rec, tt.err)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}
