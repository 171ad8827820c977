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

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/presenceradar/pkg/api"
	"github.com/carverauto/presenceradar/pkg/eventlog"
	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/metrics"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

const macA = "aa:bb:cc:00:00:01"

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		check   func(t *testing.T, cfg *CmdConfig)
		wantErr error
	}{
		{
			name:  "no args shows help",
			args:  nil,
			check: func(t *testing.T, cfg *CmdConfig) { assert.True(t, cfg.Help) },
		},
		{
			name: "devices defaults to list",
			args: []string{"devices", "-server", "gateway:8090"},
			check: func(t *testing.T, cfg *CmdConfig) {
				assert.Equal(t, "list", cfg.Action)
				assert.Equal(t, "gateway:8090", cfg.ServerURL)
			},
		},
		{
			name: "devices register",
			args: []string{"devices", "register", macA, "-label", "front desk", "-monitored", "false"},
			check: func(t *testing.T, cfg *CmdConfig) {
				assert.Equal(t, "register", cfg.Action)
				assert.Equal(t, macA, cfg.Address)
				assert.Equal(t, "front desk", cfg.Label)
				assert.Equal(t, "false", cfg.Monitored)
			},
		},
		{name: "devices show needs address", args: []string{"devices", "show"}, wantErr: errAddressRequired},
		{name: "devices bad action", args: []string{"devices", "explode", macA}, wantErr: errUnknownAction},
		{name: "bad monitored", args: []string{"devices", "update", macA, "-monitored", "maybe"}, wantErr: errInvalidMonitored},
		{
			name: "events alerts",
			args: []string{"events", "alerts", "-from", "2026-03-02"},
			check: func(t *testing.T, cfg *CmdConfig) {
				assert.Equal(t, "alerts", cfg.Action)
				assert.Equal(t, "2026-03-02", cfg.From)
			},
		},
		{name: "events bad action", args: []string{"events", "calendar"}, wantErr: errUnknownAction},
		{name: "monitor needs action", args: []string{"monitor"}, wantErr: errUnknownAction},
		{
			name:  "monitor stop",
			args:  []string{"monitor", "stop"},
			check: func(t *testing.T, cfg *CmdConfig) { assert.Equal(t, "stop", cfg.Action) },
		},
		{name: "bad output", args: []string{"status", "-output", "yaml"}, wantErr: errInvalidOutput},
		{name: "unknown subcommand", args: []string{"reboot"}, wantErr: errUnknownSubcommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseArgs(tt.args)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestNormaliseServerURL(t *testing.T) {
	assert.Equal(t, defaultServerURL, normaliseServerURL(" "))
	assert.Equal(t, "http://gateway:8090", normaliseServerURL("gateway:8090/"))
	assert.Equal(t, "https://gateway", normaliseServerURL("https://gateway"))

	assert.Equal(t, "ws://gateway:8090/api/stream", NewClient("gateway:8090", nil).StreamURL())
	assert.Equal(t, "wss://gateway/api/stream", NewClient("https://gateway", nil).StreamURL())
}

func newTestAPI(t *testing.T) (*tracker.Engine, *httptest.Server) {
	t.Helper()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	e, err := tracker.NewEngine(tracker.Config{ScanInterval: models.Duration(time.Hour)}, nil, logger.NewTestLogger(),
		tracker.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(e.Close)

	srv := api.NewAPIServer(models.CORSConfig{}, api.WithEngine(e), api.WithLocation(time.UTC))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return e, ts
}

func run(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()

	cfg, err := ParseArgs(append(args, "-server", serverURL))
	require.NoError(t, err)

	var out bytes.Buffer
	err = Run(context.Background(), cfg, &out)

	return out.String(), err
}

func TestRunDevices(t *testing.T) {
	_, ts := newTestAPI(t)

	out, err := run(t, ts.URL, "devices", "register", "AA-BB-CC-00-00-01", "-label", "front desk", "-category", "visitor")
	require.NoError(t, err)
	assert.Contains(t, out, "front desk")
	assert.Contains(t, out, macA)

	out, err = run(t, ts.URL, "devices", "-output", "json")
	require.NoError(t, err)

	var devices []models.DeviceRecord
	require.NoError(t, json.Unmarshal([]byte(out), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, models.CategoryVisitor, devices[0].Category)

	out, err = run(t, ts.URL, "devices", "update", macA, "-monitored", "false", "-output", "json")
	require.NoError(t, err)

	var rec models.DeviceRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.False(t, rec.Monitored)

	out, err = run(t, ts.URL, "devices", "remove", macA)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")

	_, err = run(t, ts.URL, "devices", "show", macA)
	require.ErrorIs(t, err, errAPIError)
	assert.Contains(t, err.Error(), "404")
}

func TestRunDeviceHistory(t *testing.T) {
	e, err := tracker.NewEngine(tracker.Config{ScanInterval: models.Duration(time.Hour)}, nil, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(e.Close)

	_, err = e.RegisterDevice(models.DeviceRegistration{Address: macA})
	require.NoError(t, err)

	history := metrics.NewManager(models.HistoryConfig{Enabled: true}, nil)
	history.Record(macA, models.SignalPoint{
		Timestamp:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Distance:    3.14,
		HasDistance: true,
		Zone:        models.ZoneOnSite,
		Status:      models.StatusPresent,
	})

	srv := api.NewAPIServer(models.CORSConfig{}, api.WithEngine(e), api.WithHistory(history))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	out, err := run(t, ts.URL, "devices", "history", macA)
	require.NoError(t, err)
	assert.Contains(t, out, "3.1 m")
	assert.Contains(t, out, "present")

	out, err = run(t, ts.URL, "devices", "history", macA, "-output", "json")
	require.NoError(t, err)

	var points []models.SignalPoint
	require.NoError(t, json.Unmarshal([]byte(out), &points))
	require.Len(t, points, 1)
	assert.Equal(t, models.ZoneOnSite, points[0].Zone)
}

func TestRunEventsAndExport(t *testing.T) {
	e, ts := newTestAPI(t)

	_, err := e.RegisterDevice(models.DeviceRegistration{Address: macA, Label: "front desk"})
	require.NoError(t, err)

	_, err = e.RunCycle(context.Background(), []models.Observation{{Address: macA, RSSI: models.RSSIPtr(-50)}})
	require.NoError(t, err)

	out, err := run(t, ts.URL, "events")
	require.NoError(t, err)
	assert.Contains(t, out, "arrival")
	assert.Contains(t, out, "front desk")

	out, err = run(t, ts.URL, "events", "alerts", "-output", "json")
	require.NoError(t, err)

	var alerts []models.AlertEvent
	require.NoError(t, json.Unmarshal([]byte(out), &alerts))
	assert.Len(t, alerts, 1)

	path := filepath.Join(t.TempDir(), "attendance.csv")

	_, err = run(t, ts.URL, "export", "-date", "2026-03-02", "-file", path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	rows, err := eventlog.ParseCSV(f)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "front desk", rows[0].Label)
}

func TestRunControl(t *testing.T) {
	_, ts := newTestAPI(t)

	_, err := run(t, ts.URL, "scan")
	require.ErrorIs(t, err, errAPIError)
	assert.Contains(t, err.Error(), "not running")

	out, err := run(t, ts.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped")

	out, err = run(t, ts.URL, "calibration", "-output", "json")
	require.NoError(t, err)

	var cal api.CalibrationResponse
	require.NoError(t, json.Unmarshal([]byte(out), &cal))
	assert.Equal(t, models.DefaultCalibration(), cal.Active)

	out, err = run(t, ts.URL, "calibration")
	require.NoError(t, err)
	assert.Contains(t, out, "path_loss_exponent")
}

func TestRenderDevices(t *testing.T) {
	assert.Contains(t, RenderDevices(nil), "No devices")

	rssi := -52
	out := RenderDevices([]models.DeviceRecord{{
		Address:     macA,
		Label:       "front desk",
		Category:    models.CategoryEmployee,
		Monitored:   true,
		RSSI:        &rssi,
		Distance:    4.31,
		HasDistance: true,
		Zone:        models.ZoneOnSite,
		Status:      models.StatusPresent,
	}})

	for _, want := range []string{macA, "front desk", "employee", "yes", "present", "on_site", "4.3 m", "-52 dBm"} {
		assert.Contains(t, out, want)
	}
}
