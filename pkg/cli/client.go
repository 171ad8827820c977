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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/carverauto/presenceradar/pkg/api"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

// Client talks to the tracker HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the API rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL:    normaliseServerURL(baseURL),
		httpClient: httpClient,
	}
}

func normaliseServerURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultServerURL
	}

	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}

	return strings.TrimRight(trimmed, "/")
}

// StreamURL is the WebSocket endpoint for live events.
func (c *Client) StreamURL() string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + "/api/stream"
	default:
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + "/api/stream"
	}
}

func (c *Client) Devices(ctx context.Context) ([]models.DeviceRecord, error) {
	var out []models.DeviceRecord

	return out, c.do(ctx, http.MethodGet, "/api/devices", nil, &out)
}

func (c *Client) Device(ctx context.Context, address string) (models.DeviceRecord, error) {
	var out models.DeviceRecord

	return out, c.do(ctx, http.MethodGet, "/api/devices/"+url.PathEscape(address), nil, &out)
}

// DeviceHistory returns the recorded signal points of one device.
func (c *Client) DeviceHistory(ctx context.Context, address string) ([]models.SignalPoint, error) {
	var out []models.SignalPoint

	return out, c.do(ctx, http.MethodGet, "/api/devices/"+url.PathEscape(address)+"/history", nil, &out)
}

// RegisterDevice creates or replaces a registry entry.
func (c *Client) RegisterDevice(ctx context.Context, reg models.DeviceRegistration) (models.DeviceRecord, error) {
	var out models.DeviceRecord

	return out, c.do(ctx, http.MethodPut, "/api/devices/"+url.PathEscape(reg.Address), reg, &out)
}

// UpdateDevice edits an existing entry.
func (c *Client) UpdateDevice(ctx context.Context, reg models.DeviceRegistration) (models.DeviceRecord, error) {
	var out models.DeviceRecord

	return out, c.do(ctx, http.MethodPatch, "/api/devices/"+url.PathEscape(reg.Address), reg, &out)
}

func (c *Client) RemoveDevice(ctx context.Context, address string) error {
	return c.do(ctx, http.MethodDelete, "/api/devices/"+url.PathEscape(address), nil, nil)
}

func (c *Client) Attendance(ctx context.Context, params url.Values) ([]models.AttendanceEvent, error) {
	var out []models.AttendanceEvent

	return out, c.do(ctx, http.MethodGet, withQuery("/api/events/attendance", params), nil, &out)
}

func (c *Client) Alerts(ctx context.Context, params url.Values) ([]models.AlertEvent, error) {
	var out []models.AlertEvent

	return out, c.do(ctx, http.MethodGet, withQuery("/api/events/alerts", params), nil, &out)
}

// ExportCSV copies one day of attendance to w.
func (c *Client) ExportCSV(ctx context.Context, params url.Values, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, withQuery("/api/export.csv", params), nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read export: %w", err)
	}

	return nil
}

func (c *Client) ForceScan(ctx context.Context) (tracker.Status, error) {
	var out tracker.Status

	return out, c.do(ctx, http.MethodPost, "/api/scan", nil, &out)
}

// SetMonitoring starts or stops the scan loop.
func (c *Client) SetMonitoring(ctx context.Context, running bool) (tracker.Status, error) {
	path := "/api/monitoring/stop"
	if running {
		path = "/api/monitoring/start"
	}

	var out tracker.Status

	return out, c.do(ctx, http.MethodPost, path, nil, &out)
}

func (c *Client) Status(ctx context.Context) (tracker.Status, error) {
	var out tracker.Status

	return out, c.do(ctx, http.MethodGet, "/api/status", nil, &out)
}

func (c *Client) Calibration(ctx context.Context) (api.CalibrationResponse, error) {
	var out api.CalibrationResponse

	return out, c.do(ctx, http.MethodGet, "/api/calibration", nil, &out)
}

func withQuery(path string, params url.Values) string {
	if encoded := params.Encode(); encoded != "" {
		return path + "?" + encoded
	}

	return path
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	return nil
}

// send performs the request and turns non-2xx replies into errAPIError.
func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader = http.NoBody

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return resp, nil
	}

	defer func() { _ = resp.Body.Close() }()

	return nil, fmt.Errorf("%w: %s", errAPIError, readErrorBody(resp))
}

func readErrorBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return resp.Status
	}

	var apiErr api.ErrorResponse
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
		return fmt.Sprintf("%s (%d)", apiErr.Message, apiErr.Status)
	}

	return strings.TrimSpace(string(data))
}
