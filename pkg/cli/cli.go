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
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/presenceradar/pkg/models"
)

// global flags accepted by every subcommand
func addCommonFlags(fs *flag.FlagSet, cfg *CmdConfig) {
	fs.StringVar(&cfg.ServerURL, "server", envOr("PRESENCECTL_SERVER", defaultServerURL), "presence API base URL")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "request timeout")
	fs.StringVar(&cfg.Output, "output", outputFormatTable, "output format: table or json")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}

	return fallback
}

// DevicesHandler handles `devices [list|show|history|register|update|remove] [address]`.
type DevicesHandler struct{}

func (DevicesHandler) Parse(args []string, cfg *CmdConfig) error {
	cfg.Action = "list"

	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cfg.Action = args[0]
		args = args[1:]
	}

	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cfg.Address = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("devices", flag.ContinueOnError)
	addCommonFlags(fs, cfg)
	fs.StringVar(&cfg.Label, "label", "", "display label")
	fs.StringVar(&cfg.Category, "category", "", "employee, visitor, equipment or other")
	fs.StringVar(&cfg.Monitored, "monitored", "", "true or false")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parsing devices flags: %w", err)
	}

	switch cfg.Action {
	case "list":
	case "show", "history", "register", "update", "remove":
		if cfg.Address == "" {
			return fmt.Errorf("devices %s: %w", cfg.Action, errAddressRequired)
		}
	default:
		return fmt.Errorf("%w: devices %s", errUnknownAction, cfg.Action)
	}

	if cfg.Monitored != "" {
		if _, err := strconv.ParseBool(cfg.Monitored); err != nil {
			return errInvalidMonitored
		}
	}

	return nil
}

// EventsHandler handles `events [attendance|alerts]`.
type EventsHandler struct{}

func (EventsHandler) Parse(args []string, cfg *CmdConfig) error {
	cfg.Action = "attendance"

	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cfg.Action = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	addCommonFlags(fs, cfg)
	fs.StringVar(&cfg.Address, "address", "", "only events for this device")
	fs.StringVar(&cfg.From, "from", "", "inclusive start (RFC 3339 or YYYY-MM-DD)")
	fs.StringVar(&cfg.To, "to", "", "exclusive end (RFC 3339 or YYYY-MM-DD)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parsing events flags: %w", err)
	}

	if cfg.Action != "attendance" && cfg.Action != "alerts" {
		return fmt.Errorf("%w: events %s", errUnknownAction, cfg.Action)
	}

	return nil
}

// ExportHandler handles `export`.
type ExportHandler struct{}

func (ExportHandler) Parse(args []string, cfg *CmdConfig) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	addCommonFlags(fs, cfg)
	fs.StringVar(&cfg.Date, "date", time.Now().Format("2006-01-02"), "day to export (YYYY-MM-DD)")
	fs.StringVar(&cfg.Address, "address", "", "only events for this device")
	fs.StringVar(&cfg.File, "file", "", "write the CSV here instead of stdout")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parsing export flags: %w", err)
	}

	return nil
}

// ControlHandler handles the flag-only subcommands: scan, status, calibration, watch.
type ControlHandler struct {
	name string
}

func (h ControlHandler) Parse(args []string, cfg *CmdConfig) error {
	fs := flag.NewFlagSet(h.name, flag.ContinueOnError)
	addCommonFlags(fs, cfg)

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parsing %s flags: %w", h.name, err)
	}

	return nil
}

// MonitorHandler handles `monitor start|stop`.
type MonitorHandler struct{}

func (MonitorHandler) Parse(args []string, cfg *CmdConfig) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("%w: monitor needs start or stop", errUnknownAction)
	}

	cfg.Action = args[0]

	if cfg.Action != "start" && cfg.Action != "stop" {
		return fmt.Errorf("%w: monitor %s", errUnknownAction, cfg.Action)
	}

	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	addCommonFlags(fs, cfg)

	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("parsing monitor flags: %w", err)
	}

	return nil
}

func subcommands() map[string]SubcommandHandler {
	return map[string]SubcommandHandler{
		"devices":     DevicesHandler{},
		"events":      EventsHandler{},
		"export":      ExportHandler{},
		"monitor":     MonitorHandler{},
		"scan":        ControlHandler{name: "scan"},
		"status":      ControlHandler{name: "status"},
		"calibration": ControlHandler{name: "calibration"},
		"watch":       ControlHandler{name: "watch"},
	}
}

// ParseArgs parses a presencectl command line, without the program name.
func ParseArgs(args []string) (*CmdConfig, error) {
	cfg := &CmdConfig{ServerURL: defaultServerURL, Timeout: defaultTimeout, Output: outputFormatTable}

	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "-help" || args[0] == "--help" {
		cfg.Help = true

		return cfg, nil
	}

	cfg.SubCmd = args[0]

	handler, ok := subcommands()[cfg.SubCmd]
	if !ok {
		return cfg, fmt.Errorf("%w: %s", errUnknownSubcommand, cfg.SubCmd)
	}

	if err := handler.Parse(args[1:], cfg); err != nil {
		return cfg, err
	}

	if cfg.Output != outputFormatTable && cfg.Output != outputFormatJSON {
		return cfg, errInvalidOutput
	}

	return cfg, nil
}

// Run executes a parsed command, writing human output to out.
func Run(ctx context.Context, cfg *CmdConfig, out io.Writer) error {
	client := NewClient(cfg.ServerURL, nil)

	if cfg.SubCmd == "watch" {
		return RunWatch(ctx, client)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	switch cfg.SubCmd {
	case "devices":
		return runDevices(ctx, client, cfg, out)
	case "events":
		return runEvents(ctx, client, cfg, out)
	case "export":
		return runExport(ctx, client, cfg, out)
	case "monitor":
		st, err := client.SetMonitoring(ctx, cfg.Action == "start")
		if err != nil {
			return err
		}

		return emit(out, cfg, st, func() string { return RenderStatus(&st) })
	case "scan":
		st, err := client.ForceScan(ctx)
		if err != nil {
			return err
		}

		return emit(out, cfg, st, func() string {
			return newLogStyles().success.Render("Scan requested.") + "\n" + RenderStatus(&st)
		})
	case "status":
		st, err := client.Status(ctx)
		if err != nil {
			return err
		}

		return emit(out, cfg, st, func() string { return RenderStatus(&st) })
	case "calibration":
		cal, err := client.Calibration(ctx)
		if err != nil {
			return err
		}

		return emit(out, cfg, cal, func() string { return RenderCalibration(&cal) })
	default:
		return fmt.Errorf("%w: %s", errUnknownSubcommand, cfg.SubCmd)
	}
}

func runDevices(ctx context.Context, client *Client, cfg *CmdConfig, out io.Writer) error {
	if cfg.Action == "list" {
		devices, err := client.Devices(ctx)
		if err != nil {
			return err
		}

		return emit(out, cfg, devices, func() string { return RenderDevices(devices) })
	}

	if cfg.Action == "history" {
		points, err := client.DeviceHistory(ctx, cfg.Address)
		if err != nil {
			return err
		}

		return emit(out, cfg, points, func() string { return RenderHistory(points) })
	}

	if cfg.Action == "remove" {
		if err := client.RemoveDevice(ctx, cfg.Address); err != nil {
			return err
		}

		_, err := fmt.Fprintln(out, newLogStyles().success.Render("Removed "+cfg.Address))

		return err
	}

	var (
		rec models.DeviceRecord
		err error
	)

	switch cfg.Action {
	case "show":
		rec, err = client.Device(ctx, cfg.Address)
	case "register":
		rec, err = client.RegisterDevice(ctx, registrationFrom(cfg))
	case "update":
		rec, err = client.UpdateDevice(ctx, registrationFrom(cfg))
	}

	if err != nil {
		return err
	}

	return emit(out, cfg, rec, func() string { return RenderDevice(&rec) })
}

func registrationFrom(cfg *CmdConfig) models.DeviceRegistration {
	reg := models.DeviceRegistration{
		Address:  cfg.Address,
		Label:    cfg.Label,
		Category: models.Category(cfg.Category),
	}

	if cfg.Monitored != "" {
		monitored, _ := strconv.ParseBool(cfg.Monitored)
		reg.Monitored = &monitored
	}

	return reg
}

func runEvents(ctx context.Context, client *Client, cfg *CmdConfig, out io.Writer) error {
	params := url.Values{}

	for key, value := range map[string]string{"address": cfg.Address, "from": cfg.From, "to": cfg.To} {
		if value != "" {
			params.Set(key, value)
		}
	}

	if cfg.Action == "alerts" {
		alerts, err := client.Alerts(ctx, params)
		if err != nil {
			return err
		}

		return emit(out, cfg, alerts, func() string { return RenderAlerts(alerts) })
	}

	events, err := client.Attendance(ctx, params)
	if err != nil {
		return err
	}

	labels := map[string]string{}

	if cfg.Output == outputFormatTable {
		devices, err := client.Devices(ctx)
		if err != nil {
			return err
		}

		for i := range devices {
			labels[devices[i].Address] = devices[i].Label
		}
	}

	return emit(out, cfg, events, func() string { return RenderAttendance(events, labels) })
}

func runExport(ctx context.Context, client *Client, cfg *CmdConfig, out io.Writer) error {
	params := url.Values{}
	params.Set("date", cfg.Date)

	if cfg.Address != "" {
		params.Set("address", cfg.Address)
	}

	if cfg.File == "" {
		return client.ExportCSV(ctx, params, out)
	}

	f, err := os.Create(cfg.File)
	if err != nil {
		return fmt.Errorf("create %s: %w", cfg.File, err)
	}

	if err := client.ExportCSV(ctx, params, f); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", cfg.File, err)
	}

	_, err = fmt.Fprintln(out, newLogStyles().success.Render("Wrote "+cfg.File))

	return err
}

func emit(out io.Writer, cfg *CmdConfig, data interface{}, render func() string) error {
	if cfg.Output == outputFormatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		return enc.Encode(data)
	}

	_, err := fmt.Fprintln(out, render())

	return err
}
