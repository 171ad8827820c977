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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/carverauto/presenceradar/pkg/api"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

// Dracula theme colors.
const (
	draculaForeground = "#F8F8F2"
	draculaCyan       = "#8BE9FD"
	draculaGreen      = "#50FA7B"
	draculaOrange     = "#FFB86C"
	draculaPink       = "#FF79C6"
	draculaPurple     = "#BD93F9"
	draculaRed        = "#FF5555"
	draculaYellow     = "#F1FA8C"
	draculaComment    = "#6272A4"

	timeLayout = "2006-01-02 15:04:05"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaPink)).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaForeground)).Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaPurple))
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(draculaCyan)).Bold(true)

	zoneColors = map[models.Zone]string{
		models.ZoneOnSite:  draculaGreen,
		models.ZoneNear:    draculaCyan,
		models.ZoneLeaving: draculaOrange,
		models.ZoneAway:    draculaRed,
	}
)

func newLogStyles() logStyles {
	return logStyles{
		info:    lipgloss.NewStyle().Foreground(lipgloss.Color(draculaCyan)),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color(draculaGreen)),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color(draculaYellow)),
		error:   lipgloss.NewStyle().Foreground(lipgloss.Color(draculaRed)).Bold(true),
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		})
}

func zoneCell(zone models.Zone) string {
	color, ok := zoneColors[zone]
	if !ok {
		return string(zone)
	}

	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(string(zone))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Local().Format(timeLayout)
}

func formatDistance(rec *models.DeviceRecord) string {
	return formatMetres(rec.Distance, rec.HasDistance)
}

func formatMetres(distance float64, ok bool) string {
	if !ok {
		return "-"
	}

	return strconv.FormatFloat(distance, 'f', 1, 64) + " m"
}

func formatRSSI(rssi *int) string {
	if rssi == nil {
		return "-"
	}

	return strconv.Itoa(*rssi) + " dBm"
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}

	return "no"
}

func deviceRow(rec *models.DeviceRecord) []string {
	return []string{
		rec.Address,
		rec.Label,
		string(rec.Category),
		yesNo(rec.Monitored),
		string(rec.Status),
		zoneCell(rec.Zone),
		formatDistance(rec),
		formatRSSI(rec.RSSI),
		formatTime(rec.LastSeen),
	}
}

var deviceHeaders = []string{"ADDRESS", "LABEL", "CATEGORY", "MONITORED", "STATUS", "ZONE", "DISTANCE", "RSSI", "LAST SEEN"}

// RenderDevices draws the device table.
func RenderDevices(records []models.DeviceRecord) string {
	if len(records) == 0 {
		return newLogStyles().info.Render("No devices known.")
	}

	t := newTable(deviceHeaders...)

	for i := range records {
		t.Row(deviceRow(&records[i])...)
	}

	return t.Render()
}

// RenderDevice draws one record as a key/value card.
func RenderDevice(rec *models.DeviceRecord) string {
	t := newTable("FIELD", "VALUE")

	for i, h := range deviceHeaders {
		t.Row(h, deviceRow(rec)[i])
	}

	t.Row("FIRST SEEN", formatTime(rec.FirstSeen))
	t.Row("STATUS SINCE", formatTime(rec.LastStatusChange))
	t.Row("MISSED CYCLES", strconv.Itoa(rec.MissCount))

	return t.Render()
}

// RenderHistory draws the recorded zone and status moves of one device.
func RenderHistory(points []models.SignalPoint) string {
	if len(points) == 0 {
		return newLogStyles().info.Render("No history recorded.")
	}

	t := newTable("TIME", "STATUS", "ZONE", "DISTANCE", "RSSI")

	for i := range points {
		p := &points[i]
		t.Row(formatTime(p.Timestamp), string(p.Status), zoneCell(p.Zone), formatMetres(p.Distance, p.HasDistance), formatRSSI(p.RSSI))
	}

	return t.Render()
}

func RenderAttendance(events []models.AttendanceEvent, labels map[string]string) string {
	if len(events) == 0 {
		return newLogStyles().info.Render("No attendance events.")
	}

	t := newTable("TIME", "ADDRESS", "LABEL", "KIND", "ZONE")

	for i := range events {
		ev := &events[i]
		t.Row(formatTime(ev.Timestamp), ev.Address, labels[ev.Address], string(ev.Kind), zoneCell(ev.Zone))
	}

	return t.Render()
}

func RenderAlerts(alerts []models.AlertEvent) string {
	if len(alerts) == 0 {
		return newLogStyles().info.Render("No alerts.")
	}

	styles := newLogStyles()
	t := newTable("TIME", "ADDRESS", "KIND", "SEVERITY", "MESSAGE")

	for i := range alerts {
		a := &alerts[i]

		severity := styles.info.Render(string(a.Severity))
		if a.Severity == models.SeverityWarning {
			severity = styles.warning.Render(string(a.Severity))
		}

		t.Row(formatTime(a.Timestamp), a.Address, string(a.Kind), severity, a.Message)
	}

	return t.Render()
}

// RenderStatus summarizes the engine in one block.
func RenderStatus(st *tracker.Status) string {
	styles := newLogStyles()

	state := styles.warning.Render("stopped")
	if st.Running {
		state = styles.success.Render("running")
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Presence tracker") + "\n")
	fmt.Fprintf(&b, "  monitoring:    %s\n", state)
	fmt.Fprintf(&b, "  scan interval: %s\n", st.ScanInterval)
	fmt.Fprintf(&b, "  cycles:        %d (last %s)\n", st.Cycles, formatTime(st.LastCycle))
	fmt.Fprintf(&b, "  devices:       %d known, %d monitored, %d present\n", st.Devices, st.Monitored, st.Present)

	if st.Dropped > 0 {
		fmt.Fprintf(&b, "  dropped:       %s\n", styles.warning.Render(strconv.FormatUint(st.Dropped, 10)+" batches"))
	}

	if st.LastScanErr != "" {
		fmt.Fprintf(&b, "  last error:    %s\n", styles.error.Render(st.LastScanErr))
	}

	return b.String()
}

func RenderCalibration(resp *api.CalibrationResponse) string {
	t := newTable("PARAMETER", "ACTIVE", "PENDING")

	pending := func(f func(p *models.CalibrationProfile) string) string {
		if resp.Pending == nil {
			return "-"
		}

		return f(resp.Pending)
	}

	rows := []struct {
		name string
		f    func(p *models.CalibrationProfile) string
	}{
		{"reference_rssi", func(p *models.CalibrationProfile) string { return strconv.Itoa(p.ReferenceRSSI) }},
		{"path_loss_exponent", func(p *models.CalibrationProfile) string { return strconv.FormatFloat(p.PathLossExponent, 'g', -1, 64) }},
		{"zone_thresholds", func(p *models.CalibrationProfile) string { return fmt.Sprint(p.ZoneThresholds) }},
		{"smoothing_alpha", func(p *models.CalibrationProfile) string { return strconv.FormatFloat(p.SmoothingAlpha, 'g', -1, 64) }},
		{"miss_threshold", func(p *models.CalibrationProfile) string { return strconv.Itoa(p.MissThreshold) }},
		{"max_distance", func(p *models.CalibrationProfile) string { return strconv.FormatFloat(p.MaxDistance, 'g', -1, 64) }},
	}

	for _, r := range rows {
		t.Row(r.name, r.f(&resp.Active), pending(r.f))
	}

	return t.Render()
}
