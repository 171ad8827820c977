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
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

const (
	watchTableHeight = 15
	watchRecentLimit = 8
)

type (
	helloMsg     tracker.Status
	batchMsg     tracker.EventBatch
	streamErrMsg struct{ err error }
)

// streamFrame mirrors api.StreamMessage with the payload left raw.
type streamFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// frameReader is the part of *websocket.Conn the watch view reads from.
type frameReader interface {
	ReadJSON(v interface{}) error
}

// listen returns a command that blocks for the next stream frame.
func listen(conn frameReader) tea.Cmd {
	return func() tea.Msg {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return streamErrMsg{err: err}
		}

		switch frame.Type {
		case "hello":
			var st tracker.Status
			if err := json.Unmarshal(frame.Data, &st); err != nil {
				return streamErrMsg{err: fmt.Errorf("decode hello: %w", err)}
			}

			return helloMsg(st)
		case "events":
			var batch tracker.EventBatch
			if err := json.Unmarshal(frame.Data, &batch); err != nil {
				return streamErrMsg{err: fmt.Errorf("decode events: %w", err)}
			}

			return batchMsg(batch)
		default:
			return streamErrMsg{err: fmt.Errorf("%w: unexpected frame %q", errStreamClosed, frame.Type)}
		}
	}
}

type watchModel struct {
	table   table.Model
	devices map[string]models.DeviceRecord
	recent  []string
	status  tracker.Status
	err     error
	next    tea.Cmd
	styles  logStyles
}

func newWatchModel(devices []models.DeviceRecord, next tea.Cmd) *watchModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Address", Width: 17},
			{Title: "Label", Width: 20},
			{Title: "Status", Width: 8},
			{Title: "Zone", Width: 8},
			{Title: "Distance", Width: 9},
			{Title: "RSSI", Width: 8},
			{Title: "Last seen", Width: 19},
		}),
		table.WithFocused(true),
		table.WithHeight(watchTableHeight),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(draculaPurple)).
		BorderBottom(true).
		Foreground(lipgloss.Color(draculaPink))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(draculaForeground)).
		Background(lipgloss.Color(draculaComment))
	t.SetStyles(s)

	m := &watchModel{
		table:   t,
		devices: make(map[string]models.DeviceRecord, len(devices)),
		next:    next,
		styles:  newLogStyles(),
	}

	for i := range devices {
		m.devices[devices[i].Address] = devices[i]
	}

	m.refreshRows()

	return m
}

func (m *watchModel) Init() tea.Cmd {
	return m.next
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case helloMsg:
		m.status = tracker.Status(msg)

		return m, m.next
	case batchMsg:
		m.apply((*tracker.EventBatch)(&msg))

		return m, m.next
	case streamErrMsg:
		m.err = msg.err

		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m *watchModel) apply(batch *tracker.EventBatch) {
	for i := range batch.Changed {
		m.devices[batch.Changed[i].Address] = batch.Changed[i]
	}

	for i := range batch.Alerts {
		a := &batch.Alerts[i]
		m.pushRecent(fmt.Sprintf("%s  %-10s %s", formatTime(a.Timestamp), a.Kind, a.Message))
	}

	m.status.Cycles = batch.Cycle
	m.status.LastCycle = batch.Timestamp

	m.refreshRows()
}

func (m *watchModel) pushRecent(line string) {
	m.recent = append(m.recent, line)

	if len(m.recent) > watchRecentLimit {
		m.recent = m.recent[len(m.recent)-watchRecentLimit:]
	}
}

func (m *watchModel) refreshRows() {
	addrs := make([]string, 0, len(m.devices))
	for addr := range m.devices {
		addrs = append(addrs, addr)
	}

	sort.Strings(addrs)

	rows := make([]table.Row, 0, len(addrs))

	for _, addr := range addrs {
		rec := m.devices[addr]
		rows = append(rows, table.Row{
			rec.Address,
			rec.Label,
			string(rec.Status),
			string(rec.Zone),
			formatDistance(&rec),
			formatRSSI(rec.RSSI),
			formatTime(rec.LastSeen),
		})
	}

	m.table.SetRows(rows)
}

func (m *watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("presencectl watch"))
	fmt.Fprintf(&b, "  cycle %d, last %s\n\n", m.status.Cycles, formatTime(m.status.LastCycle))
	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	for _, line := range m.recent {
		b.WriteString(m.styles.info.Render(line) + "\n")
	}

	if m.err != nil {
		b.WriteString(m.styles.error.Render("stream: "+m.err.Error()) + "\n")
	}

	b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(draculaComment)).Render("↑/↓ scroll • q quit"))

	return b.String()
}

// RunWatch shows a live device table fed by the API event stream.
func RunWatch(ctx context.Context, client *Client) error {
	devices, err := client.Devices(ctx)
	if err != nil {
		return err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, client.StreamURL(), nil)
	if err != nil {
		return fmt.Errorf("connect event stream: %w", err)
	}

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	defer func() { _ = conn.Close() }()

	p := tea.NewProgram(newWatchModel(devices, listen(conn)), tea.WithAltScreen(), tea.WithContext(ctx))

	_, err = p.Run()

	return err
}
