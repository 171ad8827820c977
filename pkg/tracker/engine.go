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

package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/presenceradar/pkg/eventlog"
	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/presence"
)

const tracerName = "github.com/carverauto/presenceradar/pkg/tracker"

var errNilState = errors.New("engine state is nil")

// table is an immutable device table. A new one is built for every change
// and published with a single pointer swap.
type table struct {
	records map[string]models.DeviceRecord
}

func newTable(capacity int) *table {
	return &table{records: make(map[string]models.DeviceRecord, capacity)}
}

func (t *table) clone() *table {
	out := newTable(len(t.records) + 1)
	for addr, rec := range t.records {
		out.records[addr] = rec.Clone()
	}

	return out
}

func (t *table) sorted() []models.DeviceRecord {
	out := make([]models.DeviceRecord, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, rec.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })

	return out
}

// Engine owns the device table and turns scan batches into state transitions.
//
// A single writer (cycleMu) serializes cycles and registry mutations; readers
// load the current table through an atomic pointer and never block a cycle.
type Engine struct {
	cfg        Config
	scanner    Scanner
	events     *eventlog.Log
	dispatcher *Dispatcher
	logger     logger.Logger
	clock      func() time.Time
	tracer     trace.Tracer
	diag       *diagnosticRing
	sinks      []EventSink
	initial    *models.CalibrationProfile
	trOpts     []presence.Option

	cycleMu     sync.Mutex
	lastCycleAt time.Time

	table  atomic.Pointer[table]
	active atomic.Pointer[models.CalibrationProfile]
	staged atomic.Pointer[models.CalibrationProfile]
	cycles atomic.Uint64

	stateMu     sync.Mutex
	running     bool
	stop        chan struct{}
	done        chan struct{}
	force       chan struct{}
	lastScanErr error
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now as the cycle clock.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithEventLog makes the engine append to an existing log.
func WithEventLog(log *eventlog.Log) Option {
	return func(e *Engine) {
		e.events = log
	}
}

// WithSinks registers event sinks at construction time.
func WithSinks(sinks ...EventSink) Option {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sinks...)
	}
}

// WithCalibration sets the initial calibration profile. A zero
// MissThreshold is derived from the configured departure window.
func WithCalibration(profile models.CalibrationProfile) Option {
	return func(e *Engine) {
		p := profile.Clone()
		e.initial = &p
	}
}

// NewEngine builds a stopped engine. scanner may be nil when cycles are only
// driven through RunCycle.
func NewEngine(cfg Config, scanner Scanner, log logger.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		scanner: scanner,
		logger:  log,
		clock:   time.Now,
		tracer:  otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(e)
	}

	profile := models.DefaultCalibration()
	if e.initial != nil {
		profile = *e.initial
	}

	if profile.MissThreshold == 0 {
		profile.MissThreshold = cfg.MissThresholdFor()
		if profile.MissThreshold == 0 {
			profile.MissThreshold = models.DefaultMissThreshold
		}
	}

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}

	if e.events == nil {
		e.events = eventlog.New()
	}

	if cfg.ZoneChangeMinDelta > 0 {
		e.trOpts = append(e.trOpts, presence.WithZoneChangeAlerts(cfg.ZoneChangeMinDelta))
	}

	e.active.Store(&profile)
	e.table.Store(newTable(0))
	e.diag = newDiagnosticRing(cfg.DiagnosticsLimit)
	e.dispatcher = NewDispatcher(log, e.sinks, cfg.DispatchBuffer, time.Duration(cfg.SinkTimeout))

	initTrackerMetrics()

	return e, nil
}

// Events returns the engine's event log.
func (e *Engine) Events() *eventlog.Log {
	return e.events
}

// AddSink registers another event sink.
func (e *Engine) AddSink(sink EventSink) {
	e.dispatcher.AddSink(sink)
}

// RunCycle processes one batch of observations. Every known record not in
// the batch takes a miss. The new table becomes visible atomically once the
// whole batch has been applied.
func (e *Engine) RunCycle(ctx context.Context, observations []models.Observation) (*CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "tracker.cycle")
	defer span.End()

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	started := time.Now()

	if staged := e.staged.Swap(nil); staged != nil {
		e.active.Store(staged)
		e.logger.Info().
			Int("reference_rssi", staged.ReferenceRSSI).
			Float64("path_loss_exponent", staged.PathLossExponent).
			Floats64("zone_thresholds", staged.ZoneThresholds).
			Msg("Adopted staged calibration")
	}

	profile := e.active.Load()

	now := e.clock()
	if now.Before(e.lastCycleAt) {
		now = e.lastCycleAt
	}

	e.lastCycleAt = now
	cycle := e.cycles.Load() + 1

	batch, diags := normalizeBatch(observations, now, cycle)

	result := &CycleResult{
		Cycle:       cycle,
		Timestamp:   now,
		Attendance:  []models.AttendanceEvent{},
		Alerts:      []models.AlertEvent{},
		Diagnostics: diags,
	}

	current := e.table.Load()
	next := newTable(len(current.records) + len(batch))

	addresses := make([]string, 0, len(current.records)+len(batch))
	for addr := range current.records {
		addresses = append(addresses, addr)
	}

	for addr := range batch {
		if _, known := current.records[addr]; !known {
			addresses = append(addresses, addr)
		}
	}

	sort.Strings(addresses)

	var changed []models.DeviceRecord

	for _, addr := range addresses {
		prev, known := current.records[addr]
		obs, seen := batch[addr]

		var tr presence.Transition

		switch {
		case seen && !known:
			result.Created++
			result.Observed++
			prev = models.NewDeviceRecord(addr)
			tr = presence.Observe(prev, &obs, profile, now, e.trOpts...)
		case seen:
			result.Observed++
			tr = presence.Observe(prev, &obs, profile, now, e.trOpts...)
		default:
			result.Missed++
			tr = presence.Miss(prev, profile, now)
		}

		next.records[addr] = tr.Record

		if tr.Attendance != nil {
			result.Attendance = append(result.Attendance, *tr.Attendance)
		}

		result.Alerts = append(result.Alerts, tr.Alerts...)

		if tr.ZoneChanged || tr.Record.Status != prev.Status || !known {
			changed = append(changed, tr.Record.Clone())
		}
	}

	e.table.Store(next)
	e.cycles.Store(cycle)

	if err := e.events.AppendAttendance(result.Attendance...); err != nil {
		e.logger.Error().Err(err).Uint64("cycle", cycle).Msg("Failed to log attendance events")
	}

	if err := e.events.AppendAlert(result.Alerts...); err != nil {
		e.logger.Error().Err(err).Uint64("cycle", cycle).Msg("Failed to log alerts")
	}

	if len(diags) > 0 {
		e.diag.add(diags...)
		e.logger.Debug().Int("count", len(diags)).Uint64("cycle", cycle).Msg("Observations adjusted or skipped")
	}

	result.Duration = time.Since(started)

	span.SetAttributes(
		attribute.Int64("presence.cycle", int64(cycle)),
		attribute.Int("presence.observed", result.Observed),
		attribute.Int("presence.missed", result.Missed),
		attribute.Int("presence.events", len(result.Attendance)+len(result.Alerts)),
	)

	recordCycle(ctx, result, next)

	out := &EventBatch{
		Cycle:      cycle,
		Timestamp:  now,
		Attendance: slices.Clone(result.Attendance),
		Alerts:     slices.Clone(result.Alerts),
		Changed:    changed,
	}

	if !out.Empty() {
		e.dispatcher.Dispatch(ctx, out)
	}

	e.logger.Debug().
		Uint64("cycle", cycle).
		Int("observed", result.Observed).
		Int("created", result.Created).
		Int("missed", result.Missed).
		Int("attendance", len(result.Attendance)).
		Int("alerts", len(result.Alerts)).
		Dur("duration", result.Duration).
		Msg("Cycle complete")

	return result, nil
}

// normalizeBatch canonicalizes addresses, drops malformed observations and
// keeps only the newest observation per address.
func normalizeBatch(observations []models.Observation, now time.Time, cycle uint64) (map[string]models.Observation, []Diagnostic) {
	batch := make(map[string]models.Observation, len(observations))
	diags := []Diagnostic{}

	for i := range observations {
		obs := observations[i]

		addr, err := models.NormalizeAddress(obs.Address)
		if err != nil {
			diags = append(diags, Diagnostic{Time: now, Cycle: cycle, Address: obs.Address, Reason: err.Error()})
			continue
		}

		obs.Address = addr

		if obs.RSSI != nil {
			if _, ok := obs.Signal(); !ok {
				if *obs.RSSI != 0 {
					diags = append(diags, Diagnostic{
						Time:    now,
						Cycle:   cycle,
						Address: addr,
						Reason:  fmt.Sprintf("rssi %d out of range, treated as missing", *obs.RSSI),
					})
				}

				obs.RSSI = nil
			}
		}

		if obs.Timestamp.IsZero() {
			obs.Timestamp = now
		}

		if prev, dup := batch[addr]; dup {
			diags = append(diags, Diagnostic{Time: now, Cycle: cycle, Address: addr, Reason: "duplicate observation in batch, newest kept"})

			if obs.Timestamp.Before(prev.Timestamp) {
				continue
			}
		}

		batch[addr] = obs
	}

	return batch, diags
}

// RegisterDevice creates or updates a registry entry. New entries default to
// the employee category and are monitored unless told otherwise.
func (e *Engine) RegisterDevice(reg models.DeviceRegistration) (models.DeviceRecord, error) {
	if err := reg.Validate(); err != nil {
		return models.DeviceRecord{}, err
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	next := e.table.Load().clone()

	rec, known := next.records[reg.Address]
	if !known {
		rec = models.NewDeviceRecord(reg.Address)
		rec.Monitored = true
	}

	applyRegistration(&rec, &reg)

	next.records[reg.Address] = rec
	e.table.Store(next)

	e.logger.Info().
		Str("address", rec.Address).
		Str("label", rec.Label).
		Bool("created", !known).
		Msg("Device registered")

	return rec.Clone(), nil
}

// UpdateDevice edits an existing registry entry.
func (e *Engine) UpdateDevice(reg models.DeviceRegistration) (models.DeviceRecord, error) {
	if err := reg.Validate(); err != nil {
		return models.DeviceRecord{}, err
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	current := e.table.Load()
	if _, known := current.records[reg.Address]; !known {
		return models.DeviceRecord{}, &models.UnknownDeviceError{Address: reg.Address}
	}

	next := current.clone()
	rec := next.records[reg.Address]
	applyRegistration(&rec, &reg)
	next.records[reg.Address] = rec
	e.table.Store(next)

	return rec.Clone(), nil
}

// RemoveDevice purges a record and its tracking state.
func (e *Engine) RemoveDevice(address string) error {
	addr, err := models.NormalizeAddress(address)
	if err != nil {
		return err
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	current := e.table.Load()
	if _, known := current.records[addr]; !known {
		return &models.UnknownDeviceError{Address: addr}
	}

	next := current.clone()
	delete(next.records, addr)
	e.table.Store(next)

	e.logger.Info().Str("address", addr).Msg("Device removed")

	return nil
}

func applyRegistration(rec *models.DeviceRecord, reg *models.DeviceRegistration) {
	if reg.Label != "" {
		rec.Label = reg.Label
	}

	if reg.Category != "" {
		rec.Category = reg.Category
	}

	if reg.Monitored != nil {
		rec.Monitored = *reg.Monitored
	}
}

// Device returns a copy of one record.
func (e *Engine) Device(address string) (models.DeviceRecord, error) {
	addr, err := models.NormalizeAddress(address)
	if err != nil {
		return models.DeviceRecord{}, err
	}

	rec, ok := e.table.Load().records[addr]
	if !ok {
		return models.DeviceRecord{}, &models.UnknownDeviceError{Address: addr}
	}

	return rec.Clone(), nil
}

// Devices returns a consistent snapshot of every record, sorted by address.
func (e *Engine) Devices() []models.DeviceRecord {
	return e.table.Load().sorted()
}

// Labels maps every labelled address to its label.
func (e *Engine) Labels() map[string]string {
	t := e.table.Load()

	labels := make(map[string]string, len(t.records))
	for addr, rec := range t.records {
		if rec.Label != "" {
			labels[addr] = rec.Label
		}
	}

	return labels
}

// Calibration returns the profile used by the most recent cycle.
func (e *Engine) Calibration() models.CalibrationProfile {
	return e.active.Load().Clone()
}

// PendingCalibration returns a staged profile not yet adopted by a cycle.
func (e *Engine) PendingCalibration() (models.CalibrationProfile, bool) {
	staged := e.staged.Load()
	if staged == nil {
		return models.CalibrationProfile{}, false
	}

	return staged.Clone(), true
}

// UpdateCalibration validates profile and stages it for the next cycle.
func (e *Engine) UpdateCalibration(profile models.CalibrationProfile) error {
	if err := profile.Validate(); err != nil {
		return err
	}

	p := profile.Clone()
	e.staged.Store(&p)

	e.logger.Info().
		Int("reference_rssi", p.ReferenceRSSI).
		Float64("path_loss_exponent", p.PathLossExponent).
		Msg("Calibration staged for next cycle")

	return nil
}

// Diagnostics returns the most recent diagnostics, oldest first.
func (e *Engine) Diagnostics() []Diagnostic {
	return e.diag.list()
}

// State captures the device table and calibration for persistence. A staged
// calibration wins over the active one so that it survives a restart.
func (e *Engine) State() *models.EngineState {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	profile := e.active.Load()
	if staged := e.staged.Load(); staged != nil {
		profile = staged
	}

	return &models.EngineState{
		Devices:     e.table.Load().sorted(),
		Calibration: profile.Clone(),
		SavedAt:     e.clock(),
	}
}

// Restore replaces the device table and calibration. The engine must be stopped.
func (e *Engine) Restore(state *models.EngineState) error {
	if state == nil {
		return errNilState
	}

	st := models.EngineState{
		Devices:     make([]models.DeviceRecord, 0, len(state.Devices)),
		Calibration: state.Calibration.Clone(),
		SavedAt:     state.SavedAt,
	}

	for i := range state.Devices {
		st.Devices = append(st.Devices, state.Devices[i].Clone())
	}

	if err := st.Validate(); err != nil {
		return err
	}

	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.running {
		return models.ErrEngineRunning
	}

	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	next := newTable(len(st.Devices))
	for _, rec := range st.Devices {
		next.records[rec.Address] = rec
	}

	e.table.Store(next)
	e.active.Store(&st.Calibration)
	e.staged.Store(nil)

	e.logger.Info().
		Int("devices", len(st.Devices)).
		Time("saved_at", st.SavedAt).
		Msg("Engine state restored")

	return nil
}

// Close stops the engine and drains pending event deliveries.
func (e *Engine) Close() {
	e.Stop()
	e.dispatcher.Close()
}
