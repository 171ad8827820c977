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
	"time"

	"github.com/carverauto/presenceradar/pkg/models"
)

var errNoScanner = errors.New("engine has no scanner")

// Start begins periodic scanning. The first cycle runs immediately. Calling
// Start on a running engine is a no-op. Cancelling ctx stops the engine as
// Stop would.
func (e *Engine) Start(ctx context.Context) error {
	if e.scanner == nil {
		return errNoScanner
	}

	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if e.running {
		return nil
	}

	e.running = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.force = make(chan struct{}, 1)

	go e.run(ctx, e.stop, e.force, e.done)

	e.logger.Info().
		Dur("interval", time.Duration(e.cfg.ScanInterval)).
		Msg("Tracking engine started")

	return nil
}

// Stop halts scanning and waits for the driver to exit. A cycle already in
// flight completes; none starts after Stop returns. Safe to call repeatedly
// and from any goroutine other than a Scanner.
func (e *Engine) Stop() {
	e.stateMu.Lock()

	if !e.running {
		done := e.done
		e.stateMu.Unlock()

		if done != nil {
			<-done
		}

		return
	}

	e.running = false
	close(e.stop)
	done := e.done

	e.stateMu.Unlock()

	<-done

	e.logger.Info().Msg("Tracking engine stopped")
}

// Wait blocks until the driver goroutine has exited. It returns at once if
// the engine was never started.
func (e *Engine) Wait() {
	e.stateMu.Lock()
	done := e.done
	e.stateMu.Unlock()

	if done != nil {
		<-done
	}
}

// Running reports whether the engine is scanning.
func (e *Engine) Running() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	return e.running
}

// ForceScan requests an immediate scan. Requests made while one is already
// pending are coalesced.
func (e *Engine) ForceScan() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if !e.running {
		return models.ErrEngineNotRunning
	}

	select {
	case e.force <- struct{}{}:
	default:
	}

	return nil
}

// Status summarizes the engine for the control interface.
func (e *Engine) Status() Status {
	e.stateMu.Lock()
	running := e.running
	lastErr := e.lastScanErr
	e.stateMu.Unlock()

	e.cycleMu.Lock()
	lastCycle := e.lastCycleAt
	e.cycleMu.Unlock()

	st := Status{
		Running:      running,
		Cycles:       e.cycles.Load(),
		LastCycle:    lastCycle,
		ScanInterval: time.Duration(e.cfg.ScanInterval),
		Dropped:      e.dispatcher.Dropped(),
	}

	if lastErr != nil {
		st.LastScanErr = lastErr.Error()
	}

	for _, rec := range e.table.Load().records {
		st.Devices++

		if rec.Status == models.StatusPresent {
			st.Present++
		}

		if rec.Monitored {
			st.Monitored++
		}
	}

	return st
}

func (e *Engine) run(ctx context.Context, stop <-chan struct{}, force <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	defer func() {
		e.stateMu.Lock()
		if e.stop == stop {
			e.running = false
		}
		e.stateMu.Unlock()
	}()

	ticker := time.NewTicker(time.Duration(e.cfg.ScanInterval))
	defer ticker.Stop()

	e.scanOnce(ctx, stop)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Context canceled, stopping tracking engine")

			return
		case <-stop:
			return
		case <-ticker.C:
			e.scanOnce(ctx, stop)
		case <-force:
			e.logger.Debug().Msg("Forced scan requested")
			e.scanOnce(ctx, stop)
			ticker.Reset(time.Duration(e.cfg.ScanInterval))
		}
	}
}

// scanOnce runs one scan and, when it succeeds, one cycle. A failed scan
// skips the cycle entirely so no record takes a miss for it.
func (e *Engine) scanOnce(ctx context.Context, stop <-chan struct{}) {
	select {
	case <-stop:
		return
	default:
	}

	scanCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.ScanTimeout))
	observations, err := e.scanner.Scan(scanCtx)
	cancel()

	if ctx.Err() != nil {
		return
	}

	e.stateMu.Lock()
	e.lastScanErr = err
	e.stateMu.Unlock()

	if err != nil {
		recordScanError(ctx)
		e.logger.Warn().Err(err).Msg("Scan failed, skipping cycle")

		return
	}

	if _, err := e.RunCycle(ctx, observations); err != nil {
		e.logger.Error().Err(err).Msg("Cycle failed")
	}
}

// LoadState restores from store, treating ErrNoSavedState as a fresh start.
func (e *Engine) LoadState(ctx context.Context, store StateStore) error {
	state, err := store.Load(ctx)
	if errors.Is(err, ErrNoSavedState) {
		e.logger.Info().Msg("No saved engine state, starting empty")
		return nil
	}

	if err != nil {
		return err
	}

	return e.Restore(state)
}

// SaveState writes the current state to store.
func (e *Engine) SaveState(ctx context.Context, store StateStore) error {
	state := e.State()

	if err := store.Save(ctx, state); err != nil {
		return err
	}

	e.logger.Debug().Int("devices", len(state.Devices)).Msg("Engine state saved")

	return nil
}

// PersistEvery saves state on every tick until ctx is done. Failures are
// logged and retried on the next tick.
func (e *Engine) PersistEvery(ctx context.Context, store StateStore, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.SaveState(ctx, store); err != nil {
				e.logger.Warn().Err(err).Msg("Periodic state save failed")
			}
		}
	}
}
