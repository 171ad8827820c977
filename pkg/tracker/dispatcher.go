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
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/presenceradar/pkg/logger"
)

// Dispatcher delivers event batches to sinks on its own goroutine. When the
// queue is full new batches are dropped with a warning.
type Dispatcher struct {
	logger  logger.Logger
	timeout time.Duration
	queue   chan *EventBatch
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.RWMutex
	sinks  []EventSink
	closed bool
}

// NewDispatcher starts a dispatcher with the given queue size and per-sink timeout.
func NewDispatcher(log logger.Logger, sinks []EventSink, buffer int, timeout time.Duration) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultDispatchBuffer
	}

	if timeout <= 0 {
		timeout = defaultSinkTimeout
	}

	d := &Dispatcher{
		logger:  log,
		timeout: timeout,
		queue:   make(chan *EventBatch, buffer),
		done:    make(chan struct{}),
		sinks:   append([]EventSink(nil), sinks...),
	}

	go d.loop()

	return d
}

// AddSink registers a sink for subsequent batches.
func (d *Dispatcher) AddSink(sink EventSink) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sinks = append(d.sinks, sink)
}

// Dispatch queues batch without blocking.
func (d *Dispatcher) Dispatch(ctx context.Context, batch *EventBatch) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}

	select {
	case d.queue <- batch:
		return true
	default:
		d.dropped.Add(1)
		recordDroppedBatch(ctx)
		d.logger.Warn().
			Uint64("cycle", batch.Cycle).
			Int("attendance", len(batch.Attendance)).
			Int("alerts", len(batch.Alerts)).
			Msg("Event queue full, dropping batch")

		return false
	}
}

// Dropped returns how many batches were discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting batches and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)

	for batch := range d.queue {
		d.mu.RLock()
		sinks := append([]EventSink(nil), d.sinks...)
		d.mu.RUnlock()

		for _, sink := range sinks {
			d.deliver(sink, batch)
		}
	}
}

func (d *Dispatcher) deliver(sink EventSink, batch *EventBatch) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := sink.HandleEvents(ctx, batch); err != nil {
		d.logger.Warn().
			Err(err).
			Str("sink", sink.Name()).
			Uint64("cycle", batch.Cycle).
			Msg("Event sink failed")
	}
}
