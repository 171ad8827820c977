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

package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process KVStore. TTLs are honoured lazily on read.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	watchers map[string][]chan []byte
	closed   bool
	now      func() time.Time
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]memoryEntry),
		watchers: make(map[string][]chan []byte),
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, errStoreClosed
	}

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}

	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)

		return nil, false, nil
	}

	return append([]byte(nil), e.value...), true, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errStoreClosed
	}

	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}

	m.entries[key] = e
	m.notifyLocked(key, e.value)

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errStoreClosed
	}

	if _, ok := m.entries[key]; !ok {
		return nil
	}

	delete(m.entries, key)
	m.notifyLocked(key, nil)

	return nil
}

// Watch delivers the latest value only: an update replaces one the watcher
// has not received yet.
func (m *MemoryStore) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errStoreClosed
	}

	ch := make(chan []byte, 1)
	m.watchers[key] = append(m.watchers[key], ch)

	go func() {
		<-ctx.Done()
		m.removeWatcher(key, ch)
	}()

	return ch, nil
}

func (m *MemoryStore) removeWatcher(key string, ch chan []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.watchers[key]
	for i, w := range list {
		if w == ch {
			m.watchers[key] = append(list[:i], list[i+1:]...)
			close(ch)

			return
		}
	}
}

func (m *MemoryStore) notifyLocked(key string, value []byte) {
	for _, ch := range m.watchers[key] {
		select {
		case <-ch:
		default:
		}

		ch <- append([]byte(nil), value...)
	}
}

// Close closes every open watch channel.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true

	for key, list := range m.watchers {
		for _, ch := range list {
			close(ch)
		}

		delete(m.watchers, key)
	}

	return nil
}

var _ KVStore = (*MemoryStore)(nil)
