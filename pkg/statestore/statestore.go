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

// Package statestore persists tracker state to a key-value bucket or a local file.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/carverauto/presenceradar/pkg/kv"
	"github.com/carverauto/presenceradar/pkg/models"
	"github.com/carverauto/presenceradar/pkg/tracker"
)

// DefaultKey is the KV key holding the engine state document.
const DefaultKey = "presenceradar/state"

var errEmptyPath = errors.New("state file path is required")

// KVStore keeps the state document under a single key.
type KVStore struct {
	store kv.KVStore
	key   string
}

// NewKVStore returns a StateStore over store; key defaults to DefaultKey.
func NewKVStore(store kv.KVStore, key string) *KVStore {
	if key == "" {
		key = DefaultKey
	}

	return &KVStore{store: store, key: key}
}

// Load implements tracker.StateStore.
func (s *KVStore) Load(ctx context.Context) (*models.EngineState, error) {
	data, found, err := s.store.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	if !found || len(data) == 0 {
		return nil, tracker.ErrNoSavedState
	}

	return decode(data)
}

// Save implements tracker.StateStore.
func (s *KVStore) Save(ctx context.Context, state *models.EngineState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err := s.store.Put(ctx, s.key, data, 0); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	return nil
}

// FileStore keeps the state document in a JSON file, replaced atomically on save.
type FileStore struct {
	path string
}

// NewFileStore returns a StateStore writing to path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errEmptyPath
	}

	return &FileStore{path: path}, nil
}

// Load implements tracker.StateStore.
func (s *FileStore) Load(ctx context.Context) (*models.EngineState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, tracker.ErrNoSavedState
	}

	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	return decode(data)
}

// Save implements tracker.StateStore.
func (s *FileStore) Save(ctx context.Context, state *models.EngineState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("save state: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	return nil
}

func decode(data []byte) (*models.EngineState, error) {
	var state models.EngineState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	return &state, nil
}

var (
	_ tracker.StateStore = (*KVStore)(nil)
	_ tracker.StateStore = (*FileStore)(nil)
)
