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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/carverauto/presenceradar/pkg/kv"
	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/models"
)

// KVManager owns the KV store used for CONFIG_SOURCE=kv and for hot reloads.
type KVManager struct {
	store kv.KVStore
}

// NewKVManager wraps an existing store.
func NewKVManager(store kv.KVStore) *KVManager {
	return &KVManager{store: store}
}

// KVConfigFromEnv describes the bootstrap KV connection. It returns nil
// unless CONFIG_SOURCE=kv and KV_NATS_URL are both set.
func KVConfigFromEnv() *kv.Config {
	if strings.ToLower(strings.TrimSpace(os.Getenv("CONFIG_SOURCE"))) != configSourceKV {
		return nil
	}

	natsURL := strings.TrimSpace(os.Getenv("KV_NATS_URL"))
	if natsURL == "" {
		return nil
	}

	cfg := &kv.Config{
		NATSURL: natsURL,
		Bucket:  os.Getenv("KV_BUCKET"),
		Domain:  os.Getenv("KV_DOMAIN"),
	}

	if mode := os.Getenv("KV_SEC_MODE"); mode != "" {
		cfg.Security = &models.SecurityConfig{
			Mode:       mode,
			CertDir:    os.Getenv("KV_CERT_DIR"),
			ServerName: os.Getenv("KV_SERVER_NAME"),
			TLS: models.TLSConfig{
				CertFile: os.Getenv("KV_CERT_FILE"),
				KeyFile:  os.Getenv("KV_KEY_FILE"),
				CAFile:   os.Getenv("KV_CA_FILE"),
			},
		}
	}

	return cfg
}

// NewKVManagerFromEnv connects to the KV store described by the environment.
// It returns nil without error when KV configuration is not requested.
func NewKVManagerFromEnv(ctx context.Context, log logger.Logger) (*KVManager, error) {
	cfg := KVConfigFromEnv()
	if cfg == nil {
		return nil, nil
	}

	store, err := kv.NewNatsStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect config KV: %w", err)
	}

	return &KVManager{store: store}, nil
}

// Store returns the underlying store, or nil on a nil manager.
func (m *KVManager) Store() kv.KVStore {
	if m == nil {
		return nil
	}

	return m.store
}

// SetupConfigLoader configures a Config instance with the KV store if available.
func (m *KVManager) SetupConfigLoader(cfgLoader *Config) {
	if m != nil && m.store != nil {
		cfgLoader.SetKVStore(m.store)
	}
}

// BootstrapConfig stores cfg under key unless a value is already present.
func (m *KVManager) BootstrapConfig(ctx context.Context, key string, cfg interface{}) error {
	if m == nil || m.store == nil {
		return nil
	}

	_, found, err := m.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("check %s: %w", key, err)
	}

	if found {
		return nil
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	return m.store.Put(ctx, key, data, 0)
}

// Close closes the KV connection.
func (m *KVManager) Close() error {
	if m != nil && m.store != nil {
		return m.store.Close()
	}

	return nil
}
