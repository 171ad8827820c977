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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/presenceradar/pkg/kv"
)

var errKVDown = errors.New("kv down")

func TestKVConfigFromEnv(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "file")
	t.Setenv("KV_NATS_URL", "nats://localhost:4222")
	assert.Nil(t, KVConfigFromEnv())

	t.Setenv("CONFIG_SOURCE", "KV")
	t.Setenv("KV_BUCKET", "presence-config")
	t.Setenv("KV_SEC_MODE", "mtls")
	t.Setenv("KV_CERT_DIR", "/etc/presenceradar/certs")
	t.Setenv("KV_CERT_FILE", "client.pem")

	cfg := KVConfigFromEnv()
	require.NotNil(t, cfg)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "presence-config", cfg.Bucket)
	require.NotNil(t, cfg.Security)
	assert.Equal(t, "mtls", cfg.Security.Mode)
	assert.Equal(t, "client.pem", cfg.Security.TLS.CertFile)

	t.Setenv("KV_NATS_URL", "")
	assert.Nil(t, KVConfigFromEnv())

	mgr, err := NewKVManagerFromEnv(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, mgr)
	assert.Nil(t, mgr.Store())
	require.NoError(t, mgr.Close())
}

func TestKVManagerBootstrapConfig(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	mgr := NewKVManager(store)

	require.NoError(t, mgr.BootstrapConfig(ctx, "config/presence.json", map[string]string{"listen_addr": ":8090"}))

	data, found, err := store.Get(ctx, "config/presence.json")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"listen_addr":":8090"}`, string(data))

	require.NoError(t, mgr.BootstrapConfig(ctx, "config/presence.json", map[string]string{"listen_addr": ":9999"}))

	data, _, err = store.Get(ctx, "config/presence.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"listen_addr":":8090"}`, string(data), "existing values are never overwritten")

	loader := NewConfig(nil)
	mgr.SetupConfigLoader(loader)
	assert.Same(t, store, loader.kvStore)
}

func TestKVManagerBootstrapGetError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := kv.NewMockKVStore(ctrl)

	store.EXPECT().Get(gomock.Any(), "config/presence.json").Return(nil, false, errKVDown)
	store.EXPECT().Close().Return(nil)

	mgr := NewKVManager(store)

	err := mgr.BootstrapConfig(context.Background(), "config/presence.json", struct{}{})
	require.ErrorIs(t, err, errKVDown)
	require.NoError(t, mgr.Close())
}
