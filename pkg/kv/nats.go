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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/presenceradar/pkg/logger"
	"github.com/carverauto/presenceradar/pkg/natsutil"
)

// NatsStore is a KVStore over a JetStream key-value bucket.
type NatsStore struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	logger logger.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewNatsStore connects to NATS and opens (creating when needed) the bucket.
func NewNatsStore(ctx context.Context, cfg *Config, log logger.Logger) (*NatsStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	nc, err := natsutil.ConnectWithSecurity(cfg.NATSURL, cfg.Security, log)
	if err != nil {
		return nil, err
	}

	js, err := natsutil.NewJetStream(nc, cfg.Domain)
	if err != nil {
		nc.Close()

		return nil, err
	}

	bucket := jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		History:  uint8(min(cfg.BucketHistory, 64)),
		MaxBytes: cfg.BucketMaxBytes,
		TTL:      time.Duration(cfg.BucketTTL),
	}

	if bucket.MaxBytes == 0 {
		bucket.MaxBytes = -1
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, bucket)
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to open KV bucket %s: %w", cfg.Bucket, err)
	}

	log.Info().Str("bucket", cfg.Bucket).Msg("Opened NATS KV bucket")

	return &NatsStore{
		nc:     nc,
		kv:     kv,
		logger: log,
		done:   make(chan struct{}),
	}, nil
}

func (n *NatsStore) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	var entry jetstream.KeyValueEntry

	entry, err = n.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return entry.Value(), true, nil
}

// Put ignores ttl; expiry is configured on the bucket.
func (n *NatsStore) Put(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := n.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}

	return nil
}

func (n *NatsStore) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}

func (n *NatsStore) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	watcher, err := n.kv.Watch(ctx, key, jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to watch key %s: %w", key, err)
	}

	ch := make(chan []byte, 1)
	go n.handleWatchUpdates(ctx, key, watcher, ch)

	return ch, nil
}

func (n *NatsStore) handleWatchUpdates(ctx context.Context, key string, watcher jetstream.KeyWatcher, ch chan<- []byte) {
	defer func() {
		if err := watcher.Stop(); err != nil {
			n.logger.Warn().Err(err).Str("key", key).Msg("Failed to stop KV watcher")
		}

		close(ch)
	}()

	for {
		var entry jetstream.KeyValueEntry

		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case update, ok := <-watcher.Updates():
			if !ok {
				return
			}

			if update == nil {
				continue // end of initial values
			}

			entry = update
		}

		var value []byte
		if entry.Operation() == jetstream.KeyValuePut {
			value = entry.Value()
		}

		select {
		case ch <- value:
		case <-ctx.Done():
			return
		case <-n.done:
			return
		}
	}
}

func (n *NatsStore) Close() error {
	n.closeOnce.Do(func() {
		close(n.done)
		n.nc.Close()
	})

	return nil
}

var _ KVStore = (*NatsStore)(nil)
