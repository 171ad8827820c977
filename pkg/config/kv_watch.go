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

	"github.com/carverauto/presenceradar/pkg/kv"
	"github.com/carverauto/presenceradar/pkg/logger"
)

// StartKVWatch calls onUpdate with every new non-empty value of key until ctx
// ends. Deletions are logged and skipped. The store is not closed.
func StartKVWatch(ctx context.Context, store kv.KVStore, key string, log logger.Logger, onUpdate func([]byte)) error {
	ch, err := store.Watch(ctx, key)
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-ch:
				if !ok {
					return
				}

				if len(data) == 0 {
					log.Info().Str("key", key).Msg("KV delete or empty update")

					continue
				}

				log.Info().Str("key", key).Msg("KV config updated")
				onUpdate(data)
			}
		}
	}()

	return nil
}
