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
	"github.com/carverauto/presenceradar/pkg/models"
)

const defaultBucket = "presenceradar-kv"

// Config holds the connection settings for the NATS-backed store.
type Config struct {
	NATSURL        string                 `json:"nats_url"`
	Security       *models.SecurityConfig `json:"security,omitempty"`
	Bucket         string                 `json:"bucket,omitempty"`           // KV bucket name
	Domain         string                 `json:"domain,omitempty"`           // Optional JetStream domain
	BucketMaxBytes int64                  `json:"bucket_max_bytes,omitempty"` // Hard cap for bucket size (bytes)
	BucketTTL      models.Duration        `json:"bucket_ttl,omitempty"`       // TTL for entries (0 = no expiry)
	BucketHistory  uint32                 `json:"bucket_history,omitempty"`   // History depth per key
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.NATSURL == "" {
		return errNatsURLRequired
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	if c.Bucket == "" {
		c.Bucket = defaultBucket
	}

	if !validBucket(c.Bucket) {
		return errBucketInvalid
	}

	c.setDefaultBucketOptions()

	return nil
}

// validateSecurity only applies when mTLS is requested.
func (c *Config) validateSecurity() error {
	if c.Security == nil || c.Security.Mode != "mtls" {
		return nil
	}

	tls := c.Security.TLS

	if tls.CertFile == "" {
		return errCertFileRequired
	}

	if tls.KeyFile == "" {
		return errKeyFileRequired
	}

	if tls.CAFile == "" {
		return errCAFileRequired
	}

	c.Security.ResolvePaths()

	return nil
}

func (c *Config) setDefaultBucketOptions() {
	if c.BucketHistory == 0 {
		c.BucketHistory = 1
	}

	if c.BucketTTL < 0 {
		c.BucketTTL = 0
	}

	if c.BucketMaxBytes < 0 {
		c.BucketMaxBytes = 0
	}
}

func validBucket(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}

	return true
}
