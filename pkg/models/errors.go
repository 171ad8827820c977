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

package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrUnknownDevice is matched by every *UnknownDeviceError.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrEngineNotRunning is returned by control operations that need a running engine.
	ErrEngineNotRunning = errors.New("engine is not running")
	// ErrEngineRunning is returned by operations that need a stopped engine.
	ErrEngineRunning = errors.New("engine is running")

	errInvalidDuration = errors.New("invalid duration")
)

// ValidationError reports malformed calibration or registry input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (*ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UnknownDeviceError reports an operation on an address with no record.
type UnknownDeviceError struct {
	Address string
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("unknown device %s", e.Address)
}

func (*UnknownDeviceError) Is(target error) bool {
	return target == ErrUnknownDevice
}
