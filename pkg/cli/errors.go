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

package cli

import (
	"errors"
)

var (
	errUnknownSubcommand = errors.New("unknown subcommand")
	errUnknownAction     = errors.New("unknown action")
	errAddressRequired   = errors.New("a device address is required")
	errInvalidOutput     = errors.New("output must be table or json")
	errInvalidMonitored  = errors.New("monitored must be true or false")
	errAPIError          = errors.New("presence API error")
	errStreamClosed      = errors.New("event stream closed")
)
