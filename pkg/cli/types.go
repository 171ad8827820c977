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

// Package cli implements presencectl, the command-line client of the
// presence tracker HTTP API.
package cli

import (
	"time"

	"github.com/charmbracelet/lipgloss"
)

const (
	defaultServerURL = "http://localhost:8090"
	defaultTimeout   = 20 * time.Second

	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

// CmdConfig holds parsed command-line configuration.
type CmdConfig struct {
	Help      bool
	SubCmd    string
	Action    string
	ServerURL string
	Timeout   time.Duration
	Output    string

	Address   string
	Label     string
	Category  string
	Monitored string

	From string
	To   string
	Date string
	File string

	Args []string
}

// SubcommandHandler defines the interface for parsing subcommand flags.
type SubcommandHandler interface {
	Parse(args []string, cfg *CmdConfig) error
}

// logStyles defines styles for status messages.
type logStyles struct {
	info, success, warning, error lipgloss.Style
}
