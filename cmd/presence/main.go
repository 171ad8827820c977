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

// Command presence runs the presence tracking service.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/carverauto/presenceradar/cmd/presence/app"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/presenceradar/presence.json", "Path to presence config file")
	flag.Parse()

	watchEnabled := parseEnvBool("CONFIG_WATCH_ENABLED", true)

	return app.Run(context.Background(), app.Options{
		ConfigPath:   *configPath,
		DisableWatch: !watchEnabled,
	})
}

func parseEnvBool(key string, defaultVal bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultVal
	}

	return v
}
