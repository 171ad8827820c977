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

// Command presencectl talks to a running presence service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/carverauto/presenceradar/pkg/cli"
	"github.com/carverauto/presenceradar/pkg/lifecycle"
	"github.com/carverauto/presenceradar/pkg/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println("presencectl", version.GetFullVersion())

		return
	}

	cfg, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		cli.ShowHelp()
		log.Fatalf("Error: %v", err)
	}

	if cfg.Help {
		cli.ShowHelp()

		return
	}

	ctx, stop := lifecycle.SignalContext(context.Background())
	defer stop()

	if err := cli.Run(ctx, cfg, os.Stdout); err != nil {
		stop()
		log.Fatalf("Error: %v", err)
	}
}
