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

import "fmt"

// ShowHelp displays the help message.
func ShowHelp() {
	fmt.Print(`presencectl: presence tracker command-line client
Usage:
  presencectl <command> [action] [address] [options]

Commands:
  devices [list]                 List known devices
  devices show <addr>            Show one device
  devices history <addr>         Show recorded zone and status moves
  devices register <addr>        Register or relabel a device
  devices update <addr>          Edit a registered device
  devices remove <addr>          Forget a device
  events [attendance|alerts]     Query the event log
  export                         Download one day of attendance as CSV
  scan                           Request an immediate scan
  monitor start|stop             Start or stop the scan loop
  status                         Show engine status
  calibration                    Show active and pending calibration
  watch                          Live device view over the event stream
  version                        Print the client version

Common options:
  -server string     API base URL (default "http://localhost:8090", env PRESENCECTL_SERVER)
  -timeout duration  request timeout (default 20s)
  -output string     table or json (default "table")

Options for devices register/update:
  -label string      display label
  -category string   employee, visitor, equipment or other
  -monitored bool    true or false

Options for events:
  -address string    only events for this device
  -from string       inclusive start (RFC 3339 or YYYY-MM-DD)
  -to string         exclusive end (RFC 3339 or YYYY-MM-DD)

Options for export:
  -date string       day to export, YYYY-MM-DD (default today)
  -address string    only events for this device
  -file string       write to this file instead of stdout

Examples:
  presencectl devices register aa:bb:cc:00:00:01 -label "front desk" -category employee
  presencectl events alerts -from 2026-03-02
  presencectl export -date 2026-03-02 -file attendance.csv
`)
}
