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

package tracker

import "sync"

// diagnosticRing keeps the newest diagnostics up to a fixed limit.
type diagnosticRing struct {
	mu    sync.Mutex
	buf   []Diagnostic
	next  int
	full  bool
	limit int
}

func newDiagnosticRing(limit int) *diagnosticRing {
	if limit <= 0 {
		limit = defaultDiagnosticsLimit
	}

	return &diagnosticRing{buf: make([]Diagnostic, limit), limit: limit}
}

func (r *diagnosticRing) add(diags ...Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range diags {
		r.buf[r.next] = d
		r.next = (r.next + 1) % r.limit

		if r.next == 0 {
			r.full = true
		}
	}
}

func (r *diagnosticRing) list() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]Diagnostic{}, r.buf[:r.next]...)
	}

	out := make([]Diagnostic, 0, r.limit)
	out = append(out, r.buf[r.next:]...)

	return append(out, r.buf[:r.next]...)
}
