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

package dispatch

import (
	"sync"
	"time"

	"github.com/carverauto/goveelink/pkg/models"
)

// SyncGate coordinates write-then-read races. A successful direct write
// pauses the REST poll loop briefly and marks the written device so echoed
// updates from that transport are ignored while the cloud state catches up.
//
// Suppressions carry a monotonically increasing per-device generation
// counter; a delayed continuation checks that its generation is still
// current before acting.
type SyncGate struct {
	mu sync.Mutex

	pausedUntil time.Time

	generations map[string]uint64
	ignores     map[string]ignoreEntry
}

type ignoreEntry struct {
	source models.Transport
	until  time.Time
	gen    uint64
}

// NewSyncGate creates an idle gate.
func NewSyncGate() *SyncGate {
	return &SyncGate{
		generations: make(map[string]uint64),
		ignores:     make(map[string]ignoreEntry),
	}
}

// PauseFor pauses the REST poll loop for d.
func (g *SyncGate) PauseFor(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	until := time.Now().Add(d)
	if until.After(g.pausedUntil) {
		g.pausedUntil = until
	}
}

// Paused reports whether the poll loop should skip the current cycle.
func (g *SyncGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return time.Now().Before(g.pausedUntil)
}

// IgnoreSource suppresses updates from source for deviceID for d and
// returns the new generation.
func (g *SyncGate) IgnoreSource(deviceID string, source models.Transport, d time.Duration) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.generations[deviceID]++
	gen := g.generations[deviceID]

	g.ignores[deviceID] = ignoreEntry{
		source: source,
		until:  time.Now().Add(d),
		gen:    gen,
	}

	return gen
}

// ShouldIgnore reports whether an update from source for deviceID falls in
// an active suppression window.
func (g *SyncGate) ShouldIgnore(deviceID string, source models.Transport) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.ignores[deviceID]
	if !ok || e.source != source {
		return false
	}

	if time.Now().After(e.until) {
		delete(g.ignores, deviceID)
		return false
	}

	return true
}

// generation returns the current generation for deviceID. A continuation
// holding an older generation is stale and must not act.
func (g *SyncGate) generation(deviceID string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.generations[deviceID]
}
