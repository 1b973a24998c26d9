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

package lan

import (
	"sync"
	"time"

	"github.com/carverauto/goveelink/pkg/models"
)

// Registry is the live device-to-address table built from discovery
// replies and static configuration.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*models.LANEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*models.LANEntry)}
}

// AddManual seeds an entry from static configuration. Manual entries are
// never pruned, only left stale.
func (r *Registry) AddManual(deviceID, ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[deviceID] = &models.LANEntry{
		DeviceID: deviceID,
		IP:       ip,
		IsManual: true,
	}
}

// Upsert records a discovery reply. An existing entry is mutated in place
// so a manual entry confirmed by discovery keeps its manual flag.
func (r *Registry) Upsert(deviceID, ip string, seen time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[deviceID]; ok {
		e.IP = ip
		e.LastSeen = seen

		return
	}

	r.entries[deviceID] = &models.LANEntry{
		DeviceID: deviceID,
		IP:       ip,
		LastSeen: seen,
	}
}

// Get returns a copy of the entry for deviceID.
func (r *Registry) Get(deviceID string) (models.LANEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[deviceID]
	if !ok {
		return models.LANEntry{}, false
	}

	return *e, true
}

// Remove prunes a non-manual entry. Manual entries stay.
func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[deviceID]; ok && !e.IsManual {
		delete(r.entries, deviceID)
	}
}

// FindByIP resolves the device that last announced from ip. Status replies
// carry no device id, only a source address.
func (r *Registry) FindByIP(ip string) (models.LANEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.IP == ip {
			return *e, true
		}
	}

	return models.LANEntry{}, false
}

// Snapshot returns a copy of all entries.
func (r *Registry) Snapshot() []models.LANEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.LANEntry, 0, len(r.entries))

	for _, e := range r.entries {
		out = append(out, *e)
	}

	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
