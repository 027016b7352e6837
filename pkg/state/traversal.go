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

package state

import (
	"sort"

	"github.com/hubscope/hubscope/pkg/models"
)

// Storage-presence and ancestor queries work on the flat parent index
// rather than recursive child walks, so pathological topologies cannot
// blow the stack.

// StorageDevices returns copies of all storage-class devices currently
// attached, sorted by port path.
func (s *Store) StorageDevices() []*models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var storage []*models.Device

	for _, dev := range s.devices {
		if dev.DeviceClass == models.DeviceClassStorage {
			storage = append(storage, dev.Clone())
		}
	}

	sort.Slice(storage, func(i, j int) bool {
		return storage[i].PortPath < storage[j].PortPath
	})

	return storage
}

// HubsWithStorage lists every hub that has a storage device somewhere
// beneath it, walking each storage device's ancestor chain upward.
func (s *Store) HubsWithStorage() []models.HubStorageInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.HubStorageInfo

	for _, dev := range s.devices {
		if dev.DeviceClass != models.DeviceClassStorage {
			continue
		}

		// Nearest hub ancestor is the one unplugging takes the storage
		// device down with.
		hubs := s.hubAncestorsLocked(dev)
		if len(hubs) == 0 {
			continue
		}

		result = append(result, models.HubStorageInfo{
			HubPath:       hubs[0].PortPath,
			HubName:       hubs[0].DisplayName(),
			StoragePath:   dev.PortPath,
			StorageDevice: dev.DisplayName(),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].HubPath != result[j].HubPath {
			return result[i].HubPath < result[j].HubPath
		}

		return result[i].StoragePath < result[j].StoragePath
	})

	return result
}

// TestableHubs lists the non-root hubs eligible for an active bisection
// test. Root hubs are bus controllers and cannot be disabled.
func (s *Store) TestableHubs() []TestableHub {
	s.mu.RLock()

	storageHubs := make(map[string]bool)

	for _, dev := range s.devices {
		if dev.DeviceClass != models.DeviceClassStorage {
			continue
		}

		for _, hub := range s.hubAncestorsLocked(dev) {
			storageHubs[hub.PortPath] = true
		}
	}

	var hubs []TestableHub

	for _, dev := range s.devices {
		if dev.DeviceClass != models.DeviceClassHub || dev.IsRootHub {
			continue
		}

		hubs = append(hubs, TestableHub{
			PortPath:   dev.PortPath,
			Name:       dev.DisplayName(),
			VendorID:   dev.VendorID,
			ProductID:  dev.ProductID,
			HasStorage: storageHubs[dev.PortPath],
		})
	}

	s.mu.RUnlock()

	sort.Slice(hubs, func(i, j int) bool { return hubs[i].PortPath < hubs[j].PortPath })

	return hubs
}

// hubAncestorsLocked returns every hub on the ancestor chain of a
// device. Callers hold s.mu. The visited guard caps the walk on a
// malformed parent cycle.
func (s *Store) hubAncestorsLocked(dev *models.Device) []*models.Device {
	var hubs []*models.Device

	visited := map[string]bool{dev.PortPath: true}
	parentPath := dev.ParentPath

	for parentPath != "" && !visited[parentPath] {
		visited[parentPath] = true

		parent, ok := s.devices[parentPath]
		if !ok {
			break
		}

		if parent.DeviceClass == models.DeviceClassHub {
			hubs = append(hubs, parent)
		}

		parentPath = parent.ParentPath
	}

	return hubs
}
