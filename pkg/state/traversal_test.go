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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubscope/hubscope/pkg/models"
)

// seed installs devices directly, bypassing the builder, so traversal
// tests control class and parent links exactly.
func seed(store *Store, devices ...*models.Device) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, dev := range devices {
		store.devices[dev.PortPath] = dev
	}
}

func topologyFixture(store *Store) {
	seed(store,
		&models.Device{PortPath: "usb3", IsRootHub: true, DeviceClass: models.DeviceClassHub},
		&models.Device{PortPath: "3-2", ParentPath: "usb3", DeviceClass: models.DeviceClassHub, Product: "Outer Hub"},
		&models.Device{PortPath: "3-2.1", ParentPath: "3-2", DeviceClass: models.DeviceClassHub, Product: "Inner Hub"},
		&models.Device{PortPath: "3-2.1.4", ParentPath: "3-2.1", DeviceClass: models.DeviceClassStorage, Product: "Flash Drive"},
		&models.Device{PortPath: "3-1", ParentPath: "usb3", DeviceClass: models.DeviceClassHIDMouse},
	)
}

func TestStorageDevices(t *testing.T) {
	store := newTestStore(&fakeSource{}, nil)
	topologyFixture(store)

	storage := store.StorageDevices()
	require.Len(t, storage, 1)
	assert.Equal(t, "3-2.1.4", storage[0].PortPath)
}

func TestHubsWithStorageReportsNearestHub(t *testing.T) {
	store := newTestStore(&fakeSource{}, nil)
	topologyFixture(store)

	infos := store.HubsWithStorage()
	require.Len(t, infos, 1)
	assert.Equal(t, "3-2.1", infos[0].HubPath)
	assert.Equal(t, "Inner Hub", infos[0].HubName)
	assert.Equal(t, "3-2.1.4", infos[0].StoragePath)
	assert.Equal(t, "Flash Drive", infos[0].StorageDevice)
}

func TestTestableHubs(t *testing.T) {
	store := newTestStore(&fakeSource{}, nil)
	topologyFixture(store)

	hubs := store.TestableHubs()
	require.Len(t, hubs, 2)

	// Sorted by port path; the root hub is excluded.
	assert.Equal(t, "3-2", hubs[0].PortPath)
	assert.Equal(t, "3-2.1", hubs[1].PortPath)

	// Every hub ancestor of the storage device carries the flag, not
	// just the nearest one.
	assert.True(t, hubs[0].HasStorage)
	assert.True(t, hubs[1].HasStorage)
}

func TestTestableHubsWithoutStorage(t *testing.T) {
	store := newTestStore(&fakeSource{}, nil)
	seed(store,
		&models.Device{PortPath: "usb1", IsRootHub: true, DeviceClass: models.DeviceClassHub},
		&models.Device{PortPath: "1-4", ParentPath: "usb1", DeviceClass: models.DeviceClassHub},
	)

	hubs := store.TestableHubs()
	require.Len(t, hubs, 1)
	assert.False(t, hubs[0].HasStorage)
}

func TestHubAncestorsSurvivesParentCycle(t *testing.T) {
	store := newTestStore(&fakeSource{}, nil)
	seed(store,
		&models.Device{PortPath: "3-2", ParentPath: "3-2.1", DeviceClass: models.DeviceClassHub},
		&models.Device{PortPath: "3-2.1", ParentPath: "3-2", DeviceClass: models.DeviceClassStorage},
	)

	// Must terminate despite the malformed cycle.
	infos := store.HubsWithStorage()
	require.Len(t, infos, 1)
	assert.Equal(t, "3-2", infos[0].HubPath)
}
