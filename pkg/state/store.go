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

// Package state holds the authoritative live view of the USB topology:
// the port-path keyed device map, mutated only by the notification
// worker and full rescans, and queried by everything else.
package state

import (
	"context"
	"time"

	"sync"

	"github.com/hubscope/hubscope/pkg/events"
	"github.com/hubscope/hubscope/pkg/logger"
	"github.com/hubscope/hubscope/pkg/models"
	"github.com/hubscope/hubscope/pkg/topology"
	"github.com/hubscope/hubscope/pkg/usb"
)

// DisconnectRecorder receives removal snapshots while a learning session
// is open. The correlation engine implements it.
type DisconnectRecorder interface {
	Active() bool
	RecordDisconnect(event models.DisconnectEvent)
}

// TestableHub describes a non-root hub eligible for an active bisection
// test, with a storage-risk flag.
type TestableHub struct {
	PortPath   string `json:"port_path"`
	Name       string `json:"name"`
	VendorID   string `json:"vendor_id"`
	ProductID  string `json:"product_id"`
	HasStorage bool   `json:"has_storage"`
}

// Store is the live state store. All map access is guarded: the
// notification worker is the single mutation source, rescans replace the
// map wholesale, and queries read consistent snapshots.
type Store struct {
	mu       sync.RWMutex
	devices  map[string]*models.Device
	source   usb.Source
	builder  *usb.Builder
	bus      *events.Bus
	recorder DisconnectRecorder
	logger   logger.Logger
}

// NewStore creates a Store over a device source.
func NewStore(source usb.Source, builder *usb.Builder, bus *events.Bus, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Store{
		devices: make(map[string]*models.Device),
		source:  source,
		builder: builder,
		bus:     bus,
		logger:  log.WithComponent("state"),
	}
}

// SetDisconnectRecorder attaches the learning-session recorder.
func (s *Store) SetDisconnectRecorder(recorder DisconnectRecorder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recorder = recorder
}

// Rescan performs a full enumeration, replaces the device map wholesale
// and returns the assembled forest. A malformed device is skipped; the
// rest of the enumeration proceeds.
func (s *Store) Rescan(ctx context.Context) ([]*models.Device, error) {
	raws, err := s.source.List(ctx)
	if err != nil {
		return nil, err
	}

	fresh := make(map[string]*models.Device, len(raws))

	for _, raw := range raws {
		dev := s.builder.Build(raw)
		if dev == nil {
			continue
		}

		fresh[dev.PortPath] = dev
	}

	s.mu.Lock()
	s.devices = fresh
	s.mu.Unlock()

	s.logger.Debug().Int("devices", len(fresh)).Msg("Rescan complete")

	return s.SnapshotTree(), nil
}

// ApplyAdd builds a device from an add notification and inserts it,
// publishing a device_added event. A description that does not resolve
// to a real device is ignored.
func (s *Store) ApplyAdd(raw *usb.RawDevice) {
	dev := s.builder.Build(raw)
	if dev == nil {
		return
	}

	s.mu.Lock()
	s.devices[dev.PortPath] = dev
	s.mu.Unlock()

	s.logger.Info().Str("port_path", dev.PortPath).Str("name", dev.DisplayName()).Msg("Device added")

	if s.bus != nil {
		s.bus.Publish(models.Event{Type: models.EventDeviceAdded, Device: dev.Clone()})
	}
}

// ApplyRemove removes the device at a port path, publishing a
// device_removed event carrying the last-known data. An unknown port
// path is a no-op: kernel notifications may race a prior rescan. While a
// learning session is open the removal is also recorded as a disconnect
// event.
func (s *Store) ApplyRemove(portPath string) {
	s.mu.Lock()

	dev, ok := s.devices[portPath]
	if !ok {
		s.mu.Unlock()
		return
	}

	delete(s.devices, portPath)
	recorder := s.recorder
	s.mu.Unlock()

	snapshot := dev.Clone()

	if recorder != nil && recorder.Active() {
		recorder.RecordDisconnect(models.DisconnectEvent{
			Timestamp: time.Now(),
			PortPath:  portPath,
			Device:    snapshot,
		})
	}

	s.logger.Info().Str("port_path", portPath).Str("name", snapshot.DisplayName()).Msg("Device removed")

	if s.bus != nil {
		s.bus.Publish(models.Event{Type: models.EventDeviceRemoved, PortPath: portPath, Device: snapshot})
	}
}

// Get returns a copy of the device at a port path. The second result is
// false when unknown; lookups never error.
func (s *Store) Get(portPath string) (*models.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok := s.devices[portPath]
	if !ok {
		return nil, false
	}

	return dev.Clone(), true
}

// Has reports whether a port path is currently present.
func (s *Store) Has(portPath string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.devices[portPath]

	return ok
}

// Devices returns copies of all current devices, flat and unordered.
func (s *Store) Devices() []*models.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]*models.Device, 0, len(s.devices))
	for _, dev := range s.devices {
		devices = append(devices, dev.Clone())
	}

	return devices
}

// SnapshotTree assembles the current devices into a forest. The result
// is built from copies and does not alias the live map.
func (s *Store) SnapshotTree() []*models.Device {
	return topology.BuildForest(s.Devices())
}

// HubPaths returns the port paths of all non-root hubs currently known.
func (s *Store) HubPaths() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hubs := make(map[string]bool)

	for path, dev := range s.devices {
		if dev.DeviceClass == models.DeviceClassHub && !dev.IsRootHub {
			hubs[path] = true
		}
	}

	return hubs
}

// AnnotateError attaches a kernel-log error message to the device at a
// port path. Reports whether the device was found.
func (s *Store) AnnotateError(portPath, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.devices[portPath]
	if !ok {
		return false
	}

	dev.Errors = append(dev.Errors, message)
	dev.HasErrors = true

	return true
}
