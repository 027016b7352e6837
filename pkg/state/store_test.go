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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubscope/hubscope/pkg/events"
	"github.com/hubscope/hubscope/pkg/models"
	"github.com/hubscope/hubscope/pkg/usb"
)

type fakeSource struct {
	raws    []*usb.RawDevice
	listErr error
}

func (f *fakeSource) List(_ context.Context) ([]*usb.RawDevice, error) {
	return f.raws, f.listErr
}

func (f *fakeSource) Watch(_ context.Context) (<-chan usb.Notification, error) {
	ch := make(chan usb.Notification)
	close(ch)

	return ch, nil
}

type fakeRecorder struct {
	active bool
	events []models.DisconnectEvent
}

func (f *fakeRecorder) Active() bool { return f.active }

func (f *fakeRecorder) RecordDisconnect(event models.DisconnectEvent) {
	f.events = append(f.events, event)
}

func rawUSBDevice(sysPath, busnum, devnum string, props map[string]string) *usb.RawDevice {
	properties := map[string]string{
		"BUSNUM": busnum,
		"DEVNUM": devnum,
	}
	for key, value := range props {
		properties[key] = value
	}

	return &usb.RawDevice{
		SysPath:    sysPath,
		DevType:    "usb_device",
		Properties: properties,
	}
}

func newTestStore(source usb.Source, bus *events.Bus) *Store {
	return NewStore(source, usb.NewBuilder(nil, nil, nil), bus, nil)
}

func TestRescanReplacesState(t *testing.T) {
	source := &fakeSource{raws: []*usb.RawDevice{
		rawUSBDevice("/sys/devices/pci0000:00/a/usb3", "003", "001", nil),
		rawUSBDevice("/sys/devices/pci0000:00/a/usb3/3-2", "003", "002", nil),
		{SysPath: "/sys/devices/pci0000:00/a/usb3/3-9"}, // no bus numbers, skipped
	}}

	store := newTestStore(source, nil)

	forest, err := store.Rescan(context.Background())
	require.NoError(t, err)
	require.Len(t, forest, 1)
	assert.True(t, store.Has("3-2"))

	// A second scan with different contents replaces, not merges.
	source.raws = []*usb.RawDevice{
		rawUSBDevice("/sys/devices/pci0000:00/a/usb3", "003", "001", nil),
	}

	_, err = store.Rescan(context.Background())
	require.NoError(t, err)
	assert.False(t, store.Has("3-2"))
	assert.True(t, store.Has("usb3"))
}

func TestRescanSourceError(t *testing.T) {
	wantErr := errors.New("enumeration failed")
	store := newTestStore(&fakeSource{listErr: wantErr}, nil)

	_, err := store.Rescan(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestApplyAddPublishesEvent(t *testing.T) {
	bus := events.NewBus(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	store := newTestStore(&fakeSource{}, bus)

	store.ApplyAdd(rawUSBDevice("/sys/devices/pci0000:00/a/usb3/3-2", "003", "004", nil))

	require.True(t, store.Has("3-2"))

	event := <-ch
	assert.Equal(t, models.EventDeviceAdded, event.Type)
	require.NotNil(t, event.Device)
	assert.Equal(t, "3-2", event.Device.PortPath)
}

func TestApplyRemove(t *testing.T) {
	bus := events.NewBus(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	store := newTestStore(&fakeSource{}, bus)
	store.ApplyAdd(rawUSBDevice("/sys/devices/pci0000:00/a/usb3/3-2", "003", "004", nil))
	<-ch // drain the add event

	store.ApplyRemove("3-2")

	assert.False(t, store.Has("3-2"))

	event := <-ch
	assert.Equal(t, models.EventDeviceRemoved, event.Type)
	assert.Equal(t, "3-2", event.PortPath)
	require.NotNil(t, event.Device)
	assert.Equal(t, "3-2", event.Device.PortPath)
}

func TestApplyRemoveUnknownIsNoOp(t *testing.T) {
	bus := events.NewBus(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	store := newTestStore(&fakeSource{}, bus)
	store.ApplyRemove("7-7")

	select {
	case event := <-ch:
		require.Failf(t, "unexpected event", "got %v", event.Type)
	default:
	}
}

func TestApplyRemoveRecordsDisconnectDuringSession(t *testing.T) {
	store := newTestStore(&fakeSource{}, nil)
	store.ApplyAdd(rawUSBDevice("/sys/devices/pci0000:00/a/usb3/3-2", "003", "004", nil))

	recorder := &fakeRecorder{}
	store.SetDisconnectRecorder(recorder)

	// Inactive session: removal is not recorded.
	store.ApplyRemove("3-2")
	assert.Empty(t, recorder.events)

	store.ApplyAdd(rawUSBDevice("/sys/devices/pci0000:00/a/usb3/3-2", "003", "005", nil))
	recorder.active = true

	store.ApplyRemove("3-2")
	require.Len(t, recorder.events, 1)
	assert.Equal(t, "3-2", recorder.events[0].PortPath)
	require.NotNil(t, recorder.events[0].Device)
	assert.False(t, recorder.events[0].Timestamp.IsZero())
}

func TestGetReturnsCopy(t *testing.T) {
	store := newTestStore(&fakeSource{}, nil)
	store.ApplyAdd(rawUSBDevice("/sys/devices/pci0000:00/a/usb3/3-2", "003", "004", nil))

	first, ok := store.Get("3-2")
	require.True(t, ok)

	first.CustomName = "mutated"

	second, ok := store.Get("3-2")
	require.True(t, ok)
	assert.Empty(t, second.CustomName)

	_, ok = store.Get("9-9")
	assert.False(t, ok)
}

func TestHubPathsExcludesRootHubs(t *testing.T) {
	store := newTestStore(&fakeSource{}, nil)

	store.ApplyAdd(rawUSBDevice("/sys/devices/pci0000:00/a/usb3", "003", "001",
		map[string]string{"DRIVER": "hub"}))
	store.ApplyAdd(rawUSBDevice("/sys/devices/pci0000:00/a/usb3/3-2", "003", "002",
		map[string]string{"DRIVER": "hub"}))
	store.ApplyAdd(rawUSBDevice("/sys/devices/pci0000:00/a/usb3/3-1", "003", "003", nil))

	hubs := store.HubPaths()
	assert.Equal(t, map[string]bool{"3-2": true}, hubs)
}

func TestAnnotateError(t *testing.T) {
	store := newTestStore(&fakeSource{}, nil)
	store.ApplyAdd(rawUSBDevice("/sys/devices/pci0000:00/a/usb3/3-2", "003", "004", nil))

	assert.True(t, store.AnnotateError("3-2", "device descriptor read/64, error -71"))
	assert.False(t, store.AnnotateError("9-9", "whatever"))

	dev, ok := store.Get("3-2")
	require.True(t, ok)
	assert.True(t, dev.HasErrors)
	require.Len(t, dev.Errors, 1)
}
