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

package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubscope/hubscope/pkg/events"
	"github.com/hubscope/hubscope/pkg/models"
)

type fakeStore struct {
	storage []*models.Device
	hubs    []models.HubStorageInfo
}

func (f *fakeStore) StorageDevices() []*models.Device         { return f.storage }
func (f *fakeStore) HubsWithStorage() []models.HubStorageInfo { return f.hubs }

type fakeGroups struct {
	members map[string]bool
}

func (f *fakeGroups) ExistingGroupMembers() map[string]bool { return f.members }

func hubDisconnect(base time.Time, offset time.Duration, portPath string) models.DisconnectEvent {
	return models.DisconnectEvent{
		Timestamp: base.Add(offset),
		PortPath:  portPath,
		Device: &models.Device{
			PortPath:    portPath,
			DeviceClass: models.DeviceClassHub,
			Product:     "Hub " + portPath,
		},
	}
}

func TestAnalyzeClustersByAnchoredWindow(t *testing.T) {
	base := time.Now()

	// Three hubs inside the window, one straggler far outside.
	disconnects := []models.DisconnectEvent{
		hubDisconnect(base, 0, "3-2"),
		hubDisconnect(base, 50*time.Millisecond, "3-2.1"),
		hubDisconnect(base, 90*time.Millisecond, "3-2.4"),
		hubDisconnect(base, 500*time.Millisecond, "4-1"),
	}

	proposal := Analyze(disconnects, nil)
	require.NotNil(t, proposal)
	assert.ElementsMatch(t, []string{"3-2", "3-2.1", "3-2.4"}, proposal.Members)
	assert.NotEmpty(t, proposal.ID)
	assert.Len(t, proposal.Devices, 3)
}

func TestAnalyzeAnchorNotChain(t *testing.T) {
	base := time.Now()

	// Each event is 60ms from its predecessor but the third is 120ms
	// from the first, so it starts a new cluster.
	disconnects := []models.DisconnectEvent{
		hubDisconnect(base, 0, "3-1"),
		hubDisconnect(base, 60*time.Millisecond, "3-2"),
		hubDisconnect(base, 120*time.Millisecond, "3-3"),
	}

	proposal := Analyze(disconnects, nil)
	require.NotNil(t, proposal)
	assert.ElementsMatch(t, []string{"3-1", "3-2"}, proposal.Members)
}

func TestAnalyzeFirstClusterWinsTies(t *testing.T) {
	base := time.Now()

	disconnects := []models.DisconnectEvent{
		hubDisconnect(base, 0, "1-1"),
		hubDisconnect(base, 10*time.Millisecond, "1-2"),
		hubDisconnect(base, time.Second, "2-1"),
		hubDisconnect(base, time.Second+10*time.Millisecond, "2-2"),
	}

	proposal := Analyze(disconnects, nil)
	require.NotNil(t, proposal)
	assert.ElementsMatch(t, []string{"1-1", "1-2"}, proposal.Members)
}

func TestAnalyzeFiltersNonHubsAndExistingMembers(t *testing.T) {
	base := time.Now()

	disconnects := []models.DisconnectEvent{
		hubDisconnect(base, 0, "3-2"),
		hubDisconnect(base, 10*time.Millisecond, "3-2.1"),
		{
			Timestamp: base.Add(20 * time.Millisecond),
			PortPath:  "3-2.1.4",
			Device:    &models.Device{PortPath: "3-2.1.4", DeviceClass: models.DeviceClassStorage},
		},
		{
			Timestamp: base.Add(30 * time.Millisecond),
			PortPath:  "3-2.2",
			Device:    &models.Device{PortPath: "3-2.2", DeviceClass: models.DeviceClassHIDMouse},
		},
	}

	proposal := Analyze(disconnects, map[string]bool{"3-2.1": true})
	require.NotNil(t, proposal)
	assert.Equal(t, []string{"3-2"}, proposal.Members)
	assert.Equal(t, []string{"3-2.1"}, proposal.SkippedExisting)
	assert.True(t, proposal.HasStorage)
}

func TestAnalyzeNilWhenNoHubsRemain(t *testing.T) {
	base := time.Now()

	assert.Nil(t, Analyze(nil, nil))

	onlyMouse := []models.DisconnectEvent{{
		Timestamp: base,
		PortPath:  "3-1",
		Device:    &models.Device{PortPath: "3-1", DeviceClass: models.DeviceClassHIDMouse},
	}}
	assert.Nil(t, Analyze(onlyMouse, nil))

	allSaved := []models.DisconnectEvent{hubDisconnect(base, 0, "3-2")}
	assert.Nil(t, Analyze(allSaved, map[string]bool{"3-2": true}))
}

func TestSessionLifecycle(t *testing.T) {
	bus := events.NewBus(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	engine := NewEngine(&fakeStore{}, &fakeGroups{}, bus, nil)

	info, err := engine.StartSession(false)
	require.NoError(t, err)
	assert.False(t, info.StorageWarning)
	assert.True(t, engine.Active())

	started := <-ch
	assert.Equal(t, models.EventLearningStarted, started.Type)

	_, err = engine.StartSession(false)
	assert.ErrorIs(t, err, ErrSessionActive)

	base := time.Now()
	engine.RecordDisconnect(hubDisconnect(base, 0, "3-2"))
	engine.RecordDisconnect(hubDisconnect(base, 20*time.Millisecond, "3-2.1"))

	assert.Equal(t, 2, engine.Status().DisconnectCount)

	preview, err := engine.Preview()
	require.NoError(t, err)
	require.NotNil(t, preview)
	assert.Len(t, preview.Members, 2)

	// Preview does not consume the buffer.
	assert.Equal(t, 2, engine.Status().DisconnectCount)

	proposal, err := engine.StopSession(true)
	require.NoError(t, err)
	require.NotNil(t, proposal)
	assert.ElementsMatch(t, []string{"3-2", "3-2.1"}, proposal.Members)
	assert.False(t, engine.Active())

	saved := <-ch
	assert.Equal(t, models.EventLearningSaved, saved.Type)
}

func TestStopWithoutSessionFails(t *testing.T) {
	engine := NewEngine(&fakeStore{}, nil, nil, nil)

	_, err := engine.StopSession(true)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = engine.Preview()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStopCancelClearsBuffer(t *testing.T) {
	bus := events.NewBus(nil)
	ch, cancel := bus.Subscribe()
	defer cancel()

	engine := NewEngine(&fakeStore{}, nil, bus, nil)

	_, err := engine.StartSession(false)
	require.NoError(t, err)
	<-ch // learning_started

	engine.RecordDisconnect(hubDisconnect(time.Now(), 0, "3-2"))

	proposal, err := engine.StopSession(false)
	require.NoError(t, err)
	assert.NotNil(t, proposal)

	cancelled := <-ch
	assert.Equal(t, models.EventLearningCancelled, cancelled.Type)

	// A new session starts with an empty buffer.
	_, err = engine.StartSession(false)
	require.NoError(t, err)
	assert.Equal(t, 0, engine.Status().DisconnectCount)
}

func TestRecordDisconnectIgnoredWhenIdle(t *testing.T) {
	engine := NewEngine(&fakeStore{}, nil, nil, nil)

	engine.RecordDisconnect(hubDisconnect(time.Now(), 0, "3-2"))
	assert.Equal(t, 0, engine.Status().DisconnectCount)
}

func TestStartSessionStorageWarning(t *testing.T) {
	store := &fakeStore{
		storage: []*models.Device{{PortPath: "3-2.1.4", Product: "Flash Drive", DeviceClass: models.DeviceClassStorage}},
		hubs: []models.HubStorageInfo{{
			HubPath:       "3-2.1",
			HubName:       "Inner Hub",
			StoragePath:   "3-2.1.4",
			StorageDevice: "Flash Drive",
		}},
	}

	engine := NewEngine(store, nil, nil, nil)

	info, err := engine.StartSession(true)
	require.NoError(t, err)
	assert.True(t, info.StorageWarning)
	assert.True(t, info.ExcludeStorage)
	require.Len(t, info.StorageDevices, 1)
	assert.Equal(t, "Flash Drive", info.StorageDevices[0].Name)
	require.Len(t, info.HubsWithStorage, 1)
}
