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

// Package learning implements the passive correlation engine: it buffers
// disconnect events during a learning session and clusters them by time
// proximity to propose a physical hub group.
package learning

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hubscope/hubscope/pkg/events"
	"github.com/hubscope/hubscope/pkg/logger"
	"github.com/hubscope/hubscope/pkg/models"
)

// ClusterWindow is the anchored time window for grouping disconnects: an
// event joins the current cluster while it is within this distance of the
// cluster's first event, not of the previous event.
const ClusterWindow = 100 * time.Millisecond

var (
	// ErrSessionActive is returned when a session is already open.
	ErrSessionActive = errors.New("learning session already active")

	// ErrNoSession is returned for operations that need an open session.
	ErrNoSession = errors.New("no learning session active")
)

// GroupProvider supplies the member sets of already-persisted physical
// groups. Members of a saved group are excluded from new proposals.
type GroupProvider interface {
	ExistingGroupMembers() map[string]bool
}

// StoreView is the slice of the live state store the engine needs.
type StoreView interface {
	StorageDevices() []*models.Device
	HubsWithStorage() []models.HubStorageInfo
}

// StorageRef names one attached storage device in session summaries.
type StorageRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// SessionInfo summarizes a freshly started session: attached storage
// devices and hubs with storage descendants, surfaced as a data-loss
// warning. The warning is advisory only and never blocks a session.
type SessionInfo struct {
	ExcludeStorage  bool                    `json:"exclude_storage"`
	StorageWarning  bool                    `json:"storage_warning"`
	StorageDevices  []StorageRef            `json:"storage_devices,omitempty"`
	HubsWithStorage []models.HubStorageInfo `json:"hubs_with_storage,omitempty"`
}

// Status reports the current session state.
type Status struct {
	Active          bool `json:"active"`
	ExcludeStorage  bool `json:"exclude_storage"`
	DisconnectCount int  `json:"disconnect_count"`
}

// Engine is the learning-session state machine: Idle -> Learning -> Idle,
// with analysis available both at stop time and as a preview.
type Engine struct {
	mu             sync.Mutex
	active         bool
	excludeStorage bool
	buffer         []models.DisconnectEvent

	store  StoreView
	groups GroupProvider
	bus    *events.Bus
	logger logger.Logger
}

// NewEngine creates a correlation engine. groups and bus may be nil.
func NewEngine(store StoreView, groups GroupProvider, bus *events.Bus, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Engine{
		store:  store,
		groups: groups,
		bus:    bus,
		logger: log.WithComponent("learning"),
	}
}

// StartSession opens a learning session. At most one session is active
// at a time. The returned summary names attached storage devices and
// hubs with storage descendants so the operator can judge the risk of
// unplugging mid-session.
func (e *Engine) StartSession(excludeStorage bool) (*SessionInfo, error) {
	e.mu.Lock()

	if e.active {
		e.mu.Unlock()
		return nil, ErrSessionActive
	}

	e.active = true
	e.excludeStorage = excludeStorage
	e.buffer = nil
	e.mu.Unlock()

	storage := e.store.StorageDevices()
	hubsWithStorage := e.store.HubsWithStorage()

	info := &SessionInfo{
		ExcludeStorage:  excludeStorage,
		StorageWarning:  len(storage) > 0,
		HubsWithStorage: hubsWithStorage,
	}

	for _, dev := range storage {
		info.StorageDevices = append(info.StorageDevices, StorageRef{
			Name: dev.DisplayName(),
			Path: dev.PortPath,
		})
	}

	e.logger.Info().Bool("exclude_storage", excludeStorage).Msg("Learning session started")

	if e.bus != nil {
		learning := &models.LearningInfo{
			ExcludeStorage:  excludeStorage,
			HubsWithStorage: hubsWithStorage,
		}
		for _, ref := range info.StorageDevices {
			learning.StorageDevices = append(learning.StorageDevices, ref.Name)
		}

		e.bus.Publish(models.Event{Type: models.EventLearningStarted, Learning: learning})
	}

	return info, nil
}

// Active reports whether a session is open. Part of the
// state.DisconnectRecorder contract.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.active
}

// RecordDisconnect buffers one removal observed during the session.
// Append-only; the buffer is bounded only by session duration.
func (e *Engine) RecordDisconnect(event models.DisconnectEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return
	}

	e.buffer = append(e.buffer, event)

	e.logger.Debug().Str("port_path", event.PortPath).Msg("Tracked disconnect")
}

// StopSession closes the session, analyzes the buffered disconnects and
// returns the proposal, nil when no group was detected. The buffer is
// cleared whether or not the caller saves; persistence of a positive
// result belongs to the configuration layer.
func (e *Engine) StopSession(save bool) (*models.GroupProposal, error) {
	e.mu.Lock()

	if !e.active {
		e.mu.Unlock()
		return nil, ErrNoSession
	}

	e.active = false
	buffered := e.buffer
	e.buffer = nil
	e.mu.Unlock()

	proposal := Analyze(buffered, e.existingMembers())

	e.logger.Info().
		Bool("save", save).
		Int("disconnects", len(buffered)).
		Bool("detected", proposal != nil).
		Msg("Learning session stopped")

	if e.bus != nil {
		eventType := models.EventLearningCancelled
		if save && proposal != nil {
			eventType = models.EventLearningSaved
		}

		e.bus.Publish(models.Event{Type: eventType, Learning: &models.LearningInfo{Group: proposal}})
	}

	return proposal, nil
}

// Preview runs the analysis over the open session's buffer without
// consuming it.
func (e *Engine) Preview() (*models.GroupProposal, error) {
	e.mu.Lock()

	if !e.active {
		e.mu.Unlock()
		return nil, ErrNoSession
	}

	buffered := make([]models.DisconnectEvent, len(e.buffer))
	copy(buffered, e.buffer)
	e.mu.Unlock()

	return Analyze(buffered, e.existingMembers()), nil
}

// Status reports the session state for the API layer.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{
		Active:          e.active,
		ExcludeStorage:  e.excludeStorage,
		DisconnectCount: len(e.buffer),
	}
}

func (e *Engine) existingMembers() map[string]bool {
	if e.groups == nil {
		return nil
	}

	return e.groups.ExistingGroupMembers()
}

// Analyze clusters disconnect events by the anchored time window, picks
// the largest cluster and reduces it to a hub-only group proposal. Hubs
// already in a saved group are skipped. Returns nil when no hub members
// remain. Pure: no engine state is touched.
//
// On equal-size clusters the first one encountered in time order wins.
// The tie-break is a documented policy here, not an accident of the
// selection routine.
func Analyze(disconnects []models.DisconnectEvent, existingMembers map[string]bool) *models.GroupProposal {
	if len(disconnects) == 0 {
		return nil
	}

	clusters := clusterByWindow(disconnects, ClusterWindow)

	winner := clusters[0]
	for _, cluster := range clusters[1:] {
		if len(cluster) > len(winner) {
			winner = cluster
		}
	}

	proposal := &models.GroupProposal{
		ID:        uuid.NewString(),
		Timestamp: winner[0].Timestamp,
	}

	for _, event := range winner {
		if event.Device == nil {
			continue
		}

		if event.Device.DeviceClass == models.DeviceClassStorage {
			proposal.HasStorage = true
		}

		if event.Device.DeviceClass != models.DeviceClassHub {
			continue
		}

		if existingMembers[event.PortPath] {
			proposal.SkippedExisting = append(proposal.SkippedExisting, event.PortPath)
			continue
		}

		proposal.Members = append(proposal.Members, event.PortPath)
		proposal.Devices = append(proposal.Devices, models.GroupMember{
			PortPath:    event.PortPath,
			Name:        event.Device.DisplayName(),
			DeviceClass: event.Device.DeviceClass,
		})
	}

	if len(proposal.Members) == 0 {
		return nil
	}

	return proposal
}

// clusterByWindow splits time-sorted events into clusters. Membership is
// measured against the first event of the current cluster; an event
// close to its predecessor but past the anchor distance still starts a
// new cluster.
func clusterByWindow(disconnects []models.DisconnectEvent, window time.Duration) [][]models.DisconnectEvent {
	sorted := make([]models.DisconnectEvent, len(disconnects))
	copy(sorted, disconnects)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var clusters [][]models.DisconnectEvent

	var current []models.DisconnectEvent

	for _, event := range sorted {
		if len(current) == 0 || event.Timestamp.Sub(current[0].Timestamp) <= window {
			current = append(current, event)
			continue
		}

		clusters = append(clusters, current)
		current = []models.DisconnectEvent{event}
	}

	if len(current) > 0 {
		clusters = append(clusters, current)
	}

	return clusters
}
