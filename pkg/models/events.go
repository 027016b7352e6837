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

package models

import "time"

// EventType identifies a topology event delivered to transport subscribers.
type EventType string

const (
	EventFullTree          EventType = "full_tree"
	EventDeviceAdded       EventType = "device_added"
	EventDeviceRemoved     EventType = "device_removed"
	EventDeviceUpdated     EventType = "device_updated"
	EventDeviceError       EventType = "device_error"
	EventLearningStarted   EventType = "learning_started"
	EventLearningSaved     EventType = "learning_saved"
	EventLearningCancelled EventType = "learning_cancelled"
)

// Event is one topology or learning event published on the event bus.
// Removed-device events carry the last-known device data so clients can
// show what disappeared.
type Event struct {
	Type      EventType     `json:"type"`
	Device    *Device       `json:"data,omitempty"`
	Devices   []*Device     `json:"devices,omitempty"`
	PortPath  string        `json:"port_path,omitempty"`
	Error     string        `json:"error,omitempty"`
	Learning  *LearningInfo `json:"learning,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// LearningInfo is the learning-session payload attached to learning
// lifecycle events.
type LearningInfo struct {
	ExcludeStorage  bool             `json:"exclude_storage,omitempty"`
	StorageDevices  []string         `json:"storage_devices,omitempty"`
	HubsWithStorage []HubStorageInfo `json:"hubs_with_storage,omitempty"`
	Group           *GroupProposal   `json:"group,omitempty"`
}

// HubStorageInfo names a hub that has a storage device somewhere beneath
// it. Disconnecting such a hub mid-session risks data loss, so sessions
// surface these up front.
type HubStorageInfo struct {
	HubPath       string `json:"hub_path"`
	HubName       string `json:"hub_name"`
	StoragePath   string `json:"storage_path"`
	StorageDevice string `json:"storage_device"`
}

// DisconnectEvent is one buffered removal observed while a learning
// session is open. The device snapshot is the removed entity's last-known
// state.
type DisconnectEvent struct {
	Timestamp time.Time `json:"timestamp"`
	PortPath  string    `json:"port_path"`
	Device    *Device   `json:"device"`
}
