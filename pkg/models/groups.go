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

// PhysicalGroup is a persisted set of logically-distinct hub nodes known
// to reside in the same physical enclosure. Members are hub port paths;
// a port path belongs to at most one group.
type PhysicalGroup struct {
	Name    string   `json:"name" yaml:"name"`
	Label   string   `json:"label,omitempty" yaml:"label,omitempty"`
	Members []string `json:"members" yaml:"members"`
}

// GroupMember carries display metadata for one proposed group member.
type GroupMember struct {
	PortPath    string      `json:"port_path"`
	Name        string      `json:"name"`
	DeviceClass DeviceClass `json:"device_class"`
}

// GroupProposal is a candidate physical group produced by either
// inference engine. Persistence and naming are the configuration layer's
// responsibility.
type GroupProposal struct {
	ID              string        `json:"id,omitempty"`
	Members         []string      `json:"members"`
	Devices         []GroupMember `json:"devices"`
	HasStorage      bool          `json:"has_storage,omitempty"`
	SkippedExisting []string      `json:"skipped_existing,omitempty"`
	TestedHub       string        `json:"tested_hub,omitempty"`
	Timestamp       time.Time     `json:"timestamp,omitempty"`
}
