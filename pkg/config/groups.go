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

package config

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hubscope/hubscope/pkg/models"
)

// PhysicalGroups returns a copy of the persisted groups.
func (m *Manager) PhysicalGroups() []models.PhysicalGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make([]models.PhysicalGroup, 0, len(m.config.PhysicalGroups))

	for _, group := range m.config.PhysicalGroups {
		copied := group
		copied.Members = append([]string(nil), group.Members...)
		groups = append(groups, copied)
	}

	return groups
}

// ExistingGroupMembers returns the set of port paths already committed
// to a persisted group. Implements learning.GroupProvider: these are
// excluded from fresh proposals.
func (m *Manager) ExistingGroupMembers() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make(map[string]bool)

	for _, group := range m.config.PhysicalGroups {
		for _, member := range group.Members {
			members[member] = true
		}
	}

	return members
}

// AddPhysicalGroup persists a new group. A name is generated when empty.
// Members already committed to another group are rejected.
func (m *Manager) AddPhysicalGroup(name, label string, members []string) (models.PhysicalGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		name = "group-" + uuid.NewString()[:8]
	}

	for _, group := range m.config.PhysicalGroups {
		if group.Name == name {
			return models.PhysicalGroup{}, fmt.Errorf("physical group %q already exists", name)
		}
	}

	if err := m.checkMembersFreeLocked(members, ""); err != nil {
		return models.PhysicalGroup{}, err
	}

	group := models.PhysicalGroup{
		Name:    name,
		Label:   label,
		Members: append([]string(nil), members...),
	}

	m.config.PhysicalGroups = append(m.config.PhysicalGroups, group)

	if err := m.saveLocked(); err != nil {
		return models.PhysicalGroup{}, err
	}

	m.logger.Info().Str("name", name).Int("members", len(members)).Msg("Physical group saved")

	return group, nil
}

// UpdatePhysicalGroup replaces a group's label and members.
func (m *Manager) UpdatePhysicalGroup(name, label string, members []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.config.PhysicalGroups {
		if m.config.PhysicalGroups[i].Name != name {
			continue
		}

		if err := m.checkMembersFreeLocked(members, name); err != nil {
			return err
		}

		m.config.PhysicalGroups[i].Label = label
		m.config.PhysicalGroups[i].Members = append([]string(nil), members...)

		return m.saveLocked()
	}

	return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
}

// DeletePhysicalGroup removes a group, freeing its members for future
// proposals.
func (m *Manager) DeletePhysicalGroup(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.config.PhysicalGroups {
		if m.config.PhysicalGroups[i].Name != name {
			continue
		}

		m.config.PhysicalGroups = append(m.config.PhysicalGroups[:i], m.config.PhysicalGroups[i+1:]...)

		return m.saveLocked()
	}

	return fmt.Errorf("%w: %s", ErrGroupNotFound, name)
}

// checkMembersFreeLocked rejects members already committed to a group
// other than exempt. Callers hold m.mu.
func (m *Manager) checkMembersFreeLocked(members []string, exempt string) error {
	taken := make(map[string]string)

	for _, group := range m.config.PhysicalGroups {
		if group.Name == exempt {
			continue
		}

		for _, member := range group.Members {
			taken[member] = group.Name
		}
	}

	for _, member := range members {
		if owner, ok := taken[member]; ok {
			return fmt.Errorf("%w: %s (in %s)", ErrMemberTaken, member, owner)
		}
	}

	return nil
}
