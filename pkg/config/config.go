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

// Package config manages the file-backed user configuration: custom
// device names, hub labels and persisted physical groups.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hubscope/hubscope/pkg/logger"
	"github.com/hubscope/hubscope/pkg/models"
)

var (
	// ErrGroupNotFound is returned when a named physical group does not
	// exist.
	ErrGroupNotFound = errors.New("physical group not found")

	// ErrMemberTaken enforces group-member exclusivity: a port path
	// belongs to at most one persisted group.
	ErrMemberTaken = errors.New("port path already belongs to a physical group")
)

// DeviceConfig is the per-product user customization.
type DeviceConfig struct {
	VendorID   string `json:"vendor_id" yaml:"vendor_id"`
	ProductID  string `json:"product_id" yaml:"product_id"`
	CustomName string `json:"custom_name,omitempty" yaml:"custom_name,omitempty"`
	Notes      string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// AppConfig is the persisted configuration document.
type AppConfig struct {
	Host           string                 `json:"host" yaml:"host"`
	Port           int                    `json:"port" yaml:"port"`
	Logging        *logger.Config         `json:"logging,omitempty" yaml:"logging,omitempty"`
	Devices        []DeviceConfig         `json:"devices,omitempty" yaml:"devices,omitempty"`
	HubLabels      map[string]string      `json:"hub_labels,omitempty" yaml:"hub_labels,omitempty"`
	PhysicalGroups []models.PhysicalGroup `json:"physical_groups,omitempty" yaml:"physical_groups,omitempty"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Host: "0.0.0.0",
		Port: 8080,
	}
}

// Manager loads, serves and saves the configuration. All access is
// synchronized; saves rewrite the file atomically via a temp file.
type Manager struct {
	mu     sync.RWMutex
	path   string
	config AppConfig
	lookup map[string]string // "vendor:product" -> custom name
	logger logger.Logger
}

// NewManager creates a Manager for a config file path. The file is not
// read until Load.
func NewManager(path string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Manager{
		path:   path,
		config: defaultAppConfig(),
		lookup: make(map[string]string),
		logger: log.WithComponent("config"),
	}
}

// Load reads the configuration file. A missing file yields defaults; a
// malformed file is an error.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Info().Str("path", m.path).Msg("No config file, using defaults")
			m.config = defaultAppConfig()
			m.rebuildLookupLocked()

			return nil
		}

		return fmt.Errorf("reading config %s: %w", m.path, err)
	}

	config := defaultAppConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing config %s: %w", m.path, err)
	}

	m.config = config
	m.rebuildLookupLocked()

	m.logger.Info().
		Str("path", m.path).
		Int("devices", len(config.Devices)).
		Int("groups", len(config.PhysicalGroups)).
		Msg("Configuration loaded")

	return nil
}

// saveLocked writes the config file. Callers hold m.mu.
func (m *Manager) saveLocked() error {
	data, err := yaml.Marshal(&m.config)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replacing config: %w", err)
	}

	return nil
}

func (m *Manager) rebuildLookupLocked() {
	m.lookup = make(map[string]string, len(m.config.Devices))

	for _, dev := range m.config.Devices {
		if dev.CustomName != "" {
			m.lookup[dev.VendorID+":"+dev.ProductID] = dev.CustomName
		}
	}
}

// ListenAddr returns the configured host:port.
func (m *Manager) ListenAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
}

// Logging returns the configured logging section, nil when absent.
func (m *Manager) Logging() *logger.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.config.Logging
}

// DeviceName resolves the custom name for a vendor/product pair, ""
// when none is configured. Used as the builder's CustomNameFunc.
func (m *Manager) DeviceName(vendorID, productID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.lookup[vendorID+":"+productID]
}

// SetDeviceName stores (or clears) a custom name and persists.
func (m *Manager) SetDeviceName(vendorID, productID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false

	for i := range m.config.Devices {
		if m.config.Devices[i].VendorID == vendorID && m.config.Devices[i].ProductID == productID {
			m.config.Devices[i].CustomName = name
			found = true

			break
		}
	}

	if !found {
		m.config.Devices = append(m.config.Devices, DeviceConfig{
			VendorID:   vendorID,
			ProductID:  productID,
			CustomName: name,
		})
	}

	m.rebuildLookupLocked()

	return m.saveLocked()
}

// HubLabels returns a copy of the per-port hub labels.
func (m *Manager) HubLabels() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	labels := make(map[string]string, len(m.config.HubLabels))
	for path, label := range m.config.HubLabels {
		labels[path] = label
	}

	return labels
}

// SetHubLabel stores (or, with an empty label, removes) an operator
// label for a hub port path and persists.
func (m *Manager) SetHubLabel(portPath, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.HubLabels == nil {
		m.config.HubLabels = make(map[string]string)
	}

	if label == "" {
		delete(m.config.HubLabels, portPath)
	} else {
		m.config.HubLabels[portPath] = label
	}

	return m.saveLocked()
}
