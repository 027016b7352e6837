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

//go:build linux

package bisect

import (
	"fmt"
	"os"
	"path/filepath"
)

const sysfsUSBDevices = "/sys/bus/usb/devices"

// SysfsAuthorizer drives the per-device "authorized" attribute under
// /sys/bus/usb/devices/<port>/authorized.
type SysfsAuthorizer struct {
	root string
}

// NewSysfsAuthorizer creates the host sysfs authorizer.
func NewSysfsAuthorizer() *SysfsAuthorizer {
	return &SysfsAuthorizer{root: sysfsUSBDevices}
}

func (a *SysfsAuthorizer) attrPath(portPath string) string {
	return filepath.Join(a.root, portPath, "authorized")
}

// Exists reports whether the port exposes an authorization attribute.
func (a *SysfsAuthorizer) Exists(portPath string) bool {
	_, err := os.Stat(a.attrPath(portPath))
	return err == nil
}

// SetAuthorized writes "1" or "0" to the attribute. Permission failures
// are wrapped in ErrPermissionDenied so callers can tell the operator
// that elevated privilege is required; other failures surface as plain
// hardware I/O errors.
func (a *SysfsAuthorizer) SetAuthorized(portPath string, authorized bool) error {
	value := []byte("0")
	if authorized {
		value = []byte("1")
	}

	err := os.WriteFile(a.attrPath(portPath), value, 0)
	if err == nil {
		return nil
	}

	if os.IsPermission(err) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, portPath)
	}

	return fmt.Errorf("writing authorization for %s: %w", portPath, err)
}
