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

// Package usb builds structured device records from raw kernel device
// descriptions and provides the live enumeration and hotplug sources.
package usb

import "context"

// RawDevice is a flat key/value view of one kernel device. The Linux
// source fills it from sysfs and the udev database; tests construct it
// directly.
type RawDevice struct {
	// SysPath is the absolute sysfs path of the device.
	SysPath string

	// Subsystem and DevType identify the kernel device kind
	// ("usb"/"usb_device", "usb"/"usb_interface", "input", ...).
	Subsystem string
	DevType   string

	// Properties holds udev-style properties (BUSNUM, DEVNUM, DRIVER,
	// ID_VENDOR_ID, ID_INPUT_KEYBOARD, ...).
	Properties map[string]string

	// Attributes holds raw sysfs attribute file contents (bDeviceClass,
	// maxchild, bMaxPower, speed, ...).
	Attributes map[string]string

	// Interfaces are the usb_interface children of a usb_device.
	Interfaces []*RawDevice

	// Inputs are input-subsystem descendants of an interface, used to
	// tell keyboards from mice on composite HID devices.
	Inputs []*RawDevice

	// DevNodes are the /dev nodes associated with this device
	// (serial, block, sound, video, input, hidraw).
	DevNodes []string
}

// Property returns a udev-style property, or "" when absent.
func (r *RawDevice) Property(key string) string {
	if r.Properties == nil {
		return ""
	}

	return r.Properties[key]
}

// Attribute returns a sysfs attribute value, or "" when absent.
func (r *RawDevice) Attribute(name string) string {
	if r.Attributes == nil {
		return ""
	}

	return r.Attributes[name]
}

// Action is the kind of a hotplug notification.
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// Notification is one add/remove delta from the kernel notification
// stream. Remove notifications carry only the port path; the device is
// already gone from sysfs by the time they arrive.
type Notification struct {
	Action   Action
	PortPath string
	Device   *RawDevice
}

// Source provides the flat device enumeration feed and the live
// notification stream.
type Source interface {
	// List enumerates all current usb_device descriptions.
	List(ctx context.Context) ([]*RawDevice, error)

	// Watch delivers add/remove notifications until ctx is cancelled.
	// The returned channel is closed when the listener stops.
	Watch(ctx context.Context) (<-chan Notification, error)
}
