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

// Package models defines the shared types for the USB topology monitor.
package models

import (
	"fmt"
	"strings"
)

// DeviceClass categorizes a USB device for display and grouping logic.
type DeviceClass string

const (
	DeviceClassHub         DeviceClass = "hub"
	DeviceClassHIDKeyboard DeviceClass = "hid_keyboard"
	DeviceClassHIDMouse    DeviceClass = "hid_mouse"
	DeviceClassHIDOther    DeviceClass = "hid_other"
	DeviceClassAudio       DeviceClass = "audio"
	DeviceClassVideo       DeviceClass = "video"
	DeviceClassStorage     DeviceClass = "storage"
	DeviceClassPrinter     DeviceClass = "printer"
	DeviceClassWireless    DeviceClass = "wireless"
	DeviceClassComm        DeviceClass = "comm"
	DeviceClassUnknown     DeviceClass = "unknown"
)

// friendlyTypeNames maps a device class to a human label used when no
// product string is available.
var friendlyTypeNames = map[DeviceClass]string{
	DeviceClassHub:         "Hub",
	DeviceClassHIDKeyboard: "Keyboard",
	DeviceClassHIDMouse:    "Mouse",
	DeviceClassHIDOther:    "Input Device",
	DeviceClassAudio:       "Audio",
	DeviceClassVideo:       "Webcam",
	DeviceClassStorage:     "Storage",
	DeviceClassPrinter:     "Printer",
	DeviceClassWireless:    "Wireless",
	DeviceClassComm:        "Serial",
}

// Device represents one USB device in the topology. The port path is the
// primary key: it uniquely identifies a device at any instant, and the
// live device map is keyed by it.
type Device struct {
	Bus      int    `json:"bus"`
	Device   int    `json:"device"`
	PortPath string `json:"port_path"`

	VendorID  string `json:"vendor_id"`
	ProductID string `json:"product_id"`

	VendorName  string `json:"vendor_name,omitempty"`
	ProductName string `json:"product_name,omitempty"`

	Manufacturer string `json:"manufacturer,omitempty"`
	Product      string `json:"product,omitempty"`
	Serial       string `json:"serial,omitempty"`

	Speed          string      `json:"speed"`
	USBVersion     string      `json:"usb_version,omitempty"`
	DeviceClass    DeviceClass `json:"device_class"`
	DeviceClassRaw int         `json:"device_class_raw"`

	NumPorts    int `json:"num_ports,omitempty"`
	PowerDrawMA int `json:"power_draw_ma,omitempty"`

	CustomName string `json:"custom_name,omitempty"`

	Errors    []string `json:"errors,omitempty"`
	HasErrors bool     `json:"has_errors"`

	Children   []*Device `json:"children,omitempty"`
	ParentPath string    `json:"parent_path,omitempty"`

	IsRootHub bool     `json:"is_root_hub"`
	Driver    string   `json:"driver,omitempty"`
	DevNodes  []string `json:"dev_nodes,omitempty"`
}

// DisplayName returns the best available name for display, in order of
// preference: custom name, product string, database product name, vendor
// plus friendly type, and finally the raw vendor:product IDs.
func (d *Device) DisplayName() string {
	if d.CustomName != "" {
		return d.CustomName
	}

	if d.Product != "" {
		return d.Product
	}

	if d.ProductName != "" {
		return d.ProductName
	}

	vendor := d.VendorName
	if vendor == "" {
		vendor = d.Manufacturer
	}

	deviceType := friendlyTypeNames[d.DeviceClass]

	switch {
	case vendor != "" && deviceType != "":
		return fmt.Sprintf("%s (%s)", vendor, deviceType)
	case vendor != "":
		return vendor
	case deviceType != "":
		return fmt.Sprintf("Unknown (%s)", deviceType)
	}

	return fmt.Sprintf("%s:%s", d.VendorID, d.ProductID)
}

// UniqueID identifies this device instance across reconnects of other
// devices on the same bus.
func (d *Device) UniqueID() string {
	return fmt.Sprintf("%d-%s", d.Bus, d.PortPath)
}

// IsRootPath reports whether a port path has the root-hub textual form
// ("usbN").
func IsRootPath(portPath string) bool {
	if !strings.HasPrefix(portPath, "usb") {
		return false
	}

	rest := portPath[len("usb"):]
	if rest == "" {
		return false
	}

	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// ParentPortPath derives the parent port path from a non-root port path:
// the last dot-delimited segment is dropped ("5-1.2.4" -> "5-1.2"); a
// path with no dot hangs directly off the bus root ("5-1" -> "usb5").
// Returns "" when no parent can be derived.
func ParentPortPath(portPath string) string {
	if IsRootPath(portPath) {
		return ""
	}

	if idx := strings.LastIndex(portPath, "."); idx >= 0 {
		return portPath[:idx]
	}

	if idx := strings.Index(portPath, "-"); idx >= 0 {
		return "usb" + portPath[:idx]
	}

	return ""
}

// Clone returns a deep copy of the device, children included. Snapshots
// handed to subscribers and sessions must not alias the live tree.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	clone := *d

	if d.Errors != nil {
		clone.Errors = append([]string(nil), d.Errors...)
	}

	if d.DevNodes != nil {
		clone.DevNodes = append([]string(nil), d.DevNodes...)
	}

	if d.Children != nil {
		clone.Children = make([]*Device, 0, len(d.Children))
		for _, child := range d.Children {
			clone.Children = append(clone.Children, child.Clone())
		}
	}

	return &clone
}
