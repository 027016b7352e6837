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

package usb

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hubscope/hubscope/pkg/logger"
)

const (
	defaultSysfsDevices = "/sys/bus/usb/devices"
	defaultUdevData     = "/run/udev/data"
)

// deviceAttributes are the sysfs attribute files read for usb_device
// nodes.
var deviceAttributes = []string{
	"bDeviceClass", "bMaxPower", "maxchild", "speed", "version",
	"idVendor", "idProduct", "manufacturer", "product", "serial",
	"authorized",
}

// nodeSubsystems are the subsystems whose descendants contribute /dev
// nodes to a device record.
var nodeSubsystems = map[string]bool{
	"tty":         true,
	"block":       true,
	"sound":       true,
	"video4linux": true,
	"input":       true,
	"hidraw":      true,
}

var inputNodeRe = regexp.MustCompile(`^input\d+$`)

// SysfsSource enumerates USB devices from sysfs, merging udev database
// properties, and watches the kernel uevent stream for hotplug deltas.
type SysfsSource struct {
	devicesDir string
	udevData   string
	logger     logger.Logger
}

// NewSysfsSource creates a Source backed by the host's sysfs tree.
func NewSysfsSource(log logger.Logger) *SysfsSource {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &SysfsSource{
		devicesDir: defaultSysfsDevices,
		udevData:   defaultUdevData,
		logger:     log.WithComponent("usb-sysfs"),
	}
}

// List enumerates all current usb_device nodes. A malformed entry is
// skipped, not fatal: the rest of the bus still enumerates.
func (s *SysfsSource) List(ctx context.Context) ([]*RawDevice, error) {
	entries, err := os.ReadDir(s.devicesDir)
	if err != nil {
		return nil, err
	}

	devices := make([]*RawDevice, 0, len(entries))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Interface nodes ("5-1:1.0") are read as children of their
		// device, not top-level entries.
		if strings.Contains(entry.Name(), ":") {
			continue
		}

		raw, err := s.readDevice(filepath.Join(s.devicesDir, entry.Name()))
		if err != nil {
			s.logger.Debug().Err(err).Str("entry", entry.Name()).Msg("Skipping unreadable device entry")
			continue
		}

		if raw.DevType != "usb_device" {
			continue
		}

		devices = append(devices, raw)
	}

	return devices, nil
}

// readDevice builds a RawDevice from one sysfs device directory.
func (s *SysfsSource) readDevice(sysPath string) (*RawDevice, error) {
	resolved, err := filepath.EvalSymlinks(sysPath)
	if err != nil {
		return nil, err
	}

	raw := &RawDevice{
		SysPath:    resolved,
		Subsystem:  "usb",
		Properties: s.readUevent(resolved),
		Attributes: readAttributes(resolved, deviceAttributes),
	}

	raw.DevType = raw.Properties["DEVTYPE"]

	if driver := readDriver(resolved); driver != "" {
		raw.Properties["DRIVER"] = driver
	}

	s.mergeUdevData(raw, "usb", filepath.Base(resolved))
	fillIdentityProperties(raw)

	raw.Interfaces = s.readInterfaces(resolved)
	raw.DevNodes = s.collectDevNodes(resolved)

	return raw, nil
}

// readInterfaces reads the usb_interface children of a device directory.
func (s *SysfsSource) readInterfaces(devDir string) []*RawDevice {
	name := filepath.Base(devDir)

	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil
	}

	var interfaces []*RawDevice

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), name+":") {
			continue
		}

		ifaceDir := filepath.Join(devDir, entry.Name())

		iface := &RawDevice{
			SysPath:    ifaceDir,
			Subsystem:  "usb",
			Properties: s.readUevent(ifaceDir),
			Attributes: readAttributes(ifaceDir, []string{"bInterfaceClass"}),
		}

		iface.DevType = iface.Properties["DEVTYPE"]

		if driver := readDriver(ifaceDir); driver != "" {
			iface.Properties["DRIVER"] = driver
		}

		s.mergeUdevData(iface, "usb", entry.Name())

		iface.Inputs = s.readInputs(ifaceDir)

		interfaces = append(interfaces, iface)
	}

	return interfaces
}

// readInputs finds input-subsystem descendants of an interface and loads
// their udev properties (the ID_INPUT_* capability flags live there).
func (s *SysfsSource) readInputs(ifaceDir string) []*RawDevice {
	var inputs []*RawDevice

	_ = filepath.WalkDir(ifaceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}

		if !inputNodeRe.MatchString(d.Name()) {
			return nil
		}

		input := &RawDevice{
			SysPath:    p,
			Subsystem:  "input",
			Properties: s.readUevent(p),
		}

		s.mergeUdevData(input, "input", d.Name())
		inputs = append(inputs, input)

		return fs.SkipDir
	})

	return inputs
}

// collectDevNodes walks the device subtree for nodes in the subsystems
// that surface /dev entries (serial, block, sound, video, input, hidraw).
func (s *SysfsSource) collectDevNodes(devDir string) []string {
	seen := make(map[string]bool)

	_ = filepath.WalkDir(devDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}

		subsystem, err := os.Readlink(filepath.Join(p, "subsystem"))
		if err != nil || !nodeSubsystems[filepath.Base(subsystem)] {
			return nil
		}

		if devname := s.readUevent(p)["DEVNAME"]; devname != "" {
			seen["/dev/"+devname] = true
		}

		return nil
	})

	if len(seen) == 0 {
		return nil
	}

	nodes := make([]string, 0, len(seen))
	for node := range seen {
		nodes = append(nodes, node)
	}

	sort.Strings(nodes)

	return nodes
}

// readUevent parses a directory's uevent file into key/value properties.
func (s *SysfsSource) readUevent(dir string) map[string]string {
	props := make(map[string]string)

	data, err := os.ReadFile(filepath.Join(dir, "uevent"))
	if err != nil {
		return props
	}

	for _, line := range strings.Split(string(data), "\n") {
		if key, value, ok := strings.Cut(line, "="); ok {
			props[key] = value
		}
	}

	return props
}

// mergeUdevData overlays properties from the udev database entry for a
// device ("E:" lines of /run/udev/data/+<subsystem>:<sysname>). The
// ID_* properties (vendor/model strings, input capability flags, type
// hints) only exist there.
func (s *SysfsSource) mergeUdevData(raw *RawDevice, subsystem, sysname string) {
	data, err := os.ReadFile(filepath.Join(s.udevData, "+"+subsystem+":"+sysname))
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		entry, ok := strings.CutPrefix(line, "E:")
		if !ok {
			continue
		}

		if key, value, ok := strings.Cut(entry, "="); ok {
			raw.Properties[key] = value
		}
	}
}

// fillIdentityProperties backfills the udev identity properties from raw
// descriptor attributes when the udev database has no entry for the
// device (containers, early boot).
func fillIdentityProperties(raw *RawDevice) {
	backfill := map[string]string{
		"ID_VENDOR_ID":    "idVendor",
		"ID_MODEL_ID":     "idProduct",
		"ID_VENDOR":       "manufacturer",
		"ID_MODEL":        "product",
		"ID_SERIAL_SHORT": "serial",
	}

	for prop, attr := range backfill {
		if raw.Properties[prop] == "" {
			if value := strings.TrimSpace(raw.Attribute(attr)); value != "" {
				raw.Properties[prop] = value
			}
		}
	}
}

func readAttributes(dir string, names []string) map[string]string {
	attrs := make(map[string]string, len(names))

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}

		attrs[name] = strings.TrimRight(string(data), "\n")
	}

	return attrs
}

func readDriver(dir string) string {
	target, err := os.Readlink(filepath.Join(dir, "driver"))
	if err != nil {
		return ""
	}

	return filepath.Base(target)
}
