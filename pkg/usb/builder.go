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

package usb

import (
	"path"
	"strconv"
	"strings"

	"github.com/hubscope/hubscope/pkg/logger"
	"github.com/hubscope/hubscope/pkg/models"
)

// NameResolver looks up vendor/product names from the USB ID database.
type NameResolver interface {
	VendorName(vendorID string) string
	ProductName(vendorID, productID string) string
}

// CustomNameFunc resolves a user-defined name for a vendor/product pair,
// returning "" when none is configured.
type CustomNameFunc func(vendorID, productID string) string

// Builder turns raw device descriptions into Device records.
type Builder struct {
	names      NameResolver
	customName CustomNameFunc
	logger     logger.Logger
}

// NewBuilder creates a Builder. names and customName may be nil.
func NewBuilder(names NameResolver, customName CustomNameFunc, log logger.Logger) *Builder {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Builder{
		names:      names,
		customName: customName,
		logger:     log.WithComponent("usb-builder"),
	}
}

// Build constructs a Device from a raw description. It returns nil when
// the description has no bus/device numbers: that is not an error, the
// kernel exposes such nodes for entities that are not real devices.
func (b *Builder) Build(raw *RawDevice) *models.Device {
	busnum := raw.Property("BUSNUM")
	devnum := raw.Property("DEVNUM")

	if busnum == "" || devnum == "" {
		return nil
	}

	bus, err := strconv.Atoi(busnum)
	if err != nil {
		b.logger.Debug().Str("sys_path", raw.SysPath).Str("busnum", busnum).Msg("Unparsable bus number")
		return nil
	}

	devno, err := strconv.Atoi(devnum)
	if err != nil {
		b.logger.Debug().Str("sys_path", raw.SysPath).Str("devnum", devnum).Msg("Unparsable device number")
		return nil
	}

	portPath := ExtractPortPath(raw.SysPath, bus)
	isRootHub := raw.DevType == "usb_device" && path.Base(raw.SysPath) == rootPathForBus(bus)

	vendorID := raw.Property("ID_VENDOR_ID")
	if vendorID == "" {
		vendorID = "0000"
	}

	productID := raw.Property("ID_MODEL_ID")
	if productID == "" {
		productID = "0000"
	}

	dev := &models.Device{
		Bus:            bus,
		Device:         devno,
		PortPath:       portPath,
		VendorID:       vendorID,
		ProductID:      productID,
		Manufacturer:   firstOf(raw.Property("ID_VENDOR"), raw.Property("ID_VENDOR_FROM_DATABASE")),
		Product:        firstOf(raw.Property("ID_MODEL"), raw.Property("ID_MODEL_FROM_DATABASE")),
		Serial:         raw.Property("ID_SERIAL_SHORT"),
		Speed:          FormatSpeed(strings.TrimSpace(raw.Attribute("speed"))),
		USBVersion:     firstOf(raw.Property("bcdUSB"), strings.TrimSpace(raw.Attribute("version"))),
		DeviceClass:    Classify(raw),
		DeviceClassRaw: rawClassCode(raw),
		NumPorts:       hubPortCount(raw),
		PowerDrawMA:    parsePowerDraw(raw.Attribute("bMaxPower")),
		IsRootHub:      isRootHub,
		Driver:         raw.Property("DRIVER"),
		ParentPath:     parentOf(portPath, isRootHub),
		DevNodes:       append([]string(nil), raw.DevNodes...),
	}

	if b.names != nil {
		dev.VendorName = b.names.VendorName(vendorID)
		dev.ProductName = b.names.ProductName(vendorID, productID)
	}

	if b.customName != nil {
		dev.CustomName = b.customName(vendorID, productID)
	}

	return dev
}

// ExtractPortPath derives the bus-relative port path from a sysfs path.
// It scans path components from the leaf upward for the "<bus>-" prefix
// form or the bare root-hub form; when neither is found the root-hub
// form is synthesized.
func ExtractPortPath(sysPath string, bus int) string {
	busPrefix := strconv.Itoa(bus) + "-"
	rootForm := rootPathForBus(bus)

	parts := strings.Split(sysPath, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]

		if strings.HasPrefix(part, busPrefix) {
			return part
		}

		if part == rootForm {
			return part
		}
	}

	return rootForm
}

// PortPathFromSysPath recovers a port path from a removal notification's
// sysfs path, where the bus number is no longer readable. Returns "" when
// the path has no port-like component.
func PortPathFromSysPath(sysPath string) string {
	parts := strings.Split(sysPath, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]

		if strings.Contains(part, "-") && !strings.HasPrefix(part, "pci") {
			return part
		}
	}

	return ""
}

// FormatSpeed renders a numeric link speed in Mbit as "480M" or, at 5000
// and above, in Gbit as "5G". Absent or unparsable input yields "" rather
// than leaking the raw value.
func FormatSpeed(speed string) string {
	if speed == "" {
		return ""
	}

	value, err := strconv.Atoi(speed)
	if err != nil {
		return ""
	}

	if value >= 5000 {
		return strconv.Itoa(value/1000) + "G"
	}

	return strconv.Itoa(value) + "M"
}

func rootPathForBus(bus int) string {
	return "usb" + strconv.Itoa(bus)
}

func parentOf(portPath string, isRootHub bool) string {
	if isRootHub {
		return ""
	}

	return models.ParentPortPath(portPath)
}

func rawClassCode(raw *RawDevice) int {
	code := deviceClassCode(raw)
	if code == "" {
		return 0
	}

	value, err := strconv.ParseInt(code, 16, 32)
	if err != nil {
		return 0
	}

	return int(value)
}

func hubPortCount(raw *RawDevice) int {
	count, err := strconv.Atoi(strings.TrimSpace(raw.Attribute("maxchild")))
	if err != nil || count <= 0 {
		return 0
	}

	return count
}

func parsePowerDraw(maxPower string) int {
	maxPower = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(maxPower), "mA"))
	if maxPower == "" {
		return 0
	}

	value, err := strconv.Atoi(maxPower)
	if err != nil {
		return 0
	}

	return value
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
