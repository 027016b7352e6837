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
	"strconv"

	"github.com/hubscope/hubscope/pkg/models"
)

// hidDrivers are drivers whose devices need the input capability flags
// to distinguish keyboard from mouse.
var hidDrivers = map[string]bool{
	"usbhid":      true,
	"hid-generic": true,
	"hid":         true,
}

// driverClasses maps known kernel drivers straight to a device class.
var driverClasses = map[string]models.DeviceClass{
	"hub":           models.DeviceClassHub,
	"snd-usb-audio": models.DeviceClassAudio,
	"snd_usb_audio": models.DeviceClassAudio,
	"uvcvideo":      models.DeviceClassVideo,
	"uvc":           models.DeviceClassVideo,
	"usb-storage":   models.DeviceClassStorage,
	"uas":           models.DeviceClassStorage,
	"usblp":         models.DeviceClassPrinter,
	"btusb":         models.DeviceClassWireless,
	"ath3k":         models.DeviceClassWireless,
	"rtl8xxxu":      models.DeviceClassWireless,
	"cdc_acm":       models.DeviceClassComm,
	"cdc_ether":     models.DeviceClassComm,
	"ch341":         models.DeviceClassComm,
	"cp210x":        models.DeviceClassComm,
	"ftdi_sio":      models.DeviceClassComm,
	"pl2303":        models.DeviceClassComm,
}

// classCodes maps standard USB class codes (descriptor bytes) to a
// device class.
var classCodes = map[int64]models.DeviceClass{
	1:   models.DeviceClassAudio,
	2:   models.DeviceClassComm,
	3:   models.DeviceClassHIDOther,
	7:   models.DeviceClassPrinter,
	8:   models.DeviceClassStorage,
	9:   models.DeviceClassHub,
	14:  models.DeviceClassVideo,
	224: models.DeviceClassWireless,
}

// Classify infers the device class from the raw description. Rules apply
// in priority order, first match wins: known-driver table, udev type
// hints, input capability flags, raw descriptor class code, and finally
// per-interface inspection for composite devices that report class 0 at
// the top level.
func Classify(raw *RawDevice) models.DeviceClass {
	if class, ok := classifyByDriver(raw, raw.Property("DRIVER")); ok {
		return class
	}

	switch raw.Property("ID_TYPE") {
	case "video":
		return models.DeviceClassVideo
	case "audio":
		return models.DeviceClassAudio
	case "disk":
		return models.DeviceClassStorage
	}

	if class, ok := classifyByInputFlags(raw); ok {
		return class
	}

	if class, ok := classifyByClassCode(deviceClassCode(raw)); ok {
		return class
	}

	if class, ok := classifyInterfaces(raw); ok {
		return class
	}

	return models.DeviceClassUnknown
}

func classifyByDriver(raw *RawDevice, driver string) (models.DeviceClass, bool) {
	if driver == "" {
		return models.DeviceClassUnknown, false
	}

	if hidDrivers[driver] {
		if raw.Property("ID_INPUT_KEYBOARD") != "" {
			return models.DeviceClassHIDKeyboard, true
		}

		if raw.Property("ID_INPUT_MOUSE") != "" {
			return models.DeviceClassHIDMouse, true
		}

		return models.DeviceClassHIDOther, true
	}

	if class, ok := driverClasses[driver]; ok {
		return class, true
	}

	return models.DeviceClassUnknown, false
}

func classifyByInputFlags(raw *RawDevice) (models.DeviceClass, bool) {
	if raw.Property("ID_INPUT_KEYBOARD") != "" {
		return models.DeviceClassHIDKeyboard, true
	}

	if raw.Property("ID_INPUT_MOUSE") != "" {
		return models.DeviceClassHIDMouse, true
	}

	if raw.Property("ID_INPUT") != "" {
		return models.DeviceClassHIDOther, true
	}

	return models.DeviceClassUnknown, false
}

func classifyByClassCode(code string) (models.DeviceClass, bool) {
	if code == "" {
		return models.DeviceClassUnknown, false
	}

	value, err := strconv.ParseInt(code, 16, 32)
	if err != nil {
		return models.DeviceClassUnknown, false
	}

	class, ok := classCodes[value]

	return class, ok
}

// deviceClassCode returns the descriptor class byte, preferring the udev
// property and falling back to the sysfs attribute.
func deviceClassCode(raw *RawDevice) string {
	if code := raw.Property("bDeviceClass"); code != "" {
		return code
	}

	return raw.Attribute("bDeviceClass")
}

// classifyInterfaces re-applies the driver and class-code rules at
// interface granularity. Composite devices commonly report class 0 in
// the device descriptor; the interfaces carry the real class info.
func classifyInterfaces(raw *RawDevice) (models.DeviceClass, bool) {
	for _, iface := range raw.Interfaces {
		driver := iface.Property("DRIVER")

		if hidDrivers[driver] {
			for _, input := range iface.Inputs {
				if input.Property("ID_INPUT_KEYBOARD") != "" {
					return models.DeviceClassHIDKeyboard, true
				}

				if input.Property("ID_INPUT_MOUSE") != "" {
					return models.DeviceClassHIDMouse, true
				}
			}

			return models.DeviceClassHIDOther, true
		}

		if class, ok := driverClasses[driver]; ok {
			return class, true
		}

		code := iface.Property("bInterfaceClass")
		if code == "" {
			code = iface.Attribute("bInterfaceClass")
		}

		if class, ok := classifyByClassCode(code); ok {
			return class, true
		}
	}

	return models.DeviceClassUnknown, false
}
