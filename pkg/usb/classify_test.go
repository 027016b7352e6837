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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hubscope/hubscope/pkg/models"
)

func TestClassifyDriverTable(t *testing.T) {
	tests := []struct {
		name     string
		driver   string
		expected models.DeviceClass
	}{
		{"hub driver", "hub", models.DeviceClassHub},
		{"audio driver", "snd-usb-audio", models.DeviceClassAudio},
		{"video driver", "uvcvideo", models.DeviceClassVideo},
		{"storage driver", "usb-storage", models.DeviceClassStorage},
		{"uas storage driver", "uas", models.DeviceClassStorage},
		{"printer driver", "usblp", models.DeviceClassPrinter},
		{"bluetooth driver", "btusb", models.DeviceClassWireless},
		{"serial driver", "ftdi_sio", models.DeviceClassComm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := &RawDevice{Properties: map[string]string{"DRIVER": tt.driver}}
			assert.Equal(t, tt.expected, Classify(raw))
		})
	}
}

func TestClassifyHIDDriverUsesInputFlags(t *testing.T) {
	keyboard := &RawDevice{Properties: map[string]string{
		"DRIVER":            "usbhid",
		"ID_INPUT_KEYBOARD": "1",
	}}
	assert.Equal(t, models.DeviceClassHIDKeyboard, Classify(keyboard))

	mouse := &RawDevice{Properties: map[string]string{
		"DRIVER":         "hid-generic",
		"ID_INPUT_MOUSE": "1",
	}}
	assert.Equal(t, models.DeviceClassHIDMouse, Classify(mouse))

	other := &RawDevice{Properties: map[string]string{"DRIVER": "usbhid"}}
	assert.Equal(t, models.DeviceClassHIDOther, Classify(other))
}

func TestClassifyDriverBeatsClassCode(t *testing.T) {
	// A hub driver wins even when the descriptor claims storage.
	raw := &RawDevice{
		Properties: map[string]string{"DRIVER": "hub"},
		Attributes: map[string]string{"bDeviceClass": "08"},
	}

	assert.Equal(t, models.DeviceClassHub, Classify(raw))
}

func TestClassifyIDType(t *testing.T) {
	tests := []struct {
		idType   string
		expected models.DeviceClass
	}{
		{"video", models.DeviceClassVideo},
		{"audio", models.DeviceClassAudio},
		{"disk", models.DeviceClassStorage},
	}

	for _, tt := range tests {
		raw := &RawDevice{Properties: map[string]string{"ID_TYPE": tt.idType}}
		assert.Equal(t, tt.expected, Classify(raw))
	}
}

func TestClassifyInputFlagsWithoutDriver(t *testing.T) {
	keyboard := &RawDevice{Properties: map[string]string{"ID_INPUT_KEYBOARD": "1"}}
	assert.Equal(t, models.DeviceClassHIDKeyboard, Classify(keyboard))

	mouse := &RawDevice{Properties: map[string]string{"ID_INPUT_MOUSE": "1"}}
	assert.Equal(t, models.DeviceClassHIDMouse, Classify(mouse))

	generic := &RawDevice{Properties: map[string]string{"ID_INPUT": "1"}}
	assert.Equal(t, models.DeviceClassHIDOther, Classify(generic))
}

func TestClassifyClassCode(t *testing.T) {
	tests := []struct {
		code     string
		expected models.DeviceClass
	}{
		{"01", models.DeviceClassAudio},
		{"02", models.DeviceClassComm},
		{"03", models.DeviceClassHIDOther},
		{"07", models.DeviceClassPrinter},
		{"08", models.DeviceClassStorage},
		{"09", models.DeviceClassHub},
		{"0e", models.DeviceClassVideo},
		{"e0", models.DeviceClassWireless},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			raw := &RawDevice{Attributes: map[string]string{"bDeviceClass": tt.code}}
			assert.Equal(t, tt.expected, Classify(raw))
		})
	}
}

func TestClassifyClassCodePrefersProperty(t *testing.T) {
	raw := &RawDevice{
		Properties: map[string]string{"bDeviceClass": "09"},
		Attributes: map[string]string{"bDeviceClass": "08"},
	}

	assert.Equal(t, models.DeviceClassHub, Classify(raw))
}

func TestClassifyInterfaceFallback(t *testing.T) {
	// Composite device: class 0 at the device level, storage interface.
	raw := &RawDevice{
		Attributes: map[string]string{"bDeviceClass": "00"},
		Interfaces: []*RawDevice{
			{Attributes: map[string]string{"bInterfaceClass": "08"}},
		},
	}

	assert.Equal(t, models.DeviceClassStorage, Classify(raw))
}

func TestClassifyInterfaceHIDChecksInputs(t *testing.T) {
	raw := &RawDevice{
		Interfaces: []*RawDevice{
			{
				Properties: map[string]string{"DRIVER": "usbhid"},
				Inputs: []*RawDevice{
					{Properties: map[string]string{"ID_INPUT_MOUSE": "1"}},
				},
			},
		},
	}

	assert.Equal(t, models.DeviceClassHIDMouse, Classify(raw))
}

func TestClassifyUnknown(t *testing.T) {
	assert.Equal(t, models.DeviceClassUnknown, Classify(&RawDevice{}))

	garbage := &RawDevice{Attributes: map[string]string{"bDeviceClass": "zz"}}
	assert.Equal(t, models.DeviceClassUnknown, Classify(garbage))

	unmapped := &RawDevice{Attributes: map[string]string{"bDeviceClass": "0a"}}
	assert.Equal(t, models.DeviceClassUnknown, Classify(unmapped))
}
