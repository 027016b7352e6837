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

// Package dmesg extracts USB error annotations from kernel log text.
package dmesg

import (
	"regexp"
	"strings"
	"time"
)

// Severity of a parsed kernel message.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Error is one USB-related kernel log finding, addressed by port path.
type Error struct {
	Timestamp time.Time `json:"timestamp"`
	PortPath  string    `json:"port_path"`
	Message   string    `json:"message"`
	RawLine   string    `json:"raw_line"`
	Severity  string    `json:"severity"`
}

type pattern struct {
	re          *regexp.Regexp
	description string
}

// patterns match the kernel's USB error formats. The first capture
// group is always the port-path-ish token.
var patterns = []pattern{
	{regexp.MustCompile(`usb (\d+-[\d.]+): device descriptor read.*, error (-?\d+)`), "Device descriptor read failed"},
	{regexp.MustCompile(`usb (\d+-[\d.]+): device not accepting address .*, error (-?\d+)`), "Device not accepting address"},
	{regexp.MustCompile(`usb (\d+-[\d.]+): USB disconnect, device number (\d+)`), "Device disconnected"},
	{regexp.MustCompile(`usb (\d+-[\d.]+): can't .*, error (-?\d+)`), "Device error"},
	{regexp.MustCompile(`usb (usb\d+-port\d+): disabled by hub \(EMI\?\)`), "Port disabled (possible EMI)"},
	{regexp.MustCompile(`usb (usb\d+-port\d+): cannot reset`), "Port cannot reset"},
	{regexp.MustCompile(`usb (usb\d+-port\d+): unable to enumerate USB device`), "Cannot enumerate device"},
	{regexp.MustCompile(`usb (usb\d+-port\d+): attempt power cycle`), "Power cycle attempted"},
	{regexp.MustCompile(`usb (usb\d+-port\d+): connect-debounce failed`), "Connect debounce failed"},
	{regexp.MustCompile(`usb (\d+-[\d.]+)-port(\d+): disabled by hub`), "Port disabled by hub"},
	{regexp.MustCompile(`usb (\d+-[\d.]+)-port(\d+): cannot`), "Port error"},
	{regexp.MustCompile(`usb (\d+-[\d.]+): over-current`), "Over-current detected"},
	{regexp.MustCompile(`usb (\d+-[\d.]+): reset.*failed`), "Reset failed"},
}

// ParseLine extracts a USB error from one kernel log line, nil when the
// line matches no known pattern.
func ParseLine(line string) *Error {
	// Cheap pre-filter: the patterns all contain "usb".
	if !strings.Contains(strings.ToLower(line), "usb") {
		return nil
	}

	for _, p := range patterns {
		match := p.re.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		return &Error{
			Timestamp: time.Now(),
			PortPath:  normalizePortPath(match[1]),
			Message:   p.description,
			RawLine:   strings.TrimSpace(line),
			Severity:  severityOf(line),
		}
	}

	return nil
}

// normalizePortPath converts the hub-port form "usb5-port1" into the
// device form "5-1" so annotations key into the device map.
func normalizePortPath(portPath string) string {
	if !strings.HasPrefix(portPath, "usb") || !strings.Contains(portPath, "-port") {
		return portPath
	}

	bus, port, ok := strings.Cut(strings.TrimPrefix(portPath, "usb"), "-port")
	if !ok {
		return portPath
	}

	return bus + "-" + port
}

func severityOf(line string) string {
	lower := strings.ToLower(line)

	switch {
	case strings.Contains(lower, "disconnect"):
		return SeverityInfo
	case strings.Contains(lower, "warning"):
		return SeverityWarning
	default:
		return SeverityError
	}
}
