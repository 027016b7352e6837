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

// Package usbids resolves vendor and product names from the system
// usb.ids database.
package usbids

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/hubscope/hubscope/pkg/logger"
)

// wellKnownPaths are the usual install locations of usb.ids.
var wellKnownPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/usr/share/misc/usb.ids",
	"/usr/share/usb.ids",
	"/var/lib/usbutils/usb.ids",
}

// Database maps vendor/product IDs to names. Loading is lazy and
// failure-tolerant: a host without usb.ids simply resolves nothing.
type Database struct {
	mu       sync.RWMutex
	loaded   bool
	vendors  map[string]string
	products map[string]map[string]string
	path     string
	logger   logger.Logger
}

// New creates a Database. path may be empty to probe the well-known
// locations on first use.
func New(path string, log logger.Logger) *Database {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Database{
		vendors:  make(map[string]string),
		products: make(map[string]map[string]string),
		path:     path,
		logger:   log.WithComponent("usbids"),
	}
}

// Load parses the database file. Safe to call more than once; only the
// first call does work.
func (db *Database) Load() bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.loaded {
		return true
	}

	db.loaded = true

	path := db.path
	if path == "" {
		for _, candidate := range wellKnownPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path == "" {
		db.logger.Warn().Msg("USB ID database not found")
		return false
	}

	file, err := os.Open(path)
	if err != nil {
		db.logger.Warn().Err(err).Str("path", path).Msg("Failed to open USB ID database")
		return false
	}
	defer file.Close()

	db.parse(file)

	db.logger.Info().Str("path", path).Int("vendors", len(db.vendors)).Msg("USB ID database loaded")

	return true
}

// parse reads the usb.ids format: vendor lines are "XXXX  Name",
// product lines are tab-indented "YYYY  Name" under the current vendor.
// The class-code tables at the end of the file start with non-hex
// markers and terminate vendor context naturally.
func (db *Database) parse(file *os.File) {
	scanner := bufio.NewScanner(file)

	currentVendor := ""

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "\t") {
			if currentVendor == "" {
				continue
			}

			id, name, ok := splitIDLine(strings.TrimPrefix(line, "\t"))
			if !ok {
				continue
			}

			if db.products[currentVendor] == nil {
				db.products[currentVendor] = make(map[string]string)
			}

			db.products[currentVendor][id] = name

			continue
		}

		id, name, ok := splitIDLine(line)
		if !ok {
			currentVendor = ""
			continue
		}

		currentVendor = id
		db.vendors[id] = name
	}
}

// splitIDLine parses "XXXX  Name" where XXXX is 4 hex digits.
func splitIDLine(line string) (id, name string, ok bool) {
	if len(line) < 4 || !isHex(line[:4]) {
		return "", "", false
	}

	return strings.ToLower(line[:4]), strings.TrimSpace(line[4:]), true
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}

	return true
}

// VendorName resolves a vendor ID, "" when unknown.
func (db *Database) VendorName(vendorID string) string {
	db.Load()

	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.vendors[strings.ToLower(vendorID)]
}

// ProductName resolves a vendor/product pair, "" when unknown.
func (db *Database) ProductName(vendorID, productID string) string {
	db.Load()

	db.mu.RLock()
	defer db.mu.RUnlock()

	products := db.products[strings.ToLower(vendorID)]
	if products == nil {
		return ""
	}

	return products[strings.ToLower(productID)]
}
