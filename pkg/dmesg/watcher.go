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

package dmesg

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hubscope/hubscope/pkg/events"
	"github.com/hubscope/hubscope/pkg/logger"
	"github.com/hubscope/hubscope/pkg/models"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultTailLines    = 200
	recentErrorCap      = 500
	dmesgTimeout        = 5 * time.Second
)

// Annotator is the slice of the state store the watcher writes error
// annotations into.
type Annotator interface {
	AnnotateError(portPath, message string) bool
}

// Watcher polls the kernel log for USB errors, annotates matching
// devices and publishes device_error events.
type Watcher struct {
	store    Annotator
	bus      *events.Bus
	interval time.Duration
	logger   logger.Logger

	mu     sync.Mutex
	seen   map[string]bool
	recent []Error
}

// NewWatcher creates a kernel-log watcher.
func NewWatcher(store Annotator, bus *events.Bus, log logger.Logger) *Watcher {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Watcher{
		store:    store,
		bus:      bus,
		interval: defaultPollInterval,
		logger:   log.WithComponent("dmesg"),
		seen:     make(map[string]bool),
	}
}

// Run polls until ctx is cancelled. An unreadable kernel log is logged
// once per poll and otherwise tolerated: error annotation is best
// effort, never required for monitoring.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// Recent returns the buffered errors, newest last.
func (w *Watcher) Recent() []Error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]Error(nil), w.recent...)
}

func (w *Watcher) poll(ctx context.Context) {
	lines, err := readKernelLog(ctx, defaultTailLines)
	if err != nil {
		w.logger.Debug().Err(err).Msg("Kernel log unavailable")
		return
	}

	w.ingest(lines)
}

// ingest parses log lines, deduplicates against lines already handled
// and annotates newly failing devices.
func (w *Watcher) ingest(lines []string) {
	for _, line := range lines {
		parsed := ParseLine(line)
		if parsed == nil {
			continue
		}

		w.mu.Lock()

		if w.seen[parsed.RawLine] {
			w.mu.Unlock()
			continue
		}

		w.seen[parsed.RawLine] = true

		w.recent = append(w.recent, *parsed)
		if len(w.recent) > recentErrorCap {
			w.recent = w.recent[len(w.recent)-recentErrorCap:]
		}

		w.mu.Unlock()

		if parsed.Severity != SeverityError {
			continue
		}

		if w.store != nil && w.store.AnnotateError(parsed.PortPath, parsed.Message) && w.bus != nil {
			w.bus.Publish(models.Event{
				Type:     models.EventDeviceError,
				PortPath: parsed.PortPath,
				Error:    parsed.Message,
			})
		}
	}
}

// readKernelLog shells out to dmesg and returns the last n lines.
func readKernelLog(ctx context.Context, n int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dmesgTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "dmesg").Output()
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return lines, nil
}
