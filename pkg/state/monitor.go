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

package state

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hubscope/hubscope/pkg/logger"
	"github.com/hubscope/hubscope/pkg/usb"
)

const (
	monitorInitialBackoff = 500 * time.Millisecond
	monitorMaxBackoff     = 30 * time.Second
)

var errWatchClosed = errors.New("notification stream closed")

// Monitor is the single long-lived worker that applies the kernel
// notification stream to the store. It is the sole source of add/remove
// mutations while running; a broken stream is reopened with backoff
// rather than terminating monitoring.
type Monitor struct {
	store  *Store
	source usb.Source
	logger logger.Logger
}

// NewMonitor creates the notification worker.
func NewMonitor(store *Store, source usb.Source, log logger.Logger) *Monitor {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Monitor{
		store:  store,
		source: source,
		logger: log.WithComponent("monitor"),
	}
}

// Run consumes notifications until ctx is cancelled. Each time the
// stream fails it is reopened with exponential backoff; a reopen is
// preceded by a rescan so removals missed during the gap are not leaked.
func (m *Monitor) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = monitorInitialBackoff
	bo.MaxInterval = monitorMaxBackoff

	first := true

	operation := func() (struct{}, error) {
		if !first {
			if _, err := m.store.Rescan(ctx); err != nil {
				m.logger.Warn().Err(err).Msg("Rescan after stream restart failed")
			}
		}

		first = false

		err := m.pump(ctx)
		if err == nil {
			return struct{}{}, nil
		}

		if errors.Is(err, context.Canceled) {
			return struct{}{}, backoff.Permanent(err)
		}

		m.logger.Warn().Err(err).Msg("Notification stream failed, retrying")

		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(0))
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// pump applies one stream's worth of notifications. Returns nil only on
// context cancellation.
func (m *Monitor) pump(ctx context.Context) error {
	notifications, err := m.source.Watch(ctx)
	if err != nil {
		return err
	}

	m.logger.Info().Msg("USB monitoring started")

	for {
		select {
		case <-ctx.Done():
			return nil

		case notification, ok := <-notifications:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}

				return errWatchClosed
			}

			switch notification.Action {
			case usb.ActionAdd:
				m.store.ApplyAdd(notification.Device)
			case usb.ActionRemove:
				m.store.ApplyRemove(notification.PortPath)
			}
		}
	}
}
