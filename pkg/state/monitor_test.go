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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubscope/hubscope/pkg/usb"
)

// scriptedSource replays a fixed notification sequence, then blocks
// until cancellation.
type scriptedSource struct {
	notifications []usb.Notification
}

func (s *scriptedSource) List(_ context.Context) ([]*usb.RawDevice, error) {
	return nil, nil
}

func (s *scriptedSource) Watch(ctx context.Context) (<-chan usb.Notification, error) {
	ch := make(chan usb.Notification)

	go func() {
		defer close(ch)

		for _, notification := range s.notifications {
			select {
			case ch <- notification:
			case <-ctx.Done():
				return
			}
		}

		<-ctx.Done()
	}()

	return ch, nil
}

func TestMonitorAppliesNotifications(t *testing.T) {
	source := &scriptedSource{notifications: []usb.Notification{
		{
			Action: usb.ActionAdd,
			Device: rawUSBDevice("/sys/devices/pci0000:00/a/usb3/3-2", "003", "004", nil),
		},
		{
			Action: usb.ActionAdd,
			Device: rawUSBDevice("/sys/devices/pci0000:00/a/usb3/3-1", "003", "005", nil),
		},
		{Action: usb.ActionRemove, PortPath: "3-1"},
	}}

	store := newTestStore(source, nil)
	monitor := NewMonitor(store, source, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() { done <- monitor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return store.Has("3-2") && !store.Has("3-1")
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		require.Fail(t, "monitor did not stop on cancellation")
	}
}

func TestMonitorStopsOnCancelledContext(t *testing.T) {
	store := newTestStore(&fakeSource{}, nil)
	monitor := NewMonitor(store, &fakeSource{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, monitor.Run(ctx))
}
