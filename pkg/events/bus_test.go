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

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubscope/hubscope/pkg/models"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(nil)

	first, cancelFirst := bus.Subscribe()
	defer cancelFirst()

	second, cancelSecond := bus.Subscribe()
	defer cancelSecond()

	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(models.Event{Type: models.EventDeviceAdded, PortPath: "3-2"})

	for _, ch := range []<-chan models.Event{first, second} {
		select {
		case event := <-ch:
			assert.Equal(t, models.EventDeviceAdded, event.Type)
			assert.Equal(t, "3-2", event.PortPath)
			assert.False(t, event.Timestamp.IsZero())
		default:
			require.Fail(t, "expected a buffered event")
		}
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus(nil)

	ch, cancel := bus.Subscribe()
	cancel()

	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Double cancel is a no-op.
	cancel()
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(nil)
	bus.buffer = 1

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(models.Event{Type: models.EventDeviceAdded, PortPath: "first"})
	bus.Publish(models.Event{Type: models.EventDeviceAdded, PortPath: "second"})

	event := <-ch
	assert.Equal(t, "first", event.PortPath)

	select {
	case dropped := <-ch:
		require.Failf(t, "unexpected event", "got %q", dropped.PortPath)
	default:
	}
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(nil)

	// Must not panic or block.
	bus.Publish(models.Event{Type: models.EventDeviceRemoved})
}
