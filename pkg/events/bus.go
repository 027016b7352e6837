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

// Package events provides the topology event bus. Each subscriber gets
// its own buffered channel so a stalled consumer cannot block the
// notification worker or other subscribers.
package events

import (
	"sync"
	"time"

	"github.com/hubscope/hubscope/pkg/logger"
	"github.com/hubscope/hubscope/pkg/models"
)

const defaultSubscriberBuffer = 64

// Bus fans topology events out to subscribers.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]chan models.Event
	nextID      int
	buffer      int
	logger      logger.Logger
}

// NewBus creates an event bus.
func NewBus(log logger.Logger) *Bus {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Bus{
		subscribers: make(map[int]chan models.Event),
		buffer:      defaultSubscriberBuffer,
		logger:      log.WithComponent("events"),
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// removes the subscription and closes the channel.
func (b *Bus) Subscribe() (<-chan models.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan models.Event, b.buffer)
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if ch, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(ch)
		}
	}

	return ch, cancel
}

// Publish delivers an event to every subscriber. Delivery is
// non-blocking: a subscriber whose buffer is full misses the event and a
// warning is logged.
func (b *Bus) Publish(event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.logger.Warn().
				Int("subscriber", id).
				Str("event_type", string(event.Type)).
				Msg("Dropping event for slow subscriber")
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subscribers)
}
