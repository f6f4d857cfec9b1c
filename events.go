/*
Copyright 2025 Leadflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package leadflow

import "sync"

// eventBuffer is the per-subscriber channel depth. A subscriber that falls
// further behind than this loses events rather than blocking the engine.
const eventBuffer = 64

// Broker fans engine events out to in-process subscribers. It backs the
// operator feed: state changes, terminal task failures and agent outages
// are published here in addition to the webhook queue.
type Broker struct {
	mu   sync.Mutex
	subs map[chan WebhookEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan WebhookEvent]struct{})}
}

// Subscribe registers a new subscriber and returns its event channel plus a
// cancel function. Cancel closes the channel and must be called exactly once.
func (b *Broker) Subscribe() (<-chan WebhookEvent, func()) {
	ch := make(chan WebhookEvent, eventBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every live subscriber without blocking.
// Subscribers with a full buffer miss the event.
func (b *Broker) Publish(event WebhookEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Events exposes the engine's event broker for operator-feed subscribers.
func (l *Leadflow) Events() *Broker {
	return l.broker
}
