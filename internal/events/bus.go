/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventSessionLoaded EventType = "player.session_loaded"
	EventReady         EventType = "player.ready"
	EventBuffering     EventType = "player.buffering"
	EventPlayback      EventType = "player.playback"
	EventSeek          EventType = "player.seek"
	EventTrackError    EventType = "player.track_error"
	EventDegraded      EventType = "player.degraded"
	EventVocalMode     EventType = "player.vocal_mode"
	EventPlayerMode    EventType = "player.mode"
	EventEnded         EventType = "player.ended"
)

// PlayerEvents lists every event type the player publishes.
var PlayerEvents = []EventType{
	EventSessionLoaded,
	EventReady,
	EventBuffering,
	EventPlayback,
	EventSeek,
	EventTrackError,
	EventDegraded,
	EventVocalMode,
	EventPlayerMode,
	EventEnded,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is anything events can be published to.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers miss events rather
// than block the publisher. Sends happen under the read lock so Unsubscribe
// never closes a channel mid-send.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}
