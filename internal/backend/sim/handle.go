/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package sim provides an in-memory PlayableHandle whose readiness, errors
// and clock are driven by the caller. It backs tests and dry runs of the
// control API.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Dzero1996/Nebula-KTV/internal/clock"
	"github.com/Dzero1996/Nebula-KTV/internal/playback"
)

// ErrClosed is returned by Play after Close.
var ErrClosed = errors.New("sim: handle closed")

// Handle simulates one media element. Position advances with the clock while
// playing. Listeners are only invoked from the driver methods (SetReadiness,
// Fail, End, Tick), never from Play, Pause or SetTime.
type Handle struct {
	name  string
	clock clock.Clock

	mu        sync.Mutex
	level     playback.ReadinessLevel
	paused    bool
	pos       float64
	anchor    time.Time
	rate      float64
	duration  float64
	gain      float64
	playErr   error
	closed    bool
	plays     int
	seeks     int
	listeners map[int]func(playback.HandleEvent)
	nextID    int
}

var (
	_ playback.PlayableHandle = (*Handle)(nil)
	_ playback.GainSetter     = (*Handle)(nil)
)

// New creates a paused handle with nothing loaded.
func New(name string, clk clock.Clock, duration float64) *Handle {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Handle{
		name:      name,
		clock:     clk,
		paused:    true,
		rate:      1,
		duration:  duration,
		gain:      1,
		listeners: make(map[int]func(playback.HandleEvent)),
	}
}

// Name returns the label given at construction.
func (h *Handle) Name() string { return h.name }

// Play resumes the simulated clock.
func (h *Handle) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if h.playErr != nil {
		return h.playErr
	}
	h.plays++
	if h.paused {
		h.anchor = h.clock.Now()
		h.paused = false
	}
	return nil
}

// Pause freezes the position.
func (h *Handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused {
		return
	}
	h.pos = h.positionLocked()
	h.paused = true
}

// Paused reports whether the handle is paused.
func (h *Handle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// Time returns the current position in seconds.
func (h *Handle) Time() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.positionLocked()
}

// SetTime seeks to seconds.
func (h *Handle) SetTime(seconds float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos = seconds
	h.anchor = h.clock.Now()
	h.seeks++
}

// Duration returns the media length in seconds.
func (h *Handle) Duration() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.duration
}

// ReadinessLevel returns the simulated buffer level.
func (h *Handle) ReadinessLevel() playback.ReadinessLevel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

// Subscribe registers fn for handle events.
func (h *Handle) Subscribe(fn func(playback.HandleEvent)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// Close drops every listener.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.paused = true
	h.listeners = make(map[int]func(playback.HandleEvent))
	return nil
}

// SetGain records the output gain.
func (h *Handle) SetGain(gain float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gain = gain
	return nil
}

// Gain returns the last gain set.
func (h *Handle) Gain() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gain
}

// Plays returns how many times Play succeeded.
func (h *Handle) Plays() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.plays
}

// Seeks returns how many times SetTime was called.
func (h *Handle) Seeks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seeks
}

// SetRate changes how fast the position advances relative to the clock.
// Rates other than 1 simulate drift.
func (h *Handle) SetRate(rate float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos = h.positionLocked()
	h.anchor = h.clock.Now()
	h.rate = rate
}

// SetPlayError makes subsequent Play calls fail with err.
func (h *Handle) SetPlayError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playErr = err
}

// SetReadiness moves the buffer level and emits the events a media element
// would: loadedmetadata when metadata first arrives, canplay when crossing
// into HaveFutureData, waiting when dropping below it.
func (h *Handle) SetReadiness(level playback.ReadinessLevel) {
	h.mu.Lock()
	prev := h.level
	h.level = level
	h.mu.Unlock()

	if prev < playback.HaveMetadata && level >= playback.HaveMetadata {
		h.emit(playback.HandleEvent{Kind: playback.EventLoadedMetadata})
	}
	switch {
	case prev < playback.HaveFutureData && level >= playback.HaveFutureData:
		h.emit(playback.HandleEvent{Kind: playback.EventCanPlay})
	case prev >= playback.HaveFutureData && level < playback.HaveFutureData:
		h.emit(playback.HandleEvent{Kind: playback.EventWaiting})
	}
}

// Fail reports a fatal load error.
func (h *Handle) Fail(err error) {
	h.emit(playback.HandleEvent{Kind: playback.EventError, Err: err})
}

// End reports the end of the media.
func (h *Handle) End() {
	h.mu.Lock()
	h.pos = h.duration
	h.paused = true
	h.mu.Unlock()
	h.emit(playback.HandleEvent{Kind: playback.EventEnded})
}

// Tick reports a position update.
func (h *Handle) Tick() {
	h.emit(playback.HandleEvent{Kind: playback.EventTimeUpdate})
}

func (h *Handle) emit(ev playback.HandleEvent) {
	h.mu.Lock()
	fns := make([]func(playback.HandleEvent), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (h *Handle) positionLocked() float64 {
	if h.paused {
		return h.pos
	}
	elapsed := h.clock.Now().Sub(h.anchor).Seconds()
	p := h.pos + elapsed*h.rate
	if h.duration > 0 && p > h.duration {
		p = h.duration
	}
	return p
}
