/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mpv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/playback"
)

const (
	commandTimeout = time.Second

	// Seconds of demuxer cache ahead of the play head that count as
	// future data and enough data.
	futureDataAhead = 0.5
	enoughDataAhead = 2.0
)

// observed properties, by observe_property id.
var observed = []string{
	"time-pos",
	"pause",
	"paused-for-cache",
	"demuxer-cache-duration",
	"eof-reached",
	"duration",
}

// Handle is a PlayableHandle backed by one mpv instance.
type Handle struct {
	name   string
	conn   *Conn
	logger zerolog.Logger
	proc   *process

	mu             sync.Mutex
	loaded         bool
	timePos        float64
	paused         bool
	pausedForCache bool
	cacheAhead     float64
	eof            bool
	duration       float64
	failErr        error
	listeners      map[int]func(playback.HandleEvent)
	nextID         int

	queue *eventQueue
}

var (
	_ playback.PlayableHandle = (*Handle)(nil)
	_ playback.GainSetter     = (*Handle)(nil)
)

// Attach drives an mpv instance already listening on nc.
func Attach(ctx context.Context, nc net.Conn, name string, logger zerolog.Logger) (*Handle, error) {
	h := &Handle{
		name:      name,
		logger:    logger.With().Str("component", "mpv").Str("track", name).Logger(),
		paused:    true,
		listeners: make(map[int]func(playback.HandleEvent)),
	}
	h.queue = newEventQueue(h.deliver)
	h.conn = NewConn(nc, h.logger, h.onEvent)

	for i, prop := range observed {
		if _, err := h.conn.Command(ctx, "observe_property", i+1, prop); err != nil {
			h.queue.close()
			_ = h.conn.Close()
			return nil, fmt.Errorf("observe %s: %w", prop, err)
		}
	}
	go h.watchConn()
	return h, nil
}

// Name returns the track label.
func (h *Handle) Name() string { return h.name }

// Play unpauses and returns once mpv acknowledged.
func (h *Handle) Play(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if _, err := h.conn.Command(ctx, "set_property", "pause", false); err != nil {
		return fmt.Errorf("unpause %s: %w", h.name, err)
	}
	h.mu.Lock()
	h.paused = false
	h.mu.Unlock()
	return nil
}

// Pause pauses playback.
func (h *Handle) Pause() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if _, err := h.conn.Command(ctx, "set_property", "pause", true); err != nil {
		h.logger.Debug().Err(err).Msg("pause")
		return
	}
	h.mu.Lock()
	h.paused = true
	h.mu.Unlock()
}

// Paused reports the last known pause state.
func (h *Handle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

// Time returns the last observed play head position.
func (h *Handle) Time() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timePos
}

// SetTime seeks to seconds.
func (h *Handle) SetTime(seconds float64) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if _, err := h.conn.Command(ctx, "seek", seconds, "absolute+exact"); err != nil {
		h.logger.Debug().Err(err).Float64("to", seconds).Msg("seek")
		return
	}
	h.mu.Lock()
	h.timePos = seconds
	h.eof = false
	h.mu.Unlock()
}

// Duration returns the media length reported by mpv.
func (h *Handle) Duration() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.duration
}

// ReadinessLevel maps mpv's cache state onto the readiness scale.
func (h *Handle) ReadinessLevel() playback.ReadinessLevel {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.levelLocked()
}

func (h *Handle) levelLocked() playback.ReadinessLevel {
	switch {
	case !h.loaded:
		return playback.HaveNothing
	case h.pausedForCache:
		return playback.HaveCurrentData
	case h.eof || h.cacheAhead >= enoughDataAhead:
		return playback.HaveEnoughData
	case h.cacheAhead >= futureDataAhead:
		return playback.HaveFutureData
	default:
		return playback.HaveMetadata
	}
}

// SetGain sets mpv's volume from a linear amplitude gain in [0, 1].
func (h *Handle) SetGain(gain float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	_, err := h.conn.Command(ctx, "set_property", "volume", volumeFor(gain))
	return err
}

// volumeFor maps a linear amplitude onto mpv's volume property, which mpv
// applies on a cubic curve: amplitude = (volume/100)^3.
func volumeFor(gain float64) float64 {
	gain = math.Max(0, math.Min(1, gain))
	return math.Cbrt(gain) * 100
}

// Err returns the fatal error the handle failed with, if any.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failErr
}

// Subscribe registers fn. Listeners run on a dedicated goroutine. A handle
// that already failed replays its error to fn, so a failure that happened
// before anyone listened still reaches the new listener.
func (h *Handle) Subscribe(fn func(playback.HandleEvent)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	failErr := h.failErr
	h.mu.Unlock()
	if failErr != nil {
		h.queue.pushTo(fn, playback.HandleEvent{Kind: playback.EventError, Err: failErr})
	}
	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// Close quits mpv and releases the connection.
func (h *Handle) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	_, _ = h.conn.Command(ctx, "quit")
	cancel()

	h.mu.Lock()
	h.listeners = make(map[int]func(playback.HandleEvent))
	h.mu.Unlock()

	h.queue.close()
	err := h.conn.Close()
	if h.proc != nil {
		err = errors.Join(err, h.proc.stop())
	}
	return err
}

// onEvent runs on the IPC read loop. It updates state and queues the
// resulting handle events; it never waits on a listener.
func (h *Handle) onEvent(ev Event) {
	h.mu.Lock()
	before := h.levelLocked()
	var out []playback.HandleEvent

	switch ev.Name {
	case "property-change":
		switch ev.Property {
		case "time-pos":
			if v, ok := decodeFloat(ev.Data); ok {
				h.timePos = v
				out = append(out, playback.HandleEvent{Kind: playback.EventTimeUpdate})
			}
		case "pause":
			if v, ok := decodeBool(ev.Data); ok {
				h.paused = v
			}
		case "paused-for-cache":
			if v, ok := decodeBool(ev.Data); ok {
				h.pausedForCache = v
			}
		case "demuxer-cache-duration":
			if v, ok := decodeFloat(ev.Data); ok {
				h.cacheAhead = v
			}
		case "eof-reached":
			if v, ok := decodeBool(ev.Data); ok {
				wasEOF := h.eof
				h.eof = v
				if v && !wasEOF {
					out = append(out, playback.HandleEvent{Kind: playback.EventEnded})
				}
			}
		case "duration":
			if v, ok := decodeFloat(ev.Data); ok {
				h.duration = v
			}
		}
	case "file-loaded":
		if !h.loaded {
			h.loaded = true
			out = append(out, playback.HandleEvent{Kind: playback.EventLoadedMetadata})
		}
	case "end-file":
		if ev.Reason == "error" && h.failErr == nil {
			h.failErr = fmt.Errorf("mpv %s: %s", h.name, ev.FileError)
			out = append(out, playback.HandleEvent{Kind: playback.EventError, Err: h.failErr})
		}
	}

	after := h.levelLocked()
	h.mu.Unlock()

	switch {
	case before < playback.HaveFutureData && after >= playback.HaveFutureData:
		out = append(out, playback.HandleEvent{Kind: playback.EventCanPlay})
	case before >= playback.HaveFutureData && after < playback.HaveFutureData:
		out = append(out, playback.HandleEvent{Kind: playback.EventWaiting})
	}
	for _, e := range out {
		h.queue.push(e)
	}
}

// watchConn reports a dead IPC connection as a load error.
func (h *Handle) watchConn() {
	<-h.conn.Done()
	h.mu.Lock()
	first := h.failErr == nil
	if first {
		h.failErr = fmt.Errorf("mpv %s: %w", h.name, ErrIPCClosed)
	}
	err := h.failErr
	h.mu.Unlock()
	if first {
		h.queue.push(playback.HandleEvent{Kind: playback.EventError, Err: err})
	}
}

func (h *Handle) deliver(item queuedEvent) {
	if item.to != nil {
		item.to(item.ev)
		return
	}
	ev := item.ev
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

func decodeFloat(raw json.RawMessage) (float64, bool) {
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return 0, false
	}
	return *v, true
}

func decodeBool(raw json.RawMessage) (bool, bool) {
	var v *bool
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return false, false
	}
	return *v, true
}

// queuedEvent is one pending delivery; to, when set, limits it to a single
// listener.
type queuedEvent struct {
	ev playback.HandleEvent
	to func(playback.HandleEvent)
}

// eventQueue delivers events in order on its own goroutine without ever
// blocking the producer.
type eventQueue struct {
	mu      sync.Mutex
	pending []queuedEvent
	wake    chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func newEventQueue(deliver func(queuedEvent)) *eventQueue {
	q := &eventQueue{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	go q.run(deliver)
	return q
}

func (q *eventQueue) push(ev playback.HandleEvent) {
	q.pushTo(nil, ev)
}

func (q *eventQueue) pushTo(to func(playback.HandleEvent), ev playback.HandleEvent) {
	q.mu.Lock()
	q.pending = append(q.pending, queuedEvent{ev: ev, to: to})
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) close() {
	q.once.Do(func() { close(q.stop) })
}

func (q *eventQueue) run(deliver func(queuedEvent)) {
	for {
		select {
		case <-q.stop:
			return
		case <-q.wake:
		}
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()
		for _, ev := range batch {
			deliver(ev)
		}
	}
}
