/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/clock"
	"github.com/Dzero1996/Nebula-KTV/internal/telemetry"
)

// DefaultCrossfadeDuration is the length of a vocal-mode switch.
const DefaultCrossfadeDuration = 500 * time.Millisecond

// FadeState represents the crossfade engine state.
type FadeState string

const (
	FadeStateIdle   FadeState = "idle"
	FadeStateFading FadeState = "fading"
)

// CalculateCrossfadeGains returns the gains at progress through a linear
// crossfade. Progress is clamped to [0, 1]. Fading from original yields
// (1-p, p); fading from instrumental yields the mirror.
func CalculateCrossfadeGains(progress float64, fromOriginal bool) GainPair {
	p := clampUnit(progress)
	if fromOriginal {
		return GainPair{Original: 1 - p, Instrumental: p}
	}
	return GainPair{Original: p, Instrumental: 1 - p}
}

// CrossfadeEngine is the only writer of an AudioSession's gains.
type CrossfadeEngine struct {
	session  *AudioSession
	clock    clock.Clock
	duration time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	state   FadeState
	target  VocalMode
	pending clock.Timer
	done    chan struct{}
}

// NewCrossfadeEngine creates an engine driving session. A non-positive
// duration selects DefaultCrossfadeDuration.
func NewCrossfadeEngine(session *AudioSession, duration time.Duration, logger zerolog.Logger) *CrossfadeEngine {
	if duration <= 0 {
		duration = DefaultCrossfadeDuration
	}
	return &CrossfadeEngine{
		session:  session,
		clock:    session.clock,
		duration: duration,
		logger:   logger.With().Str("component", "crossfade").Str("session_id", session.id).Logger(),
		state:    FadeStateIdle,
		target:   VocalOriginal,
	}
}

// Duration returns the configured crossfade length.
func (e *CrossfadeEngine) Duration() time.Duration { return e.duration }

// State returns the current fade state.
func (e *CrossfadeEngine) State() FadeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Target returns the mode the engine is fading (or has faded) to.
func (e *CrossfadeEngine) Target() VocalMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.target
}

// Pending returns the done channel of the in-flight crossfade toward
// target, or nil when no such fade is running.
func (e *CrossfadeEngine) Pending(target VocalMode) <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done == nil || e.target != target {
		return nil
	}
	return e.done
}

// Start ramps the gains linearly from their current values to the endpoint
// for target. Any in-flight crossfade is cancelled first and its done channel
// closed. The returned channel closes once the duration has elapsed or the
// fade is superseded. ok is false when deg does not allow the target track.
func (e *CrossfadeEngine) Start(target VocalMode, deg DegradationState) (done <-chan struct{}, ok bool) {
	if (target == VocalInstrumental && !deg.InstrumentalAvailable) ||
		(target == VocalOriginal && !deg.OriginalAvailable) {
		telemetry.CrossfadesTotal.WithLabelValues(string(target), "rejected").Inc()
		e.logger.Debug().Str("target", string(target)).Msg("crossfade rejected, track unavailable")
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelLocked()

	// One "now" for both ramps keeps the sum invariant at every instant.
	now := e.clock.Now()
	from := GainPair{
		Original:     e.session.original.CancelAndHold(now),
		Instrumental: e.session.instrumental.CancelAndHold(now),
	}
	to := GainFor(target)
	end := now.Add(e.duration)
	e.session.original.LinearRampToValueAtTime(to.Original, end)
	e.session.instrumental.LinearRampToValueAtTime(to.Instrumental, end)

	ch := make(chan struct{})
	e.done = ch
	e.state = FadeStateFading
	e.target = target
	e.pending = e.clock.AfterFunc(e.duration, func() { e.complete(ch) })

	e.logger.Debug().
		Str("target", string(target)).
		Float64("from_original", from.Original).
		Float64("from_instrumental", from.Instrumental).
		Dur("duration", e.duration).
		Msg("crossfade started")

	return ch, true
}

func (e *CrossfadeEngine) complete(ch chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done != ch {
		return
	}
	close(ch)
	e.done = nil
	e.pending = nil
	e.state = FadeStateIdle
	telemetry.CrossfadesTotal.WithLabelValues(string(e.target), "completed").Inc()
	e.logger.Debug().Str("target", string(e.target)).Msg("crossfade completed")
}

// cancelLocked stops the pending completion and releases its waiters. Gain
// values stay wherever the automation had them.
func (e *CrossfadeEngine) cancelLocked() {
	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}
	if e.done != nil {
		close(e.done)
		e.done = nil
		telemetry.CrossfadesTotal.WithLabelValues(string(e.target), "interrupted").Inc()
	}
	e.state = FadeStateIdle
}

// Stop cancels any in-flight crossfade and freezes the gains at their
// current values.
func (e *CrossfadeEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	wasFading := e.done != nil
	e.cancelLocked()
	if wasFading {
		now := e.clock.Now()
		e.session.original.CancelAndHold(now)
		e.session.instrumental.CancelAndHold(now)
	}
}
