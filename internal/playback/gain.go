/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/clock"
)

// GainPair holds the linear gains of the two audio tracks.
type GainPair struct {
	Original     float64 `json:"original"`
	Instrumental float64 `json:"instrumental"`
}

// Sum returns Original + Instrumental.
func (g GainPair) Sum() float64 { return g.Original + g.Instrumental }

// GainFor returns the canonical endpoint for a vocal mode.
func GainFor(mode VocalMode) GainPair {
	if mode == VocalInstrumental {
		return GainPair{Original: 0, Instrumental: 1}
	}
	return GainPair{Original: 1, Instrumental: 0}
}

type automationEvent struct {
	at    time.Time
	value float64
	ramp  bool // linear ramp ending at `at`
}

// GainNode is a gain parameter with scheduled automation: instantaneous set
// points and linear ramps, evaluated against wall time.
type GainNode struct {
	mu     sync.Mutex
	base   float64
	events []automationEvent
}

func newGainNode(initial float64) *GainNode {
	return &GainNode{base: initial}
}

// ValueAt evaluates the automation at t.
func (g *GainNode) ValueAt(t time.Time) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.valueAt(t)
}

func (g *GainNode) valueAt(t time.Time) float64 {
	v := g.base
	var prevAt time.Time
	havePrev := false
	for _, e := range g.events {
		if !e.at.After(t) {
			v = e.value
			prevAt = e.at
			havePrev = true
			continue
		}
		if e.ramp && havePrev {
			span := e.at.Sub(prevAt)
			if span <= 0 {
				return e.value
			}
			frac := float64(t.Sub(prevAt)) / float64(span)
			return v + (e.value-v)*frac
		}
		return v
	}
	return v
}

// CancelAndHold drops every scheduled event and pins the value the automation
// had at t as a set point at t. It returns that value.
func (g *GainNode) CancelAndHold(t time.Time) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.valueAt(t)
	g.base = v
	g.events = []automationEvent{{at: t, value: v}}
	return v
}

// SetValueAtTime schedules an instantaneous change.
func (g *GainNode) SetValueAtTime(v float64, t time.Time) {
	g.schedule(automationEvent{at: t, value: clampUnit(v)})
}

// LinearRampToValueAtTime schedules a linear ramp from the previous event to v at t.
func (g *GainNode) LinearRampToValueAtTime(v float64, t time.Time) {
	g.schedule(automationEvent{at: t, value: clampUnit(v), ramp: true})
}

func (g *GainNode) schedule(e automationEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, e)
	sort.SliceStable(g.events, func(i, j int) bool { return g.events[i].at.Before(g.events[j].at) })
}

// AudioSession owns the two gain nodes of one song session. It is created at
// session start and torn down with it; there is no process-wide instance.
type AudioSession struct {
	id           string
	clock        clock.Clock
	original     *GainNode
	instrumental *GainNode
	logger       zerolog.Logger
}

// NewAudioSession creates gain nodes initialised to (1, 0).
func NewAudioSession(id string, clk clock.Clock, logger zerolog.Logger) *AudioSession {
	if clk == nil {
		clk = clock.Real{}
	}
	return &AudioSession{
		id:           id,
		clock:        clk,
		original:     newGainNode(1),
		instrumental: newGainNode(0),
		logger:       logger.With().Str("component", "audio-session").Str("session_id", id).Logger(),
	}
}

// ID returns the session identifier.
func (s *AudioSession) ID() string { return s.id }

// Gains samples both nodes at one instant.
func (s *AudioSession) Gains() GainPair {
	return s.GainsAt(s.clock.Now())
}

// GainsAt samples both nodes at t.
func (s *AudioSession) GainsAt(t time.Time) GainPair {
	return GainPair{
		Original:     s.original.ValueAt(t),
		Instrumental: s.instrumental.ValueAt(t),
	}
}

// pumpInterval matches a 20ms audio frame.
const pumpInterval = 20 * time.Millisecond

// Run pushes sampled gains to the output handles every 20ms until ctx is
// cancelled. Either output may be nil.
func (s *AudioSession) Run(ctx context.Context, original, instrumental GainSetter) {
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()

	last := GainPair{Original: -1, Instrumental: -1}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last = s.apply(last, original, instrumental)
		}
	}
}

// apply writes gains that changed since last and returns the new sample.
func (s *AudioSession) apply(last GainPair, original, instrumental GainSetter) GainPair {
	g := s.Gains()
	if original != nil && g.Original != last.Original {
		if err := original.SetGain(g.Original); err != nil {
			s.logger.Debug().Err(err).Msg("set original gain")
		}
	}
	if instrumental != nil && g.Instrumental != last.Instrumental {
		if err := instrumental.SetGain(g.Instrumental); err != nil {
			s.logger.Debug().Err(err).Msg("set instrumental gain")
		}
	}
	return g
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
