/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playermode implements the immersive/interactive visibility state
// machine of the player view.
package playermode

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/clock"
)

// Mode is the UI visibility state.
type Mode string

const (
	ModeImmersive   Mode = "immersive"
	ModeInteractive Mode = "interactive"
)

// DefaultIdleTimeout is how long controls stay visible without interaction.
const DefaultIdleTimeout = 5 * time.Second

// State is a read-only view of the controller.
type State struct {
	Mode     Mode `json:"mode"`
	IsPaused bool `json:"is_paused"`
	Enabled  bool `json:"enabled"`
}

// Controller toggles between interactive and immersive modes on an idle
// timer. The timer only runs once the controller is enabled.
type Controller struct {
	clock    clock.Clock
	timeout  time.Duration
	logger   zerolog.Logger
	onChange func(State)

	mu      sync.Mutex
	mode    Mode
	paused  bool
	enabled bool
	timer   clock.Timer
	gen     uint64
}

// New creates a controller in interactive mode. onChange, if non-nil, is
// called outside the controller's lock after every mode change.
func New(clk clock.Clock, timeout time.Duration, logger zerolog.Logger, onChange func(State)) *Controller {
	if clk == nil {
		clk = clock.Real{}
	}
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	return &Controller{
		clock:    clk,
		timeout:  timeout,
		logger:   logger.With().Str("component", "playermode").Logger(),
		onChange: onChange,
		mode:     ModeInteractive,
	}
}

// Enable allows the idle timer to run. Called once playback is possible.
func (c *Controller) Enable() {
	c.mu.Lock()
	if c.enabled {
		c.mu.Unlock()
		return
	}
	c.enabled = true
	if c.mode == ModeInteractive && !c.paused {
		c.startTimerLocked()
	}
	c.mu.Unlock()
	c.logger.Debug().Msg("auto-hide enabled")
}

// Close stops the timer permanently.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = false
	c.stopTimerLocked()
}

// ShowControls switches to interactive and restarts the idle timer unless
// auto-hide is paused.
func (c *Controller) ShowControls() {
	c.mu.Lock()
	changed := c.mode != ModeInteractive
	c.mode = ModeInteractive
	if !c.paused {
		c.startTimerLocked()
	}
	st := c.stateLocked()
	c.mu.Unlock()
	if changed {
		c.notify(st)
	}
}

// HideControls forces immersive mode immediately.
func (c *Controller) HideControls() {
	c.mu.Lock()
	changed := c.mode != ModeImmersive
	c.mode = ModeImmersive
	c.stopTimerLocked()
	st := c.stateLocked()
	c.mu.Unlock()
	if changed {
		c.notify(st)
	}
}

// PauseAutoHide suspends the idle timer, e.g. while the seek bar is dragged.
func (c *Controller) PauseAutoHide() {
	c.mu.Lock()
	changed := !c.paused
	c.paused = true
	c.stopTimerLocked()
	st := c.stateLocked()
	c.mu.Unlock()
	if changed {
		c.notify(st)
	}
}

// ResumeAutoHide lifts the suspension and restarts the timer when interactive.
func (c *Controller) ResumeAutoHide() {
	c.mu.Lock()
	changed := c.paused
	c.paused = false
	if c.mode == ModeInteractive {
		c.startTimerLocked()
	}
	st := c.stateLocked()
	c.mu.Unlock()
	if changed {
		c.notify(st)
	}
}

// ResetTimer restarts the idle timer on user interaction without changing mode.
func (c *Controller) ResetTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeInteractive && !c.paused {
		c.startTimerLocked()
	}
}

// IsInteractive reports whether controls are visible.
func (c *Controller) IsInteractive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode == ModeInteractive
}

// IsImmersive reports whether the full-screen display is active.
func (c *Controller) IsImmersive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode == ModeImmersive
}

// State returns a snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	return State{Mode: c.mode, IsPaused: c.paused, Enabled: c.enabled}
}

func (c *Controller) startTimerLocked() {
	c.stopTimerLocked()
	if !c.enabled {
		return
	}
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.timeout, func() { c.idle(gen) })
}

func (c *Controller) stopTimerLocked() {
	// Bumping the generation invalidates a callback already in flight.
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) idle(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.enabled || c.paused || c.mode != ModeInteractive {
		c.mu.Unlock()
		return
	}
	c.mode = ModeImmersive
	c.timer = nil
	st := c.stateLocked()
	c.mu.Unlock()

	c.logger.Debug().Msg("idle timeout, entering immersive mode")
	c.notify(st)
}

func (c *Controller) notify(st State) {
	if c.onChange != nil {
		c.onChange(st)
	}
}
