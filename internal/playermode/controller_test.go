/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playermode

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/clock"
)

func newTestController() (*Controller, *clock.Manual, *[]State) {
	clk := clock.NewManual(time.Unix(0, 0))
	var changes []State
	c := New(clk, 5*time.Second, zerolog.Nop(), func(st State) { changes = append(changes, st) })
	return c, clk, &changes
}

func TestControllerStartsInteractiveAndDisabled(t *testing.T) {
	c, clk, changes := newTestController()

	if !c.IsInteractive() {
		t.Fatal("initial mode not interactive")
	}
	clk.Advance(time.Minute)
	if !c.IsInteractive() || len(*changes) != 0 {
		t.Fatal("idle timer ran before Enable")
	}
}

func TestControllerIdleTimeout(t *testing.T) {
	c, clk, changes := newTestController()
	c.Enable()

	clk.Advance(4999 * time.Millisecond)
	if !c.IsInteractive() {
		t.Fatal("hid before timeout")
	}
	clk.Advance(time.Millisecond)
	if !c.IsImmersive() {
		t.Fatal("not immersive at timeout")
	}
	if len(*changes) != 1 || (*changes)[0].Mode != ModeImmersive {
		t.Errorf("changes = %+v", *changes)
	}
}

func TestControllerResetTimer(t *testing.T) {
	c, clk, _ := newTestController()
	c.Enable()

	clk.Advance(3 * time.Second)
	c.ResetTimer()
	clk.Advance(3 * time.Second)
	if !c.IsInteractive() {
		t.Fatal("ResetTimer did not restart the countdown")
	}
	clk.Advance(2 * time.Second)
	if !c.IsImmersive() {
		t.Fatal("not immersive after a full idle period")
	}
}

func TestControllerPauseAutoHide(t *testing.T) {
	c, clk, _ := newTestController()
	c.Enable()

	c.PauseAutoHide()
	clk.Advance(time.Minute)
	if !c.IsInteractive() {
		t.Fatal("hid while auto-hide paused")
	}
	c.ResetTimer()
	clk.Advance(time.Minute)
	if !c.IsInteractive() {
		t.Fatal("ResetTimer bypassed the pause")
	}

	c.ResumeAutoHide()
	clk.Advance(5 * time.Second)
	if !c.IsImmersive() {
		t.Fatal("not immersive after resume plus timeout")
	}
}

func TestControllerPauseAutoHideNotifies(t *testing.T) {
	c, _, changes := newTestController()
	c.Enable()

	c.PauseAutoHide()
	c.PauseAutoHide()
	if len(*changes) != 1 || !(*changes)[0].IsPaused || (*changes)[0].Mode != ModeInteractive {
		t.Fatalf("changes after pause = %+v", *changes)
	}

	c.ResumeAutoHide()
	c.ResumeAutoHide()
	if len(*changes) != 2 || (*changes)[1].IsPaused {
		t.Fatalf("changes after resume = %+v", *changes)
	}
}

func TestControllerShowAndHide(t *testing.T) {
	c, clk, changes := newTestController()
	c.Enable()

	c.HideControls()
	if !c.IsImmersive() {
		t.Fatal("HideControls did not switch mode")
	}
	c.HideControls()
	if len(*changes) != 1 {
		t.Fatalf("repeated hide notified: %+v", *changes)
	}

	c.ShowControls()
	if !c.IsInteractive() {
		t.Fatal("ShowControls did not switch mode")
	}
	clk.Advance(5 * time.Second)
	if !c.IsImmersive() {
		t.Fatal("ShowControls did not start the idle timer")
	}
}

func TestControllerShowWhilePaused(t *testing.T) {
	c, clk, _ := newTestController()
	c.Enable()
	c.HideControls()
	c.PauseAutoHide()

	c.ShowControls()
	clk.Advance(time.Minute)
	if !c.IsInteractive() {
		t.Fatal("timer started while auto-hide paused")
	}
	if !c.State().IsPaused {
		t.Error("State().IsPaused = false")
	}
}

func TestControllerClose(t *testing.T) {
	c, clk, _ := newTestController()
	c.Enable()
	c.Close()

	clk.Advance(time.Minute)
	if !c.IsInteractive() {
		t.Fatal("timer fired after Close")
	}
	if clk.Pending() != 0 {
		t.Errorf("Pending = %d after Close", clk.Pending())
	}
}
