/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/backend/sim"
	"github.com/Dzero1996/Nebula-KTV/internal/clock"
	"github.com/Dzero1996/Nebula-KTV/internal/playback"
)

type trackSet struct {
	clk                           *clock.Manual
	video, original, instrumental *sim.Handle
	tracks                        []*playback.MediaTrack
}

func newTrackSet() *trackSet {
	clk := clock.NewManual(time.Unix(0, 0))
	ts := &trackSet{
		clk:          clk,
		video:        sim.New("video", clk, 200),
		original:     sim.New("original", clk, 200),
		instrumental: sim.New("instrumental", clk, 200),
	}
	ts.tracks = []*playback.MediaTrack{
		playback.NewTrack(playback.TrackVideo, ts.video),
		playback.NewTrack(playback.TrackOriginal, ts.original),
		playback.NewTrack(playback.TrackInstrumental, ts.instrumental),
	}
	return ts
}

func TestCheckAllReady(t *testing.T) {
	sc := playback.NewSyncCoordinator(0.1, zerolog.Nop())
	ts := newTrackSet()

	ts.video.SetReadiness(playback.HaveEnoughData)
	ts.original.SetReadiness(playback.HaveCurrentData)
	ts.instrumental.SetReadiness(playback.HaveCurrentData)

	st := sc.CheckAllReady(ts.tracks)
	if st.AllReady {
		t.Fatal("AllReady with original still loading")
	}
	// Paused tracks below the threshold are loading, not buffering.
	if st.AnyBuffering {
		t.Fatalf("paused tracks reported buffering: %+v", st)
	}

	ts.original.SetReadiness(playback.HaveFutureData)
	st = sc.CheckAllReady(ts.tracks)
	if !st.AllReady {
		t.Fatalf("optional instrumental blocked readiness: %+v", st)
	}
	if len(st.ReadyTracks) != 2 {
		t.Errorf("ReadyTracks = %v", st.ReadyTracks)
	}

	ts.tracks[1].MarkFailed(errors.New("decode error"))
	if st := sc.CheckAllReady(ts.tracks); !st.AllReady {
		t.Errorf("failed track blocked readiness: %+v", st)
	}
}

func TestIsAnyBufferingOnlyCountsRequired(t *testing.T) {
	sc := playback.NewSyncCoordinator(0.1, zerolog.Nop())
	ts := newTrackSet()
	for _, h := range []*sim.Handle{ts.video, ts.original, ts.instrumental} {
		h.SetReadiness(playback.HaveEnoughData)
		if err := h.Play(context.Background()); err != nil {
			t.Fatalf("Play: %v", err)
		}
	}

	ts.instrumental.SetReadiness(playback.HaveCurrentData)
	if sc.IsAnyBuffering(ts.tracks) {
		t.Fatal("optional track starvation counted as buffering")
	}

	ts.original.SetReadiness(playback.HaveCurrentData)
	if !sc.IsAnyBuffering(ts.tracks) {
		t.Fatal("required track starvation not detected")
	}
}

// TestBufferingPausesEveryTrack walks every combination of buffer level
// (above or below HaveFutureData) and play state for the three tracks.
func TestBufferingPausesEveryTrack(t *testing.T) {
	for combo := 0; combo < 1<<6; combo++ {
		starved := [3]bool{combo&1 != 0, combo&4 != 0, combo&16 != 0}
		playing := [3]bool{combo&2 != 0, combo&8 != 0, combo&32 != 0}

		name := fmt.Sprintf("starved=%v/playing=%v", starved, playing)
		t.Run(name, func(t *testing.T) {
			sc := playback.NewSyncCoordinator(0.1, zerolog.Nop())
			ts := newTrackSet()
			handles := []*sim.Handle{ts.video, ts.original, ts.instrumental}
			for i, h := range handles {
				level := playback.HaveEnoughData
				if starved[i] {
					level = playback.HaveCurrentData
				}
				h.SetReadiness(level)
				if playing[i] {
					if err := h.Play(context.Background()); err != nil {
						t.Fatalf("Play: %v", err)
					}
				}
			}

			// Only video and original are required.
			want := (starved[0] && playing[0]) || (starved[1] && playing[1])
			got := sc.IsAnyBuffering(ts.tracks)
			if got != want {
				t.Fatalf("IsAnyBuffering = %v, want %v", got, want)
			}
			if st := sc.CheckAllReady(ts.tracks); st.AnyBuffering != want {
				t.Fatalf("CheckAllReady.AnyBuffering = %v, want %v", st.AnyBuffering, want)
			}
			if !got {
				return
			}

			sc.PauseAll(ts.tracks)
			for _, tr := range ts.tracks {
				if !tr.Handle.Paused() {
					t.Errorf("%s still playing after PauseAll", tr.Name)
				}
			}
			if sc.IsAnyBuffering(ts.tracks) {
				t.Error("paused tracks still reported buffering")
			}
		})
	}
}

func TestPauseAllAndResumeAll(t *testing.T) {
	sc := playback.NewSyncCoordinator(0.1, zerolog.Nop())
	ts := newTrackSet()
	ctx := context.Background()

	if err := sc.ResumeAll(ctx, ts.tracks); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}
	for _, tr := range ts.tracks {
		if tr.Handle.Paused() {
			t.Fatalf("%s still paused", tr.Name)
		}
	}

	sc.PauseAll(ts.tracks)
	for _, tr := range ts.tracks {
		if !tr.Handle.Paused() {
			t.Fatalf("%s still playing", tr.Name)
		}
	}

	ts.tracks[2].MarkFailed(errors.New("404"))
	plays := ts.instrumental.Plays()
	if err := sc.ResumeAll(ctx, ts.tracks); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}
	if ts.instrumental.Plays() != plays {
		t.Error("failed optional track was resumed")
	}

	ts.original.SetPlayError(errors.New("device busy"))
	if err := sc.ResumeAll(ctx, ts.tracks); err == nil {
		t.Error("handle error not reported")
	}
}

func TestSyncToTimeRespectsTolerance(t *testing.T) {
	sc := playback.NewSyncCoordinator(0.1, zerolog.Nop())
	ts := newTrackSet()

	ts.video.SetTime(30)
	ts.original.SetTime(30.05)
	ts.instrumental.SetTime(30.5)
	seeks := ts.original.Seeks()

	corrected := sc.SyncToTime(ts.tracks, 30)
	if len(corrected) != 1 || corrected[0] != playback.TrackInstrumental {
		t.Fatalf("corrected = %v, want [instrumental]", corrected)
	}
	if ts.original.Seeks() != seeks {
		t.Error("track within tolerance was seeked")
	}
	if ts.instrumental.Time() != 30 {
		t.Errorf("instrumental at %v, want 30", ts.instrumental.Time())
	}
}

func TestResyncIfNeeded(t *testing.T) {
	sc := playback.NewSyncCoordinator(0, zerolog.Nop())
	if sc.Tolerance() != playback.DefaultDriftTolerance {
		t.Fatalf("tolerance = %v", sc.Tolerance())
	}
	ts := newTrackSet()

	ts.video.SetTime(10)
	ts.original.SetTime(10.08)
	ts.instrumental.SetTime(10.02)
	if got := sc.ResyncIfNeeded(ts.tracks, ts.video.Time()); got != nil {
		t.Fatalf("resynced within tolerance: %v", got)
	}

	ts.original.SetRate(1.1)
	for _, h := range []*sim.Handle{ts.video, ts.original, ts.instrumental} {
		_ = h.Play(context.Background())
	}
	ts.clk.Advance(2 * time.Second)

	if d := sc.MaxDrift(ts.tracks); d <= 0.1 {
		t.Fatalf("drift = %v, want > 0.1", d)
	}
	got := sc.ResyncIfNeeded(ts.tracks, ts.video.Time())
	if len(got) != 1 || got[0] != playback.TrackOriginal {
		t.Fatalf("resynced %v, want [original]", got)
	}
	if d := sc.MaxDrift(ts.tracks); d > 0.1 {
		t.Errorf("drift after resync = %v", d)
	}
}
