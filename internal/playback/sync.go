/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// DefaultDriftTolerance is the maximum allowed distance, in seconds, between
// a follower track and the playback clock.
const DefaultDriftTolerance = 0.1

// SyncState summarises readiness across a set of tracks.
type SyncState struct {
	AllReady        bool
	AnyBuffering    bool
	ReadyTracks     []TrackName
	BufferingTracks []TrackName
}

// SyncCoordinator keeps active tracks aligned and handles stalls atomically.
// It holds no per-session state; callers serialize access.
type SyncCoordinator struct {
	tolerance float64
	logger    zerolog.Logger
}

// NewSyncCoordinator creates a coordinator. A non-positive tolerance selects
// DefaultDriftTolerance.
func NewSyncCoordinator(tolerance float64, logger zerolog.Logger) *SyncCoordinator {
	if tolerance <= 0 {
		tolerance = DefaultDriftTolerance
	}
	return &SyncCoordinator{
		tolerance: tolerance,
		logger:    logger.With().Str("component", "sync").Logger(),
	}
}

// Tolerance returns the drift tolerance in seconds.
func (sc *SyncCoordinator) Tolerance() float64 { return sc.tolerance }

// CheckAllReady classifies every track. AllReady is true iff every required
// track that has not failed is ready; optional tracks never block readiness
// and failed tracks are left to the degradation policy.
func (sc *SyncCoordinator) CheckAllReady(tracks []*MediaTrack) SyncState {
	state := SyncState{AllReady: true}
	sawRequired := false
	for _, t := range tracks {
		if t == nil || t.Handle == nil || t.Failed() {
			continue
		}
		switch t.Readiness() {
		case ReadinessReady:
			state.ReadyTracks = append(state.ReadyTracks, t.Name)
		case ReadinessBuffering:
			state.BufferingTracks = append(state.BufferingTracks, t.Name)
			state.AnyBuffering = true
		}
		if t.Required {
			sawRequired = true
			if t.Handle.ReadinessLevel() < HaveFutureData {
				state.AllReady = false
			}
		}
	}
	if !sawRequired {
		state.AllReady = false
	}
	return state
}

// IsAnyBuffering reports whether some required track is buffering.
func (sc *SyncCoordinator) IsAnyBuffering(tracks []*MediaTrack) bool {
	for _, t := range tracks {
		if t == nil || t.Handle == nil || t.Failed() || !t.Required {
			continue
		}
		if t.Readiness() == ReadinessBuffering {
			return true
		}
	}
	return false
}

// PauseAll pauses every track regardless of its individual state so no
// track keeps advancing while another is starved.
func (sc *SyncCoordinator) PauseAll(tracks []*MediaTrack) {
	for _, t := range tracks {
		if t == nil || t.Handle == nil {
			continue
		}
		t.Handle.Pause()
	}
}

// ResumeAll starts every available required track, and optional tracks only
// when individually available. Errors from individual handles are joined.
func (sc *SyncCoordinator) ResumeAll(ctx context.Context, tracks []*MediaTrack) error {
	var errs []error
	for _, t := range tracks {
		if !t.Available() {
			continue
		}
		if err := t.Handle.Play(ctx); err != nil {
			errs = append(errs, fmt.Errorf("play %s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

// SyncToTime seeks every available track whose time differs from t by more
// than the tolerance. Tracks within tolerance are left untouched. It returns
// the names of the corrected tracks.
func (sc *SyncCoordinator) SyncToTime(tracks []*MediaTrack, t float64) []TrackName {
	var corrected []TrackName
	for _, tr := range tracks {
		if !tr.Available() {
			continue
		}
		cur := tr.Handle.Time()
		if math.Abs(cur-t) > sc.tolerance {
			tr.Handle.SetTime(t)
			corrected = append(corrected, tr.Name)
			sc.logger.Debug().
				Str("track", string(tr.Name)).
				Float64("from", cur).
				Float64("to", t).
				Msg("drift corrected")
		}
	}
	return corrected
}

// MaxDrift returns max(time) - min(time) across available tracks.
func (sc *SyncCoordinator) MaxDrift(tracks []*MediaTrack) float64 {
	times := make([]float64, 0, len(tracks))
	for _, t := range tracks {
		if t.Available() {
			times = append(times, t.Handle.Time())
		}
	}
	return MaxDrift(times)
}

// ResyncIfNeeded realigns tracks to reference when the spread exceeds the
// tolerance. The reference is always the video clock.
func (sc *SyncCoordinator) ResyncIfNeeded(tracks []*MediaTrack, reference float64) []TrackName {
	if sc.MaxDrift(tracks) <= sc.tolerance {
		return nil
	}
	return sc.SyncToTime(tracks, reference)
}

// MaxDrift returns max(times) - min(times), or 0 for an empty slice.
func MaxDrift(times []float64) float64 {
	if len(times) == 0 {
		return 0
	}
	lo, hi := times[0], times[0]
	for _, v := range times[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}
