/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"fmt"
)

// TrackName identifies one of the three media tracks of a song session.
type TrackName string

const (
	TrackVideo        TrackName = "video"
	TrackOriginal     TrackName = "original"
	TrackInstrumental TrackName = "instrumental"
)

// ParseTrackName validates a track name.
func ParseTrackName(s string) (TrackName, error) {
	switch TrackName(s) {
	case TrackVideo, TrackOriginal, TrackInstrumental:
		return TrackName(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTrack, s)
}

// ReadinessLevel mirrors the five-step media readiness scale.
type ReadinessLevel int

const (
	HaveNothing     ReadinessLevel = 0
	HaveMetadata    ReadinessLevel = 1
	HaveCurrentData ReadinessLevel = 2
	HaveFutureData  ReadinessLevel = 3 // ready threshold
	HaveEnoughData  ReadinessLevel = 4
)

// EventKind enumerates the signals a PlayableHandle delivers.
type EventKind string

const (
	EventLoadedMetadata EventKind = "loadedmetadata"
	EventWaiting        EventKind = "waiting"
	EventCanPlay        EventKind = "canplay"
	EventTimeUpdate     EventKind = "timeupdate"
	EventEnded          EventKind = "ended"
	EventError          EventKind = "error"
)

// HandleEvent is a state change reported by a PlayableHandle.
type HandleEvent struct {
	Kind EventKind
	Err  error // set for EventError
}

// PlayableHandle is the capability interface any concrete audio/video
// backend implements.
//
// Listeners registered with Subscribe must be invoked asynchronously: a
// handle never calls a listener from inside Play, Pause or SetTime.
type PlayableHandle interface {
	// Play starts or resumes playback and returns once the backend has
	// acknowledged the start.
	Play(ctx context.Context) error
	Pause()
	Paused() bool
	Time() float64
	SetTime(seconds float64)
	Duration() float64
	ReadinessLevel() ReadinessLevel
	Subscribe(fn func(HandleEvent)) (unsubscribe func())
	Close() error
}

// GainSetter is implemented by handles that accept a linear output gain.
type GainSetter interface {
	SetGain(gain float64) error
}

// MediaTrack is a named handle owned by the manager for one song session.
type MediaTrack struct {
	Name     TrackName
	Required bool
	Handle   PlayableHandle

	failed  bool
	loadErr error
}

// NewTrack builds a MediaTrack; only the instrumental track is optional.
// A nil handle means the resource was never provided.
func NewTrack(name TrackName, h PlayableHandle) *MediaTrack {
	return &MediaTrack{
		Name:     name,
		Required: name != TrackInstrumental,
		Handle:   h,
	}
}

// Available reports whether the track has a handle that has not failed.
func (t *MediaTrack) Available() bool {
	return t != nil && t.Handle != nil && !t.failed
}

// Absent reports whether the song has no such resource at all, as opposed
// to one that failed to load.
func (t *MediaTrack) Absent() bool { return t == nil || (t.Handle == nil && !t.failed) }

// Failed reports whether the track reported a fatal load error.
func (t *MediaTrack) Failed() bool { return t != nil && t.failed }

// LoadError returns the error the track failed with, if any.
func (t *MediaTrack) LoadError() error {
	if t == nil {
		return nil
	}
	return t.loadErr
}

// MarkFailed records a fatal load error. Failures are not retried.
func (t *MediaTrack) MarkFailed(err error) {
	t.failed = true
	t.loadErr = err
}

// Readiness classifies the track's current state.
func (t *MediaTrack) Readiness() ReadinessState {
	if t == nil || t.Handle == nil {
		return ReadinessFailed
	}
	return ClassifyReadiness(t.Handle.ReadinessLevel(), t.Handle.Paused(), t.Required, t.failed)
}
