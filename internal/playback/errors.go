/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import "errors"

var (
	// ErrCannotPlay indicates the session is in error mode and has no playable media.
	ErrCannotPlay = errors.New("cannot play: required media unavailable")

	// ErrNoSession indicates no song session is loaded.
	ErrNoSession = errors.New("no song session loaded")

	// ErrUnknownTrack indicates an unrecognised track name.
	ErrUnknownTrack = errors.New("unknown track")

	// ErrInvalidVocalMode indicates a vocal mode outside {original, instrumental}.
	ErrInvalidVocalMode = errors.New("invalid vocal mode")

	// ErrSessionClosed indicates the session was torn down.
	ErrSessionClosed = errors.New("session closed")
)
