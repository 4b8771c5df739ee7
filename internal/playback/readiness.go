/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

// ReadinessState is the derived per-track classification.
type ReadinessState string

const (
	ReadinessLoading   ReadinessState = "loading"
	ReadinessBuffering ReadinessState = "buffering"
	ReadinessReady     ReadinessState = "ready"
	ReadinessFailed    ReadinessState = "failed"
)

// ClassifyReadiness maps a readiness level and pause state to a
// ReadinessState. A track is ready once it has future data. It is buffering
// only when it is required, expected to advance (not paused) and short of data;
// a paused under-buffered track is merely loading.
func ClassifyReadiness(level ReadinessLevel, paused, required, failed bool) ReadinessState {
	switch {
	case failed:
		return ReadinessFailed
	case level >= HaveFutureData:
		return ReadinessReady
	case required && !paused:
		return ReadinessBuffering
	default:
		return ReadinessLoading
	}
}
