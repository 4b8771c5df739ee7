/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

// DegradationMode is the operating mode selected from track availability.
type DegradationMode string

const (
	ModeFull             DegradationMode = "full"
	ModeOriginalOnly     DegradationMode = "original-only"
	ModeInstrumentalOnly DegradationMode = "instrumental-only"
	ModeError            DegradationMode = "error"
)

// VocalMode selects which audio track is audible.
type VocalMode string

const (
	VocalOriginal     VocalMode = "original"
	VocalInstrumental VocalMode = "instrumental"
)

// ParseVocalMode validates a vocal mode string.
func ParseVocalMode(s string) (VocalMode, error) {
	switch VocalMode(s) {
	case VocalOriginal, VocalInstrumental:
		return VocalMode(s), nil
	}
	return "", ErrInvalidVocalMode
}

// User-facing degradation messages.
const (
	MsgVideoFailed        = "video load failed."
	MsgAudioFailed        = "audio load failed."
	MsgInstrumentalFailed = "instrumental failed, fell back to vocal-only."
	MsgOriginalFailed     = "vocal failed, fell back to instrumental-only."
)

// Availability is the per-track input to the degradation policy.
type Availability struct {
	Video        bool
	Original     bool
	Instrumental bool
}

// DegradationState is recomputed as a whole whenever availability changes.
type DegradationState struct {
	Mode                  DegradationMode `json:"mode"`
	VideoAvailable        bool            `json:"video_available"`
	OriginalAvailable     bool            `json:"original_available"`
	InstrumentalAvailable bool            `json:"instrumental_available"`
	CanSwitchVocal        bool            `json:"can_switch_vocal"`
	ErrorMessage          string          `json:"error_message,omitempty"`
}

// Blocking reports whether the state prevents playback entirely.
func (s DegradationState) Blocking() bool { return s.Mode == ModeError }

// CalculateDegradationState evaluates availability by fixed priority. Loss of
// both audio tracks is checked before the single-track fallbacks so that it
// is never reported as a one-track degradation.
func CalculateDegradationState(a Availability) DegradationState {
	state := DegradationState{
		VideoAvailable:        a.Video,
		OriginalAvailable:     a.Original,
		InstrumentalAvailable: a.Instrumental,
	}

	switch {
	case !a.Video:
		state.Mode = ModeError
		state.ErrorMessage = MsgVideoFailed
	case !a.Original && !a.Instrumental:
		state.Mode = ModeError
		state.ErrorMessage = MsgAudioFailed
	case a.Original && a.Instrumental:
		state.Mode = ModeFull
		state.CanSwitchVocal = true
	case a.Original:
		state.Mode = ModeOriginalOnly
		state.ErrorMessage = MsgInstrumentalFailed
	default:
		state.Mode = ModeInstrumentalOnly
		state.ErrorMessage = MsgOriginalFailed
	}
	return state
}

// CanSwitchToMode reports whether a vocal-mode switch to target is allowed.
func CanSwitchToMode(target VocalMode, state DegradationState) bool {
	if !state.CanSwitchVocal {
		return false
	}
	switch target {
	case VocalOriginal:
		return state.OriginalAvailable
	case VocalInstrumental:
		return state.InstrumentalAvailable
	}
	return false
}

// DefaultVocalMode returns the first available of original and instrumental,
// or false in error mode.
func DefaultVocalMode(state DegradationState) (VocalMode, bool) {
	switch {
	case state.Mode == ModeError:
		return "", false
	case state.OriginalAvailable:
		return VocalOriginal, true
	case state.InstrumentalAvailable:
		return VocalInstrumental, true
	}
	return "", false
}
