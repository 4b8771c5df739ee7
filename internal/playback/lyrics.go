/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import "sort"

// LyricLine is one pre-timed lyric entry, in seconds.
type LyricLine struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Text  string  `json:"text" yaml:"text"`
}

// Timeline is an ordered lyric list.
type Timeline struct {
	lines []LyricLine
}

// NewTimeline copies lines and orders them by start time.
func NewTimeline(lines []LyricLine) *Timeline {
	cp := append([]LyricLine(nil), lines...)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Start < cp[j].Start })
	return &Timeline{lines: cp}
}

// Len returns the number of lines.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.lines)
}

// Lines returns a copy of the lines.
func (t *Timeline) Lines() []LyricLine {
	if t == nil {
		return nil
	}
	return append([]LyricLine(nil), t.lines...)
}

// ActiveIndex returns the index of the line showing at the given time, or -1
// between lines.
func (t *Timeline) ActiveIndex(at float64) int {
	if t == nil || len(t.lines) == 0 {
		return -1
	}
	// First line starting after `at`; the candidate is the one before it.
	i := sort.Search(len(t.lines), func(i int) bool { return t.lines[i].Start > at }) - 1
	if i < 0 {
		return -1
	}
	if at >= t.lines[i].End {
		return -1
	}
	return i
}

// Active returns the line showing at the given time.
func (t *Timeline) Active(at float64) (LyricLine, bool) {
	i := t.ActiveIndex(at)
	if i < 0 {
		return LyricLine{}, false
	}
	return t.lines[i], true
}
