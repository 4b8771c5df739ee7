/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Dzero1996/Nebula-KTV/internal/playback"
)

var (
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
	stylePattern   = regexp.MustCompile(`\{[^}]*\}`)
	timingSplitter = regexp.MustCompile(`\s+-->\s+`)
)

// ParseVTT reads WebVTT cues as lyric lines. Cue text is stripped of markup
// and multi-line cues are joined with a space.
func ParseVTT(r io.Reader) ([]playback.LyricLine, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read vtt: %w", err)
		}
		return nil, fmt.Errorf("empty vtt document")
	}
	if header := strings.TrimPrefix(scanner.Text(), "\ufeff"); !strings.HasPrefix(header, "WEBVTT") {
		return nil, fmt.Errorf("missing WEBVTT header")
	}

	var (
		lines []playback.LyricLine
		cur   *playback.LyricLine
		text  []string
		block bool // inside a NOTE/STYLE/REGION block
	)
	flush := func() {
		if cur != nil {
			cur.Text = strings.TrimSpace(strings.Join(text, " "))
			if cur.Text != "" {
				lines = append(lines, *cur)
			}
		}
		cur, text, block = nil, nil, false
	}

	for n := 2; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			flush()
		case block:
		case cur == nil && (strings.HasPrefix(line, "NOTE") || line == "STYLE" || line == "REGION"):
			block = true
		case strings.Contains(line, "-->"):
			start, end, err := parseCueTiming(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			flush()
			cur = &playback.LyricLine{Start: start, End: end}
		case cur != nil:
			line = tagPattern.ReplaceAllString(line, "")
			line = stylePattern.ReplaceAllString(line, "")
			if clean := strings.TrimSpace(line); clean != "" {
				text = append(text, clean)
			}
		}
		// Anything else is a cue identifier.
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vtt: %w", err)
	}
	return lines, nil
}

func parseCueTiming(line string) (float64, float64, error) {
	parts := timingSplitter.Split(line, 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed cue timing %q", line)
	}
	start, err := parseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	// Cue settings follow the end timestamp.
	endField := strings.Fields(parts[1])
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("malformed cue timing %q", line)
	}
	end, err := parseTimestamp(endField[0])
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("cue ends before it starts: %q", line)
	}
	return start, end, nil
}

// parseTimestamp accepts HH:MM:SS.mmm and MM:SS.mmm.
func parseTimestamp(s string) (float64, error) {
	fields := strings.Split(strings.TrimSpace(s), ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}
	secs, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("malformed timestamp %q", s)
	}
	total := secs
	mult := 60.0
	for i := len(fields) - 2; i >= 0; i-- {
		v, err := strconv.Atoi(fields[i])
		if err != nil {
			return 0, fmt.Errorf("malformed timestamp %q", s)
		}
		total += float64(v) * mult
		mult *= 60
	}
	return total, nil
}

// ParseTimeline reads a YAML or JSON list of {start, end, text} entries.
func ParseTimeline(data []byte) ([]playback.LyricLine, error) {
	var lines []playback.LyricLine
	// YAML is a superset of JSON, so one decoder covers both.
	if err := yaml.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("decode lyric timeline: %w", err)
	}
	for i, l := range lines {
		if l.End < l.Start {
			return nil, fmt.Errorf("entry %d ends before it starts", i)
		}
	}
	return lines, nil
}

// LoadLyricsFile reads a .vtt, .yaml, .yml or .json lyric file.
func LoadLyricsFile(path string) ([]playback.LyricLine, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vtt":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open lyrics: %w", err)
		}
		defer f.Close()
		return ParseVTT(f)
	case ".yaml", ".yml", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read lyrics: %w", err)
		}
		return ParseTimeline(data)
	}
	return nil, fmt.Errorf("unsupported lyric file %q", path)
}
