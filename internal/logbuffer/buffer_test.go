package logbuffer

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBufferWrapsAround(t *testing.T) {
	b := New(3)
	for i, msg := range []string{"a", "b", "c", "d"} {
		b.Add(LogEntry{Message: msg, Timestamp: time.Unix(int64(i), 0)})
	}

	all := b.GetAll()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Message != "b" || all[2].Message != "d" {
		t.Errorf("order = %v", []string{all[0].Message, all[1].Message, all[2].Message})
	}

	b.Clear()
	if len(b.GetAll()) != 0 {
		t.Error("Clear left entries")
	}
}

func TestWriterCapturesZerologLines(t *testing.T) {
	b := New(10)
	var out bytes.Buffer
	logger := zerolog.New(NewWriter(b, &out)).With().Timestamp().Logger()

	logger.Info().Str("component", "audio-manager").Str("session_id", "s1").Str("song_id", "42").Msg("song session loaded")
	logger.Warn().Str("component", "mpv").Msg("IPC reconnect")

	entries := b.GetAll()
	if len(entries) != 2 {
		t.Fatalf("captured %d entries", len(entries))
	}
	first := entries[0]
	if first.Level != "info" || first.Component != "audio-manager" || first.SessionID != "s1" {
		t.Errorf("first = %+v", first)
	}
	if first.Fields["song_id"] != "42" {
		t.Errorf("fields = %v", first.Fields)
	}
	if out.Len() == 0 {
		t.Error("fallback writer not used")
	}

	if n, err := NewWriter(b, nil).Write([]byte("not json\n")); err != nil || n != 9 {
		t.Errorf("Write(non-json) = %d, %v", n, err)
	}
	if len(b.GetAll()) != 2 {
		t.Error("non-JSON line was buffered")
	}
}

func TestQuery(t *testing.T) {
	b := New(10)
	base := time.Unix(1000, 0)
	b.Add(LogEntry{Timestamp: base, Level: "info", Component: "audio-manager", SessionID: "s1", Message: "song session loaded"})
	b.Add(LogEntry{Timestamp: base.Add(time.Second), Level: "warn", Component: "mpv", SessionID: "s1", Message: "cache underrun"})
	b.Add(LogEntry{Timestamp: base.Add(2 * time.Second), Level: "info", Component: "audio-manager", SessionID: "s2", Message: "Song session loaded"})

	tests := []struct {
		name   string
		params QueryParams
		want   []string
	}{
		{"all", QueryParams{}, []string{"song session loaded", "cache underrun", "Song session loaded"}},
		{"level", QueryParams{Level: "warn"}, []string{"cache underrun"}},
		{"component", QueryParams{Component: "mpv"}, []string{"cache underrun"}},
		{"session", QueryParams{SessionID: "s2"}, []string{"Song session loaded"}},
		{"search case-insensitive", QueryParams{Search: "SESSION"}, []string{"song session loaded", "Song session loaded"}},
		{"since", QueryParams{Since: base.Add(500 * time.Millisecond)}, []string{"cache underrun", "Song session loaded"}},
		{"descending limit", QueryParams{Descending: true, Limit: 1}, []string{"Song session loaded"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Query(tt.params)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Message != tt.want[i] {
					t.Errorf("entry %d = %q, want %q", i, got[i].Message, tt.want[i])
				}
			}
		})
	}

	stats := b.Stats()
	if stats.Count != 3 || stats.LevelCount["info"] != 2 || len(stats.Components) != 2 {
		t.Errorf("stats = %+v", stats)
	}
}
