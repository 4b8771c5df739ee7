package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const sampleVTT = `WEBVTT

NOTE generated by the lyric aligner
spans two lines

1
00:00:01.000 --> 00:00:04.500
<v Singer>Twinkle twinkle</v>

2
00:00:05.000 --> 00:00:08.250 align:start
little <b>star</b>
how I wonder

00:10.000 --> 00:12.000
{\an8}what you are
`

func TestParseVTT(t *testing.T) {
	lines, err := ParseVTT(strings.NewReader(sampleVTT))
	if err != nil {
		t.Fatalf("ParseVTT: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 cues, got %d: %+v", len(lines), lines)
	}

	tests := []struct {
		start, end float64
		text       string
	}{
		{1, 4.5, "Twinkle twinkle"},
		{5, 8.25, "little star how I wonder"},
		{10, 12, "what you are"},
	}
	for i, tt := range tests {
		got := lines[i]
		if got.Start != tt.start || got.End != tt.end || got.Text != tt.text {
			t.Errorf("cue %d = %+v, want {%v %v %q}", i, got, tt.start, tt.end, tt.text)
		}
	}
}

func TestParseVTTRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"missing header": "00:00:01.000 --> 00:00:02.000\nhi\n",
		"bad timestamp":  "WEBVTT\n\n00:xx:01.000 --> 00:00:02.000\nhi\n",
		"reversed cue":   "WEBVTT\n\n00:00:05.000 --> 00:00:02.000\nhi\n",
		"empty":          "",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseVTT(strings.NewReader(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseTimeline(t *testing.T) {
	yamlDoc := []byte("- start: 1\n  end: 3.5\n  text: hello\n- start: 4\n  end: 6\n  text: world\n")
	lines, err := ParseTimeline(yamlDoc)
	if err != nil {
		t.Fatalf("ParseTimeline yaml: %v", err)
	}
	if len(lines) != 2 || lines[1].Text != "world" || lines[0].End != 3.5 {
		t.Fatalf("unexpected lines: %+v", lines)
	}

	jsonDoc := []byte(`[{"start": 2, "end": 3, "text": "json"}]`)
	lines, err = ParseTimeline(jsonDoc)
	if err != nil {
		t.Fatalf("ParseTimeline json: %v", err)
	}
	if len(lines) != 1 || lines[0].Text != "json" {
		t.Fatalf("unexpected lines: %+v", lines)
	}

	if _, err := ParseTimeline([]byte("- start: 5\n  end: 1\n  text: x\n")); err == nil {
		t.Fatal("expected reversed entry to be rejected")
	}
}

func TestLoadLyricsFile(t *testing.T) {
	dir := t.TempDir()
	vttPath := filepath.Join(dir, "song.vtt")
	if err := os.WriteFile(vttPath, []byte(sampleVTT), 0o644); err != nil {
		t.Fatal(err)
	}
	lines, err := LoadLyricsFile(vttPath)
	if err != nil || len(lines) != 3 {
		t.Fatalf("LoadLyricsFile(vtt) = %d lines, %v", len(lines), err)
	}

	if _, err := LoadLyricsFile(filepath.Join(dir, "song.srt")); err == nil {
		t.Fatal("expected unsupported extension error")
	}
}

func newCatalogServer(t *testing.T, assets string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stream/song/song-1/assets", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(assets))
	})
	mux.HandleFunc("/api/stream/lyr-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleVTT))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveFullSong(t *testing.T) {
	srv := newCatalogServer(t, `[
		{"id": "vid-1", "song_id": "song-1", "type": "video_master", "path": "/v.mp4", "duration": 181.5},
		{"id": "orig-1", "song_id": "song-1", "type": "audio_original", "path": "/o.flac"},
		{"id": "inst-1", "song_id": "song-1", "type": "audio_inst", "path": "/i.flac"},
		{"id": "lyr-1", "song_id": "song-1", "type": "lyrics_vtt", "path": "/l.vtt"},
		{"id": "wave-1", "song_id": "song-1", "type": "waveform_json", "path": "/w.json"}
	]`)
	c := NewClient(srv.URL+"/", time.Second, zerolog.Nop())

	media, err := c.Resolve(context.Background(), "song-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if media.VideoURL != srv.URL+"/api/stream/vid-1" {
		t.Fatalf("unexpected video url: %s", media.VideoURL)
	}
	if media.InstrumentalURL == "" || media.OriginalURL == "" || media.LyricsURL == "" {
		t.Fatalf("missing urls: %+v", media)
	}
	if media.Duration != 181.5 {
		t.Fatalf("unexpected duration: %v", media.Duration)
	}
	if len(media.Missing) != 0 {
		t.Fatalf("unexpected missing assets: %v", media.Missing)
	}

	lines, err := c.FetchLyrics(context.Background(), media.LyricsURL)
	if err != nil || len(lines) != 3 {
		t.Fatalf("FetchLyrics = %d lines, %v", len(lines), err)
	}
}

func TestResolveWithoutInstrumentalOrVideo(t *testing.T) {
	srv := newCatalogServer(t, `[
		{"id": "orig-1", "song_id": "song-1", "type": "audio_original", "path": "/o.flac"}
	]`)
	c := NewClient(srv.URL, time.Second, zerolog.Nop())

	media, err := c.Resolve(context.Background(), "song-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if media.InstrumentalURL != "" {
		t.Fatal("instrumental url should be empty")
	}
	if len(media.Missing) != 1 || !errors.Is(media.Missing[0], ErrAssetNotFound) {
		t.Fatalf("expected missing video, got %v", media.Missing)
	}
}

func TestResolveUnknownSong(t *testing.T) {
	srv := newCatalogServer(t, `[]`)
	c := NewClient(srv.URL, time.Second, zerolog.Nop())

	if _, err := c.Resolve(context.Background(), "nope"); !errors.Is(err, ErrSongNotFound) {
		t.Fatalf("expected ErrSongNotFound, got %v", err)
	}
}

type memoryCache struct {
	entries map[string][]Asset
	hits    int
}

func (m *memoryCache) SongAssets(_ context.Context, songID string) ([]Asset, bool) {
	a, ok := m.entries[songID]
	if ok {
		m.hits++
	}
	return a, ok
}

func (m *memoryCache) SetSongAssets(_ context.Context, songID string, assets []Asset) error {
	m.entries[songID] = assets
	return nil
}

func TestSongAssetsUsesCache(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_, _ = w.Write([]byte(`[{"id": "orig-1", "song_id": "song-1", "type": "audio_original", "path": "/o.flac"}]`))
	}))
	t.Cleanup(srv.Close)

	cache := &memoryCache{entries: map[string][]Asset{}}
	c := NewClient(srv.URL, time.Second, zerolog.Nop()).WithCache(cache)

	for i := 0; i < 3; i++ {
		assets, err := c.SongAssets(context.Background(), "song-1")
		if err != nil {
			t.Fatalf("SongAssets: %v", err)
		}
		if len(assets) != 1 || assets[0].ID != "orig-1" {
			t.Fatalf("unexpected assets: %+v", assets)
		}
	}
	if requests != 1 {
		t.Errorf("catalog requests = %d, want 1", requests)
	}
	if cache.hits != 2 {
		t.Errorf("cache hits = %d, want 2", cache.hits)
	}
}

func TestSongAssetsDoesNotCacheErrors(t *testing.T) {
	srv := newCatalogServer(t, `[]`)
	cache := &memoryCache{entries: map[string][]Asset{}}
	c := NewClient(srv.URL, time.Second, zerolog.Nop()).WithCache(cache)

	if _, err := c.SongAssets(context.Background(), "nope"); !errors.Is(err, ErrSongNotFound) {
		t.Fatalf("expected ErrSongNotFound, got %v", err)
	}
	if len(cache.entries) != 0 {
		t.Fatalf("error cached: %+v", cache.entries)
	}
}
