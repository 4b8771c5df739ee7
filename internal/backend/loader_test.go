package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/backend/sim"
	"github.com/Dzero1996/Nebula-KTV/internal/catalog"
	"github.com/Dzero1996/Nebula-KTV/internal/clock"
	"github.com/Dzero1996/Nebula-KTV/internal/config"
	"github.com/Dzero1996/Nebula-KTV/internal/playback"
)

const testVTT = `WEBVTT

00:00:01.000 --> 00:00:03.000
first line

00:00:04.000 --> 00:00:06.000
second line
`

func newCatalog(t *testing.T, assets string) (*catalog.Client, string) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/stream/song/song-1/assets", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(assets))
	})
	mux.HandleFunc("/api/stream/lyr-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testVTT))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return catalog.NewClient(srv.URL, time.Second, zerolog.Nop()), srv.URL
}

func TestLoadSongOpensEveryTrack(t *testing.T) {
	c, _ := newCatalog(t, `[
		{"id": "vid-1", "song_id": "song-1", "type": "video_master", "path": "/v.mp4"},
		{"id": "orig-1", "song_id": "song-1", "type": "audio_original", "path": "/o.flac"},
		{"id": "inst-1", "song_id": "song-1", "type": "audio_inst", "path": "/i.flac"},
		{"id": "lyr-1", "song_id": "song-1", "type": "lyrics_vtt", "path": "/l.vtt"}
	]`)
	l := NewLoader(c, SimOpener{Clock: clock.NewManual(time.Unix(0, 0))}, zerolog.Nop())

	src, err := l.LoadSong(context.Background(), "song-1")
	if err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if src.SongID != "song-1" {
		t.Errorf("SongID = %q", src.SongID)
	}
	if src.Video == nil || src.Original == nil || src.Instrumental == nil {
		t.Fatalf("missing handles: %+v", src)
	}
	if got := src.Video.ReadinessLevel(); got != playback.HaveEnoughData {
		t.Errorf("video readiness = %v", got)
	}
	if len(src.Lyrics) != 2 || src.Lyrics[1].Text != "second line" {
		t.Errorf("lyrics = %+v", src.Lyrics)
	}
	if name := src.Original.(*sim.Handle).Name(); name != string(playback.TrackOriginal) {
		t.Errorf("original handle name = %q", name)
	}
}

func TestLoadSongRecordsOpenFailures(t *testing.T) {
	c, base := newCatalog(t, `[
		{"id": "vid-1", "song_id": "song-1", "type": "video_master", "path": "/v.mp4"},
		{"id": "orig-1", "song_id": "song-1", "type": "audio_original", "path": "/o.flac"}
	]`)
	opener := SimOpener{
		Clock: clock.NewManual(time.Unix(0, 0)),
		Fail:  map[string]error{base + "/api/stream/orig-1": errors.New("decoder crashed")},
	}
	l := NewLoader(c, opener, zerolog.Nop())

	src, err := l.LoadSong(context.Background(), "song-1")
	if err != nil {
		t.Fatalf("LoadSong: %v", err)
	}
	if src.Video == nil {
		t.Error("video should be open")
	}
	if src.Original != nil {
		t.Error("failed original should be nil")
	}
	if src.Instrumental != nil {
		t.Error("absent instrumental should be nil")
	}
	if err := src.OpenErrors[playback.TrackOriginal]; err == nil {
		t.Error("failed original should carry its open error")
	}
	if _, ok := src.OpenErrors[playback.TrackInstrumental]; ok {
		t.Error("absent instrumental recorded as an open failure")
	}
	if src.Lyrics != nil {
		t.Errorf("unexpected lyrics: %+v", src.Lyrics)
	}
}

func TestLoadSongUnknown(t *testing.T) {
	c, _ := newCatalog(t, `[]`)
	l := NewLoader(c, SimOpener{}, zerolog.Nop())

	if _, err := l.LoadSong(context.Background(), "nope"); !errors.Is(err, catalog.ErrSongNotFound) {
		t.Fatalf("err = %v, want ErrSongNotFound", err)
	}
}

func TestLoadSongWithoutCatalog(t *testing.T) {
	l := NewLoader(nil, SimOpener{}, zerolog.Nop())
	if _, err := l.LoadSong(context.Background(), "song-1"); err == nil {
		t.Fatal("expected error without catalog")
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	lyrics := filepath.Join(dir, "song.yaml")
	if err := os.WriteFile(lyrics, []byte("- {start: 0, end: 2, text: hi}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLoader(nil, SimOpener{Clock: clock.NewManual(time.Unix(0, 0)), Duration: 90}, zerolog.Nop())

	src, err := l.LoadFiles(context.Background(), Files{
		SongID:   "local",
		Video:    "/media/v.mp4",
		Original: "/media/o.flac",
		Lyrics:   lyrics,
	})
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if src.Video == nil || src.Original == nil || src.Instrumental != nil {
		t.Fatalf("unexpected handles: %+v", src)
	}
	if src.Video.Duration() != 90 {
		t.Errorf("duration = %v", src.Video.Duration())
	}
	if len(src.Lyrics) != 1 || src.Lyrics[0].Text != "hi" {
		t.Errorf("lyrics = %+v", src.Lyrics)
	}

	if _, err := l.LoadFiles(context.Background(), Files{Lyrics: filepath.Join(dir, "missing.vtt")}); err == nil {
		t.Fatal("expected error for missing lyrics file")
	}
}

func TestNewOpener(t *testing.T) {
	tests := []struct {
		backend config.Backend
		want    string
		wantErr bool
	}{
		{config.BackendMPV, "mpv", false},
		{config.BackendSim, "sim", false},
		{"vlc", "", true},
	}
	for _, tt := range tests {
		o, err := NewOpener(&config.Config{Backend: tt.backend}, zerolog.Nop())
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.backend)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tt.backend, err)
		}
		switch o.(type) {
		case MPVOpener:
			if tt.want != "mpv" {
				t.Errorf("%s: got MPVOpener", tt.backend)
			}
		case SimOpener:
			if tt.want != "sim" {
				t.Errorf("%s: got SimOpener", tt.backend)
			}
		}
	}
}
