/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package backend turns resolved media into playable handles.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/backend/mpv"
	"github.com/Dzero1996/Nebula-KTV/internal/backend/sim"
	"github.com/Dzero1996/Nebula-KTV/internal/catalog"
	"github.com/Dzero1996/Nebula-KTV/internal/clock"
	"github.com/Dzero1996/Nebula-KTV/internal/config"
	"github.com/Dzero1996/Nebula-KTV/internal/playback"
)

// Opener creates a handle for one track of a song.
type Opener interface {
	Open(ctx context.Context, key string, track playback.TrackName, url string) (playback.PlayableHandle, error)
}

// MPVOpener launches one mpv process per track.
type MPVOpener struct {
	Bin       string
	SocketDir string
	Logger    zerolog.Logger
}

// Open starts mpv paused on url. The video track gets the display; audio
// tracks run without a window and start at the gain of the default mix.
func (o MPVOpener) Open(ctx context.Context, key string, track playback.TrackName, url string) (playback.PlayableHandle, error) {
	volume := 1.0
	if track == playback.TrackInstrumental {
		volume = 0
	}
	h, err := mpv.Launch(ctx, mpv.LaunchOptions{
		Bin:       o.Bin,
		SocketDir: o.SocketDir,
		SessionID: key,
		Name:      string(track),
		URL:       url,
		Video:     track == playback.TrackVideo,
		Volume:    volume,
	}, o.Logger.With().Str("track", string(track)).Logger())
	if err != nil {
		return nil, err
	}
	return h, nil
}

// SimOpener creates simulated handles that report themselves fully
// buffered. Opening a url listed in Fail returns an error instead.
type SimOpener struct {
	Clock    clock.Clock
	Duration float64
	Fail     map[string]error
}

// Open returns a ready sim handle.
func (o SimOpener) Open(ctx context.Context, key string, track playback.TrackName, url string) (playback.PlayableHandle, error) {
	if err := o.Fail[url]; err != nil {
		return nil, err
	}
	duration := o.Duration
	if duration <= 0 {
		duration = 240
	}
	h := sim.New(string(track), o.Clock, duration)
	h.SetReadiness(playback.HaveEnoughData)
	return h, nil
}

// NewOpener picks the opener for the configured backend.
func NewOpener(cfg *config.Config, logger zerolog.Logger) (Opener, error) {
	switch cfg.Backend {
	case config.BackendMPV:
		return MPVOpener{Bin: cfg.MPVBin, SocketDir: cfg.MPVSocketDir, Logger: logger}, nil
	case config.BackendSim:
		return SimOpener{Clock: clock.Real{}}, nil
	}
	return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
}

// Files names the media of a song directly, bypassing the catalog.
type Files struct {
	SongID       string
	Video        string
	Original     string
	Instrumental string
	Lyrics       string
}

// Loader resolves songs and opens their tracks.
type Loader struct {
	catalog *catalog.Client
	opener  Opener
	logger  zerolog.Logger
}

// NewLoader creates a loader. catalog may be nil when only LoadFiles is used.
func NewLoader(c *catalog.Client, opener Opener, logger zerolog.Logger) *Loader {
	return &Loader{
		catalog: c,
		opener:  opener,
		logger:  logger.With().Str("component", "loader").Logger(),
	}
}

// LoadSong resolves songID through the catalog and opens its tracks.
// Missing tracks are left nil and unopenable ones are recorded in
// Sources.OpenErrors, so the session starts degraded either way.
func (l *Loader) LoadSong(ctx context.Context, songID string) (playback.Sources, error) {
	if l.catalog == nil {
		return playback.Sources{}, errors.New("no catalog configured")
	}
	media, err := l.catalog.Resolve(ctx, songID)
	if err != nil {
		return playback.Sources{}, fmt.Errorf("resolve song %s: %w", songID, err)
	}
	for _, missing := range media.Missing {
		l.logger.Warn().Err(missing).Str("song_id", songID).Msg("song asset missing")
	}

	src := l.open(ctx, songID, media.VideoURL, media.OriginalURL, media.InstrumentalURL)

	if media.LyricsURL != "" {
		lyricsCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lines, err := l.catalog.FetchLyrics(lyricsCtx, media.LyricsURL)
		cancel()
		if err != nil {
			l.logger.Warn().Err(err).Str("song_id", songID).Msg("lyrics unavailable")
		} else {
			src.Lyrics = lines
		}
	}
	return src, nil
}

// LoadFiles opens explicitly named media.
func (l *Loader) LoadFiles(ctx context.Context, files Files) (playback.Sources, error) {
	var lines []playback.LyricLine
	if files.Lyrics != "" {
		var err error
		lines, err = catalog.LoadLyricsFile(files.Lyrics)
		if err != nil {
			return playback.Sources{}, err
		}
	}
	src := l.open(ctx, files.SongID, files.Video, files.Original, files.Instrumental)
	src.Lyrics = lines
	return src, nil
}

func (l *Loader) open(ctx context.Context, songID, video, original, instrumental string) playback.Sources {
	key := uuid.NewString()[:8]
	src := playback.Sources{SongID: songID}
	src.Video = l.openTrack(ctx, key, playback.TrackVideo, video, &src)
	src.Original = l.openTrack(ctx, key, playback.TrackOriginal, original, &src)
	src.Instrumental = l.openTrack(ctx, key, playback.TrackInstrumental, instrumental, &src)
	return src
}

// openTrack returns nil for an absent url. An open failure also returns nil
// and is recorded in src.OpenErrors.
func (l *Loader) openTrack(ctx context.Context, key string, track playback.TrackName, url string, src *playback.Sources) playback.PlayableHandle {
	if url == "" {
		return nil
	}
	h, err := l.opener.Open(ctx, key, track, url)
	if err != nil {
		l.logger.Error().Err(err).Str("track", string(track)).Str("url", url).Msg("open track failed")
		if src.OpenErrors == nil {
			src.OpenErrors = make(map[playback.TrackName]error)
		}
		src.OpenErrors[track] = fmt.Errorf("open %s: %w", track, err)
		return nil
	}
	return h
}
