/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog resolves a song's media assets from the catalog service.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/playback"
)

// ErrAssetNotFound indicates the catalog has no asset of a required type.
var ErrAssetNotFound = errors.New("asset not found")

// ErrSongNotFound indicates the catalog does not know the song.
var ErrSongNotFound = errors.New("song not found")

// AssetType enumerates catalog media asset kinds.
type AssetType string

const (
	AssetVideoMaster     AssetType = "video_master"
	AssetAudioOriginal   AssetType = "audio_original"
	AssetAudioInst       AssetType = "audio_inst"
	AssetAudioVocal      AssetType = "audio_vocal"
	AssetLyricsVTT       AssetType = "lyrics_vtt"
	AssetLyricsWordLevel AssetType = "lyrics_word_level"
	AssetWaveformJSON    AssetType = "waveform_json"
)

// Asset is one entry of the song assets listing.
type Asset struct {
	ID         string    `json:"id"`
	SongID     string    `json:"song_id"`
	Type       AssetType `json:"type"`
	Path       string    `json:"path"`
	FileSize   *int64    `json:"file_size,omitempty"`
	Duration   *float64  `json:"duration,omitempty"`
	Codec      string    `json:"codec,omitempty"`
	Bitrate    *int      `json:"bitrate,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
}

// SongMedia is the stream URLs of one song. An empty URL means the asset is
// absent; Missing lists the absent required assets, each wrapping
// ErrAssetNotFound.
type SongMedia struct {
	SongID          string
	VideoURL        string
	OriginalURL     string
	InstrumentalURL string
	LyricsURL       string
	Duration        float64
	Missing         []error
}

// AssetCache stores song asset listings between loads.
type AssetCache interface {
	SongAssets(ctx context.Context, songID string) ([]Asset, bool)
	SetSongAssets(ctx context.Context, songID string, assets []Asset) error
}

// Client talks to the catalog HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      AssetCache
	logger     zerolog.Logger
}

// NewClient creates a catalog client for baseURL.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "catalog").Logger(),
	}
}

// WithCache makes SongAssets consult cache before the catalog.
func (c *Client) WithCache(cache AssetCache) *Client {
	c.cache = cache
	return c
}

// StreamURL returns the range-capable stream URL of an asset.
func (c *Client) StreamURL(assetID string) string {
	return fmt.Sprintf("%s/api/stream/%s", c.baseURL, url.PathEscape(assetID))
}

// SongAssets lists every asset of a song.
func (c *Client) SongAssets(ctx context.Context, songID string) ([]Asset, error) {
	if c.cache != nil {
		if assets, ok := c.cache.SongAssets(ctx, songID); ok {
			return assets, nil
		}
	}

	assets, err := c.fetchSongAssets(ctx, songID)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetSongAssets(ctx, songID, assets); err != nil {
			c.logger.Debug().Err(err).Str("song_id", songID).Msg("failed to cache song assets")
		}
	}
	return assets, nil
}

func (c *Client) fetchSongAssets(ctx context.Context, songID string) ([]Asset, error) {
	endpoint := fmt.Sprintf("%s/api/stream/song/%s/assets", c.baseURL, url.PathEscape(songID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch song assets: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrSongNotFound, songID)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status from catalog: %d", resp.StatusCode)
	}

	var assets []Asset
	if err := json.NewDecoder(resp.Body).Decode(&assets); err != nil {
		return nil, fmt.Errorf("decode song assets: %w", err)
	}
	return assets, nil
}

// Resolve maps a song's assets to stream URLs. Missing assets do not fail
// the call; the session starts degraded and the player shows the message.
func (c *Client) Resolve(ctx context.Context, songID string) (*SongMedia, error) {
	assets, err := c.SongAssets(ctx, songID)
	if err != nil {
		return nil, err
	}

	media := &SongMedia{SongID: songID}
	for _, a := range assets {
		switch a.Type {
		case AssetVideoMaster:
			media.VideoURL = c.StreamURL(a.ID)
			if a.Duration != nil {
				media.Duration = *a.Duration
			}
		case AssetAudioOriginal:
			media.OriginalURL = c.StreamURL(a.ID)
		case AssetAudioInst:
			media.InstrumentalURL = c.StreamURL(a.ID)
		case AssetLyricsVTT:
			media.LyricsURL = c.StreamURL(a.ID)
		}
	}

	if media.VideoURL == "" {
		media.Missing = append(media.Missing, fmt.Errorf("%w: %s", ErrAssetNotFound, AssetVideoMaster))
	}
	if media.OriginalURL == "" {
		media.Missing = append(media.Missing, fmt.Errorf("%w: %s", ErrAssetNotFound, AssetAudioOriginal))
	}

	c.logger.Debug().
		Str("song_id", songID).
		Int("assets", len(assets)).
		Bool("instrumental", media.InstrumentalURL != "").
		Bool("lyrics", media.LyricsURL != "").
		Msg("song assets resolved")

	return media, nil
}

// FetchLyrics downloads and parses a WebVTT lyric asset.
func (c *Client) FetchLyrics(ctx context.Context, lyricsURL string) ([]playback.LyricLine, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lyricsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch lyrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status fetching lyrics: %d", resp.StatusCode)
	}
	return ParseVTT(resp.Body)
}
