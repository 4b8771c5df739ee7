/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package controlapi exposes the player to the presentation layer over HTTP
// and a websocket event stream.
package controlapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/auth"
	"github.com/Dzero1996/Nebula-KTV/internal/catalog"
	"github.com/Dzero1996/Nebula-KTV/internal/events"
	"github.com/Dzero1996/Nebula-KTV/internal/playback"
	"github.com/Dzero1996/Nebula-KTV/internal/playermode"
)

// Player is the control surface of the audio manager.
type Player interface {
	Load(ctx context.Context, src playback.Sources) (string, error)
	Play(ctx context.Context) error
	Pause() error
	Seek(ctx context.Context, seconds float64) error
	SetVocalMode(ctx context.Context, mode playback.VocalMode) error
	Snapshot() (playback.Snapshot, error)
	Lyrics() []playback.LyricLine
	Controls() (*playermode.Controller, error)
}

// SongLoader opens the tracks of a catalog song.
type SongLoader interface {
	LoadSong(ctx context.Context, songID string) (playback.Sources, error)
}

// EventSource is where player events are read from.
type EventSource interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// API serves the player control endpoints.
type API struct {
	player Player
	loader SongLoader
	bus    EventSource
	logger zerolog.Logger
}

// New creates the control API. loader may be nil, which disables /load.
func New(player Player, loader SongLoader, bus EventSource, logger zerolog.Logger) *API {
	return &API{
		player: player,
		loader: loader,
		bus:    bus,
		logger: logger.With().Str("component", "controlapi").Logger(),
	}
}

// Routes mounts the player endpoints under /api/v1/player.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1/player", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(auth.ScopeRead))
			r.Get("/", a.handleSnapshot)
			r.Get("/lyrics", a.handleLyrics)
			r.Get("/events", a.handleEvents)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireScope(auth.ScopeControl))
			r.Post("/load", a.handleLoad)
			r.Post("/play", a.handlePlay)
			r.Post("/pause", a.handlePause)
			r.Post("/seek", a.handleSeek)
			r.Post("/vocal-mode", a.handleVocalMode)
			r.Post("/controls/{action}", a.handleControls)
		})
	})
}

func (a *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := a.player.Snapshot()
	if err != nil {
		a.writePlayerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleLyrics(w http.ResponseWriter, r *http.Request) {
	lines := a.player.Lyrics()
	if lines == nil {
		lines = []playback.LyricLine{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func (a *API) handleLoad(w http.ResponseWriter, r *http.Request) {
	if a.loader == nil {
		writeError(w, http.StatusNotImplemented, "loading_disabled")
		return
	}
	var req struct {
		SongID string `json:"song_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.SongID == "" {
		writeError(w, http.StatusBadRequest, "song_id_required")
		return
	}

	a.logger.Info().
		Str("song_id", req.SongID).
		Str("device", auth.Device(r.Context())).
		Msg("song load requested")

	src, err := a.loader.LoadSong(r.Context(), req.SongID)
	if err != nil {
		if errors.Is(err, catalog.ErrSongNotFound) {
			writeError(w, http.StatusNotFound, "song_not_found")
			return
		}
		a.logger.Error().Err(err).Str("song_id", req.SongID).Msg("load song failed")
		writeError(w, http.StatusBadGateway, "catalog_unavailable")
		return
	}

	sessionID, err := a.player.Load(r.Context(), src)
	if err != nil {
		a.writePlayerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sessionID, "song_id": req.SongID})
}

func (a *API) handlePlay(w http.ResponseWriter, r *http.Request) {
	if err := a.player.Play(r.Context()); err != nil {
		a.writePlayerError(w, err)
		return
	}
	a.writeSnapshot(w)
}

func (a *API) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := a.player.Pause(); err != nil {
		a.writePlayerError(w, err)
		return
	}
	a.writeSnapshot(w)
}

func (a *API) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time *float64 `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Time == nil {
		writeError(w, http.StatusBadRequest, "time_required")
		return
	}
	if err := a.player.Seek(r.Context(), *req.Time); err != nil {
		a.writePlayerError(w, err)
		return
	}
	a.writeSnapshot(w)
}

func (a *API) handleVocalMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	a.logger.Debug().
		Str("mode", req.Mode).
		Str("device", auth.Device(r.Context())).
		Msg("vocal mode requested")
	if err := a.player.SetVocalMode(r.Context(), playback.VocalMode(req.Mode)); err != nil {
		a.writePlayerError(w, err)
		return
	}
	a.writeSnapshot(w)
}

func (a *API) handleControls(w http.ResponseWriter, r *http.Request) {
	controls, err := a.player.Controls()
	if err != nil {
		a.writePlayerError(w, err)
		return
	}
	if !applyControlAction(controls, chi.URLParam(r, "action")) {
		writeError(w, http.StatusNotFound, "unknown_action")
		return
	}
	writeJSON(w, http.StatusOK, controls.State())
}

// applyControlAction maps a control action name onto the mode controller.
func applyControlAction(c *playermode.Controller, action string) bool {
	switch action {
	case "show":
		c.ShowControls()
	case "hide":
		c.HideControls()
	case "pause-autohide":
		c.PauseAutoHide()
	case "resume-autohide":
		c.ResumeAutoHide()
	case "interact":
		c.ResetTimer()
	default:
		return false
	}
	return true
}

func (a *API) writeSnapshot(w http.ResponseWriter) {
	snap, err := a.player.Snapshot()
	if err != nil {
		a.writePlayerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) writePlayerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, playback.ErrNoSession):
		writeError(w, http.StatusNotFound, "no_session")
	case errors.Is(err, playback.ErrSessionClosed):
		writeError(w, http.StatusConflict, "session_replaced")
	case errors.Is(err, playback.ErrInvalidVocalMode):
		writeError(w, http.StatusBadRequest, "invalid_vocal_mode")
	case errors.Is(err, playback.ErrCannotPlay):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cannot_play", "message": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "cancelled")
	default:
		a.logger.Error().Err(err).Msg("player operation failed")
		writeError(w, http.StatusInternalServerError, "player_error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
