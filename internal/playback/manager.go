/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/clock"
	"github.com/Dzero1996/Nebula-KTV/internal/events"
	"github.com/Dzero1996/Nebula-KTV/internal/playermode"
	"github.com/Dzero1996/Nebula-KTV/internal/telemetry"
)

// Options configures a Manager.
type Options struct {
	Clock             clock.Clock
	CrossfadeDuration time.Duration
	DriftTolerance    float64 // seconds
	IdleTimeout       time.Duration
	Publisher         events.Publisher
}

// Sources are the resources of one song. A nil handle with no entry in
// OpenErrors means the song simply has no such resource; an entry in
// OpenErrors means the resource exists but could not be opened, and is
// reported as a track load failure.
type Sources struct {
	SongID       string
	Video        PlayableHandle
	Original     PlayableHandle
	Instrumental PlayableHandle
	Lyrics       []LyricLine
	OpenErrors   map[TrackName]error
}

// Snapshot is the read-only state exposed to the presentation layer.
type Snapshot struct {
	SessionID             string           `json:"session_id"`
	SongID                string           `json:"song_id,omitempty"`
	IsReady               bool             `json:"is_ready"`
	IsPlaying             bool             `json:"is_playing"`
	CurrentTime           float64          `json:"current_time"`
	Duration              float64          `json:"duration"`
	VocalMode             VocalMode        `json:"vocal_mode,omitempty"`
	IsBuffering           bool             `json:"is_buffering"`
	InstrumentalAvailable bool             `json:"instrumental_available"`
	Degradation           DegradationState `json:"degradation"`
	Gains                 GainPair         `json:"gains"`
	PlayerMode            playermode.State `json:"player_mode"`
	LyricIndex            int              `json:"lyric_index"`
	Lyric                 *LyricLine       `json:"lyric,omitempty"`
	Ended                 bool             `json:"ended"`
}

// session is the state of one loaded song. It is only touched with
// Manager.mu held.
type session struct {
	id     string
	songID string

	video        *MediaTrack
	original     *MediaTrack
	instrumental *MediaTrack
	tracks       []*MediaTrack

	audio  *AudioSession
	fade   *CrossfadeEngine
	mode   *playermode.Controller
	lyrics *Timeline

	degradation DegradationState
	vocalMode   VocalMode

	ready       bool
	wantPlaying bool
	playing     bool
	buffering   bool
	ended       bool
	duration    float64

	unsubs     []func()
	stopOutput context.CancelFunc
}

type outboundEvent struct {
	eventType events.EventType
	payload   events.Payload
}

// Manager composes the readiness monitor, sync coordinator, crossfade
// engine, degradation policy and mode controller behind one control surface.
//
// All entry points and handle events are serialized by mu, so a readiness
// recomputation and the pause/resume decision it causes are applied as one
// step. Events are published after mu is released.
type Manager struct {
	opts   Options
	clock  clock.Clock
	sync   *SyncCoordinator
	pub    events.Publisher
	logger zerolog.Logger

	mu     sync.Mutex
	sess   *session
	outbox []outboundEvent
}

// NewManager creates a manager with no session loaded.
func NewManager(opts Options, logger zerolog.Logger) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	logger = logger.With().Str("component", "audio-manager").Logger()
	return &Manager{
		opts:   opts,
		clock:  opts.Clock,
		sync:   NewSyncCoordinator(opts.DriftTolerance, logger),
		pub:    opts.Publisher,
		logger: logger,
	}
}

// Load tears down the current session, if any, and starts a new one for src.
// Readiness, gains, degradation and mode timers all start fresh.
func (m *Manager) Load(ctx context.Context, src Sources) (string, error) {
	ctx, span := telemetry.StartPlayerSpan(ctx, "load", telemetry.SongAttr(src.SongID))
	defer span.End()

	m.mu.Lock()
	m.teardownLocked()

	id := uuid.NewString()
	span.SetAttributes(telemetry.SessionAttr(id))
	logger := m.logger.With().Str("session_id", id).Str("song_id", src.SongID).Logger()

	s := &session{
		id:           id,
		songID:       src.SongID,
		video:        NewTrack(TrackVideo, src.Video),
		original:     NewTrack(TrackOriginal, src.Original),
		instrumental: NewTrack(TrackInstrumental, src.Instrumental),
		lyrics:       NewTimeline(src.Lyrics),
	}
	s.tracks = []*MediaTrack{s.video, s.original, s.instrumental}
	s.audio = NewAudioSession(id, m.clock, m.logger)
	s.fade = NewCrossfadeEngine(s.audio, m.opts.CrossfadeDuration, m.logger)
	s.mode = playermode.New(m.clock, m.opts.IdleTimeout, logger, func(st playermode.State) {
		m.publish(events.EventPlayerMode, events.Payload{
			"session_id": id,
			"mode":       string(st.Mode),
			"is_paused":  st.IsPaused,
		})
	})
	m.sess = s

	var openFailed []*MediaTrack
	for _, t := range s.tracks {
		if err := src.OpenErrors[t.Name]; err != nil {
			t.MarkFailed(err)
			openFailed = append(openFailed, t)
		}
	}

	m.applyDegradationLocked(ctx)

	for _, t := range s.tracks {
		if t.Handle == nil {
			continue
		}
		name := t.Name
		s.unsubs = append(s.unsubs, t.Handle.Subscribe(func(ev HandleEvent) {
			m.handleEvent(id, name, ev)
		}))
	}
	if s.video.Handle != nil {
		s.duration = s.video.Handle.Duration()
	}

	m.startOutputLocked(s)
	telemetry.SessionsLoadedTotal.Inc()

	m.emitLocked(events.EventSessionLoaded, events.Payload{
		"song_id":                src.SongID,
		"mode":                   string(s.degradation.Mode),
		"instrumental_available": s.degradation.InstrumentalAvailable,
		"lyric_lines":            s.lyrics.Len(),
	})
	for _, t := range openFailed {
		m.reportTrackFailureLocked(t, t.LoadError())
	}

	if err := m.evaluateLocked(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial readiness evaluation")
	}

	logger.Info().
		Str("mode", string(s.degradation.Mode)).
		Str("vocal_mode", string(s.vocalMode)).
		Msg("song session loaded")

	m.unlockAndFlush()
	return id, nil
}

// Close tears down the current session.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.teardownLocked()
	m.mu.Unlock()
	return nil
}

// Play records the intent to play and starts every track once all required
// tracks are ready.
func (m *Manager) Play(ctx context.Context) (err error) {
	ctx, span := telemetry.StartPlayerSpan(ctx, "play")
	defer func() { telemetry.EndSpan(span, err) }()

	m.mu.Lock()
	defer m.unlockAndFlush()

	s := m.sess
	if s == nil {
		return ErrNoSession
	}
	if s.degradation.Blocking() {
		return fmt.Errorf("%w: %s", ErrCannotPlay, s.degradation.ErrorMessage)
	}
	if s.wantPlaying {
		return nil
	}
	if s.ended {
		// Replaying after the end restarts from the top; followers are
		// aligned to the video before resuming.
		s.ended = false
		s.video.Handle.SetTime(0)
	}
	s.wantPlaying = true
	m.emitLocked(events.EventPlayback, events.Payload{"intent": "play"})

	span.SetAttributes(telemetry.SessionAttr(s.id))
	return m.evaluateLocked(ctx)
}

// Pause stops every track and clears the play intent. An in-flight crossfade
// keeps its automation; the pause itself silences the output.
func (m *Manager) Pause() error {
	m.mu.Lock()
	defer m.unlockAndFlush()

	s := m.sess
	if s == nil {
		return ErrNoSession
	}
	s.wantPlaying = false
	s.playing = false
	m.sync.PauseAll(s.tracks)
	if s.buffering {
		s.buffering = false
		m.emitLocked(events.EventBuffering, events.Payload{"buffering": false})
	}
	m.emitLocked(events.EventPlayback, events.Payload{"intent": "pause"})
	return nil
}

// Seek moves the playback clock to seconds and realigns the followers.
func (m *Manager) Seek(ctx context.Context, seconds float64) (err error) {
	_, span := telemetry.StartPlayerSpan(ctx, "seek", telemetry.SeekAttr(seconds))
	defer func() { telemetry.EndSpan(span, err) }()

	m.mu.Lock()
	defer m.unlockAndFlush()

	s := m.sess
	if s == nil {
		return ErrNoSession
	}
	if !s.video.Available() {
		return fmt.Errorf("%w: %s", ErrCannotPlay, s.degradation.ErrorMessage)
	}
	if seconds < 0 {
		seconds = 0
	}
	if s.duration > 0 && seconds > s.duration {
		seconds = s.duration
	}

	s.video.Handle.SetTime(seconds)
	m.sync.SyncToTime(s.tracks, seconds)
	s.ended = false

	m.emitLocked(events.EventSeek, events.Payload{"time": seconds})
	return nil
}

// SetVocalMode crossfades to mode. Requests the degradation policy does not
// allow are ignored. The call returns once the crossfade duration has
// elapsed, the fade is superseded, or ctx is done.
func (m *Manager) SetVocalMode(ctx context.Context, mode VocalMode) (err error) {
	ctx, span := telemetry.StartPlayerSpan(ctx, "set_vocal_mode", telemetry.VocalModeAttr(string(mode)))
	defer func() { telemetry.EndSpan(span, err) }()

	if _, err := ParseVocalMode(string(mode)); err != nil {
		return err
	}

	m.mu.Lock()
	s := m.sess
	if s == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if !CanSwitchToMode(mode, s.degradation) {
		m.logger.Debug().
			Str("session_id", s.id).
			Str("target", string(mode)).
			Str("degradation", string(s.degradation.Mode)).
			Msg("vocal mode switch rejected")
		m.mu.Unlock()
		return nil
	}
	id := s.id
	var done <-chan struct{}
	if mode == s.vocalMode {
		// Already selected; a repeat request joins the fade still in flight.
		done = s.fade.Pending(mode)
		m.mu.Unlock()
		if done == nil {
			return nil
		}
	} else {
		var ok bool
		done, ok = s.fade.Start(mode, s.degradation)
		if !ok {
			m.mu.Unlock()
			return nil
		}
		s.vocalMode = mode
		m.emitLocked(events.EventVocalMode, events.Payload{"vocal_mode": string(mode)})
		m.unlockAndFlush()
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil || m.sess.id != id {
		return ErrSessionClosed
	}
	return nil
}

// Snapshot returns the current player state.
func (m *Manager) Snapshot() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.sess
	if s == nil {
		return Snapshot{}, ErrNoSession
	}
	snap := Snapshot{
		SessionID:             s.id,
		SongID:                s.songID,
		IsReady:               s.ready,
		IsPlaying:             s.playing,
		Duration:              s.duration,
		VocalMode:             s.vocalMode,
		IsBuffering:           s.buffering,
		InstrumentalAvailable: s.degradation.InstrumentalAvailable,
		Degradation:           s.degradation,
		Gains:                 s.audio.Gains(),
		PlayerMode:            s.mode.State(),
		LyricIndex:            -1,
		Ended:                 s.ended,
	}
	if s.video.Available() {
		snap.CurrentTime = s.video.Handle.Time()
	}
	if i := s.lyrics.ActiveIndex(snap.CurrentTime); i >= 0 {
		line := s.lyrics.lines[i]
		snap.LyricIndex = i
		snap.Lyric = &line
	}
	return snap, nil
}

// Lyrics returns the current session's lyric lines.
func (m *Manager) Lyrics() []LyricLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	return m.sess.lyrics.Lines()
}

// Controls returns the mode controller of the current session.
func (m *Manager) Controls() (*playermode.Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil, ErrNoSession
	}
	return m.sess.mode, nil
}

// handleEvent is the single entry point for handle signals.
func (m *Manager) handleEvent(sessionID string, name TrackName, ev HandleEvent) {
	m.mu.Lock()
	defer m.unlockAndFlush()

	s := m.sess
	if s == nil || s.id != sessionID {
		return // stale event from a torn-down session
	}
	t := s.track(name)
	if t == nil || t.Failed() {
		return
	}

	ctx := context.Background()
	switch ev.Kind {
	case EventError:
		m.trackFailedLocked(ctx, t, ev.Err)
		return
	case EventLoadedMetadata:
		if name == TrackVideo {
			s.duration = t.Handle.Duration()
		}
	case EventTimeUpdate:
		if name == TrackVideo && s.playing {
			for _, corrected := range m.sync.ResyncIfNeeded(s.tracks, t.Handle.Time()) {
				telemetry.DriftCorrectionsTotal.WithLabelValues(string(corrected)).Inc()
			}
		}
		return
	case EventEnded:
		if name == TrackVideo {
			m.sync.PauseAll(s.tracks)
			s.wantPlaying = false
			s.playing = false
			s.ended = true
			m.emitLocked(events.EventEnded, nil)
		}
		return
	}

	if err := m.evaluateLocked(ctx); err != nil {
		m.logger.Warn().Err(err).Str("session_id", s.id).Msg("resume after readiness change")
	}
}

// evaluateLocked recomputes readiness and applies the resulting
// ready/stall/recover transition.
func (m *Manager) evaluateLocked(ctx context.Context) error {
	s := m.sess
	st := m.sync.CheckAllReady(s.tracks)

	if s.degradation.Blocking() {
		return nil
	}

	if !s.ready && st.AllReady {
		s.ready = true
		s.mode.Enable()
		m.emitLocked(events.EventReady, events.Payload{"duration": s.duration})
	}

	if s.playing {
		if m.sync.IsAnyBuffering(s.tracks) || !st.AllReady {
			m.sync.PauseAll(s.tracks)
			s.playing = false
			s.buffering = true
			stalled := st.BufferingTracks
			for _, name := range stalled {
				telemetry.BufferingStallsTotal.WithLabelValues(string(name)).Inc()
			}
			m.logger.Info().Str("session_id", s.id).Interface("tracks", stalled).Msg("required track starved, pausing all tracks")
			m.emitLocked(events.EventBuffering, events.Payload{"buffering": true, "tracks": trackNames(stalled)})
		}
		return nil
	}

	if !s.wantPlaying {
		return nil
	}
	if !st.AllReady {
		if !s.buffering {
			s.buffering = true
			m.emitLocked(events.EventBuffering, events.Payload{"buffering": true, "tracks": trackNames(st.BufferingTracks)})
		}
		return nil
	}

	m.sync.SyncToTime(s.tracks, s.video.Handle.Time())
	err := m.sync.ResumeAll(ctx, s.tracks)
	s.playing = true
	if s.buffering {
		s.buffering = false
		m.emitLocked(events.EventBuffering, events.Payload{"buffering": false})
	}
	return err
}

// trackFailedLocked absorbs a fatal load error into the degradation state.
func (m *Manager) trackFailedLocked(ctx context.Context, t *MediaTrack, err error) {
	s := m.sess
	t.MarkFailed(err)
	if t.Handle != nil {
		t.Handle.Pause()
	}
	m.reportTrackFailureLocked(t, err)

	m.applyDegradationLocked(ctx)

	if s.degradation.Blocking() {
		m.sync.PauseAll(s.tracks)
		s.fade.Stop()
		s.wantPlaying = false
		s.playing = false
		s.buffering = false
		return
	}

	if err := m.evaluateLocked(ctx); err != nil {
		m.logger.Warn().Err(err).Str("session_id", s.id).Msg("resume after track failure")
	}
}

func (m *Manager) reportTrackFailureLocked(t *MediaTrack, err error) {
	telemetry.TrackLoadFailuresTotal.WithLabelValues(string(t.Name)).Inc()

	msg := fmt.Sprintf("%s track failed to load", t.Name)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	m.logger.Warn().Err(err).Str("session_id", m.sess.id).Str("track", string(t.Name)).Msg("track load failed")
	m.emitLocked(events.EventTrackError, events.Payload{"track": string(t.Name), "message": msg})
}

// applyDegradationLocked recomputes the degradation state from track
// availability and moves the audible source off a lost track.
func (m *Manager) applyDegradationLocked(ctx context.Context) {
	s := m.sess
	prev := s.degradation
	s.degradation = CalculateDegradationState(Availability{
		Video:        s.video.Available(),
		Original:     s.original.Available(),
		Instrumental: s.instrumental.Available(),
	})
	telemetry.SetDegradationMode(string(s.degradation.Mode))

	// A song without an instrumental mix is not a failure; nothing to tell the user.
	if s.degradation.Mode == ModeOriginalOnly && s.instrumental.Absent() {
		s.degradation.ErrorMessage = ""
	}

	// With the vocal mix gone the instrumental is the only audio and gates playback.
	s.instrumental.Required = s.degradation.Mode == ModeInstrumentalOnly

	if prev != s.degradation && s.degradation.ErrorMessage != "" {
		m.emitLocked(events.EventDegraded, events.Payload{
			"mode":     string(s.degradation.Mode),
			"message":  s.degradation.ErrorMessage,
			"blocking": s.degradation.Blocking(),
		})
	}

	def, ok := DefaultVocalMode(s.degradation)
	if !ok {
		return
	}
	switch {
	case s.vocalMode == "":
		// Session start: gains begin at (1,0), so only a missing vocal mix needs a move.
		s.vocalMode = def
		if def != VocalOriginal {
			s.fade.Start(def, s.degradation)
		}
	case (s.vocalMode == VocalOriginal && !s.degradation.OriginalAvailable) ||
		(s.vocalMode == VocalInstrumental && !s.degradation.InstrumentalAvailable):
		if _, started := s.fade.Start(def, s.degradation); started {
			s.vocalMode = def
			m.emitLocked(events.EventVocalMode, events.Payload{"vocal_mode": string(def), "fallback": true})
		}
	}
}

func (m *Manager) startOutputLocked(s *session) {
	orig, _ := s.original.Handle.(GainSetter)
	inst, _ := s.instrumental.Handle.(GainSetter)
	if orig == nil && inst == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopOutput = cancel
	go s.audio.Run(ctx, orig, inst)
}

func (m *Manager) teardownLocked() {
	s := m.sess
	if s == nil {
		return
	}
	for _, unsub := range s.unsubs {
		unsub()
	}
	if s.stopOutput != nil {
		s.stopOutput()
	}
	s.fade.Stop()
	s.mode.Close()
	m.sync.PauseAll(s.tracks)
	for _, t := range s.tracks {
		if t.Handle == nil {
			continue
		}
		if err := t.Handle.Close(); err != nil {
			m.logger.Debug().Err(err).Str("track", string(t.Name)).Msg("close handle")
		}
	}
	m.logger.Info().Str("session_id", s.id).Msg("song session closed")
	m.sess = nil
}

func (s *session) track(name TrackName) *MediaTrack {
	switch name {
	case TrackVideo:
		return s.video
	case TrackOriginal:
		return s.original
	case TrackInstrumental:
		return s.instrumental
	}
	return nil
}

// emitLocked queues an event tagged with the current session.
func (m *Manager) emitLocked(t events.EventType, payload events.Payload) {
	if payload == nil {
		payload = events.Payload{}
	}
	if m.sess != nil {
		payload["session_id"] = m.sess.id
	}
	m.outbox = append(m.outbox, outboundEvent{eventType: t, payload: payload})
}

// unlockAndFlush releases mu and publishes the queued events.
func (m *Manager) unlockAndFlush() {
	out := m.outbox
	m.outbox = nil
	m.mu.Unlock()
	for _, ev := range out {
		m.publish(ev.eventType, ev.payload)
	}
}

func (m *Manager) publish(t events.EventType, payload events.Payload) {
	if m.pub == nil {
		return
	}
	m.pub.Publish(t, payload)
}

func trackNames(names []TrackName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
