/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controlapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "nhooyr.io/websocket"

	"github.com/Dzero1996/Nebula-KTV/internal/auth"
	"github.com/Dzero1996/Nebula-KTV/internal/events"
	"github.com/Dzero1996/Nebula-KTV/internal/playback"
	"github.com/Dzero1996/Nebula-KTV/internal/telemetry"
)

const (
	wsPingInterval = 15 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// wsMessage is pushed to clients: the initial snapshot, player events,
// command errors and pings.
type wsMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// wsCommand is what clients may send back.
type wsCommand struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type busEvent struct {
	eventType events.EventType
	payload   events.Payload
}

// handleEvents streams player events to a websocket client and accepts
// the same commands as the HTTP endpoints.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIWebSocketConnections.Inc()
	defer telemetry.APIWebSocketConnections.Dec()

	clientID := uuid.NewString()
	logger := a.logger.With().Str("client_id", clientID).Str("device", auth.Device(r.Context())).Logger()
	logger.Debug().Msg("player websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := a.subscribeAll(ctx)
	defer unsubscribe()

	if err := a.sendSnapshot(ctx, conn); err != nil {
		logger.Debug().Err(err).Msg("send initial snapshot failed")
		return
	}

	done := make(chan struct{})
	commandCh := make(chan wsCommand, 16)

	go func() {
		defer close(done)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ws.CloseStatus(err) != ws.StatusNormalClosure && !errors.Is(err, context.Canceled) {
					logger.Debug().Err(err).Msg("websocket read error")
				}
				return
			}

			var cmd wsCommand
			if err := json.Unmarshal(data, &cmd); err != nil {
				logger.Warn().Err(err).Msg("invalid websocket message")
				continue
			}

			select {
			case commandCh <- cmd:
			default:
				logger.Warn().Msg("command channel full, dropping message")
			}
		}
	}()

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return

		case <-done:
			conn.Close(ws.StatusNormalClosure, "client disconnected")
			return

		case <-pingTicker.C:
			if err := writeMessage(ctx, conn, wsMessage{Type: "ping", Timestamp: time.Now()}); err != nil {
				logger.Debug().Err(err).Msg("ping failed")
				return
			}

		case ev := <-updates:
			if err := a.sendEvent(ctx, conn, ev); err != nil {
				logger.Debug().Err(err).Msg("send event failed")
				return
			}

		case cmd := <-commandCh:
			if err := a.handleCommand(ctx, cmd); err != nil {
				logger.Warn().Err(err).Str("action", cmd.Action).Msg("command failed")
				a.sendError(ctx, conn, cmd.Action, err.Error())
			}
		}
	}
}

// subscribeAll fans every player event type into one channel.
func (a *API) subscribeAll(ctx context.Context) (<-chan busEvent, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan busEvent, 32)
	subs := make(map[events.EventType]events.Subscriber, len(events.PlayerEvents))
	var wg sync.WaitGroup

	for _, eventType := range events.PlayerEvents {
		sub := a.bus.Subscribe(eventType)
		subs[eventType] = sub

		wg.Add(1)
		go func(eventType events.EventType, sub events.Subscriber) {
			defer wg.Done()
			for payload := range sub {
				select {
				case out <- busEvent{eventType: eventType, payload: payload}:
				case <-ctx.Done():
				}
			}
		}(eventType, sub)
	}

	return out, func() {
		cancel()
		for eventType, sub := range subs {
			a.bus.Unsubscribe(eventType, sub)
		}
		wg.Wait()
	}
}

func (a *API) sendSnapshot(ctx context.Context, conn *ws.Conn) error {
	msg := wsMessage{Type: "snapshot", Timestamp: time.Now()}

	snap, err := a.player.Snapshot()
	switch {
	case errors.Is(err, playback.ErrNoSession):
		msg.Data = json.RawMessage("null")
	case err != nil:
		return err
	default:
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		msg.SessionID = snap.SessionID
		msg.Data = data
	}
	return writeMessage(ctx, conn, msg)
}

func (a *API) sendEvent(ctx context.Context, conn *ws.Conn, ev busEvent) error {
	data, err := json.Marshal(ev.payload)
	if err != nil {
		return err
	}
	sessionID, _ := ev.payload["session_id"].(string)
	return writeMessage(ctx, conn, wsMessage{
		Type:      string(ev.eventType),
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (a *API) sendError(ctx context.Context, conn *ws.Conn, action, errMsg string) {
	data, _ := json.Marshal(map[string]string{
		"action":  action,
		"message": errMsg,
	})
	_ = writeMessage(ctx, conn, wsMessage{Type: "error", Timestamp: time.Now(), Data: data})
}

func (a *API) handleCommand(ctx context.Context, cmd wsCommand) error {
	switch cmd.Action {
	case "play":
		return a.player.Play(ctx)

	case "pause":
		return a.player.Pause()

	case "seek":
		var data struct {
			Time float64 `json:"time"`
		}
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		return a.player.Seek(ctx, data.Time)

	case "vocal_mode":
		var data struct {
			Mode string `json:"mode"`
		}
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		mode, err := playback.ParseVocalMode(data.Mode)
		if err != nil {
			return err
		}
		// The crossfade runs on its own; the stream reports the
		// vocal_mode event instead of blocking the socket loop.
		go func() {
			if err := a.player.SetVocalMode(context.WithoutCancel(ctx), mode); err != nil {
				a.logger.Debug().Err(err).Msg("vocal mode switch")
			}
		}()
		return nil

	case "show", "hide", "pause-autohide", "resume-autohide", "interact":
		controls, err := a.player.Controls()
		if err != nil {
			return err
		}
		applyControlAction(controls, cmd.Action)
		return nil

	case "pong":
		return nil

	default:
		a.logger.Warn().Str("action", cmd.Action).Msg("unknown command action")
		return nil
	}
}

func writeMessage(ctx context.Context, conn *ws.Conn, msg wsMessage) error {
	bytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, bytes)
}
