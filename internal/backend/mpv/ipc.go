/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package mpv drives one mpv process per track over its JSON IPC socket.
package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"
)

// ErrIPCClosed is returned for commands issued after the connection closed.
var ErrIPCClosed = errors.New("mpv ipc closed")

// Event is an asynchronous message from mpv: a property change for an
// observed property, or a player event such as file-loaded or end-file.
type Event struct {
	Name      string          `json:"event"`
	ID        int             `json:"id,omitempty"`
	Property  string          `json:"name,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	FileError string          `json:"file_error,omitempty"`
}

type request struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id"`
}

// message is either a reply (request_id set) or an event (event set).
type message struct {
	Event
	RequestID *int64 `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type reply struct {
	data json.RawMessage
	err  error
}

// Conn is a persistent IPC connection. Replies are matched to commands by
// request_id; events are handed to onEvent from the read loop.
type Conn struct {
	nc      net.Conn
	logger  zerolog.Logger
	onEvent func(Event)

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan reply
	closed  bool
	done    chan struct{}
}

// NewConn wraps nc and starts its read loop. onEvent must not block on
// anything that waits for a command reply.
func NewConn(nc net.Conn, logger zerolog.Logger, onEvent func(Event)) *Conn {
	c := &Conn{
		nc:      nc,
		logger:  logger,
		onEvent: onEvent,
		pending: make(map[int64]chan reply),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Command sends an IPC command and waits for its reply.
func (c *Conn) Command(ctx context.Context, args ...any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrIPCClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan reply, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	payload, err := json.Marshal(request{Command: args, RequestID: id})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	c.writeMu.Lock()
	_, err = c.nc.Write(append(payload, '\n'))
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrIPCClosed
	}
}

// Close shuts the connection down and fails pending commands.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	return c.nc.Close()
}

// Done is closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) readLoop() {
	defer c.Close()

	reader := bufio.NewReader(c.nc)
	for {
		// mpv sends newline-delimited JSON.
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			c.dispatch(line)
		}
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.logger.Debug().Err(err).Msg("mpv ipc read loop ended")
			}
			return
		}
	}
}

func (c *Conn) dispatch(line []byte) {
	var msg message
	if err := json.Unmarshal(line, &msg); err != nil {
		return // Skip unparseable lines
	}

	if msg.Name != "" {
		if c.onEvent != nil {
			c.onEvent(msg.Event)
		}
		return
	}
	if msg.RequestID == nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[*msg.RequestID]
	c.mu.Unlock()
	if !ok {
		return
	}

	r := reply{data: msg.Data}
	if msg.Error != "" && msg.Error != "success" {
		r.err = fmt.Errorf("mpv error: %s", msg.Error)
	}
	ch <- r
}
