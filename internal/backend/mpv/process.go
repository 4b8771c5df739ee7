/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package mpv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const (
	socketPollInterval = 50 * time.Millisecond
	stopGrace          = 2 * time.Second
)

// LaunchOptions describes one mpv instance.
type LaunchOptions struct {
	Bin       string
	SocketDir string
	SessionID string
	Name      string // track name, used in the socket path
	URL       string
	Video     bool // false starts mpv without a video output
	Volume    float64
	ExtraArgs []string

	StartTimeout time.Duration
}

type process struct {
	cmd    *exec.Cmd
	socket string
	exited chan struct{}
}

// Launch starts mpv paused on opts.URL and attaches to its IPC socket.
func Launch(ctx context.Context, opts LaunchOptions, logger zerolog.Logger) (*Handle, error) {
	if opts.Bin == "" {
		opts.Bin = "mpv"
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 5 * time.Second
	}
	socket := filepath.Join(opts.SocketDir, fmt.Sprintf("ktv-%s-%s.sock", opts.SessionID, opts.Name))
	_ = os.Remove(socket)

	args := []string{
		"--idle=no",
		"--pause",
		"--keep-open=yes",
		"--no-terminal",
		"--input-ipc-server=" + socket,
		fmt.Sprintf("--volume=%.2f", volumeFor(opts.Volume)),
		"--cache=yes",
	}
	if opts.Video {
		args = append(args, "--fs", "--osc=no", "--no-audio")
	} else {
		args = append(args, "--no-video", "--force-window=no")
	}
	args = append(args, opts.ExtraArgs...)
	args = append(args, opts.URL)

	cmd := exec.Command(opts.Bin, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}
	proc := &process{cmd: cmd, socket: socket, exited: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(proc.exited)
	}()

	nc, err := dialSocket(ctx, socket, opts.StartTimeout, proc.exited)
	if err != nil {
		_ = proc.stop()
		return nil, err
	}

	h, err := Attach(ctx, nc, opts.Name, logger)
	if err != nil {
		_ = proc.stop()
		return nil, err
	}
	h.proc = proc

	h.logger.Info().Str("socket", socket).Int("pid", cmd.Process.Pid).Msg("mpv started")
	return h, nil
}

func dialSocket(ctx context.Context, socket string, timeout time.Duration, exited <-chan struct{}) (net.Conn, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(socketPollInterval)
	defer ticker.Stop()

	var dialer net.Dialer
	for {
		nc, err := dialer.DialContext(ctx, "unix", socket)
		if err == nil {
			return nc, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-exited:
			return nil, errors.New("mpv exited before opening its ipc socket")
		case <-deadline.C:
			return nil, fmt.Errorf("mpv ipc socket %s not ready: %w", socket, err)
		case <-ticker.C:
		}
	}
}

// stop waits briefly for mpv to exit after quit, then kills it.
func (p *process) stop() error {
	defer os.Remove(p.socket)
	select {
	case <-p.exited:
		return nil
	case <-time.After(stopGrace):
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill mpv: %w", err)
	}
	<-p.exited
	return nil
}
