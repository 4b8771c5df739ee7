package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/playback"
)

// fakeMPV answers IPC commands on the server side of a pipe and records them.
type fakeMPV struct {
	t    *testing.T
	conn net.Conn

	mu       sync.Mutex
	commands [][]any
	writeMu  sync.Mutex
	failWith string
}

func newFakeMPV(t *testing.T) (*fakeMPV, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	f := &fakeMPV{t: t, conn: server}
	go f.serve()
	t.Cleanup(func() { _ = server.Close() })
	return f, client
}

func (f *fakeMPV) serve() {
	scanner := bufio.NewScanner(f.conn)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		f.mu.Lock()
		f.commands = append(f.commands, req.Command)
		errStr := "success"
		if f.failWith != "" {
			errStr = f.failWith
		}
		f.mu.Unlock()
		f.send(map[string]any{"request_id": req.RequestID, "error": errStr})
	}
}

func (f *fakeMPV) send(msg map[string]any) {
	b, _ := json.Marshal(msg)
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_, _ = f.conn.Write(append(b, '\n'))
}

func (f *fakeMPV) property(name string, data any) {
	f.send(map[string]any{"event": "property-change", "name": name, "data": data})
}

func (f *fakeMPV) lastCommand() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return nil
	}
	return f.commands[len(f.commands)-1]
}

func attachFake(t *testing.T) (*Handle, *fakeMPV, chan playback.HandleEvent) {
	t.Helper()
	f, client := newFakeMPV(t)
	h, err := Attach(context.Background(), client, "original", zerolog.Nop())
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	events := make(chan playback.HandleEvent, 32)
	h.Subscribe(func(ev playback.HandleEvent) { events <- ev })
	return h, f, events
}

func expectEvent(t *testing.T, events <-chan playback.HandleEvent, kind playback.EventKind) playback.HandleEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func TestAttachObservesProperties(t *testing.T) {
	_, f, _ := attachFake(t)

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) != len(observed) {
		t.Fatalf("expected %d observe commands, got %d", len(observed), len(f.commands))
	}
	for i, cmd := range f.commands {
		if cmd[0] != "observe_property" || cmd[2] != observed[i] {
			t.Errorf("command %d = %v", i, cmd)
		}
	}
}

func TestReadinessTransitions(t *testing.T) {
	h, f, events := attachFake(t)

	if h.ReadinessLevel() != playback.HaveNothing {
		t.Fatalf("initial level = %d", h.ReadinessLevel())
	}

	f.send(map[string]any{"event": "file-loaded"})
	expectEvent(t, events, playback.EventLoadedMetadata)

	f.property("duration", 212.4)
	f.property("demuxer-cache-duration", 3.0)
	expectEvent(t, events, playback.EventCanPlay)
	if h.ReadinessLevel() != playback.HaveEnoughData {
		t.Fatalf("level = %d, want enough data", h.ReadinessLevel())
	}
	if h.Duration() != 212.4 {
		t.Fatalf("duration = %v", h.Duration())
	}

	f.property("paused-for-cache", true)
	expectEvent(t, events, playback.EventWaiting)
	if h.ReadinessLevel() != playback.HaveCurrentData {
		t.Fatalf("level = %d, want current data", h.ReadinessLevel())
	}

	f.property("paused-for-cache", false)
	expectEvent(t, events, playback.EventCanPlay)
}

func TestTimeAndEndEvents(t *testing.T) {
	h, f, events := attachFake(t)

	f.property("time-pos", 12.5)
	expectEvent(t, events, playback.EventTimeUpdate)
	if h.Time() != 12.5 {
		t.Fatalf("Time = %v", h.Time())
	}

	f.property("time-pos", nil) // idle player reports null
	f.property("eof-reached", true)
	expectEvent(t, events, playback.EventEnded)
	if h.Time() != 12.5 {
		t.Fatalf("null time-pos overwrote position: %v", h.Time())
	}
}

func TestEndFileErrorReportsFailure(t *testing.T) {
	_, f, events := attachFake(t)

	f.send(map[string]any{"event": "end-file", "reason": "error", "file_error": "loading failed"})
	ev := expectEvent(t, events, playback.EventError)
	if ev.Err == nil {
		t.Fatal("expected error detail")
	}
}

func TestEndFileErrorBeforeSubscribeIsReplayed(t *testing.T) {
	f, client := newFakeMPV(t)
	h, err := Attach(context.Background(), client, "original", zerolog.Nop())
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	f.send(map[string]any{"event": "end-file", "reason": "error", "file_error": "loading failed"})
	waitForErr(t, h)

	events := make(chan playback.HandleEvent, 8)
	h.Subscribe(func(ev playback.HandleEvent) { events <- ev })
	ev := expectEvent(t, events, playback.EventError)
	if ev.Err == nil || ev.Err != h.Err() {
		t.Fatalf("replayed error = %v, want %v", ev.Err, h.Err())
	}
}

func TestClosedConnectionBeforeSubscribeIsReplayed(t *testing.T) {
	f, client := newFakeMPV(t)
	h, err := Attach(context.Background(), client, "vocal", zerolog.Nop())
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	_ = f.conn.Close()
	waitForErr(t, h)

	events := make(chan playback.HandleEvent, 8)
	h.Subscribe(func(ev playback.HandleEvent) { events <- ev })
	ev := expectEvent(t, events, playback.EventError)
	if !errors.Is(ev.Err, ErrIPCClosed) {
		t.Fatalf("expected ErrIPCClosed, got %v", ev.Err)
	}
}

func waitForErr(t *testing.T, h *Handle) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Err() == nil {
		if time.Now().After(deadline) {
			t.Fatal("handle never failed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestVolumeForIsCubic(t *testing.T) {
	tests := []struct {
		gain float64
		want float64
	}{
		{gain: 0, want: 0},
		{gain: 1, want: 100},
		{gain: 0.125, want: 50},
		{gain: 0.001, want: 10},
		{gain: -0.5, want: 0},
		{gain: 1.5, want: 100},
	}
	for _, tt := range tests {
		if got := volumeFor(tt.gain); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("volumeFor(%v) = %v, want %v", tt.gain, got, tt.want)
		}
	}

	// Equal-power halves must sum back to unit power once mpv cubes them.
	half := math.Sqrt(0.5)
	amp := math.Pow(volumeFor(half)/100, 3)
	if math.Abs(2*amp*amp-1) > 1e-9 {
		t.Fatalf("amplitude after mpv mapping = %v, want %v", amp, half)
	}
}

func TestCommandsUpdateLocalState(t *testing.T) {
	h, f, _ := attachFake(t)

	if err := h.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if h.Paused() {
		t.Fatal("Paused after Play")
	}
	if cmd := f.lastCommand(); cmd[0] != "set_property" || cmd[1] != "pause" || cmd[2] != false {
		t.Fatalf("unexpected play command %v", cmd)
	}

	h.SetTime(42)
	if h.Time() != 42 {
		t.Fatalf("Time after seek = %v", h.Time())
	}
	if cmd := f.lastCommand(); cmd[0] != "seek" || cmd[1] != 42.0 || cmd[2] != "absolute+exact" {
		t.Fatalf("unexpected seek command %v", cmd)
	}

	if err := h.SetGain(0.125); err != nil {
		t.Fatalf("SetGain: %v", err)
	}
	if cmd := f.lastCommand(); cmd[1] != "volume" || math.Abs(cmd[2].(float64)-50) > 1e-9 {
		t.Fatalf("unexpected volume command %v", cmd)
	}

	h.Pause()
	if !h.Paused() {
		t.Fatal("not paused after Pause")
	}
}

func TestCommandError(t *testing.T) {
	h, f, _ := attachFake(t)

	f.mu.Lock()
	f.failWith = "property unavailable"
	f.mu.Unlock()

	if err := h.Play(context.Background()); err == nil {
		t.Fatal("expected mpv error")
	}
	if !h.Paused() {
		t.Fatal("failed Play changed local state")
	}
}

func TestClosedConnectionReportsError(t *testing.T) {
	h, f, events := attachFake(t)

	_ = f.conn.Close()
	ev := expectEvent(t, events, playback.EventError)
	if !errors.Is(ev.Err, ErrIPCClosed) {
		t.Fatalf("expected ErrIPCClosed, got %v", ev.Err)
	}
	if _, err := h.conn.Command(context.Background(), "get_property", "pause"); !errors.Is(err, ErrIPCClosed) {
		t.Fatalf("command after close = %v", err)
	}
}
