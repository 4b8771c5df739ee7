package events

import "testing"

func TestBusDeliversByType(t *testing.T) {
	b := NewBus()
	ready := b.Subscribe(EventReady)
	buffering := b.Subscribe(EventBuffering)

	b.Publish(EventReady, Payload{"session_id": "s1"})

	select {
	case p := <-ready:
		if p["session_id"] != "s1" {
			t.Fatalf("payload = %v", p)
		}
	default:
		t.Fatal("ready subscriber got nothing")
	}
	select {
	case p := <-buffering:
		t.Fatalf("buffering subscriber got %v", p)
	default:
	}
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(EventSeek)

	for i := 0; i < 20; i++ {
		b.Publish(EventSeek, Payload{"time": float64(i)})
	}
	if len(sub) != cap(sub) {
		t.Fatalf("buffered = %d, want %d", len(sub), cap(sub))
	}
	if first := <-sub; first["time"] != float64(0) {
		t.Errorf("first event = %v, want the oldest", first)
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(EventEnded)
	b.Unsubscribe(EventEnded, sub)

	if _, open := <-sub; open {
		t.Fatal("channel still open after Unsubscribe")
	}
	b.Publish(EventEnded, Payload{})

	// Unsubscribing twice is a no-op.
	b.Unsubscribe(EventEnded, sub)
}

func TestPlayerEventsAreNamespaced(t *testing.T) {
	seen := map[EventType]bool{}
	for _, et := range PlayerEvents {
		if len(et) < len("player.") || et[:7] != "player." {
			t.Errorf("%q lacks the player. prefix", et)
		}
		if seen[et] {
			t.Errorf("%q listed twice", et)
		}
		seen[et] = true
	}
}
