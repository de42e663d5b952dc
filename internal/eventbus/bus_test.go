package eventbus

import (
	"testing"
	"time"
)

func TestSubscribeFiltersByType(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	fired, unsubFired := b.Subscribe(4, TypeAlarmFired)
	defer unsubFired()

	b.Publish(Event{Type: TypeAlarmScheduled})
	b.Publish(Event{Type: TypeAlarmFired, Data: AlarmFired{AlarmID: "a"}})

	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d events", len(all))
	}
	if len(fired) != 1 {
		t.Fatalf("filtered subscriber got %d events", len(fired))
	}
	e := <-fired
	if e.Time.IsZero() {
		t.Fatalf("publish must stamp the event time")
	}
	if p, ok := e.Data.(AlarmFired); !ok || p.AlarmID != "a" {
		t.Fatalf("payload = %#v", e.Data)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: TypeAlarmFired})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
	if Dropped(b) != 9 {
		t.Fatalf("dropped = %d, want 9", Dropped(b))
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel must be closed")
	}
	b.Publish(Event{Type: TypeAlarmFired})
}
