package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"alarmd/internal/eventbus"
	"alarmd/internal/trigger"
	logx "alarmd/pkg/logx"
)

type recordingSink struct {
	mu    sync.Mutex
	got   []eventbus.AlarmFired
	fails int
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Deliver(_ context.Context, f eventbus.AlarmFired) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails > 0 {
		r.fails--
		return errors.New("sink down")
	}
	r.got = append(r.got, f)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event) eventbus.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for event")
		return eventbus.Event{}
	}
}

func fired(alarmID string, at time.Time) trigger.Fired {
	return trigger.Fired{ID: uuid.New(), Payload: trigger.Payload{AlarmID: alarmID, Label: "Wake"}, At: at, Source: "legacy"}
}

func TestDeliverPublishesAndRecordsHistory(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4, eventbus.TypeAlarmFired)
	defer unsub()
	sink := &recordingSink{}
	s := New(Config{Enabled: true, RatePerSec: 100, DedupWindow: time.Minute}, bus, logx.Nop(), sink)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	f := fired("a1", time.Now())
	if err := s.Submit(context.Background(), f); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	e := waitEvent(t, ch)
	p := e.Data.(eventbus.AlarmFired)
	if p.AlarmID != "a1" || p.RequestID != f.ID.String() || p.Backend != "legacy" {
		t.Fatalf("payload = %+v", p)
	}
	if sink.count() != 1 {
		t.Fatalf("sink deliveries = %d", sink.count())
	}
	if h := s.History(); len(h) != 1 || h[0].AlarmID != "a1" {
		t.Fatalf("history = %+v", h)
	}
}

func TestDuplicateFiringDeliveredOnce(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4, eventbus.TypeAlarmFired)
	defer unsub()
	s := New(Config{Enabled: true, RatePerSec: 100, DedupWindow: time.Minute}, bus, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	f := fired("a1", time.Date(2026, 2, 4, 7, 0, 0, 0, time.UTC))
	_ = s.Submit(context.Background(), f)
	_ = s.Submit(context.Background(), f)
	waitEvent(t, ch)
	select {
	case e := <-ch:
		t.Fatalf("duplicate delivered: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSinkRetry(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()
	sink := &recordingSink{fails: 1}
	s := New(Config{Enabled: true, RatePerSec: 100, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}, bus, logx.Nop(), sink)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_ = s.Submit(context.Background(), fired("a2", time.Now()))
	waitEvent(t, ch)
	if sink.count() != 1 {
		t.Fatalf("sink deliveries after retry = %d", sink.count())
	}
	if h := s.History(); len(h) != 1 || h[0].Err != "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestDisabledPublishesDirectly(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()
	s := New(Config{Enabled: false}, bus, logx.Nop())
	s.Handle(fired("a3", time.Now()))
	if e := waitEvent(t, ch); e.Type != eventbus.TypeAlarmFired {
		t.Fatalf("event type = %s", e.Type)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	s := New(Config{Enabled: true}, eventbus.New(), logx.Nop())
	s.Start(context.Background())
	s.Stop(context.Background())
	if err := s.Submit(context.Background(), fired("a4", time.Now())); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestHistoryIsCapped(t *testing.T) {
	s := New(Config{HistorySize: 2}, nil, logx.Nop())
	for i := 0; i < 5; i++ {
		s.appendHistory(HistoryItem{AlarmID: string(rune('a' + i))}, 2)
	}
	h := s.History()
	if len(h) != 2 || h[1].AlarmID != "e" {
		t.Fatalf("history = %+v", h)
	}
}
