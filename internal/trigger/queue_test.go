package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"alarmd/internal/alarm"
	"alarmd/internal/schedule"
	logx "alarmd/pkg/logx"
)

func nopLog() logx.Logger { return logx.Nop() }

type memPending struct {
	mu   sync.Mutex
	reqs map[uuid.UUID]Request
}

func newMemPending() *memPending { return &memPending{reqs: map[uuid.UUID]Request{}} }

func (m *memPending) PutPending(_ context.Context, r Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs[r.ID] = r
	return nil
}

func (m *memPending) DeletePending(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reqs, id)
	return nil
}

func (m *memPending) ListPending(context.Context) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, 0, len(m.reqs))
	for _, r := range m.reqs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memPending) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reqs)
}

func TestQueueCapacity(t *testing.T) {
	q := NewQueue(QueueConfig{Capacity: 2, Timezone: "UTC"}, nil, nopLog(), nil)
	ctx := context.Background()
	spec := schedule.Recurring(6, 0, schedule.EveryWeek(alarm.Friday))
	a, b := uuid.New(), uuid.New()
	if err := q.Register(ctx, a, spec, Payload{}); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if err := q.Register(ctx, b, spec, Payload{}); err != nil {
		t.Fatalf("Register b: %v", err)
	}
	if err := q.Register(ctx, uuid.New(), spec, Payload{}); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
	if err := q.Register(ctx, a, spec, Payload{Label: "again"}); err != nil {
		t.Fatalf("re-register at capacity must upsert: %v", err)
	}
	if cnt, _ := q.PendingCount(ctx); cnt != 2 {
		t.Fatalf("pending = %d", cnt)
	}
}

func TestQueueDefaultCapacity(t *testing.T) {
	q := NewQueue(QueueConfig{}, nil, nopLog(), nil)
	if q.Capacity() != DefaultQueueCapacity {
		t.Fatalf("capacity = %d", q.Capacity())
	}
}

func TestQueuePersistsAndRestores(t *testing.T) {
	store := newMemPending()
	ctx := context.Background()
	q := NewQueue(QueueConfig{Timezone: "UTC"}, store, nopLog(), nil)
	id := uuid.New()
	if err := q.Register(ctx, id, schedule.Fixed(time.Now().Add(time.Hour)), Payload{AlarmID: "x"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if store.len() != 1 {
		t.Fatalf("request not persisted")
	}

	q2 := NewQueue(QueueConfig{Timezone: "UTC"}, store, nopLog(), nil)
	if err := q2.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer q2.Stop(ctx)
	if cnt, _ := q2.PendingCount(ctx); cnt != 1 {
		t.Fatalf("restored pending = %d", cnt)
	}
	if err := q2.Unregister(id); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if store.len() != 0 {
		t.Fatalf("request not deleted from store")
	}
}

func TestQueueOneShotFiresAndLeaves(t *testing.T) {
	store := newMemPending()
	ch := make(chan Fired, 1)
	q := NewQueue(QueueConfig{Timezone: "UTC"}, store, nopLog(), func(f Fired) { ch <- f })
	ctx := context.Background()
	if err := q.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer q.Stop(ctx)

	id := uuid.New()
	if err := q.Register(ctx, id, schedule.Fixed(time.Now().Add(20*time.Millisecond)), Payload{AlarmID: "once"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	f := waitFired(t, ch)
	if f.ID != id || f.Source != "legacy" {
		t.Fatalf("fired = %+v", f)
	}
	if cnt, _ := q.PendingCount(ctx); cnt != 0 {
		t.Fatalf("pending after fire = %d", cnt)
	}
	if store.len() != 0 {
		t.Fatalf("fired request still persisted")
	}
}

func TestQueueCategories(t *testing.T) {
	q := NewQueue(QueueConfig{}, nil, nopLog(), nil)
	q.RegisterCategory(Category{Name: "alarm", Actions: []string{"snooze", "stop"}})
	q.RegisterCategory(Category{Name: "alarm", Actions: []string{"snooze", "stop"}})
	cats := q.Categories()
	if len(cats) != 1 || len(cats[0].Actions) != 2 {
		t.Fatalf("categories = %+v", cats)
	}
}

func TestQueueLoadDoesNotArm(t *testing.T) {
	store := newMemPending()
	ctx := context.Background()
	q := NewQueue(QueueConfig{Timezone: "UTC"}, store, nopLog(), nil)
	id := uuid.New()
	if err := q.Register(ctx, id, schedule.Fixed(time.Now().Add(-time.Minute)), Payload{AlarmID: "past"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	fired := make(chan Fired, 1)
	q2 := NewQueue(QueueConfig{Timezone: "UTC"}, store, nopLog(), func(f Fired) { fired <- f })
	if err := q2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := q2.Load(ctx); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if cnt, _ := q2.PendingCount(ctx); cnt != 1 {
		t.Fatalf("loaded pending = %d", cnt)
	}
	select {
	case f := <-fired:
		t.Fatalf("loaded request fired: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueueStaleTimerSkipsReplacement(t *testing.T) {
	var fired int
	q := NewQueue(QueueConfig{Timezone: "UTC"}, nil, nopLog(), func(Fired) { fired++ })
	ctx := context.Background()
	if err := q.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer q.Stop(ctx)

	id := uuid.New()
	if err := q.Register(ctx, id, schedule.Fixed(time.Now().Add(time.Hour)), Payload{AlarmID: "a"}); err != nil {
		t.Fatal(err)
	}
	q.mu.Lock()
	stale := q.entries[id].ver
	q.mu.Unlock()

	if err := q.Unregister(id); err != nil {
		t.Fatal(err)
	}
	if err := q.Register(ctx, id, schedule.Fixed(time.Now().Add(2*time.Hour)), Payload{AlarmID: "a"}); err != nil {
		t.Fatal(err)
	}

	// A callback of the first timer that was already running when it was
	// replaced must not fire the new request.
	q.fire(id, stale)
	if fired != 0 {
		t.Fatalf("stale timer fired the replacement")
	}
	if n, _ := q.PendingCount(ctx); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}
}
