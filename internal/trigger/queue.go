package trigger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alarmd/internal/schedule"
	logx "alarmd/pkg/logx"
)

// DefaultQueueCapacity mirrors the per-app pending limit of the legacy OS API.
const DefaultQueueCapacity = 64

// PendingStore persists queue requests so they survive restarts.
type PendingStore interface {
	PutPending(ctx context.Context, r Request) error
	DeletePending(ctx context.Context, id uuid.UUID) error
	ListPending(ctx context.Context) ([]Request, error)
}

// Category groups the actions a delivered request offers.
type Category struct {
	Name    string
	Actions []string
}

type QueueConfig struct {
	Capacity  int
	Timezone  string
	Authorize Authorizer
}

type queueEntry struct {
	req   Request
	timer *time.Timer
	ver   uint64
}

// Queue is the legacy primitive: a flat request list with a hard cap.
// Re-registering an existing id replaces it without consuming capacity.
type Queue struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    QueueConfig
	loc    *time.Location
	store  PendingStore
	onFire FireFunc
	now    func() time.Time

	entries    map[uuid.UUID]*queueEntry
	categories map[string]Category
	// seq versions timers across entries, so a timer of a replaced entry
	// never matches its successor.
	seq     uint64
	loaded  bool
	started bool
	stopped bool
}

func NewQueue(cfg QueueConfig, store PendingStore, log logx.Logger, onFire FireFunc) *Queue {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultQueueCapacity
	}
	if cfg.Authorize == nil {
		cfg.Authorize = Static(true)
	}
	q := &Queue{
		log:        log,
		cfg:        cfg,
		store:      store,
		onFire:     onFire,
		now:        time.Now,
		entries:    map[uuid.UUID]*queueEntry{},
		categories: map[string]Category{},
	}
	q.loc = time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			q.loc = loc
		} else {
			log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		}
	}
	return q
}

// Capacity is the maximum number of pending requests.
func (q *Queue) Capacity() int { return q.cfg.Capacity }

// Load restores persisted requests without arming them, so short-lived
// callers see the pending set without firing anything. It runs once.
func (q *Queue) Load(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, err := q.loadLocked(ctx)
	return err
}

func (q *Queue) loadLocked(ctx context.Context) (int, error) {
	if q.loaded || q.store == nil {
		q.loaded = true
		return 0, nil
	}
	reqs, err := q.store.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("trigger: restore pending: %w", err)
	}
	q.loaded = true
	restored := 0
	for _, r := range reqs {
		if _, ok := q.entries[r.ID]; ok {
			continue
		}
		q.entries[r.ID] = &queueEntry{req: r}
		restored++
	}
	return restored, nil
}

// Start restores persisted requests and arms their timers.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return nil
	}
	restored, err := q.loadLocked(ctx)
	if err != nil {
		return err
	}
	q.started = true
	for _, e := range q.entries {
		q.armLocked(e)
	}
	q.log.Info("queue started", logx.Int("restored", restored), logx.Int("pending", len(q.entries)), logx.Int("capacity", q.cfg.Capacity))
	return nil
}

// Stop disarms timers. Requests stay persisted.
func (q *Queue) Stop(ctx context.Context) {
	_ = ctx
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	for _, e := range q.entries {
		if e.timer != nil {
			_ = e.timer.Stop()
			e.timer = nil
		}
	}
	q.log.Info("queue stopped", logx.Int("pending", len(q.entries)))
}

func (q *Queue) RequestAuthorization(ctx context.Context) (bool, error) {
	return q.cfg.Authorize(ctx), nil
}

func (q *Queue) Register(ctx context.Context, id uuid.UUID, spec schedule.Spec, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return ErrStopped
	}
	old, exists := q.entries[id]
	if !exists && len(q.entries) >= q.cfg.Capacity {
		return ErrCapacityExceeded
	}

	now := q.now()
	fireAt, ok := spec.Next(now, q.loc)
	if !ok {
		fireAt = spec.At
	}
	req := Request{ID: id, Spec: spec, Payload: p, Created: now, FireAt: fireAt}
	if q.store != nil {
		if err := q.store.PutPending(ctx, req); err != nil {
			return fmt.Errorf("trigger: persist request: %w", err)
		}
	}
	if exists && old.timer != nil {
		_ = old.timer.Stop()
	}
	e := &queueEntry{req: req}
	q.entries[id] = e
	q.armLocked(e)
	q.log.Debug("queue request registered", logx.String("id", id.String()), logx.String("spec", spec.String()), logx.Time("fire_at", fireAt), logx.Int("pending", len(q.entries)))
	return nil
}

func (q *Queue) Unregister(id uuid.UUID) error {
	q.mu.Lock()
	e, ok := q.entries[id]
	if ok {
		if e.timer != nil {
			_ = e.timer.Stop()
		}
		delete(q.entries, id)
	}
	q.mu.Unlock()
	if !ok {
		return nil
	}
	if q.store != nil {
		if err := q.store.DeletePending(context.Background(), id); err != nil {
			q.log.Warn("queue request delete failed", logx.String("id", id.String()), logx.Err(err))
			return err
		}
	}
	q.log.Debug("queue request removed", logx.String("id", id.String()))
	return nil
}

func (q *Queue) PendingCount(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

// Requests returns pending requests ordered by fire time.
func (q *Queue) Requests() []Request {
	q.mu.Lock()
	out := make([]Request, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.req)
	}
	q.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out
}

// RegisterCategory declares the actions offered with delivered requests.
func (q *Queue) RegisterCategory(c Category) {
	q.mu.Lock()
	q.categories[c.Name] = Category{Name: c.Name, Actions: append([]string(nil), c.Actions...)}
	q.mu.Unlock()
	q.log.Debug("category registered", logx.String("category", c.Name), logx.Int("actions", len(c.Actions)))
}

// Categories returns the declared categories by name.
func (q *Queue) Categories() []Category {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Category, 0, len(q.categories))
	for _, c := range q.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// armLocked starts the timer for e.req.FireAt. Call with q.mu held.
func (q *Queue) armLocked(e *queueEntry) {
	if !q.started || q.stopped {
		return
	}
	q.seq++
	e.ver = q.seq
	ver, id := e.ver, e.req.ID
	delay := e.req.FireAt.Sub(q.now())
	if delay < 0 {
		delay = 0
	}
	e.timer = time.AfterFunc(delay, func() { q.fire(id, ver) })
}

func (q *Queue) fire(id uuid.UUID, ver uint64) {
	q.mu.Lock()
	e, ok := q.entries[id]
	if !ok || e.ver != ver || q.stopped {
		q.mu.Unlock()
		return
	}
	fired := Fired{ID: id, Payload: e.req.Payload, At: e.req.FireAt, Repeats: e.req.Spec.Repeats(), Source: "legacy"}

	var persist *Request
	remove := false
	if fired.Repeats {
		next, ok := e.req.Spec.Next(e.req.FireAt, q.loc)
		if ok {
			e.req.FireAt = next
			r := e.req
			persist = &r
			q.armLocked(e)
		} else {
			remove = true
		}
	} else {
		remove = true
	}
	if remove {
		e.timer = nil
		delete(q.entries, id)
	}
	q.mu.Unlock()

	if q.store != nil {
		ctx := context.Background()
		var err error
		if remove {
			err = q.store.DeletePending(ctx, id)
		} else if persist != nil {
			err = q.store.PutPending(ctx, *persist)
		}
		if err != nil {
			q.log.Warn("queue persist after fire failed", logx.String("id", id.String()), logx.Err(err))
		}
	}

	q.log.Info("queue request fired", logx.String("id", id.String()), logx.String("alarm", fired.Payload.AlarmID), logx.Time("at", fired.At))
	if q.onFire != nil {
		q.onFire(fired)
	}
}
