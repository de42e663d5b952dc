package trigger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"alarmd/internal/schedule"
	logx "alarmd/pkg/logx"
)

// NativeConfig configures the native primitive.
type NativeConfig struct {
	// Timezone is the device zone recurrences are evaluated in.
	Timezone  string
	Authorize Authorizer
}

type nativeEntry struct {
	req     Request
	cronID  cron.EntryID
	timer   *time.Timer
	ver     uint64
	armedAt time.Time
	done    bool
}

// Native is a cron-backed primitive. Weekly recurrences become cron entries;
// everything else (fixed instants, never-repeating times of day, snoozes,
// resumed countdowns) runs on version-guarded one-shot timers.
type Native struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    NativeConfig
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	onFire FireFunc
	now    func() time.Time

	entries map[uuid.UUID]*nativeEntry
	states  map[uuid.UUID]Presentation
	seq     uint64
	started bool
	stopped bool
}

func NewNative(cfg NativeConfig, log logx.Logger, onFire FireFunc) *Native {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Authorize == nil {
		cfg.Authorize = Static(true)
	}
	n := &Native{
		log:     log,
		cfg:     cfg,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		onFire:  onFire,
		now:     time.Now,
		entries: map[uuid.UUID]*nativeEntry{},
		states:  map[uuid.UUID]Presentation{},
	}
	n.loc = n.loadLocation()
	n.c = cron.New(cron.WithParser(n.parser), cron.WithLocation(n.loc))
	return n
}

// Location is the zone recurrences are evaluated in.
func (n *Native) Location() *time.Location { return n.loc }

// Start begins cron triggering. One-shot timers are armed at registration.
func (n *Native) Start(ctx context.Context) {
	_ = ctx
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.stopped {
		return
	}
	n.started = true
	n.c.Start()
	n.log.Info("native primitive started", logx.String("tz", n.loc.String()), logx.Int("requests", len(n.entries)))
}

// Stop stops cron and every timer. Registrations are dropped; they are
// re-derived from storage on the next start.
func (n *Native) Stop(ctx context.Context) {
	start := time.Now()
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	c := n.c
	for _, e := range n.entries {
		if e.timer != nil {
			_ = e.timer.Stop()
		}
	}
	n.entries = map[uuid.UUID]*nativeEntry{}
	n.mu.Unlock()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	n.log.Info("native primitive stopped", logx.Duration("took", time.Since(start)))
}

func (n *Native) RequestAuthorization(ctx context.Context) (bool, error) {
	return n.cfg.Authorize(ctx), nil
}

// Register upserts a request. Authorization is checked on every call.
func (n *Native) Register(ctx context.Context, id uuid.UUID, spec schedule.Spec, p Payload) error {
	if !n.cfg.Authorize(ctx) {
		return ErrUnauthorized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return ErrStopped
	}
	n.removeLocked(id)

	now := n.now()
	fireAt, ok := spec.Next(now, n.loc)
	if !ok {
		// Past fixed instants fire immediately.
		fireAt = spec.At
	}
	e := &nativeEntry{
		req:     Request{ID: id, Spec: spec, Payload: p, Created: now, FireAt: fireAt},
		armedAt: now,
	}
	if spec.Repeats() {
		eid, err := n.c.AddJob(spec.CronExpr(), cron.FuncJob(func() { n.fireCron(id) }))
		if err != nil {
			return err
		}
		e.cronID = eid
	} else {
		n.armLocked(id, e, fireAt)
	}
	n.entries[id] = e
	n.states[id] = Presentation{Kind: CountingDown, FireAt: fireAt}

	if n.log.Enabled(logx.LevelDebug) {
		n.log.Debug("native request registered",
			logx.String("id", id.String()),
			logx.String("spec", spec.String()),
			logx.Time("fire_at", fireAt),
			logx.String("next", n.previewLocked(spec, 3)),
		)
	}
	return nil
}

// Unregister removes a request. Absent ids are not an error.
func (n *Native) Unregister(id uuid.UUID) error {
	n.mu.Lock()
	removed := n.removeLocked(id)
	delete(n.states, id)
	n.mu.Unlock()
	if removed {
		n.log.Debug("native request removed", logx.String("id", id.String()))
	}
	return nil
}

// PendingCount reports live (not yet fired one-shot, or recurring) requests.
func (n *Native) PendingCount(context.Context) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	cnt := 0
	for _, e := range n.entries {
		if !e.done {
			cnt++
		}
	}
	return cnt, nil
}

// Requests returns a snapshot of live requests.
func (n *Native) Requests() []Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Request, 0, len(n.entries))
	for _, e := range n.entries {
		if e.done {
			continue
		}
		r := e.req
		if e.cronID != 0 && n.started {
			if next := n.c.Entry(e.cronID).Next; !next.IsZero() {
				r.FireAt = next
			}
		}
		out = append(out, r)
	}
	return out
}

// Presentation returns the renderer state of a request.
func (n *Native) Presentation(id uuid.UUID) (Presentation, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.states[id]
	return p, ok
}

// Pause freezes a counting-down one-shot request.
func (n *Native) Pause(id uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.entries[id]
	if !ok {
		return ErrNotFound
	}
	st := n.states[id]
	if st.Kind != CountingDown || e.timer == nil {
		return ErrNotPausable
	}
	now := n.now()
	_ = e.timer.Stop()
	e.timer = nil
	n.seq++
	e.ver = n.seq
	n.states[id] = Presentation{
		Kind:    Paused,
		Elapsed: now.Sub(e.armedAt),
		Total:   e.req.FireAt.Sub(e.armedAt),
	}
	return nil
}

// Resume re-arms a paused request for its remaining time.
func (n *Native) Resume(id uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.entries[id]
	if !ok {
		return ErrNotFound
	}
	st := n.states[id]
	if st.Kind != Paused {
		return ErrNotPausable
	}
	now := n.now()
	remaining := st.Total - st.Elapsed
	if remaining < 0 {
		remaining = 0
	}
	e.armedAt = now.Add(-st.Elapsed)
	fireAt := now.Add(remaining)
	e.req.FireAt = fireAt
	n.armLocked(id, e, fireAt)
	n.states[id] = Presentation{Kind: CountingDown, FireAt: fireAt}
	return nil
}

// Snooze puts a request back into counting-down for d. Recurring cron
// entries keep their schedule; the snooze runs on a separate timer.
func (n *Native) Snooze(id uuid.UUID, d time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.entries[id]
	if !ok {
		return ErrNotFound
	}
	now := n.now()
	fireAt := now.Add(d)
	e.done = false
	e.armedAt = now
	e.req.FireAt = fireAt
	e.req.Payload.Snooze = true
	n.armLocked(id, e, fireAt)
	n.states[id] = Presentation{Kind: CountingDown, FireAt: fireAt}
	return nil
}

// armLocked (re)starts the one-shot timer of e. Call with n.mu held.
func (n *Native) armLocked(id uuid.UUID, e *nativeEntry, at time.Time) {
	if e.timer != nil {
		_ = e.timer.Stop()
	}
	n.seq++
	e.ver = n.seq
	ver := e.ver
	delay := at.Sub(n.now())
	if delay < 0 {
		delay = 0
	}
	e.timer = time.AfterFunc(delay, func() { n.fireTimer(id, ver) })
}

func (n *Native) fireTimer(id uuid.UUID, ver uint64) {
	n.mu.Lock()
	e, ok := n.entries[id]
	// Removed or replaced since this timer was armed.
	if !ok || e.ver != ver || n.stopped {
		n.mu.Unlock()
		return
	}
	e.timer = nil
	if e.cronID == 0 {
		e.done = true
	}
	fired := Fired{ID: id, Payload: e.req.Payload, At: e.req.FireAt, Repeats: e.cronID != 0, Source: "native"}
	e.req.Payload.Snooze = false
	n.states[id] = Presentation{Kind: Alerting}
	n.mu.Unlock()

	n.emit(fired)
}

func (n *Native) fireCron(id uuid.UUID) {
	n.mu.Lock()
	e, ok := n.entries[id]
	if !ok || n.stopped {
		n.mu.Unlock()
		return
	}
	at := n.now().Truncate(time.Minute)
	fired := Fired{ID: id, Payload: e.req.Payload, At: at, Repeats: true, Source: "native"}
	n.states[id] = Presentation{Kind: Alerting}
	n.mu.Unlock()

	n.emit(fired)
}

func (n *Native) emit(f Fired) {
	n.log.Info("native request fired", logx.String("id", f.ID.String()), logx.String("alarm", f.Payload.AlarmID), logx.Time("at", f.At))
	if n.onFire != nil {
		n.onFire(f)
	}
}

func (n *Native) removeLocked(id uuid.UUID) bool {
	e, ok := n.entries[id]
	if !ok {
		return false
	}
	if e.timer != nil {
		_ = e.timer.Stop()
	}
	if e.cronID != 0 {
		n.c.Remove(e.cronID)
	}
	delete(n.entries, id)
	return true
}

func (n *Native) loadLocation() *time.Location {
	tz := strings.TrimSpace(n.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		n.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// previewLocked lists the next few fire times of a recurring spec.
func (n *Native) previewLocked(spec schedule.Spec, count int) string {
	if !spec.Repeats() {
		return ""
	}
	sched, err := n.parser.Parse(spec.CronExpr())
	if err != nil {
		return ""
	}
	t := n.now().In(n.loc)
	var b strings.Builder
	for i := 0; i < count; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04"))
	}
	return b.String()
}
