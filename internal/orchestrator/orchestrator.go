package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"alarmd/internal/alarm"
	"alarmd/internal/backend"
	"alarmd/internal/eventbus"
	"alarmd/internal/schedule"
	"alarmd/internal/storage"
	logx "alarmd/pkg/logx"
)

type Orchestrator struct {
	log   logx.Logger
	store storage.Store
	sched backend.Scheduler
	bus   eventbus.Bus
	exp   schedule.Expander
	now   func() time.Time

	mu  sync.RWMutex
	cfg Config

	locks      keyedMutex
	categories sync.Once

	subMu sync.Mutex
	fired <-chan eventbus.Event
	unsub func()
}

func New(cfg Config, store storage.Store, sched backend.Scheduler, bus eventbus.Bus, log logx.Logger) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	cfg = withDefaults(cfg)
	return &Orchestrator{
		log:   log.With(logx.String("comp", "orchestrator")),
		store: store,
		sched: sched,
		bus:   bus,
		exp:   schedule.Expander{Device: cfg.Device},
		now:   time.Now,
		cfg:   cfg,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Device == nil {
		cfg.Device = time.Local
	}
	if cfg.NearCapRatio <= 0 || cfg.NearCapRatio > 1 {
		cfg.NearCapRatio = 0.9
	}
	if cfg.SnoozeMinutes <= 0 {
		cfg.SnoozeMinutes = 9
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return cfg
}

// Apply swaps the hot-reloadable settings. The device zone is fixed for the
// lifetime of the orchestrator.
func (o *Orchestrator) Apply(cfg Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cfg.Device = o.cfg.Device
	o.cfg = withDefaults(cfg)
}

func (o *Orchestrator) config() Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// Backend is the scheduler the orchestrator drives.
func (o *Orchestrator) Backend() backend.Scheduler { return o.sched }

// Device is the zone wall clocks are evaluated in.
func (o *Orchestrator) Device() *time.Location { return o.config().Device }

func (o *Orchestrator) Get(ctx context.Context, id string) (*alarm.Record, error) {
	r, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, o.wrapStore(id, err)
	}
	return r, nil
}

func (o *Orchestrator) List(ctx context.Context) ([]*alarm.Record, error) {
	return o.store.List(ctx)
}

// Create validates and stores a new alarm, then schedules it. A capacity
// shortfall is reported as a warning and the alarm is still scheduled.
func (o *Orchestrator) Create(ctx context.Context, d alarm.Draft) (Outcome, error) {
	now := o.now()
	r, err := alarm.New(d, now)
	if err != nil {
		return Outcome{}, err
	}
	if r.Enabled && r.IsElapsed(now, o.Device()) {
		return Outcome{}, fmt.Errorf("%w: %s %s", ErrElapsed, r.TargetDate, r.FormattedTime())
	}
	o.advance(r, now)
	unlock := o.locks.Lock(r.ID)
	defer unlock()

	out := Outcome{Record: r}
	o.ensureCategories(ctx)

	out.Capacity = o.Capacity(ctx)
	if need := len(o.exp.Expand(r)); out.Capacity.Limit > 0 && out.Capacity.Pending+need > out.Capacity.Limit {
		w := fmt.Sprintf("only %d of %d pending slots free; %d needed", out.Capacity.Remaining(), out.Capacity.Limit, need)
		out.Warnings = append(out.Warnings, w)
		o.log.Warn("capacity pre-flight", logx.String("alarm", r.ID), logx.Int("pending", out.Capacity.Pending), logx.Int("limit", out.Capacity.Limit), logx.Int("needed", need))
		o.bus.Publish(eventbus.Event{Type: eventbus.TypeCapacityWarning, Data: eventbus.CapacityWarning{Pending: out.Capacity.Pending, Limit: out.Capacity.Limit}})
	}

	if !o.sched.RequestPermission(ctx) {
		out.PermissionDenied = true
		out.Warnings = append(out.Warnings, "notification permission denied")
	}

	if err := o.store.Insert(ctx, r); err != nil {
		return Outcome{}, fmt.Errorf("orchestrator: insert %s: %w", r.ID, err)
	}
	o.schedule(ctx, r, &out)
	o.log.Info("alarm created",
		logx.String("alarm", r.ID),
		logx.String("label", r.Label),
		logx.String("time", r.FormattedTime()),
		logx.String("repeat", r.RepeatDescription()),
	)
	return out, nil
}

// Update applies mutate to a copy of the stored record, validates, saves and
// reschedules it. Identity, seed and creation time cannot be changed.
func (o *Orchestrator) Update(ctx context.Context, id string, mutate func(r *alarm.Record) error) (Outcome, error) {
	unlock := o.locks.Lock(id)
	defer unlock()

	old, err := o.store.Get(ctx, id)
	if err != nil {
		return Outcome{}, o.wrapStore(id, err)
	}
	r := old.Clone()
	if err := mutate(r); err != nil {
		return Outcome{}, err
	}
	r.ID, r.ScheduleSeed, r.CreatedAt = old.ID, old.ScheduleSeed, old.CreatedAt
	r.RepeatDays = r.RepeatDays.Normalize()
	if err := r.Validate(); err != nil {
		return Outcome{}, err
	}
	now := o.now()
	if r.Enabled && r.IsElapsed(now, o.Device()) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrElapsed, id)
	}
	if r.TargetDate != nil && (old.TargetDate == nil || *r.TargetDate != *old.TargetDate) {
		r.AnchorDay = 0
	}
	if r.Enabled {
		o.advance(r, now)
	}
	r.UpdatedAt = now

	// Schedule retracts at least MinCancelSlots ids, which already covers a
	// shrinking weekday set. A kind or repeat switch changes the expansion
	// shape entirely, so the old record is retracted on its own terms too.
	if old.Kind != r.Kind || old.Repeat() != r.Repeat() {
		o.sched.Cancel(old)
	}

	if err := o.store.Save(ctx, r); err != nil {
		return Outcome{}, o.wrapStore(id, err)
	}
	out := Outcome{Record: r}
	o.schedule(ctx, r, &out)
	return out, nil
}

// Toggle enables or disables an alarm. Enabling a one-shot whose moment
// has passed fails with ErrElapsed.
func (o *Orchestrator) Toggle(ctx context.Context, id string, enabled bool) (Outcome, error) {
	return o.Update(ctx, id, func(r *alarm.Record) error {
		r.Enabled = enabled
		return nil
	})
}

// Delete retracts every registration of the alarm, then removes it.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	unlock := o.locks.Lock(id)
	defer unlock()

	r, err := o.store.Get(ctx, id)
	if err != nil {
		return o.wrapStore(id, err)
	}
	o.sched.Cancel(r)
	if err := o.store.Delete(ctx, id); err != nil {
		return o.wrapStore(id, err)
	}
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeAlarmCancelled, Data: eventbus.AlarmCancelled{AlarmID: id, Backend: o.sched.Name()}})
	o.log.Info("alarm deleted", logx.String("alarm", id))
	return nil
}

// Snooze schedules a one-shot re-fire of the alarm after the configured
// snooze length. Backends that snooze natively ignore it.
func (o *Orchestrator) Snooze(ctx context.Context, id string) error {
	r, err := o.Get(ctx, id)
	if err != nil {
		return err
	}
	if !r.Snooze {
		o.log.Debug("snooze requested for alarm without snooze", logx.String("alarm", id))
	}
	o.sched.ScheduleSnooze(r.ID, o.config().SnoozeMinutes)
	return nil
}

// Capacity reports pending usage of the selected backend, or of the backend
// it currently delegates to.
func (o *Orchestrator) Capacity(ctx context.Context) Capacity {
	target := o.sched
	if d, ok := o.sched.(backend.Delegator); ok {
		if fb := d.Delegate(); fb != nil {
			target = fb
		}
	}
	c := Capacity{Pending: target.PendingCount(ctx)}
	if cr, ok := target.(backend.CapacityReporter); ok {
		c.Limit = cr.Capacity()
	}
	if c.Limit > 0 {
		threshold := int(math.Ceil(float64(c.Limit) * o.config().NearCapRatio))
		c.NearCap = c.Pending >= threshold
	}
	return c
}

// Presentation returns the per-slot presentation state when the backend
// keeps one.
func (o *Orchestrator) Presentation(ctx context.Context, id string) ([]backend.SlotState, error) {
	r, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, ok := o.sched.(backend.Presenter)
	if !ok {
		return nil, nil
	}
	return p.Presentation(r), nil
}

// schedule hands r to the backend and records the result in out. Call with
// the alarm lock held.
func (o *Orchestrator) schedule(ctx context.Context, r *alarm.Record, out *Outcome) {
	rep := o.sched.Schedule(ctx, r)
	out.Report = rep
	if rep.Failed > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%d of %d registrations failed", rep.Failed, rep.Failed+rep.Registered))
	}
	if rep.Fallback {
		out.Warnings = append(out.Warnings, "native scheduling not authorized; using legacy queue")
	}
	out.Capacity = o.Capacity(ctx)
	if out.Capacity.NearCap {
		o.log.Warn("pending requests near capacity", logx.Int("pending", out.Capacity.Pending), logx.Int("limit", out.Capacity.Limit))
	}
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeAlarmScheduled, Data: eventbus.AlarmScheduled{
		AlarmID:    r.ID,
		Backend:    rep.Backend,
		Registered: rep.Registered,
		Failed:     rep.Failed,
		Fallback:   rep.Fallback,
	}})
}

// advance moves a monthly or yearly alarm whose date has passed to its
// first occurrence after now. It reports whether r changed.
func (o *Orchestrator) advance(r *alarm.Record, now time.Time) bool {
	at, ok := r.ResolvedFireDate(o.Device())
	if !ok || at.After(now) {
		return false
	}
	next, ok := r.NextOccurrenceAfter(now, o.Device())
	if !ok || next == *r.TargetDate {
		return false
	}
	if r.AnchorDay <= 0 {
		r.AnchorDay = r.TargetDate.Day
	}
	r.TargetDate = &next
	return true
}

func (o *Orchestrator) ensureCategories(ctx context.Context) {
	o.categories.Do(func() {
		if cr, ok := o.sched.(backend.CategoryRegistrar); ok {
			cr.RegisterCategories(ctx)
		}
	})
}

func (o *Orchestrator) wrapStore(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("orchestrator: %s: %w", id, err)
}
