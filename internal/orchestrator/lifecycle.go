package orchestrator

import (
	"context"
	"errors"
	"time"

	"alarmd/internal/alarm"
	"alarmd/internal/eventbus"
	logx "alarmd/pkg/logx"
)

// firedBuffer holds fired events published before Run starts draining.
const firedBuffer = 256

// Start subscribes to fired events, declares notification categories and
// asks for permission once, so the first Create does not block on a prompt.
// Call it before any primitive can fire.
func (o *Orchestrator) Start(ctx context.Context) {
	o.listen()
	o.ensureCategories(ctx)
	if !o.sched.RequestPermission(ctx) {
		o.log.Warn("notification permission denied", logx.String("backend", o.sched.Name()))
	}
}

// RescheduleAll re-derives every stored alarm. Elapsed one-shots are
// disabled first. It returns how many alarms were scheduled.
func (o *Orchestrator) RescheduleAll(ctx context.Context) (int, error) {
	rs, err := o.store.List(ctx)
	if err != nil {
		return 0, err
	}
	now := o.now()
	n := 0
	for _, r := range rs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		unlock := o.locks.Lock(r.ID)
		enabled, err := o.reconcileLocked(ctx, r.ID, now)
		unlock()
		if err != nil && !errors.Is(err, ErrNotFound) {
			o.log.Warn("reschedule failed", logx.String("alarm", r.ID), logx.Err(err))
		}
		if enabled {
			n++
		}
	}
	o.log.Info("alarms rescheduled", logx.Int("total", len(rs)), logx.Int("enabled", n))
	return n, nil
}

// reconcileLocked re-reads one alarm and registers it again. Elapsed
// one-shots are disabled and monthly or yearly alarms skip dates that
// passed while nothing was running.
func (o *Orchestrator) reconcileLocked(ctx context.Context, id string, now time.Time) (bool, error) {
	r, err := o.store.Get(ctx, id)
	if err != nil {
		return false, o.wrapStore(id, err)
	}
	if r.Enabled && r.IsElapsed(now, o.Device()) {
		return false, o.disableLocked(ctx, r, "elapsed")
	}
	if r.Enabled {
		var from alarm.Date
		if r.TargetDate != nil {
			from = *r.TargetDate
		}
		if o.advance(r, now) {
			r.UpdatedAt = now
			if err := o.store.Save(ctx, r); err != nil {
				return false, o.wrapStore(id, err)
			}
			o.log.Info("missed dates skipped", logx.String("alarm", id), logx.String("from", from.String()), logx.String("next", r.TargetDate.String()))
		}
	}
	var out Outcome
	o.schedule(ctx, r, &out)
	return r.Enabled, nil
}

// DisableElapsed turns off enabled one-shot future alarms whose moment has
// passed. It returns how many were disabled.
func (o *Orchestrator) DisableElapsed(ctx context.Context) (int, error) {
	rs, err := o.store.List(ctx)
	if err != nil {
		return 0, err
	}
	now := o.now()
	n := 0
	for _, r := range rs {
		if !r.Enabled || !r.IsElapsed(now, o.Device()) {
			continue
		}
		unlock := o.locks.Lock(r.ID)
		cur, err := o.store.Get(ctx, r.ID)
		if err == nil && cur.Enabled {
			err = o.disableLocked(ctx, cur, "elapsed")
			if err == nil {
				n++
			}
		}
		unlock()
		if err != nil && !errors.Is(err, ErrNotFound) {
			o.log.Warn("disable elapsed failed", logx.String("alarm", r.ID), logx.Err(err))
		}
	}
	if n > 0 {
		o.log.Info("elapsed alarms disabled", logx.Int("count", n))
	}
	return n, nil
}

// HandleFired applies the post-fire transition: monthly and yearly alarms
// advance to their next date, one-shots are disabled, recurring alarms are
// left alone. Snooze firings never change the record.
func (o *Orchestrator) HandleFired(ctx context.Context, ev eventbus.AlarmFired) error {
	if ev.Snooze || ev.AlarmID == "" {
		return nil
	}
	unlock := o.locks.Lock(ev.AlarmID)
	defer unlock()

	r, err := o.store.Get(ctx, ev.AlarmID)
	if err != nil {
		return o.wrapStore(ev.AlarmID, err)
	}
	if !r.Enabled {
		return nil
	}

	switch {
	case r.Kind == alarm.KindFuture && (r.Repeat() == alarm.RepeatMonthly || r.Repeat() == alarm.RepeatYearly):
		return o.rearmLocked(ctx, r, ev.At)
	case !r.IsRepeating():
		return o.disableLocked(ctx, r, "fired")
	}
	return nil
}

// rearmLocked advances r past the firing at firedAt. A late firing steps
// from now so missed dates are not replayed one by one.
func (o *Orchestrator) rearmLocked(ctx context.Context, r *alarm.Record, firedAt time.Time) error {
	from := firedAt
	if now := o.now(); now.After(from) {
		from = now
	}
	next, ok := r.NextOccurrenceAfter(from, o.Device())
	if !ok || (r.TargetDate != nil && next == *r.TargetDate) {
		return nil
	}
	if r.AnchorDay <= 0 && r.TargetDate != nil {
		r.AnchorDay = r.TargetDate.Day
	}
	r.TargetDate = &next
	r.UpdatedAt = o.now()
	if err := o.store.Save(ctx, r); err != nil {
		return o.wrapStore(r.ID, err)
	}
	var out Outcome
	o.schedule(ctx, r, &out)
	o.log.Info("alarm re-armed",
		logx.String("alarm", r.ID),
		logx.String("repeat", string(r.Repeat())),
		logx.String("next", next.String()),
	)
	return nil
}

func (o *Orchestrator) disableLocked(ctx context.Context, r *alarm.Record, reason string) error {
	r.Enabled = false
	r.UpdatedAt = o.now()
	if err := o.store.Save(ctx, r); err != nil {
		return o.wrapStore(r.ID, err)
	}
	var out Outcome
	o.schedule(ctx, r, &out)
	o.bus.Publish(eventbus.Event{Type: eventbus.TypeAlarmDisabled, Data: eventbus.AlarmDisabled{AlarmID: r.ID, Reason: reason}})
	o.log.Info("alarm disabled", logx.String("alarm", r.ID), logx.String("reason", reason))
	return nil
}

// Run consumes alarm.fired events and runs the elapsed-alarm sweep until
// ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	events := o.listen()
	defer o.stopListening()

	interval := o.config().SweepInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			ev, ok := e.Data.(eventbus.AlarmFired)
			if !ok {
				continue
			}
			if err := o.HandleFired(ctx, ev); err != nil && !errors.Is(err, ErrNotFound) {
				o.log.Warn("post-fire update failed", logx.String("alarm", ev.AlarmID), logx.Err(err))
			}
		case <-ticker.C:
			if _, err := o.DisableElapsed(ctx); err != nil {
				o.log.Warn("elapsed sweep failed", logx.Err(err))
			}
			if next := o.config().SweepInterval; next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// listen returns the fired-event subscription, creating it on first use.
func (o *Orchestrator) listen() <-chan eventbus.Event {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	if o.fired == nil {
		o.fired, o.unsub = o.bus.Subscribe(firedBuffer, eventbus.TypeAlarmFired)
	}
	return o.fired
}

func (o *Orchestrator) stopListening() {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	if o.unsub != nil {
		o.unsub()
	}
	o.fired, o.unsub = nil, nil
}
