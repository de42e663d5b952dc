package backend

import (
	"context"
	"time"

	"alarmd/internal/alarm"
	"alarmd/internal/metrics"
	"alarmd/internal/schedule"
	"alarmd/internal/trigger"
	logx "alarmd/pkg/logx"
)

// LegacyPrimitive is the capped request queue.
type LegacyPrimitive interface {
	Primitive
	Capacity() int
	RegisterCategory(c trigger.Category)
}

// Legacy schedules on the capped queue primitive.
type Legacy struct {
	log  logx.Logger
	prim LegacyPrimitive
	exp  schedule.Expander
	now  func() time.Time
}

func NewLegacy(prim LegacyPrimitive, exp schedule.Expander, log logx.Logger) *Legacy {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Legacy{log: log.With(logx.String("backend", NameLegacy)), prim: prim, exp: exp, now: time.Now}
}

func (l *Legacy) Name() string { return NameLegacy }

func (l *Legacy) RequestPermission(ctx context.Context) bool {
	ok, err := l.prim.RequestAuthorization(ctx)
	if err != nil {
		l.log.Warn("authorization request failed", logx.Err(err))
		ok = false
	}
	if !ok {
		metrics.PermissionDenials.WithLabelValues(NameLegacy).Inc()
		l.log.Info("permission denied")
	}
	return ok
}

func (l *Legacy) Schedule(ctx context.Context, r *alarm.Record) Report {
	cancelled := l.cancel(r)
	if !r.Enabled {
		l.log.Debug("alarm disabled; registrations cleared", logx.String("alarm", r.ID))
		l.refreshGauge(ctx)
		return Report{Backend: NameLegacy, Cancelled: cancelled}
	}
	rep := registerAll(ctx, l.log, NameLegacy, l.prim, r, l.exp.Expand(r))
	rep.Cancelled = cancelled
	l.log.Debug("alarm scheduled",
		logx.String("alarm", r.ID),
		logx.Int("registered", rep.Registered),
		logx.Int("failed", rep.Failed),
	)
	l.refreshGauge(ctx)
	return rep
}

func (l *Legacy) Cancel(r *alarm.Record) {
	l.cancel(r)
	l.refreshGauge(context.Background())
}

func (l *Legacy) cancel(r *alarm.Record) int {
	return cancelIDs(l.log, NameLegacy, l.prim, l.exp.CancelSet(r, true))
}

func (l *Legacy) PendingCount(ctx context.Context) int {
	n, err := l.prim.PendingCount(ctx)
	if err != nil {
		l.log.Warn("pending count failed", logx.Err(err))
		return 0
	}
	return n
}

// ScheduleSnooze registers a one-shot at now+minutes under a time-salted id.
func (l *Legacy) ScheduleSnooze(identity string, minutes int) {
	if minutes <= 0 {
		return
	}
	now := l.now()
	id := schedule.SnoozeID(identity, now)
	at := now.Add(time.Duration(minutes) * time.Minute)
	p := trigger.Payload{AlarmID: identity, Category: CategoryAlarm, Snooze: true}
	if err := l.prim.Register(context.Background(), id, schedule.Fixed(at), p); err != nil {
		metrics.RegistrationFailures.WithLabelValues(NameLegacy).Inc()
		l.log.Warn("snooze registration failed", logx.String("alarm", identity), logx.Err(err))
		return
	}
	metrics.Registrations.WithLabelValues(NameLegacy).Inc()
	l.log.Info("snooze scheduled", logx.String("alarm", identity), logx.Time("at", at))
}

// RegisterCategories declares the alarm category with its snooze and stop
// actions.
func (l *Legacy) RegisterCategories(ctx context.Context) {
	_ = ctx
	l.prim.RegisterCategory(trigger.Category{Name: CategoryAlarm, Actions: []string{"snooze", "stop"}})
}

func (l *Legacy) Capacity() int { return l.prim.Capacity() }

func (l *Legacy) refreshGauge(ctx context.Context) {
	if n, err := l.prim.PendingCount(ctx); err == nil {
		metrics.PendingRequests.Set(float64(n))
	}
}
