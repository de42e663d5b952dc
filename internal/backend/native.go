package backend

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"alarmd/internal/alarm"
	"alarmd/internal/metrics"
	"alarmd/internal/schedule"
	"alarmd/internal/trigger"
	logx "alarmd/pkg/logx"
)

// NativePrimitive is the recurrence-capable primitive with presentation
// state.
type NativePrimitive interface {
	Primitive
	Presentation(id uuid.UUID) (trigger.Presentation, bool)
}

// Native schedules on the native primitive and falls back to legacy when
// authorization is missing.
type Native struct {
	log      logx.Logger
	prim     NativePrimitive
	fallback Scheduler
	exp      schedule.Expander

	denied atomic.Bool
}

func NewNative(prim NativePrimitive, fallback Scheduler, exp schedule.Expander, log logx.Logger) *Native {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Native{log: log.With(logx.String("backend", NameNative)), prim: prim, fallback: fallback, exp: exp}
}

func (n *Native) Name() string { return NameNative }

func (n *Native) RequestPermission(ctx context.Context) bool {
	ok, err := n.prim.RequestAuthorization(ctx)
	if err != nil {
		n.log.Warn("authorization request failed", logx.Err(err))
		ok = false
	}
	n.denied.Store(!ok)
	if !ok {
		metrics.PermissionDenials.WithLabelValues(NameNative).Inc()
	}
	return ok
}

// Schedule cancels in both backends, then registers natively or, when not
// authorized, through the fallback.
func (n *Native) Schedule(ctx context.Context, r *alarm.Record) Report {
	cancelled := n.cancelNative(r)
	if n.fallback != nil {
		n.fallback.Cancel(r)
	}
	if !r.Enabled {
		return Report{Backend: NameNative, Cancelled: cancelled}
	}

	if !n.RequestPermission(ctx) {
		if n.fallback == nil {
			n.log.Warn("not authorized and no fallback; alarm not scheduled", logx.String("alarm", r.ID))
			return Report{Backend: NameNative, Cancelled: cancelled}
		}
		metrics.Fallbacks.Inc()
		n.log.Info("not authorized; delegating to legacy", logx.String("alarm", r.ID))
		rep := n.fallback.Schedule(ctx, r)
		rep.Fallback = true
		rep.Cancelled += cancelled
		return rep
	}

	rep := registerAll(ctx, n.log, NameNative, n.prim, r, n.exp.Expand(r))
	rep.Cancelled = cancelled
	n.log.Debug("alarm scheduled",
		logx.String("alarm", r.ID),
		logx.Int("registered", rep.Registered),
		logx.Int("failed", rep.Failed),
	)
	return rep
}

// Cancel retracts native registrations and anything an earlier fallback
// left in the legacy queue.
func (n *Native) Cancel(r *alarm.Record) {
	n.cancelNative(r)
	if n.fallback != nil {
		n.fallback.Cancel(r)
	}
}

func (n *Native) cancelNative(r *alarm.Record) int {
	return cancelIDs(n.log, NameNative, n.prim, n.exp.CancelSet(r, false))
}

// Delegate returns the fallback while native authorization is denied.
func (n *Native) Delegate() Scheduler {
	if n.fallback != nil && n.denied.Load() {
		return n.fallback
	}
	return nil
}

// RegisterCategories declares the fallback's categories so delegated
// requests carry their actions.
func (n *Native) RegisterCategories(ctx context.Context) {
	if cr, ok := n.fallback.(CategoryRegistrar); ok {
		cr.RegisterCategories(ctx)
	}
}

// PendingCount is always zero: the native primitive has no pending cap.
func (n *Native) PendingCount(context.Context) int { return 0 }

// ScheduleSnooze is a no-op; the native presentation layer snoozes itself.
func (n *Native) ScheduleSnooze(identity string, minutes int) {
	n.log.Debug("snooze handled by presentation", logx.String("alarm", identity), logx.Int("minutes", minutes))
}

// Presentation returns the state of every live slot of r.
func (n *Native) Presentation(r *alarm.Record) []SlotState {
	ids := n.exp.CancelSet(r, false)
	out := make([]SlotState, 0, len(ids))
	for i, id := range ids {
		if st, ok := n.prim.Presentation(id); ok {
			out = append(out, SlotState{Slot: i, ID: id, State: st})
		}
	}
	return out
}
