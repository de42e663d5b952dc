package backend

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"alarmd/internal/alarm"
	"alarmd/internal/metrics"
	"alarmd/internal/schedule"
	"alarmd/internal/trigger"
	logx "alarmd/pkg/logx"
)

const (
	NameNative = "native"
	NameLegacy = "legacy"

	// CategoryAlarm is the notification category attached to every request.
	CategoryAlarm = "alarm"
)

// Primitive is the raw trigger API both adapters sit on.
type Primitive interface {
	RequestAuthorization(ctx context.Context) (bool, error)
	Register(ctx context.Context, id uuid.UUID, spec schedule.Spec, p trigger.Payload) error
	Unregister(id uuid.UUID) error
	PendingCount(ctx context.Context) (int, error)
}

// Scheduler is the backend contract shared by the native and legacy adapters.
type Scheduler interface {
	Name() string
	// RequestPermission may block on a prompt. Denial returns false.
	RequestPermission(ctx context.Context) bool
	Schedule(ctx context.Context, r *alarm.Record) Report
	Cancel(r *alarm.Record)
	PendingCount(ctx context.Context) int
	ScheduleSnooze(identity string, minutes int)
}

// CategoryRegistrar is implemented by schedulers that must declare
// notification categories before delivering actions.
type CategoryRegistrar interface {
	RegisterCategories(ctx context.Context)
}

// CapacityReporter is implemented by schedulers with a hard pending limit.
type CapacityReporter interface {
	Capacity() int
}

// Delegator is implemented by schedulers that hand registrations to
// another scheduler. Delegate returns nil while they schedule themselves.
type Delegator interface {
	Delegate() Scheduler
}

// Presenter is implemented by schedulers that keep per-request presentation
// state for an external renderer.
type Presenter interface {
	Presentation(r *alarm.Record) []SlotState
}

// SlotState is the presentation of one registered slot.
type SlotState struct {
	Slot  int
	ID    uuid.UUID
	State trigger.Presentation
}

// Report summarizes one Schedule call.
type Report struct {
	Backend    string
	Registered int
	Failed     int
	Cancelled  int
	// Fallback is set when the native adapter delegated to legacy.
	Fallback bool
	IDs      []uuid.UUID
}

// OK reports whether every spec was registered.
func (r Report) OK() bool { return r.Failed == 0 }

// registerAll registers one request per spec concurrently. A failure never
// aborts the remaining specs.
func registerAll(ctx context.Context, log logx.Logger, name string, prim Primitive, r *alarm.Record, specs []schedule.Spec) Report {
	rep := Report{Backend: name, IDs: make([]uuid.UUID, len(specs))}
	var ok, failed atomic.Int64
	var wg sync.WaitGroup
	for i, spec := range specs {
		id := schedule.SlotID(r.ScheduleSeed, i)
		rep.IDs[i] = id
		p := trigger.Payload{AlarmID: r.ID, Label: r.Label, Category: CategoryAlarm, Slot: i}
		wg.Add(1)
		go func(i int, id uuid.UUID, spec schedule.Spec, p trigger.Payload) {
			defer wg.Done()
			if err := prim.Register(ctx, id, spec, p); err != nil {
				failed.Add(1)
				metrics.RegistrationFailures.WithLabelValues(name).Inc()
				log.Warn("registration failed",
					logx.String("alarm", r.ID),
					logx.Int("slot", i),
					logx.String("id", id.String()),
					logx.String("spec", spec.String()),
					logx.Err(err),
				)
				return
			}
			ok.Add(1)
			metrics.Registrations.WithLabelValues(name).Inc()
		}(i, id, spec, p)
	}
	wg.Wait()
	rep.Registered = int(ok.Load())
	rep.Failed = int(failed.Load())
	return rep
}

// cancelIDs retracts ids and returns how many calls succeeded. Absent ids
// count as success.
func cancelIDs(log logx.Logger, name string, prim Primitive, ids []uuid.UUID) int {
	n := 0
	for _, id := range ids {
		if err := prim.Unregister(id); err != nil {
			log.Warn("unregister failed", logx.String("id", id.String()), logx.Err(err))
			continue
		}
		n++
	}
	metrics.Cancellations.WithLabelValues(name).Add(float64(n))
	return n
}
