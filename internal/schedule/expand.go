package schedule

import (
	"time"

	"alarmd/internal/alarm"
)

// Expander turns records into specifications. Device is the zone used to
// reinterpret foreign-zone weekly alarms; nil means time.Local.
type Expander struct {
	Device *time.Location
}

func (e Expander) device() *time.Location {
	if e.Device == nil {
		return time.Local
	}
	return e.Device
}

// Expand never returns an empty slice and never fails. A future alarm
// without a target date degrades to a single non-repeating time of day.
func (e Expander) Expand(r *alarm.Record) []Spec {
	if r == nil {
		return nil
	}
	if r.Kind != alarm.KindFuture {
		days := r.ActiveDays()
		if len(days) == 0 {
			return []Spec{Recurring(r.Hour, r.Minute, Once())}
		}
		out := make([]Spec, 0, len(days))
		for _, d := range days {
			out = append(out, Recurring(r.Hour, r.Minute, EveryWeek(d)))
		}
		return out
	}

	at, ok := r.ResolvedFireDate(e.device())
	if !ok {
		return []Spec{Recurring(r.Hour, r.Minute, Once())}
	}
	switch r.Repeat() {
	case alarm.RepeatWeekly:
		// Only the first occurrence is zone-correct; later ones follow the
		// device wall clock.
		local := at.In(e.device())
		return []Spec{Recurring(local.Hour(), local.Minute(), EveryWeek(alarm.FromTime(local.Weekday())))}
	default:
		// Monthly and yearly are re-armed by the orchestrator after firing.
		return []Spec{Fixed(at)}
	}
}
