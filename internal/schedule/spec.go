package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"alarmd/internal/alarm"
)

// Kind discriminates the two specification shapes.
type Kind int

const (
	// FixedInstant fires once at an absolute instant.
	FixedInstant Kind = iota
	// RelativeRecurrence fires at a device-local wall-clock time.
	RelativeRecurrence
)

func (k Kind) String() string {
	if k == FixedInstant {
		return "fixed"
	}
	return "recurring"
}

// RuleKind is the repetition of a RelativeRecurrence.
type RuleKind int

const (
	Never RuleKind = iota
	Weekly
)

// Rule describes when a RelativeRecurrence repeats. Weekday is only set for
// Weekly rules.
type Rule struct {
	Kind    RuleKind
	Weekday alarm.Weekday
}

// Spec is one concrete trigger derived from an alarm record.
type Spec struct {
	Kind Kind

	// At is set for FixedInstant.
	At time.Time

	// Hour, Minute and Rule are set for RelativeRecurrence.
	Hour   int
	Minute int
	Rule   Rule
}

func Fixed(at time.Time) Spec { return Spec{Kind: FixedInstant, At: at} }

func Recurring(hour, minute int, rule Rule) Spec {
	return Spec{Kind: RelativeRecurrence, Hour: hour, Minute: minute, Rule: rule}
}

func Once() Rule                       { return Rule{Kind: Never} }
func EveryWeek(day alarm.Weekday) Rule { return Rule{Kind: Weekly, Weekday: day} }

// Repeats reports whether the spec keeps firing after the first time.
func (s Spec) Repeats() bool {
	return s.Kind == RelativeRecurrence && s.Rule.Kind == Weekly
}

// CronExpr renders a RelativeRecurrence as a standard five-field cron
// expression. A never rule matches every day; the caller stops after the
// first fire.
func (s Spec) CronExpr() string {
	if s.Kind != RelativeRecurrence {
		return ""
	}
	dow := "*"
	if s.Rule.Kind == Weekly {
		dow = fmt.Sprintf("%d", int(s.Rule.Weekday.Time()))
	}
	return fmt.Sprintf("%d %d * * %s", s.Minute, s.Hour, dow)
}

// Next returns the first instant strictly after t at which the spec fires,
// evaluating recurrences in loc. ok is false for a FixedInstant already in
// the past.
func (s Spec) Next(t time.Time, loc *time.Location) (time.Time, bool) {
	if s.Kind == FixedInstant {
		if s.At.After(t) {
			return s.At, true
		}
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	sched, err := cron.ParseStandard(s.CronExpr())
	if err != nil {
		return time.Time{}, false
	}
	next := sched.Next(t.In(loc))
	return next, !next.IsZero()
}

func (s Spec) String() string {
	if s.Kind == FixedInstant {
		return "fixed@" + s.At.Format(time.RFC3339)
	}
	if s.Rule.Kind == Weekly {
		return fmt.Sprintf("weekly(%s)@%02d:%02d", s.Rule.Weekday, s.Hour, s.Minute)
	}
	return fmt.Sprintf("never@%02d:%02d", s.Hour, s.Minute)
}
