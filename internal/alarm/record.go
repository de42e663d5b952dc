package alarm

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Record is the durable description of one user alarm.
//
// ID and ScheduleSeed are assigned once by New and never change: every backend
// identifier is derived from ScheduleSeed, so edits of the time of day or the
// zone update registrations in place.
type Record struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`

	Kind   Kind `json:"kind"`
	Hour   int  `json:"hour"`
	Minute int  `json:"minute"`

	// RepeatDays is only meaningful for KindDaily. Empty means "next occurrence".
	RepeatDays Days `json:"repeat_days,omitempty"`

	// TargetDate and FutureRepeat are only meaningful for KindFuture.
	TargetDate   *Date  `json:"target_date,omitempty"`
	FutureRepeat Repeat `json:"future_repeat,omitempty"`
	// AnchorDay remembers the original day of month of a monthly/yearly
	// alarm once TargetDate has been advanced through a shorter month.
	AnchorDay int `json:"anchor_day,omitempty"`

	// Timezone is an IANA identifier; empty means the device zone.
	Timezone string `json:"timezone,omitempty"`

	Enabled      bool   `json:"enabled"`
	Snooze       bool   `json:"snooze"`
	ScheduleSeed string `json:"schedule_seed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Draft carries the user-editable fields of a new alarm.
type Draft struct {
	Label        string
	Kind         Kind
	Hour         int
	Minute       int
	RepeatDays   Days
	TargetDate   *Date
	FutureRepeat Repeat
	Timezone     string
	Snooze       bool
}

// New validates the draft and returns an enabled record with a fresh
// identity and schedule seed.
func New(d Draft, now time.Time) (*Record, error) {
	if d.Kind == "" {
		d.Kind = KindDaily
	}
	if d.Kind == KindFuture && d.FutureRepeat == "" {
		d.FutureRepeat = RepeatNone
	}
	r := &Record{
		ID:           uuid.NewString(),
		Label:        strings.TrimSpace(d.Label),
		Kind:         d.Kind,
		Hour:         d.Hour,
		Minute:       d.Minute,
		RepeatDays:   d.RepeatDays.Normalize(),
		TargetDate:   d.TargetDate,
		FutureRepeat: d.FutureRepeat,
		Timezone:     strings.TrimSpace(d.Timezone),
		Enabled:      true,
		Snooze:       d.Snooze,
		ScheduleSeed: uuid.NewString(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks field ranges. A future alarm without a target date is
// rejected here even though scheduling tolerates it.
func (r *Record) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, r.Kind)
	}
	if r.Hour < 0 || r.Hour > 23 {
		return fmt.Errorf("%w: %d", ErrInvalidHour, r.Hour)
	}
	if r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("%w: %d", ErrInvalidMinute, r.Minute)
	}
	if err := r.RepeatDays.validate(); err != nil {
		return err
	}
	if r.Kind == KindFuture {
		if r.TargetDate == nil || r.TargetDate.IsZero() {
			return ErrMissingTargetDate
		}
		if r.FutureRepeat != "" && !r.FutureRepeat.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidRepeat, r.FutureRepeat)
		}
	}
	if r.Timezone != "" {
		if _, err := time.LoadLocation(r.Timezone); err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownTimezone, r.Timezone)
		}
	}
	if strings.TrimSpace(r.ScheduleSeed) == "" {
		return ErrMissingSeed
	}
	return nil
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.RepeatDays != nil {
		cp.RepeatDays = append(Days(nil), r.RepeatDays...)
	}
	if r.TargetDate != nil {
		td := *r.TargetDate
		cp.TargetDate = &td
	}
	return &cp
}

// ActiveDays returns the normalized weekday set, or nil when the record is
// not a daily alarm.
func (r *Record) ActiveDays() Days {
	if r.Kind != KindDaily {
		return nil
	}
	return r.RepeatDays.Normalize()
}

// Repeat returns the effective future repeat (none for daily alarms).
func (r *Record) Repeat() Repeat {
	if r.Kind != KindFuture || r.FutureRepeat == "" {
		return RepeatNone
	}
	return r.FutureRepeat
}

// IsRepeating reports whether the alarm fires more than once.
func (r *Record) IsRepeating() bool {
	if r.Kind == KindDaily {
		return len(r.ActiveDays()) > 0
	}
	return r.Repeat() != RepeatNone
}

// Location resolves the alarm zone, falling back to device (then time.Local)
// when the zone is absent or unknown.
func (r *Record) Location(device *time.Location) *time.Location {
	if device == nil {
		device = time.Local
	}
	if r.Timezone == "" {
		return device
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return device
	}
	return loc
}

// ResolvedFireDate composes TargetDate with Hour:Minute in the alarm zone.
// ok is false for daily alarms and future alarms without a target date.
func (r *Record) ResolvedFireDate(device *time.Location) (time.Time, bool) {
	if r.Kind != KindFuture || r.TargetDate == nil || r.TargetDate.IsZero() {
		return time.Time{}, false
	}
	return r.TargetDate.At(r.Hour, r.Minute, r.Location(device)), true
}

// IsElapsed reports whether a non-repeating future alarm is in the past.
func (r *Record) IsElapsed(now time.Time, device *time.Location) bool {
	if r.Kind != KindFuture || r.Repeat() != RepeatNone {
		return false
	}
	at, ok := r.ResolvedFireDate(device)
	return ok && !at.After(now)
}

// NextOccurrenceAfter returns the first monthly/yearly target date whose
// fire instant is strictly after t. ok is false for other repeat kinds.
func (r *Record) NextOccurrenceAfter(t time.Time, device *time.Location) (Date, bool) {
	if r.Kind != KindFuture || r.TargetDate == nil || r.TargetDate.IsZero() {
		return Date{}, false
	}
	step := 0
	switch r.Repeat() {
	case RepeatMonthly:
		step = 1
	case RepeatYearly:
		step = 12
	default:
		return Date{}, false
	}
	anchor := r.AnchorDay
	if anchor <= 0 {
		anchor = r.TargetDate.Day
	}
	loc := r.Location(device)
	// 100 years of monthly steps is far beyond any realistic gap.
	for k := 0; k <= 1200; k++ {
		d := r.TargetDate.addMonthsAnchored(k*step, anchor)
		if d.At(r.Hour, r.Minute, loc).After(t) {
			return d, true
		}
	}
	return Date{}, false
}

// NextFireDate returns the next instant after now at which the alarm would
// fire, as seen by the scheduler. Weekly recurrences are evaluated in the
// device zone.
func (r *Record) NextFireDate(now time.Time, device *time.Location) (time.Time, bool) {
	if device == nil {
		device = time.Local
	}
	switch r.Kind {
	case KindDaily:
		days := r.ActiveDays()
		if len(days) == 0 {
			return nextTimeOfDay(now.In(device), r.Hour, r.Minute), true
		}
		var best time.Time
		for _, d := range days {
			t := nextWeekday(now.In(device), d.Time(), r.Hour, r.Minute)
			if best.IsZero() || t.Before(best) {
				best = t
			}
		}
		return best, true
	case KindFuture:
		at, ok := r.ResolvedFireDate(device)
		if !ok {
			return nextTimeOfDay(now.In(device), r.Hour, r.Minute), true
		}
		if at.After(now) {
			return at, true
		}
		switch r.Repeat() {
		case RepeatWeekly:
			local := at.In(device)
			return nextWeekday(now.In(device), local.Weekday(), local.Hour(), local.Minute()), true
		case RepeatMonthly, RepeatYearly:
			d, ok := r.NextOccurrenceAfter(now, device)
			if !ok {
				return time.Time{}, false
			}
			return d.At(r.Hour, r.Minute, r.Location(device)), true
		}
	}
	return time.Time{}, false
}

// FormattedTime renders the wall-clock time as HH:MM.
func (r *Record) FormattedTime() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}

// RepeatDescription is the short human summary of the recurrence.
func (r *Record) RepeatDescription() string {
	if r.Kind == KindFuture {
		switch r.Repeat() {
		case RepeatWeekly:
			return "Every week"
		case RepeatMonthly:
			return "Every month"
		case RepeatYearly:
			return "Every year"
		default:
			return "Once"
		}
	}
	days := r.ActiveDays()
	switch {
	case len(days) == 0:
		return "Never"
	case len(days) == 7:
		return "Every day"
	case sameDays(days, Days{Monday, Tuesday, Wednesday, Thursday, Friday}):
		return "Weekdays"
	case sameDays(days, Days{Sunday, Saturday}):
		return "Weekends"
	}
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, d.String())
	}
	return strings.Join(names, ", ")
}

// FiresIn renders the distance to the next fire as "7 hours from now".
func (r *Record) FiresIn(now time.Time, device *time.Location) string {
	next, ok := r.NextFireDate(now, device)
	if !ok {
		return ""
	}
	return humanize.RelTime(next, now, "ago", "from now")
}

func sameDays(a, b Days) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func nextTimeOfDay(now time.Time, hour, minute int) time.Time {
	y, m, d := now.Date()
	t := time.Date(y, m, d, hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = time.Date(y, m, d+1, hour, minute, 0, 0, now.Location())
	}
	return t
}

func nextWeekday(now time.Time, wd time.Weekday, hour, minute int) time.Time {
	y, m, d := now.Date()
	delta := (int(wd) - int(now.Weekday()) + 7) % 7
	t := time.Date(y, m, d+delta, hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = time.Date(y, m, d+delta+7, hour, minute, 0, 0, now.Location())
	}
	return t
}
