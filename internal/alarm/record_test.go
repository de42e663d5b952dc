package alarm

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("zoneinfo %s unavailable: %v", name, err)
	}
	return loc
}

func TestNewAssignsIdentityAndSeed(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	a, err := New(Draft{Hour: 7, Minute: 30, RepeatDays: Days{Saturday, Sunday, Saturday}}, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(Draft{Hour: 7, Minute: 30}, now)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.ID == "" || a.ScheduleSeed == "" {
		t.Fatalf("identity not assigned: %+v", a)
	}
	if a.ID == a.ScheduleSeed {
		t.Fatalf("identity and seed must be independent")
	}
	if a.ID == b.ID || a.ScheduleSeed == b.ScheduleSeed {
		t.Fatalf("records share identity")
	}
	if !a.Enabled || a.Kind != KindDaily {
		t.Fatalf("unexpected defaults: enabled=%v kind=%q", a.Enabled, a.Kind)
	}
	if len(a.RepeatDays) != 2 || a.RepeatDays[0] != Sunday || a.RepeatDays[1] != Saturday {
		t.Fatalf("days not normalized: %v", a.RepeatDays)
	}
}

func TestValidate(t *testing.T) {
	td := &Date{Year: 2026, Month: time.March, Day: 1}
	cases := []struct {
		name  string
		draft Draft
		want  error
	}{
		{"hour", Draft{Hour: 24}, ErrInvalidHour},
		{"minute", Draft{Minute: -1}, ErrInvalidMinute},
		{"weekday", Draft{RepeatDays: Days{0}}, ErrInvalidWeekday},
		{"kind", Draft{Kind: "hourly"}, ErrInvalidKind},
		{"future without date", Draft{Kind: KindFuture}, ErrMissingTargetDate},
		{"repeat", Draft{Kind: KindFuture, TargetDate: td, FutureRepeat: "daily"}, ErrInvalidRepeat},
		{"zone", Draft{Timezone: "Mars/Olympus"}, ErrUnknownTimezone},
		{"ok", Draft{Kind: KindFuture, TargetDate: td, Hour: 23, Minute: 59}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.draft, time.Now())
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRepeatDescription(t *testing.T) {
	cases := []struct {
		rec  Record
		want string
	}{
		{Record{Kind: KindDaily}, "Never"},
		{Record{Kind: KindDaily, RepeatDays: Days{1, 2, 3, 4, 5, 6, 7}}, "Every day"},
		{Record{Kind: KindDaily, RepeatDays: Days{Monday, Tuesday, Wednesday, Thursday, Friday}}, "Weekdays"},
		{Record{Kind: KindDaily, RepeatDays: Days{Saturday, Sunday}}, "Weekends"},
		{Record{Kind: KindDaily, RepeatDays: Days{Friday, Monday, Wednesday}}, "Mon, Wed, Fri"},
		{Record{Kind: KindFuture}, "Once"},
		{Record{Kind: KindFuture, FutureRepeat: RepeatWeekly}, "Every week"},
		{Record{Kind: KindFuture, FutureRepeat: RepeatMonthly}, "Every month"},
		{Record{Kind: KindFuture, FutureRepeat: RepeatYearly}, "Every year"},
	}
	for _, tc := range cases {
		if got := tc.rec.RepeatDescription(); got != tc.want {
			t.Fatalf("RepeatDescription(%+v) = %q, want %q", tc.rec, got, tc.want)
		}
	}
}

func TestFormattedTime(t *testing.T) {
	r := Record{Hour: 7, Minute: 5}
	if got := r.FormattedTime(); got != "07:05" {
		t.Fatalf("FormattedTime = %q", got)
	}
}

func TestResolvedFireDateUsesAlarmZone(t *testing.T) {
	kolkata := mustLoc(t, "Asia/Kolkata")
	r := Record{
		Kind:       KindFuture,
		Hour:       7,
		Minute:     30,
		TargetDate: &Date{Year: 2026, Month: time.February, Day: 26},
		Timezone:   "Asia/Kolkata",
	}
	at, ok := r.ResolvedFireDate(time.UTC)
	if !ok {
		t.Fatalf("expected resolved date")
	}
	want := time.Date(2026, 2, 26, 7, 30, 0, 0, kolkata)
	if !at.Equal(want) {
		t.Fatalf("resolved = %s, want %s", at, want)
	}
	if got := at.Format(time.RFC3339); got != "2026-02-26T07:30:00+05:30" {
		t.Fatalf("rfc3339 = %s", got)
	}
	if _, ok := (&Record{Kind: KindFuture}).ResolvedFireDate(time.UTC); ok {
		t.Fatalf("missing target date must not resolve")
	}
}

func TestIsElapsed(t *testing.T) {
	r := Record{Kind: KindFuture, Hour: 8, TargetDate: &Date{Year: 2026, Month: time.January, Day: 10}}
	before := time.Date(2026, 1, 10, 7, 0, 0, 0, time.UTC)
	after := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	if r.IsElapsed(before, time.UTC) {
		t.Fatalf("not elapsed before fire time")
	}
	if !r.IsElapsed(after, time.UTC) {
		t.Fatalf("elapsed after fire time")
	}
	r.FutureRepeat = RepeatMonthly
	if r.IsElapsed(after, time.UTC) {
		t.Fatalf("repeating alarms never elapse")
	}
}

func TestNextOccurrenceAfterClampsAndKeepsAnchor(t *testing.T) {
	r := Record{
		Kind:         KindFuture,
		Hour:         6,
		TargetDate:   &Date{Year: 2026, Month: time.January, Day: 31},
		FutureRepeat: RepeatMonthly,
	}
	fired := time.Date(2026, 1, 31, 6, 0, 0, 0, time.UTC)
	next, ok := r.NextOccurrenceAfter(fired, time.UTC)
	if !ok || next != (Date{Year: 2026, Month: time.February, Day: 28}) {
		t.Fatalf("next = %v ok=%v", next, ok)
	}

	r.TargetDate = &next
	r.AnchorDay = 31
	next, _ = r.NextOccurrenceAfter(time.Date(2026, 2, 28, 6, 0, 0, 0, time.UTC), time.UTC)
	if next != (Date{Year: 2026, Month: time.March, Day: 31}) {
		t.Fatalf("anchored next = %v", next)
	}

	y := Record{
		Kind:         KindFuture,
		TargetDate:   &Date{Year: 2024, Month: time.February, Day: 29},
		FutureRepeat: RepeatYearly,
	}
	next, _ = y.NextOccurrenceAfter(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.UTC)
	if next != (Date{Year: 2025, Month: time.February, Day: 28}) {
		t.Fatalf("yearly next = %v", next)
	}

	if _, ok := (&Record{Kind: KindFuture, TargetDate: &next}).NextOccurrenceAfter(fired, time.UTC); ok {
		t.Fatalf("non-repeating alarm has no next occurrence")
	}
}

func TestNextFireDateDaily(t *testing.T) {
	// 2026-02-04 is a Wednesday.
	now := time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC)
	r := Record{Kind: KindDaily, Hour: 7, Minute: 0}
	got, _ := r.NextFireDate(now, time.UTC)
	if want := time.Date(2026, 2, 5, 7, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("one-shot next = %s, want %s", got, want)
	}

	r.RepeatDays = Days{Sunday, Saturday}
	got, _ = r.NextFireDate(now, time.UTC)
	if want := time.Date(2026, 2, 7, 7, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("weekend next = %s, want %s", got, want)
	}

	r.RepeatDays = Days{Wednesday}
	r.Hour = 13
	got, _ = r.NextFireDate(now, time.UTC)
	if want := time.Date(2026, 2, 4, 13, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("same-day next = %s, want %s", got, want)
	}
}

func TestFiresIn(t *testing.T) {
	now := time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)
	r := Record{Kind: KindDaily, Hour: 7}
	if got := r.FiresIn(now, time.UTC); !strings.Contains(got, "from now") {
		t.Fatalf("FiresIn = %q", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := &Record{RepeatDays: Days{Monday}, TargetDate: &Date{Year: 2026, Month: 1, Day: 1}}
	c := r.Clone()
	c.RepeatDays[0] = Friday
	c.TargetDate.Day = 9
	if r.RepeatDays[0] != Monday || r.TargetDate.Day != 1 {
		t.Fatalf("clone shares memory with original")
	}
}
