package alarm

import (
	"errors"
	"testing"
	"time"
)

func TestWeekdayConversion(t *testing.T) {
	if Sunday.Time() != time.Sunday || Saturday.Time() != time.Saturday {
		t.Fatalf("unexpected standard library mapping")
	}
	for d := Sunday; d <= Saturday; d++ {
		if FromTime(d.Time()) != d {
			t.Fatalf("round trip failed for %v", d)
		}
	}
}

func TestParseDays(t *testing.T) {
	cases := []struct {
		in   string
		want Days
	}{
		{"", nil},
		{"weekends", Days{Sunday, Saturday}},
		{"weekdays", Days{Monday, Tuesday, Wednesday, Thursday, Friday}},
		{"6,2,2", Days{Monday, Friday}},
		{"mon, Wednesday,fri", Days{Monday, Wednesday, Friday}},
	}
	for _, tc := range cases {
		got, err := ParseDays(tc.in)
		if err != nil {
			t.Fatalf("ParseDays(%q): %v", tc.in, err)
		}
		if !sameDays(got, tc.want) {
			t.Fatalf("ParseDays(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseDays("8"); !errors.Is(err, ErrInvalidWeekday) {
		t.Fatalf("expected ErrInvalidWeekday, got %v", err)
	}
	if _, err := ParseDays("someday"); !errors.Is(err, ErrInvalidWeekday) {
		t.Fatalf("expected ErrInvalidWeekday, got %v", err)
	}
}

func TestAddMonthsClamped(t *testing.T) {
	d := Date{Year: 2026, Month: time.January, Day: 31}
	if got := d.AddMonthsClamped(1); got != (Date{Year: 2026, Month: time.February, Day: 28}) {
		t.Fatalf("Jan 31 + 1 = %v", got)
	}
	if got := d.AddMonthsClamped(13); got != (Date{Year: 2027, Month: time.February, Day: 28}) {
		t.Fatalf("Jan 31 + 13 = %v", got)
	}
	leap := Date{Year: 2028, Month: time.January, Day: 30}
	if got := leap.AddMonthsClamped(1); got != (Date{Year: 2028, Month: time.February, Day: 29}) {
		t.Fatalf("leap clamp = %v", got)
	}
}
