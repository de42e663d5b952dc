package tzinfo

import (
	"errors"
	"testing"
	"time"

	"alarmd/internal/alarm"
)

func TestResolveAt(t *testing.T) {
	t.Parallel()

	winter := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		id     string
		city   string
		region string
		offset string
	}{
		{"Asia/Kolkata", "Kolkata", "Asia", "GMT+5:30"},
		{"Asia/Tokyo", "Tokyo", "Asia", "GMT+9"},
		{"America/New_York", "New York", "America", "GMT-5"},
		{"America/Argentina/Buenos_Aires", "Buenos Aires", "America", "GMT-3"},
		{"UTC", "UTC", "", "GMT"},
	}
	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			info, err := ResolveAt(tc.id, winter)
			if err != nil {
				t.Fatalf("ResolveAt: %v", err)
			}
			if info.City != tc.city || info.Region != tc.region || info.Offset != tc.offset {
				t.Fatalf("got %+v", info)
			}
			if info.Abbreviation == "" {
				t.Fatalf("empty abbreviation")
			}
		})
	}
}

func TestResolveAt_FollowsDST(t *testing.T) {
	t.Parallel()
	summer := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	info, err := ResolveAt("America/New_York", summer)
	if err != nil {
		t.Fatal(err)
	}
	if info.Offset != "GMT-4" || info.Abbreviation != "EDT" {
		t.Fatalf("got %+v", info)
	}
	if info.Label() != "America/New_York (GMT-4)" {
		t.Fatalf("Label = %q", info.Label())
	}
}

func TestResolve_Unknown(t *testing.T) {
	t.Parallel()
	if _, err := Resolve("Mars/Olympus_Mons"); !errors.Is(err, ErrUnknownZone) {
		t.Fatalf("err = %v", err)
	}
	if _, err := Resolve(" "); !errors.Is(err, ErrUnknownZone) {
		t.Fatalf("err = %v", err)
	}
}

func TestFormatOffset(t *testing.T) {
	t.Parallel()
	cases := map[int]string{
		0:                "GMT",
		3600:             "GMT+1",
		-(3*3600 + 1800): "GMT-3:30",
		5*3600 + 45*60:   "GMT+5:45",
	}
	for in, want := range cases {
		if got := FormatOffset(in); got != want {
			t.Fatalf("FormatOffset(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	target := alarm.Date{Year: 2026, Month: time.February, Day: 26}
	r := &alarm.Record{
		Kind:       alarm.KindFuture,
		Hour:       7,
		Minute:     30,
		TargetDate: &target,
		Timezone:   "Asia/Kolkata",
	}
	if got := Preview(r, time.UTC, now); got != "07:30 Asia/Kolkata · 02:00 local" {
		t.Fatalf("Preview = %q", got)
	}

	r.Timezone = ""
	if got := Preview(r, time.UTC, now); got != "07:30" {
		t.Fatalf("Preview without zone = %q", got)
	}

	daily := &alarm.Record{Kind: alarm.KindDaily, Hour: 9, Minute: 0, Timezone: "Asia/Tokyo"}
	if got := Preview(daily, time.UTC, now); got != "09:00 Asia/Tokyo · 00:00 local" {
		t.Fatalf("Preview daily = %q", got)
	}
}
