// Package tzinfo renders timezone identifiers for display.
package tzinfo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"alarmd/internal/alarm"
)

var ErrUnknownZone = errors.New("tzinfo: unknown timezone")

// Info is the display form of an IANA zone at a given instant.
type Info struct {
	ID           string
	City         string
	Region       string
	Abbreviation string
	// OffsetSeconds is east of UTC.
	OffsetSeconds int
	// Offset is "GMT", "GMT+9" or "GMT+5:30".
	Offset string
}

// Label renders "Asia/Kolkata (GMT+5:30)".
func (i Info) Label() string {
	return i.ID + " (" + i.Offset + ")"
}

// Resolve describes id as of now.
func Resolve(id string) (Info, error) {
	return ResolveAt(id, time.Now())
}

// ResolveAt describes id as of at, so abbreviations follow DST.
func ResolveAt(id string, at time.Time) (Info, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Info{}, fmt.Errorf("%w: empty identifier", ErrUnknownZone)
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %q", ErrUnknownZone, id)
	}
	abbr, off := at.In(loc).Zone()
	info := Info{
		ID:            loc.String(),
		OffsetSeconds: off,
		Offset:        FormatOffset(off),
		Abbreviation:  abbr,
	}
	// tzdata uses numeric names like "+0530" for zones without a letter code.
	if abbr == "" || abbr[0] == '+' || abbr[0] == '-' {
		info.Abbreviation = info.Offset
	}
	info.Region, info.City = split(info.ID)
	return info, nil
}

func split(id string) (region, city string) {
	i := strings.LastIndexByte(id, '/')
	if i < 0 {
		return "", strings.ReplaceAll(id, "_", " ")
	}
	j := strings.IndexByte(id, '/')
	return id[:j], strings.ReplaceAll(id[i+1:], "_", " ")
}

// FormatOffset renders seconds east of UTC as "GMT+5:30". Zero is "GMT".
func FormatOffset(sec int) string {
	if sec == 0 {
		return "GMT"
	}
	sign := "+"
	if sec < 0 {
		sign = "-"
		sec = -sec
	}
	h, m := sec/3600, (sec%3600)/60
	if m == 0 {
		return fmt.Sprintf("GMT%s%d", sign, h)
	}
	return fmt.Sprintf("GMT%s%d:%02d", sign, h, m)
}

// Preview renders the alarm time in its own zone next to the device wall
// clock, e.g. "07:30 Asia/Kolkata · 02:00 local". Alarms without a foreign
// zone render as plain "07:30".
func Preview(r *alarm.Record, device *time.Location, now time.Time) string {
	if device == nil {
		device = time.Local
	}
	loc := r.Location(device)
	if r.Timezone == "" || loc.String() == device.String() {
		return r.FormattedTime()
	}

	at, ok := r.ResolvedFireDate(device)
	if !ok {
		n := now.In(loc)
		at = time.Date(n.Year(), n.Month(), n.Day(), r.Hour, r.Minute, 0, 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
	}
	return fmt.Sprintf("%s %s · %s local", r.FormattedTime(), loc.String(), at.In(device).Format("15:04"))
}
