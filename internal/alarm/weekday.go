package alarm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Weekday numbers follow the Sunday=1 convention (1..7).
type Weekday int

const (
	Sunday Weekday = iota + 1
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

var shortNames = [...]string{"", "Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func (d Weekday) Valid() bool { return d >= Sunday && d <= Saturday }

// Time converts to the standard library numbering (Sunday=0).
func (d Weekday) Time() time.Weekday { return time.Weekday(int(d) - 1) }

func (d Weekday) String() string {
	if !d.Valid() {
		return "Weekday(" + strconv.Itoa(int(d)) + ")"
	}
	return shortNames[d]
}

// FromTime converts a standard library weekday into Sunday=1 numbering.
func FromTime(w time.Weekday) Weekday { return Weekday(int(w) + 1) }

// Days is a set of weekdays. Normalize keeps it sorted and unique.
type Days []Weekday

// Normalize returns the set sorted ascending without duplicates.
func (ds Days) Normalize() Days {
	if len(ds) == 0 {
		return nil
	}
	seen := make(map[Weekday]bool, len(ds))
	out := make(Days, 0, len(ds))
	for _, d := range ds {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (ds Days) Contains(d Weekday) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}

func (ds Days) validate() error {
	for _, d := range ds {
		if !d.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidWeekday, int(d))
		}
	}
	return nil
}

// ParseDays parses "2,3,4", "mon,wed" or the shorthands "weekdays",
// "weekends" and "daily".
func ParseDays(s string) (Days, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "never", "none":
		return nil, nil
	case "weekdays":
		return Days{Monday, Tuesday, Wednesday, Thursday, Friday}, nil
	case "weekends":
		return Days{Sunday, Saturday}, nil
	case "daily", "everyday", "every day":
		return Days{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}, nil
	}
	var out Days
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			d := Weekday(n)
			if !d.Valid() {
				return nil, fmt.Errorf("%w: %d", ErrInvalidWeekday, n)
			}
			out = append(out, d)
			continue
		}
		found := false
		for i := 1; i < len(shortNames); i++ {
			if strings.HasPrefix(part, strings.ToLower(shortNames[i])) {
				out = append(out, Weekday(i))
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWeekday, part)
		}
	}
	return out.Normalize(), nil
}
