package alarm

import (
	"fmt"
	"strings"
)

// Kind selects which of RepeatDays / TargetDate is semantically active.
type Kind string

const (
	KindDaily  Kind = "daily"
	KindFuture Kind = "future"
)

func (k Kind) Valid() bool { return k == KindDaily || k == KindFuture }

// ParseKind accepts the canonical names case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindDaily, "":
		return KindDaily, nil
	case KindFuture:
		return KindFuture, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Repeat is the recurrence of a future alarm.
type Repeat string

const (
	RepeatNone    Repeat = "none"
	RepeatWeekly  Repeat = "weekly"
	RepeatMonthly Repeat = "monthly"
	RepeatYearly  Repeat = "yearly"
)

func (r Repeat) Valid() bool {
	switch r {
	case RepeatNone, RepeatWeekly, RepeatMonthly, RepeatYearly:
		return true
	}
	return false
}

// ParseRepeat accepts the canonical names case-insensitively; empty means none.
func ParseRepeat(s string) (Repeat, error) {
	r := Repeat(strings.ToLower(strings.TrimSpace(s)))
	if r == "" || r == "once" {
		return RepeatNone, nil
	}
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRepeat, s)
	}
	return r, nil
}
