package alarm

import "errors"

var (
	ErrInvalidHour       = errors.New("alarm: hour must be within 0..23")
	ErrInvalidMinute     = errors.New("alarm: minute must be within 0..59")
	ErrInvalidWeekday    = errors.New("alarm: weekday must be within 1..7 (Sunday=1)")
	ErrInvalidKind       = errors.New("alarm: unknown recurrence kind")
	ErrInvalidRepeat     = errors.New("alarm: unknown future repeat")
	ErrMissingTargetDate = errors.New("alarm: future alarm requires a target date")
	ErrUnknownTimezone   = errors.New("alarm: unknown timezone")
	ErrMissingSeed       = errors.New("alarm: schedule seed required")
)
