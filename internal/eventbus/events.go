package eventbus

import "time"

// Event types published by the alarm daemon.
const (
	TypeAlarmFired      = "alarm.fired"
	TypeAlarmScheduled  = "alarm.scheduled"
	TypeAlarmCancelled  = "alarm.cancelled"
	TypeAlarmDisabled   = "alarm.disabled"
	TypeCapacityWarning = "alarm.capacity_warning"
	TypeConfigReloaded  = "config.reloaded"
)

// AlarmFired is the payload of TypeAlarmFired.
type AlarmFired struct {
	AlarmID   string
	RequestID string
	Label     string
	Slot      int
	Snooze    bool
	Repeats   bool
	Backend   string
	// At is the instant the request was due.
	At time.Time
}

// AlarmScheduled is the payload of TypeAlarmScheduled.
type AlarmScheduled struct {
	AlarmID    string
	Backend    string
	Registered int
	Failed     int
	Fallback   bool
}

// CapacityWarning is the payload of TypeCapacityWarning.
type CapacityWarning struct {
	Pending int
	Limit   int
}

// AlarmCancelled is the payload of TypeAlarmCancelled.
type AlarmCancelled struct {
	AlarmID string
	Backend string
}

// AlarmDisabled is the payload of TypeAlarmDisabled.
type AlarmDisabled struct {
	AlarmID string
	// Reason is "elapsed" or "fired".
	Reason string
}
