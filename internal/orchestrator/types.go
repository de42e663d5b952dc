package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"alarmd/internal/alarm"
	"alarmd/internal/backend"
	"alarmd/internal/storage"
)

var (
	// ErrNotFound matches storage.ErrNotFound under errors.Is.
	ErrNotFound = fmt.Errorf("orchestrator: %w", storage.ErrNotFound)
	// ErrElapsed is returned when an enabled one-shot alarm would be saved
	// with its moment already in the past.
	ErrElapsed = errors.New("orchestrator: alarm date has passed")
)

// Config holds orchestrator settings.
type Config struct {
	// Device is the zone the scheduler evaluates wall clocks in.
	Device        *time.Location
	NearCapRatio  float64
	SnoozeMinutes int
	SweepInterval time.Duration
}

// Capacity is the backend's pending-request usage.
type Capacity struct {
	Pending int
	// Limit is zero when the backend has no cap.
	Limit   int
	NearCap bool
}

// Remaining is the number of free slots, or -1 when uncapped.
func (c Capacity) Remaining() int {
	if c.Limit <= 0 {
		return -1
	}
	return max(c.Limit-c.Pending, 0)
}

// Outcome is the result of a mutating operation. Permission denial and
// capacity pressure are reported here rather than as errors.
type Outcome struct {
	Record           *alarm.Record
	Report           backend.Report
	Capacity         Capacity
	PermissionDenied bool
	Warnings         []string
}
