package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"alarmd/internal/schedule"
)

var (
	ErrCapacityExceeded = errors.New("trigger: pending request capacity exceeded")
	ErrUnauthorized     = errors.New("trigger: not authorized")
	ErrStopped          = errors.New("trigger: primitive stopped")
	ErrNotFound         = errors.New("trigger: request not found")
	ErrNotPausable      = errors.New("trigger: request is not counting down")
)

// Payload travels with a request and comes back when it fires.
type Payload struct {
	AlarmID  string `json:"alarm_id"`
	Label    string `json:"label,omitempty"`
	Category string `json:"category,omitempty"`
	Slot     int    `json:"slot"`
	Snooze   bool   `json:"snooze,omitempty"`
}

// Request is one registration held by a primitive.
type Request struct {
	ID      uuid.UUID     `json:"id"`
	Spec    schedule.Spec `json:"spec"`
	Payload Payload       `json:"payload"`
	Created time.Time     `json:"created"`
	FireAt  time.Time     `json:"fire_at"`
}

// Fired is delivered to the FireFunc each time a request triggers.
type Fired struct {
	ID      uuid.UUID
	Payload Payload
	// At is the instant the request was due, not the instant the callback ran.
	At      time.Time
	Repeats bool
	Source  string
}

// FireFunc receives fired requests. It must not block for long.
type FireFunc func(Fired)

// Authorizer answers a permission prompt. It may block until the user
// responds or ctx ends.
type Authorizer func(ctx context.Context) bool

// Static returns an Authorizer with a fixed answer.
func Static(granted bool) Authorizer {
	return func(context.Context) bool { return granted }
}
