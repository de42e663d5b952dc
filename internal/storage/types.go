package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"alarmd/internal/alarm"
	"alarmd/internal/trigger"
)

var (
	ErrNotFound = errors.New("storage: alarm not found")
	ErrExists   = errors.New("storage: alarm already exists")
	ErrClosed   = errors.New("storage: store closed")
)

// Config configures storage.
//
// Driver values:
//   - "memory" (default when empty)
//   - "file": JSON document at Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store persists alarm records and pending queue requests. Records are
// copied on the way in and out; callers never share memory with the store.
type Store interface {
	Insert(ctx context.Context, r *alarm.Record) error
	Save(ctx context.Context, r *alarm.Record) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*alarm.Record, error)
	List(ctx context.Context) ([]*alarm.Record, error)

	trigger.PendingStore

	Close() error
}

// sortRecords orders by time of day, then creation.
func sortRecords(rs []*alarm.Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		if a.Minute != b.Minute {
			return a.Minute < b.Minute
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func sortPending(rs []trigger.Request) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].FireAt.Before(rs[j].FireAt) })
}
