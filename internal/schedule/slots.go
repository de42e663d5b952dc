package schedule

import (
	"github.com/google/uuid"

	"alarmd/internal/alarm"
)

// MinCancelSlots covers the largest weekday set any prior edit of a record
// can have registered.
const MinCancelSlots = 7

// SlotIDs returns the ids of slots 0..n-1.
func SlotIDs(seed string, n int) []uuid.UUID {
	out := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, SlotID(seed, i))
	}
	return out
}

// CancelBound is the number of slots a cancel must retract for a record
// whose current expansion has specCount entries.
func CancelBound(specCount int) int {
	return max(specCount, MinCancelSlots)
}

// CancelSet lists every id a previous registration of r could have used.
// withBare also includes the legacy un-slotted id.
func (e Expander) CancelSet(r *alarm.Record, withBare bool) []uuid.UUID {
	if r == nil || r.ScheduleSeed == "" {
		return nil
	}
	ids := SlotIDs(r.ScheduleSeed, CancelBound(len(e.Expand(r))))
	if withBare {
		ids = append(ids, BareID(r.ScheduleSeed))
	}
	return ids
}
