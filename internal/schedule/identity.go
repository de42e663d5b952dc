package schedule

import (
	"encoding/binary"
	"hash/fnv"
	"math/bits"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Derive maps a seed to a fixed 128-bit identifier. It is pure and total:
// the same seed yields the same id on every run and platform.
//
// Bytes 0..7 hold the big-endian FNV-1a 64 hash; bytes 8..15 mix a rotated
// copy of the hash with the trailing seed bytes. Version 4 and RFC 4122
// variant bits are then forced so the result parses as a regular UUID.
func Derive(seed string) uuid.UUID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum64()

	var id uuid.UUID
	binary.BigEndian.PutUint64(id[0:8], sum)
	binary.BigEndian.PutUint64(id[8:16], bits.RotateLeft64(sum, 29)^packTail(seed))

	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// packTail folds the last (up to) eight seed bytes into a word.
func packTail(seed string) uint64 {
	b := []byte(seed)
	if len(b) > 8 {
		b = b[len(b)-8:]
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// SlotSeed is the per-instance seed "<seed>_<index>".
func SlotSeed(seed string, index int) string {
	return seed + "_" + strconv.Itoa(index)
}

// SlotID derives the identifier of one expansion slot.
func SlotID(seed string, index int) uuid.UUID {
	return Derive(SlotSeed(seed, index))
}

// BareID is the identifier older registrations used before slots existed.
func BareID(seed string) uuid.UUID {
	return Derive(seed)
}

// SnoozeID derives a time-salted identifier so repeated snoozes of the same
// alarm never overwrite each other.
func SnoozeID(identity string, at time.Time) uuid.UUID {
	return Derive(identity + "_snooze_" + strconv.FormatInt(at.UnixNano(), 10))
}
