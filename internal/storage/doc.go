// Package storage persists alarm records and the legacy queue's pending
// requests.
//
// Drivers:
//   - "memory": process-local maps (tests, dry runs)
//   - "file":   one JSON document rewritten atomically on every change
//   - "sqlite": SQLite database via modernc.org/sqlite (pure Go)
package storage
