// Package trigger provides the two raw trigger primitives the scheduling
// backends sit on:
//
//   - Native: cron-backed weekly recurrences plus one-shot timers, with
//     per-request presentation state (counting down, alerting, paused).
//   - Queue: a flat, capped request queue persisted through a PendingStore,
//     modelled on the legacy local-notification API.
//
// Both hand fired requests to a FireFunc; neither knows about alarm records.
package trigger
