// Package orchestrator owns the alarm list: it persists records, drives the
// selected scheduler backend, and keeps registrations consistent as alarms
// are edited, fire, or elapse.
//
// Operations on one alarm are serialized; different alarms proceed in
// parallel.
package orchestrator
