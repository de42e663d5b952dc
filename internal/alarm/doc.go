// Package alarm defines the durable alarm record and its read-only projections.
//
// A Record is owned by the persistence store. The scheduling core borrows it,
// derives triggers from it and only ever mutates enablement and the
// target date of repeating future alarms.
package alarm
