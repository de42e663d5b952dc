// Package backend adapts the trigger primitives to a single scheduling
// contract.
//
// A Scheduler turns an alarm record into registrations keyed by ids derived
// from the record's schedule seed. Schedule always cancels before it
// registers, so it is idempotent; Cancel retracts every id a previous
// version of the record could have used. Primitive errors never escape:
// they are logged, counted and summarized in a Report.
//
// Optional behavior is exposed through small capability interfaces
// (CategoryRegistrar, CapacityReporter, Presenter) rather than by asserting
// concrete types.
package backend
