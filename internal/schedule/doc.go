// Package schedule turns alarm records into schedule specifications and
// derives the stable backend identifiers those specifications are
// registered under.
//
// Identifiers depend only on the record's schedule seed and the slot index,
// never on the time of day or the zone, so edits replace registrations in
// place and a cancel can always re-derive every id it might have issued.
package schedule
