// Package system provides the wall clock used for run timestamps.
package system

import "time"

// Clock implements catalog.Clock. Readings are UTC, carry no monotonic
// component and are truncated to microseconds so a run read back from
// Postgres compares equal to the one held in memory.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Round(0).Truncate(time.Microsecond)
}
