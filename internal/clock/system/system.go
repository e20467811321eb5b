// Package system provides wall-clock and fixed clocks.
package system

import "time"

// Clock reports the current time in UTC.
type Clock struct{}

// New returns a wall clock.
func New() Clock {
	return Clock{}
}

// Now returns time.Now in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant. Useful for replaying a schedule.
type Fixed time.Time

// Now returns the fixed instant in UTC.
func (f Fixed) Now() time.Time {
	return time.Time(f).UTC()
}
