// Package schedule assigns deterministic publish timestamps to documents.
//
// The first Threshold documents share the start time. After that, every Group
// consecutive documents move one calendar day further out.
package schedule

import "time"

// Layout is the timestamp format used in document front matter.
const Layout = "2006-01-02 15:04:05"

// Defaults.
const (
	DefaultThreshold = 50
	DefaultGroup     = 3
)

// Scheduler maps a zero-based document index to a publish time.
type Scheduler struct {
	start     time.Time
	threshold int
	group     int
}

// New builds a Scheduler anchored at start. Non-positive threshold or group
// fall back to the defaults.
func New(start time.Time, threshold, group int) Scheduler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if group <= 0 {
		group = DefaultGroup
	}
	return Scheduler{start: start, threshold: threshold, group: group}
}

// Start returns the anchor time.
func (s Scheduler) Start() time.Time { return s.start }

// DayOffset returns how many days index is shifted from the start.
func (s Scheduler) DayOffset(index int) int {
	if index < s.threshold {
		return 0
	}
	return (index-s.threshold)/s.group + 1
}

// At returns the publish time for index.
func (s Scheduler) At(index int) time.Time {
	return s.start.AddDate(0, 0, s.DayOffset(index))
}

// Format renders the publish time for index using Layout.
func (s Scheduler) Format(index int) string {
	return s.At(index).Format(Layout)
}
