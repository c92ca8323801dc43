package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job every Interval. With RunAtStart the first run
// happens on the first tick instead of one interval later.
type IntervalSchedule struct {
	Interval   time.Duration
	RunAtStart bool

	started bool
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	if s.RunAtStart && !s.started {
		s.started = true
		return t
	}
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
