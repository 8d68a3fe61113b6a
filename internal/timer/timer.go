// Package timer computes attempt deadlines from the stored start time.
// Client-reported time is never an input.
package timer

import (
	"time"
)

const DefaultGracePeriod = 120 * time.Second

// Clock abstracts the wall clock so deadlines can be tested
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock
func SystemClock() Clock { return systemClock{} }

// Authority answers time questions for attempts
type Authority struct {
	clock Clock
	grace time.Duration
}

func NewAuthority(clock Clock, grace time.Duration) *Authority {
	if clock == nil {
		clock = SystemClock()
	}
	if grace < 0 {
		grace = 0
	}
	return &Authority{clock: clock, grace: grace}
}

func (a *Authority) Now() time.Time {
	return a.clock.Now()
}

func (a *Authority) GracePeriod() time.Duration {
	return a.grace
}

// Remaining returns max(0, duration - elapsed)
func (a *Authority) Remaining(startedAt time.Time, duration time.Duration) time.Duration {
	return Remaining(startedAt, duration, a.clock.Now())
}

// RemainingSeconds is Remaining truncated to whole seconds
func (a *Authority) RemainingSeconds(startedAt time.Time, duration time.Duration) int {
	return int(a.Remaining(startedAt, duration) / time.Second)
}

// IsExpired reports whether the hard cutoff for auto-submit has been reached
func (a *Authority) IsExpired(startedAt time.Time, duration time.Duration) bool {
	return a.Remaining(startedAt, duration) == 0
}

// AcceptsAnswers reports whether a save is still inside duration + grace
func (a *Authority) AcceptsAnswers(startedAt time.Time, duration time.Duration) bool {
	return AcceptsAnswers(startedAt, duration, a.grace, a.clock.Now())
}

// Elapsed returns the wall time since startedAt, never negative
func (a *Authority) Elapsed(startedAt time.Time) time.Duration {
	return elapsed(startedAt, a.clock.Now())
}

func Remaining(startedAt time.Time, duration time.Duration, now time.Time) time.Duration {
	remaining := duration - elapsed(startedAt, now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func AcceptsAnswers(startedAt time.Time, duration, grace time.Duration, now time.Time) bool {
	return elapsed(startedAt, now) <= duration+grace
}

func elapsed(startedAt, now time.Time) time.Duration {
	d := now.Sub(startedAt)
	if d < 0 {
		return 0
	}
	return d
}
