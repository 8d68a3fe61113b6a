package timer

import (
	"testing"
	"time"
)

var start = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRemaining(t *testing.T) {
	duration := 60 * time.Minute

	tests := []struct {
		name    string
		elapsed time.Duration
		want    time.Duration
	}{
		{name: "just started", elapsed: 0, want: duration},
		{name: "half way", elapsed: 30 * time.Minute, want: 30 * time.Minute},
		{name: "exactly at end", elapsed: duration, want: 0},
		{name: "long after", elapsed: 5 * time.Hour, want: 0},
		{name: "clock skew before start", elapsed: -time.Minute, want: duration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Remaining(start, duration, start.Add(tt.elapsed)); got != tt.want {
				t.Errorf("Remaining() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthority_RemainingIsMonotonic(t *testing.T) {
	clock := NewFakeClock(start)
	authority := NewAuthority(clock, DefaultGracePeriod)
	duration := 10 * time.Minute

	previous := authority.RemainingSeconds(start, duration)
	for i := 0; i < 30; i++ {
		clock.Advance(37 * time.Second)
		got := authority.RemainingSeconds(start, duration)
		if got > previous {
			t.Fatalf("remaining increased from %d to %d", previous, got)
		}
		if got < 0 {
			t.Fatalf("remaining is negative: %d", got)
		}
		previous = got
	}
	if previous != 0 {
		t.Errorf("remaining = %d after the deadline, want 0", previous)
	}
}

func TestAuthority_GraceBoundary(t *testing.T) {
	duration := 30 * time.Minute
	grace := DefaultGracePeriod

	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{name: "inside duration", elapsed: 10 * time.Minute, want: true},
		{name: "after duration inside grace", elapsed: duration + time.Second, want: true},
		{name: "one second before grace ends", elapsed: duration + grace - time.Second, want: true},
		{name: "exactly at grace end", elapsed: duration + grace, want: true},
		{name: "one second after grace ends", elapsed: duration + grace + time.Second, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authority := NewAuthority(NewFakeClock(start.Add(tt.elapsed)), grace)
			if got := authority.AcceptsAnswers(start, duration); got != tt.want {
				t.Errorf("AcceptsAnswers() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthority_ExpiryPrecedesGraceCutoff(t *testing.T) {
	duration := time.Minute
	clock := NewFakeClock(start.Add(duration))
	authority := NewAuthority(clock, DefaultGracePeriod)

	if !authority.IsExpired(start, duration) {
		t.Error("attempt should be expired at the nominal deadline")
	}
	if !authority.AcceptsAnswers(start, duration) {
		t.Error("saves should still be accepted at the nominal deadline")
	}
}

func TestNewAuthority_Defaults(t *testing.T) {
	authority := NewAuthority(nil, -time.Second)
	if authority.GracePeriod() != 0 {
		t.Errorf("GracePeriod() = %v, want 0", authority.GracePeriod())
	}
	if authority.Now().IsZero() {
		t.Error("nil clock should fall back to the system clock")
	}
}
