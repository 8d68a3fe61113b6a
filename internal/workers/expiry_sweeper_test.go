package workers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/mocktest-service/internal/models"
	"github.com/SAP-F-2025/mocktest-service/internal/repositories"
	"github.com/SAP-F-2025/mocktest-service/internal/services"
	"github.com/SAP-F-2025/mocktest-service/internal/timer"
)

type stubAttempts struct {
	repositories.AttemptRepository

	expired   []models.Attempt
	err       error
	lastNow   time.Time
	lastLimit int
}

func (s *stubAttempts) ListExpiredInProgress(ctx context.Context, now time.Time, limit int) ([]models.Attempt, error) {
	s.lastNow, s.lastLimit = now, limit
	return s.expired, s.err
}

type stubSubmitter struct {
	mu        sync.Mutex
	submitted []uint
	fail      map[uint]bool
	already   map[uint]bool
}

func (s *stubSubmitter) AutoSubmit(ctx context.Context, attemptID uint) (*services.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[attemptID] {
		return nil, errors.New("database unavailable")
	}
	s.submitted = append(s.submitted, attemptID)
	return &services.SubmitResult{AttemptID: attemptID, AlreadySubmitted: s.already[attemptID]}, nil
}

func (s *stubSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.submitted)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExpirySweeper_SweepOnce(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expired   []models.Attempt
		listErr   error
		fail      map[uint]bool
		already   map[uint]bool
		want      int
		wantErr   bool
		wantCalls int
	}{
		{name: "nothing expired"},
		{
			name:      "submits every expired attempt",
			expired:   []models.Attempt{{ID: 1}, {ID: 2}, {ID: 3}},
			want:      3,
			wantCalls: 3,
		},
		{
			name:      "one failure does not stop the batch",
			expired:   []models.Attempt{{ID: 1}, {ID: 2}, {ID: 3}},
			fail:      map[uint]bool{2: true},
			want:      2,
			wantCalls: 2,
		},
		{
			name:      "attempts closed concurrently are not counted",
			expired:   []models.Attempt{{ID: 1}, {ID: 2}},
			already:   map[uint]bool{1: true},
			want:      1,
			wantCalls: 2,
		},
		{
			name:    "list error",
			listErr: errors.New("timeout"),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := &stubAttempts{expired: tt.expired, err: tt.listErr}
			submitter := &stubSubmitter{fail: tt.fail, already: tt.already}
			sweeper := NewExpirySweeper(ExpirySweeperConfig{Interval: time.Minute}, attempts, submitter, timer.NewFakeClock(now), quietLogger())

			got, err := sweeper.SweepOnce(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("SweepOnce() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SweepOnce() = %d, want %d", got, tt.want)
			}
			if submitter.count() != tt.wantCalls {
				t.Errorf("AutoSubmit calls = %d, want %d", submitter.count(), tt.wantCalls)
			}
			if !attempts.lastNow.Equal(now) || attempts.lastLimit != defaultSweepBatch {
				t.Errorf("listed with now=%v limit=%d", attempts.lastNow, attempts.lastLimit)
			}
		})
	}
}

func TestExpirySweeper_Run(t *testing.T) {
	attempts := &stubAttempts{expired: []models.Attempt{{ID: 7}}}
	submitter := &stubSubmitter{}
	sweeper := NewExpirySweeper(ExpirySweeperConfig{Interval: 10 * time.Millisecond}, attempts, submitter, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for submitter.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if submitter.count() == 0 {
		t.Error("sweeper never ran")
	}
}

func TestExpirySweeper_RunRequiresInterval(t *testing.T) {
	sweeper := NewExpirySweeper(ExpirySweeperConfig{}, &stubAttempts{}, &stubSubmitter{}, nil, quietLogger())
	if err := sweeper.Run(context.Background()); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestExpirySweeper_WaitsOutGraceWindow(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	grace := 2 * time.Minute

	attempts := &stubAttempts{}
	sweeper := NewExpirySweeper(ExpirySweeperConfig{Interval: time.Minute, Grace: grace}, attempts, &stubSubmitter{}, timer.NewFakeClock(now), quietLogger())

	if _, err := sweeper.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce() error = %v", err)
	}
	if want := now.Add(-grace); !attempts.lastNow.Equal(want) {
		t.Errorf("listed expired attempts as of %v, want %v", attempts.lastNow, want)
	}
}
