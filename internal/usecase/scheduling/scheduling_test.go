package scheduling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerJobFires(t *testing.T) {
	var count atomic.Int32

	s := NewScheduler(nil)
	s.Register(JobSessionReap, func(ctx context.Context) error {
		count.Add(1)
		return nil
	})
	if err := s.Add(Task{Job: JobSessionReap, Schedule: "50ms"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	if c := count.Load(); c < 1 {
		t.Errorf("job fired %d times, expected at least 1", c)
	}
}

func TestSchedulerUnknownJob(t *testing.T) {
	s := NewScheduler(nil)
	if err := s.Add(Task{Job: "does_not_exist", Schedule: "1m"}); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestSchedulerDuplicateJob(t *testing.T) {
	s := NewScheduler(nil)
	s.Register(JobBreakerReport, func(context.Context) error { return nil })
	if err := s.Add(Task{Job: JobBreakerReport, Schedule: "1m"}); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := s.Add(Task{Job: JobBreakerReport, Schedule: "1m"}); err == nil {
		t.Error("expected error for duplicate job")
	}
}

func TestSchedulerInvalidSchedule(t *testing.T) {
	s := NewScheduler(nil)
	s.Register(JobSessionReap, func(context.Context) error { return nil })
	if err := s.Add(Task{Job: JobSessionReap, Schedule: "sometimes"}); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestSchedulerContextCancellation(t *testing.T) {
	var count atomic.Int32

	s := NewScheduler(nil)
	s.Register(JobSessionReap, func(ctx context.Context) error {
		count.Add(1)
		return nil
	})
	if err := s.Add(Task{Job: JobSessionReap, Schedule: "50ms"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(150 * time.Millisecond)
	cancel()
	s.Stop()

	after := count.Load()
	time.Sleep(100 * time.Millisecond)
	if count.Load() != after {
		t.Error("job continued after cancellation")
	}
}

func TestSchedulerJobErrorKeepsRunning(t *testing.T) {
	var count atomic.Int32

	s := NewScheduler(nil)
	s.Register(JobBreakerReport, func(context.Context) error {
		count.Add(1)
		return errors.New("simulated")
	})
	if err := s.Add(Task{Job: JobBreakerReport, Schedule: "30ms"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	s.Start(context.Background())
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	if c := count.Load(); c < 2 {
		t.Errorf("failing job ran %d times, expected it to keep firing", c)
	}
}

func TestSchedulerStopIdempotent(t *testing.T) {
	s := NewScheduler(nil)
	s.Stop()
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"@every 30m", false},
		{"@hourly", false},
		{"30m", false},
		{"100ms", false},
		{"", true},
		{"-5m", true},
		{"0s", true},
		{"not a schedule", true},
	}
	for _, tt := range tests {
		sched, err := ParseSchedule(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSchedule(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && sched == nil {
			t.Errorf("ParseSchedule(%q) returned nil schedule", tt.in)
		}
	}
}

func TestEveryNext(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := every(250 * time.Millisecond).Next(base); !got.Equal(base.Add(250 * time.Millisecond)) {
		t.Errorf("Next = %v", got)
	}
}
