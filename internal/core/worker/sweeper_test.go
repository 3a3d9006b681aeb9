package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingCleaner struct {
	calls atomic.Int32
}

func (c *countingCleaner) Cleanup(context.Context) (int, int, error) {
	c.calls.Add(1)
	return 1, 0, nil
}

func TestSweeperRunsUntilCancelled(t *testing.T) {
	cleaner := &countingCleaner{}
	s := NewSweeper(cleaner, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for cleaner.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := cleaner.calls.Load(); got < 2 {
		t.Fatalf("expected at least 2 sweeps, got %d", got)
	}

	cancel()
	time.Sleep(50 * time.Millisecond)
	stopped := cleaner.calls.Load()
	time.Sleep(100 * time.Millisecond)
	if got := cleaner.calls.Load(); got > stopped+1 {
		t.Errorf("sweeps continued after cancel: %d -> %d", stopped, got)
	}
}

func TestNewSweeperDefaultsInterval(t *testing.T) {
	s := NewSweeper(&countingCleaner{}, 0)
	if s.interval != defaultSweepInterval {
		t.Errorf("interval = %v, want %v", s.interval, defaultSweepInterval)
	}
}
