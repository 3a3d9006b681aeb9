package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

const defaultSweepInterval = time.Minute

// Cleaner removes expired entries and reports how many of each kind went.
type Cleaner interface {
	Cleanup(ctx context.Context) (requests, tokens int, err error)
}

// Sweeper periodically clears expired paywall state.
type Sweeper struct {
	cleaner   Cleaner
	interval  time.Duration
	scheduler *gocron.Scheduler
}

// NewSweeper creates a sweeper running every interval (one minute if unset).
func NewSweeper(cleaner Cleaner, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		cleaner:   cleaner,
		interval:  interval,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the sweep and returns immediately. The job stops when ctx
// is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.sweep, ctx); err != nil {
		return err
	}
	s.scheduler.StartAsync()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the scheduler.
func (s *Sweeper) Stop() {
	if s.scheduler.IsRunning() {
		s.scheduler.Stop()
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	requests, tokens, err := s.cleaner.Cleanup(ctx)
	if err != nil {
		slog.Error("Paywall sweep failed", "error", err)
		return
	}
	if requests > 0 || tokens > 0 {
		slog.Info("Paywall sweep removed expired entries", "requests", requests, "tokens", tokens)
	}
}
