// Package scheduler runs the feed sweep periodically and passes its outcome
// to a Notifier.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"feedwatcher/internal/matcher"
	"feedwatcher/internal/model"
)

// Sweeper evaluates all feeds once.
type Sweeper interface {
	Sweep(ctx context.Context) (matcher.Report, error)
}

// Notifier is told about new results and failed feeds after every sweep.
type Notifier interface {
	NotifyResults(ctx context.Context, results []model.Result)
	NotifyFailures(ctx context.Context, failures []matcher.FeedOutcome)
}

// Scheduler periodically sweeps all feeds and sends notifications.
type Scheduler struct {
	sweeper  Sweeper
	notifier Notifier
	log      *slog.Logger
	tick     time.Duration

	// mu keeps sweeps from overlapping, so a feed is never evaluated twice
	// against the same watermark.
	mu sync.Mutex
}

// New creates a Scheduler sweeping every 15 minutes.
func New(sweeper Sweeper, notifier Notifier, log *slog.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		notifier: notifier,
		log:      log,
		tick:     15 * time.Minute,
	}
}

// SetTickInterval overrides the default 15-minute sweep interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	if d > 0 {
		s.tick = d
	}
}

// Run sweeps immediately and then on every tick, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.CheckNow(ctx); err != nil {
		s.log.Error("sweep", "error", err)
	}
}

// CheckNow runs one sweep outside the regular schedule and notifies about
// its outcome. It waits for a sweep already in progress to finish first.
func (s *Scheduler) CheckNow(ctx context.Context) (matcher.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return matcher.Report{}, ctx.Err()
	}

	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		return report, err
	}

	if results := report.Results(); len(results) > 0 {
		s.notifier.NotifyResults(ctx, results)
	}
	if failures := report.Failures(); len(failures) > 0 {
		s.notifier.NotifyFailures(ctx, failures)
	}
	return report, nil
}
