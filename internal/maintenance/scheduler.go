// Package maintenance runs periodic upkeep against the store: FTS segment
// merges and connection pool reporting.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rpggio/mailscope/internal/sqlite"
)

// ErrInvalidSchedule is returned for a schedule the parser rejects.
var ErrInvalidSchedule = errors.New("invalid maintenance schedule")

// scheduleParser accepts 5-field expressions and descriptors like "@every 1h".
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Target is the store surface maintenance operates on.
type Target interface {
	Optimize(ctx context.Context) error
	PoolStats() sqlite.PoolStats
}

// Scheduler runs the optimize job on a cron schedule.
type Scheduler struct {
	target  Target
	logger  *slog.Logger
	cron    *cron.Cron
	timeout time.Duration

	mu      sync.Mutex
	runs    int
	lastErr error
}

// ParseSchedule validates spec and returns its next fire time after from.
func ParseSchedule(spec string, from time.Time) (time.Time, error) {
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, spec, err)
	}
	return sched.Next(from), nil
}

// NewScheduler registers the optimize job under spec. Overlapping runs are
// skipped rather than queued.
func NewScheduler(target Target, spec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Scheduler{target: target, logger: logger, timeout: time.Minute}
	s.cron = cron.New(
		cron.WithParser(scheduleParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := s.cron.AddFunc(spec, func() { _ = s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, spec, err)
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("maintenance scheduler started", "next", s.cron.Entries()[0].Next)
}

// Stop halts the schedule and waits for a running job, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce optimizes the index and logs pool statistics.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.target.Optimize(ctx)
	stats := s.target.PoolStats()

	s.mu.Lock()
	s.runs++
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("index optimize failed", "error", err)
		return fmt.Errorf("failed to optimize: %w", err)
	}
	s.logger.Info("index optimized",
		"duration", time.Since(start),
		"pool_open", stats.Open,
		"pool_in_use", stats.InUse,
		"pool_idle", stats.Idle,
		"pool_wait_count", stats.WaitCount,
		"pool_wait", stats.WaitDuration,
	)
	return nil
}

// Runs reports how many jobs have completed and the last job's error.
func (s *Scheduler) Runs() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastErr
}
