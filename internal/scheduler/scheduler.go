// Package scheduler triggers update checks on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "rozklad/internal/log"
)

// Job is one scheduled run. It receives the scheduler's context.
type Job func(ctx context.Context)

// Scheduler runs a job on cron specs plus once shortly after start.
// Overlapping runs are skipped.
type Scheduler struct {
	cron  *cron.Cron
	specs []string
	delay time.Duration
	job   Job

	mu  sync.Mutex
	ctx context.Context
}

// New parses specs (standard 5-field expressions or descriptors such as
// "@every 6h") in loc. A zero delay disables the startup run.
func New(loc *time.Location, specs []string, delay time.Duration, job Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		specs: specs,
		delay: delay,
		job:   job,
	}
	for _, spec := range specs {
		if _, err := s.cron.AddFunc(spec, s.run); err != nil {
			return nil, fmt.Errorf("scheduler: spec %q: %w", spec, err)
		}
	}
	return s, nil
}

// Run blocks until ctx is canceled, then waits for a running job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	appLog.Info("scheduler started", "specs", s.specs, "startup_delay", s.delay)

	var startup <-chan time.Time
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()
		startup = t.C
	}

	for {
		select {
		case <-startup:
			startup = nil
			// Runs outside the cron chain, so overlap is not checked here.
			s.run()
		case <-ctx.Done():
			<-s.cron.Stop().Done()
			appLog.Info("scheduler stopped")
			return
		}
	}
}

// Next returns the next scheduled time, or zero if there are no specs.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.job(ctx)
}

// cronLogger routes cron's own logging to the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
