// Package jobs supervises dispatched prediction jobs to a terminal state and
// settles credits against the result.
package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"vocalize/internal/prediction"
)

// ErrPollingTimeout indicates the attempt or wall-clock budget was exhausted
// before the job reached a terminal state. Distinct from a failed job: the
// external job may still complete later.
var ErrPollingTimeout = errors.New("polling budget exhausted before job completed")

// Poller fetches the current state of an external job.
type Poller interface {
	Poll(ctx context.Context, pollingURL string, timeout time.Duration) (*prediction.Result, error)
}

// Supervisor drives a pending job to a terminal state with exponential
// backoff between polls, bounded by an attempt cap and a wall-clock budget.
type Supervisor struct {
	Poller       Poller
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Budget       time.Duration
	PollTimeout  time.Duration

	// sleep and now are replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewSupervisor creates a supervisor with the default budgets: 1s initial
// delay doubling to a 10s cap, 40 attempts, 2 minutes wall clock.
func NewSupervisor(p Poller) *Supervisor {
	return &Supervisor{
		Poller:       p,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		MaxAttempts:  40,
		Budget:       2 * time.Minute,
		PollTimeout:  30 * time.Second,
		sleep:        sleepCtx,
		now:          time.Now,
	}
}

// Await polls the job until it reaches a terminal state or a budget runs out.
// Transient poll errors are swallowed and the loop continues: a flaky poll
// must not fail a potentially successful job. Context cancellation is
// observed at every suspension point.
func (s *Supervisor) Await(ctx context.Context, job *prediction.Result) (*prediction.Result, error) {
	if job.Terminal() {
		return job, nil
	}
	if job.PollingURL == "" {
		return nil, errors.New("pending job has no polling handle")
	}

	sleep := s.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	now := s.now
	if now == nil {
		now = time.Now
	}

	deadline := now().Add(s.Budget)
	delay := s.InitialDelay

	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
		if delay < s.MaxDelay {
			delay *= 2
			if delay > s.MaxDelay {
				delay = s.MaxDelay
			}
		}

		res, err := s.Poller.Poll(ctx, job.PollingURL, s.PollTimeout)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("[Supervisor] Poll %d/%d for job %s failed: %v", attempt, s.MaxAttempts, job.ID, err)
		case res.Terminal():
			return res, nil
		}

		if now().After(deadline) {
			return nil, ErrPollingTimeout
		}
	}
	return nil, ErrPollingTimeout
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
