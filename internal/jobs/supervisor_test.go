package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vocalize/internal/prediction"
)

// scriptedPoller returns a fixed sequence of results; a nil entry is a
// transient transport error.
type scriptedPoller struct {
	script []*prediction.Result
	calls  int
}

func (p *scriptedPoller) Poll(_ context.Context, _ string, _ time.Duration) (*prediction.Result, error) {
	if p.calls >= len(p.script) {
		p.calls++
		return &prediction.Result{ID: "job", Status: prediction.StatusProcessing}, nil
	}
	res := p.script[p.calls]
	p.calls++
	if res == nil {
		return nil, errors.New("connection reset")
	}
	return res, nil
}

func newTestSupervisor(p Poller, delays *[]time.Duration) *Supervisor {
	s := NewSupervisor(p)
	s.sleep = func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
	return s
}

func pendingJob() *prediction.Result {
	return &prediction.Result{ID: "job", Status: prediction.StatusProcessing, PollingURL: "https://api/poll/job"}
}

func TestAwaitSucceedsAfterThreePolls(t *testing.T) {
	t.Parallel()

	poller := &scriptedPoller{script: []*prediction.Result{
		{ID: "job", Status: prediction.StatusProcessing},
		{ID: "job", Status: prediction.StatusProcessing},
		{ID: "job", Status: prediction.StatusSucceeded, OutputRef: "https://cdn/out.mp3"},
	}}

	var delays []time.Duration
	s := newTestSupervisor(poller, &delays)

	res, err := s.Await(context.Background(), pendingJob())
	require.NoError(t, err)
	require.Equal(t, prediction.StatusSucceeded, res.Status)
	require.Equal(t, 3, poller.calls)

	// Inter-poll delays grow strictly up to the cap.
	require.Len(t, delays, 3)
	for i := 1; i < len(delays); i++ {
		require.Greater(t, delays[i], delays[i-1])
		require.LessOrEqual(t, delays[i], s.MaxDelay)
	}
}

func TestAwaitDelayCapped(t *testing.T) {
	t.Parallel()

	poller := &scriptedPoller{}
	var delays []time.Duration
	s := newTestSupervisor(poller, &delays)
	s.MaxAttempts = 10

	_, err := s.Await(context.Background(), pendingJob())
	require.ErrorIs(t, err, ErrPollingTimeout)

	for _, d := range delays {
		require.LessOrEqual(t, d, s.MaxDelay)
	}
	require.Equal(t, s.MaxDelay, delays[len(delays)-1])
}

func TestAwaitTimesOutAfterAttemptCap(t *testing.T) {
	t.Parallel()

	poller := &scriptedPoller{}
	s := newTestSupervisor(poller, nil)
	s.MaxAttempts = 5

	_, err := s.Await(context.Background(), pendingJob())
	require.ErrorIs(t, err, ErrPollingTimeout)
	require.Equal(t, 5, poller.calls)
}

func TestAwaitTimesOutOnWallClock(t *testing.T) {
	t.Parallel()

	poller := &scriptedPoller{}
	s := newTestSupervisor(poller, nil)

	current := time.Now()
	s.now = func() time.Time {
		// Each observation advances the clock well past the budget.
		current = current.Add(2 * s.Budget)
		return current
	}

	_, err := s.Await(context.Background(), pendingJob())
	require.ErrorIs(t, err, ErrPollingTimeout)
	require.Equal(t, 1, poller.calls)
}

func TestAwaitSwallowsTransientPollErrors(t *testing.T) {
	t.Parallel()

	poller := &scriptedPoller{script: []*prediction.Result{
		nil,
		nil,
		{ID: "job", Status: prediction.StatusSucceeded, OutputRef: "ref"},
	}}
	s := newTestSupervisor(poller, nil)

	res, err := s.Await(context.Background(), pendingJob())
	require.NoError(t, err)
	require.Equal(t, prediction.StatusSucceeded, res.Status)
	require.Equal(t, 3, poller.calls)
}

func TestAwaitFailedJob(t *testing.T) {
	t.Parallel()

	poller := &scriptedPoller{script: []*prediction.Result{
		{ID: "job", Status: prediction.StatusFailed, ErrorMessage: "model crashed"},
	}}
	s := newTestSupervisor(poller, nil)

	res, err := s.Await(context.Background(), pendingJob())
	require.NoError(t, err)
	require.Equal(t, prediction.StatusFailed, res.Status)
	require.Equal(t, "model crashed", res.ErrorMessage)
}

func TestAwaitShortCircuitsTerminalJob(t *testing.T) {
	t.Parallel()

	poller := &scriptedPoller{}
	s := newTestSupervisor(poller, nil)

	job := &prediction.Result{ID: "job", Status: prediction.StatusSucceeded, OutputRef: "ref"}
	res, err := s.Await(context.Background(), job)
	require.NoError(t, err)
	require.Same(t, job, res)
	require.Zero(t, poller.calls)
}

func TestAwaitObservesCancellation(t *testing.T) {
	t.Parallel()

	poller := &scriptedPoller{}
	s := NewSupervisor(poller)
	s.InitialDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Await(ctx, pendingJob())
	require.ErrorIs(t, err, context.Canceled)
}
