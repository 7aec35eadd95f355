// Package poller drives a submitted job to a terminal status by querying the
// backend's status endpoint at a fixed interval.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/imgjobs/internal/imageapi"
	"github.com/kiranshivaraju/imgjobs/pkg/models"
)

// Sentinel errors for terminal poll outcomes.
var (
	ErrJobFailed     = errors.New("job failed")
	ErrJobRevoked    = errors.New("job revoked")
	ErrPollTransport = errors.New("status poll failed")
)

// FallbackFailureDetail is reported when a failed job carries no result.error.
const FallbackFailureDetail = "See worker logs for details."

// JobError is a terminal failure reported by the backend.
type JobError struct {
	JobID  string
	Status models.JobStatus
	Detail string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s %s: %s", e.JobID, e.Status, e.Detail)
}

func (e *JobError) Is(target error) bool {
	switch target {
	case ErrJobFailed:
		return e.Status == models.JobStatusFailure
	case ErrJobRevoked:
		return e.Status == models.JobStatusRevoked
	}
	return false
}

// StatusGetter is the part of the backend client the poller needs.
type StatusGetter interface {
	Status(ctx context.Context, jobID string) (*imageapi.StatusResult, error)
	ResultURL(jobID string) string
}

// Update is emitted once per poll cycle.
type Update struct {
	JobID  string
	Status models.JobStatus
	Cycle  int
}

// Outcome is the terminal state of a poll loop.
type Outcome struct {
	JobID       string
	Status      models.JobStatus
	ResultURL   string
	ErrorDetail string
	Cycles      int
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Poller queries job status until a terminal status or a poll failure.
type Poller struct {
	client   StatusGetter
	interval time.Duration
	wait     WaitFunc
}

// Option configures a Poller.
type Option func(*Poller)

// WithWait replaces the timer used between cycles.
func WithWait(w WaitFunc) Option {
	return func(p *Poller) { p.wait = w }
}

// New creates a Poller that waits interval between cycles.
func New(client StatusGetter, interval time.Duration, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		interval: interval,
		wait:     sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the delay between poll cycles.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run polls jobID until it reaches a terminal status. observe, if non-nil,
// is called after every cycle's response, terminal or not.
//
// SUCCESS returns an Outcome with the result reference. FAILURE and REVOKED
// return the Outcome together with a *JobError. A transport or decode error
// stops the loop with an error wrapping ErrPollTransport. Non-terminal
// statuses, including unrecognised ones, are polled again without bound; only
// ctx ends that.
func (p *Poller) Run(ctx context.Context, jobID string, observe func(Update)) (*Outcome, error) {
	for cycle := 1; ; cycle++ {
		res, err := p.client.Status(ctx, jobID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("status poll failed", "job_id", jobID, "cycle", cycle, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrPollTransport, err)
		}

		if observe != nil {
			observe(Update{JobID: jobID, Status: res.Status, Cycle: cycle})
		}

		if res.Status.IsTerminal() {
			return p.finish(jobID, res, cycle)
		}

		slog.Debug("job not finished", "job_id", jobID, "status", res.Status, "cycle", cycle)

		if err := p.wait(ctx, p.interval); err != nil {
			return nil, err
		}
	}
}

func (p *Poller) finish(jobID string, res *imageapi.StatusResult, cycles int) (*Outcome, error) {
	out := &Outcome{JobID: jobID, Status: res.Status, Cycles: cycles}

	if res.Status == models.JobStatusSuccess {
		out.ResultURL = p.client.ResultURL(jobID)
		slog.Info("job succeeded", "job_id", jobID, "cycles", cycles)
		return out, nil
	}

	detail, ok := res.ErrorDetail()
	if !ok {
		detail = FallbackFailureDetail
	}
	out.ErrorDetail = detail
	slog.Info("job ended with failure", "job_id", jobID, "status", res.Status, "detail", detail)
	return out, &JobError{JobID: jobID, Status: res.Status, Detail: detail}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
