// Package jobs ties submission, polling, the session display state, and the
// optional cache and history store together.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/imgjobs/internal/cache"
	"github.com/kiranshivaraju/imgjobs/internal/imageapi"
	"github.com/kiranshivaraju/imgjobs/internal/poller"
	"github.com/kiranshivaraju/imgjobs/internal/session"
	"github.com/kiranshivaraju/imgjobs/internal/store"
	"github.com/kiranshivaraju/imgjobs/pkg/models"
)

const persistTimeout = 5 * time.Second

// Lookup sources.
const (
	SourceCache   = "cache"
	SourceStore   = "store"
	SourceBackend = "backend"
)

// Status is the answer to a one-off status lookup.
type Status struct {
	JobID       string           `json:"job_id"`
	Status      models.JobStatus `json:"status"`
	ResultURL   string           `json:"result_url,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
	Source      string           `json:"source"`
}

// Service runs jobs for one session. The store may be nil, which disables
// history; a nil cache is replaced by cache.Nop.
type Service struct {
	client  imageapi.Client
	poller  *poller.Poller
	session *session.Session
	store   store.Store
	cache   cache.Cache
	ttl     time.Duration

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a new Service.
func NewService(client imageapi.Client, p *poller.Poller, sess *session.Session, st store.Store, ca cache.Cache, ttl time.Duration) *Service {
	if ca == nil {
		ca = cache.Nop{}
	}
	root, cancel := context.WithCancel(context.Background())
	return &Service{
		client:  client,
		poller:  p,
		session: sess,
		store:   st,
		cache:   ca,
		ttl:     ttl,
		root:    root,
		cancel:  cancel,
	}
}

// Session returns the session the service reports into.
func (s *Service) Session() *session.Session {
	return s.session
}

// Start submits file and returns as soon as the backend has accepted it.
// Polling continues in a background goroutine and supersedes any job the
// session was tracking.
func (s *Service) Start(ctx context.Context, file *models.File, params models.Params) (*models.Job, error) {
	ticket, job, err := s.submitAndBegin(ctx, s.root, file, params)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in job tracking", "error", r, "job_id", job.ID)
				s.session.Release(ticket)
			}
		}()
		_, _ = s.track(ticket, job, nil)
	}()

	return job, nil
}

// Run submits file and polls in the caller's goroutine until the job ends or
// polling stops. observe sees every cycle.
func (s *Service) Run(ctx context.Context, file *models.File, params models.Params, observe func(poller.Update)) (*poller.Outcome, error) {
	ticket, job, err := s.submitAndBegin(ctx, ctx, file, params)
	if err != nil {
		return nil, err
	}
	return s.track(ticket, job, observe)
}

// Close stops every background poll loop and waits for them to exit.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Reset clears the session and stops polling its active job.
func (s *Service) Reset() {
	s.session.Reset()
}

// submitAndBegin reserves the session before the request goes out, so a
// submission answered after a newer one (or after a reset) never becomes
// the active job. parent bounds the polling that follows.
func (s *Service) submitAndBegin(ctx, parent context.Context, file *models.File, params models.Params) (*session.Ticket, *models.Job, error) {
	reservation := s.session.Reserve()

	job, err := s.submit(ctx, file, params)
	if err != nil {
		return nil, nil, err
	}

	ticket, err := s.session.Begin(parent, reservation, job)
	if err != nil {
		slog.Info("submitted job not tracked", "job_id", job.ID, "reason", err)
		return nil, nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	return ticket, job, nil
}

func (s *Service) submit(ctx context.Context, file *models.File, params models.Params) (*models.Job, error) {
	res, err := s.client.Submit(ctx, file, params)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          res.JobID,
		SessionID:   s.session.ID(),
		Operation:   params.Operation(),
		Params:      params,
		Filename:    file.Name,
		Status:      models.JobStatusPending,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	slog.Info("job submitted", "job_id", job.ID, "operation", job.Operation, "filename", job.Filename)

	pctx, cancel := s.persistContext(ctx)
	defer cancel()
	if s.store != nil {
		if err := s.store.CreateJob(pctx, job); err != nil {
			slog.Warn("recording job failed", "job_id", job.ID, "error", err)
		}
	}
	if err := s.cache.SetJobStatus(pctx, job.ID, models.JobStatusPending, s.ttl); err != nil {
		slog.Warn("caching job status failed", "job_id", job.ID, "error", err)
	}
	return job, nil
}

// track polls job under ticket and mirrors every cycle into the session,
// the cache and the store.
func (s *Service) track(ticket *session.Ticket, job *models.Job, observe func(poller.Update)) (*poller.Outcome, error) {
	defer s.session.Release(ticket)

	last := models.JobStatusPending
	out, err := s.poller.Run(ticket.Context(), job.ID, func(u poller.Update) {
		s.session.Apply(ticket, func(snap *session.Snapshot) {
			snap.Status = u.Status
			snap.Message = fmt.Sprintf("job %s: %s", u.JobID, u.Status)
		})
		if u.Status != last && !u.Status.IsTerminal() {
			s.recordStatus(ticket.Context(), job.ID, u.Status)
		}
		last = u.Status
		if observe != nil {
			observe(u)
		}
	})

	var jobErr *poller.JobError
	switch {
	case err == nil:
		s.session.Apply(ticket, func(snap *session.Snapshot) {
			snap.Status = out.Status
			snap.Message = "done"
			snap.ResultURL = out.ResultURL
		})
		s.recordOutcome(ticket.Context(), out)
		return out, nil

	case errors.As(err, &jobErr):
		s.session.Apply(ticket, func(snap *session.Snapshot) {
			snap.Status = out.Status
			snap.Message = "job ended with an error: " + out.ErrorDetail
			snap.ErrorDetail = out.ErrorDetail
		})
		s.recordOutcome(ticket.Context(), out)
		return out, err

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		slog.Info("stopped tracking job", "job_id", job.ID, "reason", err)
		return nil, err

	default:
		s.session.Apply(ticket, func(snap *session.Snapshot) {
			snap.Message = "status polling failed"
			snap.ErrorDetail = err.Error()
		})
		return nil, err
	}
}

// Lookup reports a job's status without touching the session. Terminal
// outcomes come from the cache or the store when they have them; otherwise
// the backend is asked once.
func (s *Service) Lookup(ctx context.Context, jobID string) (*Status, error) {
	if out, found, err := s.cache.GetJobOutcome(ctx, jobID); err != nil {
		slog.Warn("cache lookup failed", "job_id", jobID, "error", err)
	} else if found {
		return &Status{
			JobID:       jobID,
			Status:      out.Status,
			ResultURL:   out.ResultURL,
			ErrorDetail: out.ErrorDetail,
			Source:      SourceCache,
		}, nil
	}

	if s.store != nil {
		job, err := s.store.GetJob(ctx, jobID)
		switch {
		case err == nil && job.Status.IsTerminal():
			return &Status{
				JobID:       jobID,
				Status:      job.Status,
				ResultURL:   job.ResultURL,
				ErrorDetail: job.ErrorDetail,
				Source:      SourceStore,
			}, nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			slog.Warn("history lookup failed", "job_id", jobID, "error", err)
		}
	}

	res, err := s.client.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}

	st := &Status{JobID: jobID, Status: res.Status, Source: SourceBackend}
	switch {
	case res.Status == models.JobStatusSuccess:
		st.ResultURL = s.client.ResultURL(jobID)
	case res.Status.IsFailure():
		detail, ok := res.ErrorDetail()
		if !ok {
			detail = poller.FallbackFailureDetail
		}
		st.ErrorDetail = detail
	}

	if st.Status.IsTerminal() {
		s.recordOutcome(ctx, &poller.Outcome{
			JobID:       jobID,
			Status:      st.Status,
			ResultURL:   st.ResultURL,
			ErrorDetail: st.ErrorDetail,
		})
	}
	return st, nil
}

// History lists recorded jobs. It fails with store.ErrNotFound when history
// is disabled.
func (s *Service) History(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	if s.store == nil {
		return nil, 0, fmt.Errorf("job history disabled: %w", store.ErrNotFound)
	}
	return s.store.ListJobs(ctx, filter)
}

func (s *Service) recordStatus(ctx context.Context, jobID string, status models.JobStatus) {
	pctx, cancel := s.persistContext(ctx)
	defer cancel()

	if err := s.cache.SetJobStatus(pctx, jobID, status, s.ttl); err != nil {
		slog.Warn("caching job status failed", "job_id", jobID, "error", err)
	}
	if s.store == nil {
		return
	}
	if err := s.store.UpdateJobStatus(pctx, jobID, status); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("recording job status failed", "job_id", jobID, "status", status, "error", err)
	}
}

func (s *Service) recordOutcome(ctx context.Context, out *poller.Outcome) {
	pctx, cancel := s.persistContext(ctx)
	defer cancel()

	if err := s.cache.SetJobOutcome(pctx, &cache.JobOutcome{
		JobID:       out.JobID,
		Status:      out.Status,
		ResultURL:   out.ResultURL,
		ErrorDetail: out.ErrorDetail,
		FinishedAt:  time.Now().UTC(),
	}, s.ttl); err != nil {
		slog.Warn("caching job outcome failed", "job_id", out.JobID, "error", err)
	}
	if s.store == nil {
		return
	}

	var opts []store.JobUpdateOption
	if out.ResultURL != "" {
		opts = append(opts, store.WithResultURL(out.ResultURL))
	}
	if out.ErrorDetail != "" {
		opts = append(opts, store.WithErrorDetail(out.ErrorDetail))
	}
	if err := s.store.UpdateJobStatus(pctx, out.JobID, out.Status, opts...); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("recording job outcome failed", "job_id", out.JobID, "status", out.Status, "error", err)
	}
}

// persistContext outlives ticket cancellation so a superseded job's last
// write still lands.
func (s *Service) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}
