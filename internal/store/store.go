package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/imgjobs/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateKey      = errors.New("duplicate key violation")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Store is the job history interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	UpdateJobStatus(ctx context.Context, id string, status models.JobStatus, opts ...JobUpdateOption) error
}

type JobFilter struct {
	SessionID *uuid.UUID
	Operation models.Operation
	Status    models.JobStatus
	Page      int
	Limit     int
}

type jobUpdateParams struct {
	ResultURL   *string
	ErrorDetail *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithResultURL(url string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ResultURL = &url
	}
}

func WithErrorDetail(detail string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorDetail = &detail
	}
}
