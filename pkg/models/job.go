// Package models contains shared data models used across the imgjobs codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the state string reported by the processing backend.
// Values outside the known set are kept verbatim and treated as non-terminal.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusStarted JobStatus = "STARTED"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailure JobStatus = "FAILURE"
	JobStatusRevoked JobStatus = "REVOKED"
)

// IsTerminal reports whether no further state change can follow s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusFailure, JobStatusRevoked:
		return true
	}
	return false
}

// IsFailure reports whether s is one of the terminal failure variants.
func (s JobStatus) IsFailure() bool {
	return s == JobStatusFailure || s == JobStatusRevoked
}

// Job is one backend-side processing request as tracked by the client.
// ID is the opaque task id assigned by the backend. ResultURL is set only
// when Status is SUCCESS; ErrorDetail only for FAILURE or REVOKED.
type Job struct {
	ID          string     `json:"id"`
	SessionID   uuid.UUID  `json:"session_id"`
	Operation   Operation  `json:"operation"`
	Params      Params     `json:"-"`
	Filename    string     `json:"filename,omitempty"`
	Status      JobStatus  `json:"status"`
	ResultURL   string     `json:"result_url,omitempty"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ParamValues returns the job's parameters as a name/value map for JSON output.
func (j *Job) ParamValues() map[string]string {
	if j.Params == nil {
		return map[string]string{}
	}
	return FieldMap(j.Params)
}

// File is the image selected for submission.
// ContentType may be left empty; it is then detected from Data.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}
