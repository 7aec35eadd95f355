// Package handler holds the console API's HTTP handlers.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/imgjobs/internal/api/response"
	"github.com/kiranshivaraju/imgjobs/internal/imageapi"
	"github.com/kiranshivaraju/imgjobs/internal/jobs"
	"github.com/kiranshivaraju/imgjobs/internal/session"
	"github.com/kiranshivaraju/imgjobs/internal/store"
	"github.com/kiranshivaraju/imgjobs/pkg/models"
)

// DefaultMaxUpload bounds the multipart body of a submission.
const DefaultMaxUpload = 20 << 20

// JobRunner defines the job operations the handlers depend on.
type JobRunner interface {
	Start(ctx context.Context, file *models.File, params models.Params) (*models.Job, error)
	Lookup(ctx context.Context, jobID string) (*jobs.Status, error)
	History(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error)
}

type jobResponse struct {
	ID          string            `json:"id"`
	SessionID   uuid.UUID         `json:"session_id"`
	Operation   models.Operation  `json:"operation"`
	Params      map[string]string `json:"params"`
	Filename    string            `json:"filename,omitempty"`
	Status      models.JobStatus  `json:"status"`
	ResultURL   string            `json:"result_url,omitempty"`
	ErrorDetail string            `json:"error_detail,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

func toJobResponse(j *models.Job) jobResponse {
	return jobResponse{
		ID:          j.ID,
		SessionID:   j.SessionID,
		Operation:   j.Operation,
		Params:      j.ParamValues(),
		Filename:    j.Filename,
		Status:      j.Status,
		ResultURL:   j.ResultURL,
		ErrorDetail: j.ErrorDetail,
		SubmittedAt: j.SubmittedAt,
		CompletedAt: j.CompletedAt,
	}
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/jobs/{operation}.
// The body is the same multipart form the backend takes: an "image" file
// part plus the operation's fields, which are forwarded as sent.
func NewSubmitHandler(svc JobRunner, maxUpload int64) http.HandlerFunc {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return func(w http.ResponseWriter, r *http.Request) {
		op := models.Operation(chi.URLParam(r, "operation"))
		names, err := models.FieldNames(op)
		if err != nil {
			response.Error(w, http.StatusNotFound, "UNKNOWN_OPERATION", err.Error(), nil)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Upload exceeds the size limit", nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart/form-data body", nil)
			return
		}

		file, err := readImage(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read the image part", nil)
			return
		}
		if file == nil {
			writeJobError(w, imageapi.ErrNoFileSelected)
			return
		}

		values := make(map[string]string, len(names))
		for _, name := range names {
			if v, ok := r.MultipartForm.Value[name]; ok && len(v) > 0 {
				values[name] = v[0]
			}
		}
		params, err := models.ParseParams(op, values)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_PARAMS", err.Error(), nil)
			return
		}

		job, err := svc.Start(r.Context(), file, params)
		if err != nil {
			writeJobError(w, err)
			return
		}

		response.Accepted(w, toJobResponse(job))
	}
}

// readImage returns nil when the form has no image part.
func readImage(r *http.Request) (*models.File, error) {
	f, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &models.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(svc JobRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.JobFilter{
			Operation: models.Operation(q.Get("operation")),
			Status:    models.JobStatus(q.Get("status")),
			Page:      queryInt(q.Get("page"), 1),
			Limit:     queryInt(q.Get("limit"), 20),
		}
		if raw := q.Get("session_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "session_id must be a UUID", nil)
				return
			}
			filter.SessionID = &id
		}
		if filter.Limit > 100 {
			filter.Limit = 100
		}
		if filter.Limit < 1 {
			filter.Limit = 20
		}
		if filter.Page < 1 {
			filter.Page = 1
		}

		list, total, err := svc.History(r.Context(), filter)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "Job history is not configured", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs", nil)
			return
		}

		out := make([]jobResponse, 0, len(list))
		for _, j := range list {
			out = append(out, toJobResponse(j))
		}
		response.Collection(w, out, response.Pagination(filter.Page, filter.Limit, total))
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Lookup(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, st)
	}
}

// NewResultHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/result.
// A finished job redirects to its download reference.
func NewResultHandler(svc JobRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.Lookup(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeJobError(w, err)
			return
		}

		switch {
		case st.Status == models.JobStatusSuccess:
			http.Redirect(w, r, st.ResultURL, http.StatusFound)
		case st.Status.IsFailure():
			response.Error(w, http.StatusConflict, "JOB_FAILED", st.ErrorDetail,
				map[string]string{"status": string(st.Status)})
		default:
			response.Error(w, http.StatusConflict, "RESULT_NOT_READY", "The job has not finished yet",
				map[string]string{"status": string(st.Status)})
		}
	}
}

// writeJobError maps submission and lookup errors to API errors. Backend
// error responses keep their status code and detail.
func writeJobError(w http.ResponseWriter, err error) {
	var apiErr *imageapi.APIError
	switch {
	case errors.Is(err, imageapi.ErrNoFileSelected):
		response.Error(w, http.StatusBadRequest, "NO_FILE_SELECTED", "Please select a file", nil)
	case errors.Is(err, session.ErrSuperseded):
		response.Error(w, http.StatusConflict, "SUPERSEDED", "A newer submission replaced this one", nil)
	case errors.As(err, &apiErr):
		status := apiErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		response.Error(w, status, "BACKEND_ERROR", apiErr.Detail, nil)
	case errors.Is(err, imageapi.ErrNetwork):
		response.Error(w, http.StatusBadGateway, "BACKEND_UNREACHABLE", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusGatewayTimeout, "BACKEND_TIMEOUT", "The backend did not answer in time", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
