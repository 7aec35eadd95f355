package imageapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/kiranshivaraju/imgjobs/pkg/endpoint"
	"github.com/kiranshivaraju/imgjobs/pkg/models"
)

// Client is the interface for talking to the image-processing backend.
type Client interface {
	Submit(ctx context.Context, file *models.File, params models.Params) (*SubmitResult, error)
	Status(ctx context.Context, jobID string) (*StatusResult, error)
	Download(ctx context.Context, jobID string, w io.Writer) (*DownloadResult, error)
	ResultURL(jobID string) string
}

// SubmitResult is the backend's answer to an accepted submission.
type SubmitResult struct {
	JobID            string `json:"task_id"`
	StatusURL        string `json:"status_url,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
	TaskName         string `json:"task_name,omitempty"`
}

// StatusResult is one status endpoint response.
type StatusResult struct {
	JobID      string           `json:"task_id"`
	Status     models.JobStatus `json:"status"`
	Ready      bool             `json:"ready"`
	Successful bool             `json:"successful"`
	Result     json.RawMessage  `json:"result,omitempty"`
}

// ErrorDetail returns result.error when the result is an object carrying a
// string error field.
func (r *StatusResult) ErrorDetail() (string, bool) {
	if len(r.Result) == 0 {
		return "", false
	}
	var nested struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(r.Result, &nested); err != nil || nested.Error == nil || *nested.Error == "" {
		return "", false
	}
	return *nested.Error, true
}

// DownloadResult describes a fetched result artifact.
type DownloadResult struct {
	Filename    string
	ContentType string
	Bytes       int64
}

// HTTPClient implements Client using the backend's HTTP API.
type HTTPClient struct {
	urls   endpoint.Builder
	client *http.Client
}

// NewHTTPClient creates a new backend HTTP client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		urls:   endpoint.New(baseURL),
		client: &http.Client{Timeout: timeout},
	}
}

// Submit uploads file with params to the operation's endpoint and returns the
// assigned job id. A nil file fails with ErrNoFileSelected before any request.
func (c *HTTPClient) Submit(ctx context.Context, file *models.File, params models.Params) (*SubmitResult, error) {
	if file == nil {
		return nil, ErrNoFileSelected
	}
	if params == nil {
		return nil, fmt.Errorf("submit: params are required")
	}

	body, contentType, err := encodeSubmission(file, params)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.urls.Submit(params.Operation()), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, readAPIError(resp.StatusCode, resp.Body, "detail")
	}

	var result SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: fmt.Sprintf("decoding submit response: %v", err)}
	}
	if result.JobID == "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: "submit response missing task_id"}
	}

	return &result, nil
}

// Status performs one status query for jobID.
func (c *HTTPClient) Status(ctx context.Context, jobID string) (*StatusResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.urls.Status(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, readAPIError(resp.StatusCode, resp.Body, "detail", "message")
	}

	var result StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}

	return &result, nil
}

// Download streams the finished artifact of jobID into w.
// A job that is still running yields ErrResultNotReady.
func (c *HTTPClient) Download(ctx context.Context, jobID string, w io.Writer) (*DownloadResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.urls.Result(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return nil, ErrResultNotReady
	case resp.StatusCode != http.StatusOK:
		return nil, readAPIError(resp.StatusCode, resp.Body, "error", "message", "detail")
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading result body: %w", classifyError(err))
	}

	return &DownloadResult{
		Filename:    attachmentName(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		Bytes:       n,
	}, nil
}

// Ping checks that the backend answers HTTP at all. The backend has no
// health route, so any response to its base URL counts.
func (c *HTTPClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.urls.BaseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return resp.Body.Close()
}

// ResultURL returns the download reference for jobID.
func (c *HTTPClient) ResultURL(jobID string) string {
	return c.urls.Result(jobID)
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func attachmentName(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
