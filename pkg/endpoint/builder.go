package endpoint

import (
	"net/url"
	"strings"

	"github.com/kiranshivaraju/imgjobs/pkg/models"
)

// Builder constructs backend URLs from a base address.
// All methods are pure functions with no side effects.
type Builder struct {
	BaseURL string
}

// New returns a Builder for base, ignoring any trailing slash.
func New(base string) Builder {
	return Builder{BaseURL: strings.TrimRight(base, "/")}
}

// Submit returns the submission endpoint for op: {base}/{op}.
func (b Builder) Submit(op models.Operation) string {
	return b.join(string(op))
}

// Status returns the status endpoint for a job: {base}/task-status/{id}.
func (b Builder) Status(jobID string) string {
	return b.join("task-status", jobID)
}

// Result returns the download reference for a job: {base}/download-result/{id}.
// It depends on jobID alone, so it can be derived again at any time.
func (b Builder) Result(jobID string) string {
	return b.join("download-result", jobID)
}

func (b Builder) join(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.TrimRight(b.BaseURL, "/") + "/" + strings.Join(escaped, "/")
}
