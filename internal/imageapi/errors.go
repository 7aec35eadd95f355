package imageapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sentinel errors for backend client failures.
var (
	ErrNoFileSelected = errors.New("no file selected")
	ErrNetwork        = errors.New("network error")
	ErrAPI            = errors.New("api error")
	ErrResultNotReady = errors.New("result not ready")
)

// FallbackDetail is reported when an error response carries no usable detail.
const FallbackDetail = "Unknown error"

// APIError is a non-success HTTP response from the backend.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Detail)
}

func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// classifyError maps transport-level errors to ErrNetwork, keeping the
// underlying error in the chain.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNetwork, err)
}

// readAPIError builds an APIError from an error response body.
// keys are tried in order; the first usable one wins.
func readAPIError(status int, body io.Reader, keys ...string) *APIError {
	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return &APIError{StatusCode: status, Detail: FallbackDetail}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return &APIError{StatusCode: status, Detail: FallbackDetail}
	}

	for _, key := range keys {
		if d := detailText(fields[key]); d != "" {
			return &APIError{StatusCode: status, Detail: d}
		}
	}
	return &APIError{StatusCode: status, Detail: FallbackDetail}
}

// detailText extracts a message from a detail value. Plain strings are used
// as-is; validation error lists contribute their "msg" entries.
func detailText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
