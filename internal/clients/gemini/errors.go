package gemini

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

var ErrMissingCredential = errors.New("missing GEMINI_API_KEY")

// TimeoutError means the attempt lost the race against its deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("gemini request timed out after %s", e.Timeout)
}

type EmptyResponseError struct {
	Model string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("gemini model %s returned an empty response", e.Model)
}

// UpstreamError wraps a failure reported by the model service or its transport.
// StatusCode is zero for transport failures.
type UpstreamError struct {
	StatusCode int
	Fatal      bool
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gemini upstream %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gemini upstream: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var up *UpstreamError
	if errors.As(err, &up) {
		return err
	}
	if errors.Is(err, ErrMissingCredential) {
		return &UpstreamError{Fatal: true, Err: err}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamError{StatusCode: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &UpstreamError{StatusCode: apiErrPtr.Code, Err: err}
	}
	return &UpstreamError{Err: err}
}
