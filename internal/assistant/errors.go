package assistant

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when a request carries nothing to work on.
	ErrEmptyInput = errors.New("assistant: input is empty")
	// ErrPatientNotFound is returned when a referenced patient does not exist.
	ErrPatientNotFound = errors.New("assistant: patient not found")
	// ErrJobNotFound indicates the requested job does not exist (or expired).
	ErrJobNotFound = errors.New("assistant: job not found")
	// ErrEmptyOutput is wrapped in an UpstreamError when the model answers with no text.
	ErrEmptyOutput = errors.New("assistant: model returned empty output")
	// ErrInvalidOutput is wrapped in an UpstreamError when the model answer fails validation.
	ErrInvalidOutput = errors.New("assistant: model returned invalid output")
)

// UpstreamError reports a failed or unusable model call.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("assistant: %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err came from the model provider.
func IsUpstream(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream)
}
