package agent

import (
	"errors"
	"fmt"
	"strings"
)

// UpstreamRequestError reports a failed call to the model endpoint.
// StatusCode is 0 when no HTTP response was received.
type UpstreamRequestError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamRequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("model request failed: %v", e.Err)
	}
	if e.Err == nil {
		return fmt.Sprintf("model request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("model request failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *UpstreamRequestError) Unwrap() error { return e.Err }

// UpstreamFormatError reports a model response without candidate text.
type UpstreamFormatError struct {
	Reason string
}

func (e *UpstreamFormatError) Error() string {
	return "invalid response format from model: " + e.Reason
}

// ResponseParseError reports model text that is not valid JSON after cleanup.
type ResponseParseError struct {
	Text string
	Err  error
}

func (e *ResponseParseError) Error() string {
	return fmt.Sprintf("failed to parse model response as JSON: %v", e.Err)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// ResponseShapeError reports JSON that does not satisfy the reply contract.
type ResponseShapeError struct {
	Fields []string
	Reason string
}

func (e *ResponseShapeError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid response structure: " + e.Reason
	}
	return fmt.Sprintf("invalid response structure: %s (%s)", e.Reason, strings.Join(e.Fields, ", "))
}

// IsPipelineError reports whether err came from the response pipeline.
func IsPipelineError(err error) bool {
	var (
		req   *UpstreamRequestError
		form  *UpstreamFormatError
		parse *ResponseParseError
		shape *ResponseShapeError
	)
	return errors.As(err, &req) || errors.As(err, &form) ||
		errors.As(err, &parse) || errors.As(err, &shape)
}
