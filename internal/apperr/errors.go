// Package apperr holds the error taxonomy shared by every processing step.
package apperr

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindService    Kind = "service"
	KindMedia      Kind = "media"
	KindUnexpected Kind = "unexpected"
)

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func Validation(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// ServiceError reports a failed call to infrastructure or an external service.
// Attempts is set when the error was produced by the retry utility.
type ServiceError struct {
	Service  string
	Op       string
	Code     string
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	msg := e.Service
	if e.Op != "" {
		msg += " " + e.Op
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" failed after %d attempt(s)", e.Attempts)
	} else {
		msg += " failed"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ServiceError) Unwrap() error { return e.Err }

func Service(service, op string, err error) error {
	return &ServiceError{Service: service, Op: op, Code: Code(err), Err: err}
}

// MediaError reports a failure inside the media pipeline.
type MediaError struct {
	Stage   string
	Message string
	Err     error
}

func (e *MediaError) Error() string {
	msg := "media " + e.Stage + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MediaError) Unwrap() error { return e.Err }

func Media(stage, message string, err error) error {
	return &MediaError{Stage: stage, Message: message, Err: err}
}

// KindOf classifies err. The outermost typed error wins, anything untyped is unexpected.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		verr *ValidationError
		serr *ServiceError
		merr *MediaError
		aerr smithy.APIError
	)
	switch {
	case errors.As(err, &verr):
		return KindValidation
	case errors.As(err, &serr), errors.As(err, &aerr):
		return KindService
	case errors.As(err, &merr):
		return KindMedia
	default:
		return KindUnexpected
	}
}

// Code returns the service classification code carried by err, if any.
func Code(err error) string {
	var serr *ServiceError
	if errors.As(err, &serr) && serr.Code != "" {
		return serr.Code
	}
	var aerr smithy.APIError
	if errors.As(err, &aerr) {
		return aerr.ErrorCode()
	}
	return ""
}

var nonRetryableCodes = map[string]struct{}{
	"AccessDenied":          {},
	"AccessDeniedException": {},
	"InvalidParameterValue": {},
	"ValidationException":   {},
	"UnauthorizedOperation": {},
}

// Retryable reports whether another attempt could succeed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return false
	}
	_, permanent := nonRetryableCodes[Code(err)]
	return !permanent
}
