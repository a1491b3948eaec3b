// Package failure defines the error kinds crossing stage boundaries.
// The pipeline decides fatal-vs-degrade by inspecting Kind and Stage.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure
type Kind string

const (
	KindInput       Kind = "input"        // user-caused; never retried
	KindToolMissing Kind = "tool_missing" // engine absent and install failed
	KindEngine      Kind = "engine"       // engine ran but failed or produced nothing usable
	KindTimeout     Kind = "timeout"      // engine exceeded its bound
	KindIO          Kind = "io"           // filesystem operation failed
	KindUnknown     Kind = "unknown"
)

// Stage names the pipeline stage that produced the failure
type Stage string

const (
	StageInput    Stage = "input"
	StageConvert  Stage = "convert"
	StageCompress Stage = "compress"
	StageCache    Stage = "cache"
)

// Error is the structured failure returned from every stage boundary
type Error struct {
	Kind    Kind   `json:"kind"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"` // engine diagnostic text (stderr)
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Stage, e.Kind, e.Message)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a failure
func New(kind Kind, stage Stage, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message}
}

// WithDetail attaches engine diagnostic output
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithCause attaches the underlying error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Input is shorthand for a user-caused failure
func Input(format string, args ...any) *Error {
	return New(KindInput, StageInput, fmt.Sprintf(format, args...))
}

// KindOf extracts the Kind of err, or KindUnknown
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// StageOf extracts the Stage of err, or ""
func StageOf(err error) Stage {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}

// Is reports whether err is a failure of the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
