package ir

import (
	"errors"
	"fmt"
)

// Error is the pipeline's error type. Every failure a caller may need to
// branch on carries one of the codes below; wrap it with fmt.Errorf("...: %w")
// freely, the Is* helpers use errors.As.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description naming the unmet precondition.
	Message string

	// Stage, Scope and Field locate the failure when known.
	Stage string
	Scope *Scope
	Field string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes pipeline errors.
type ErrorCode string

const (
	// CodeNotFound: row, stage or scope absent. Do not retry.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeValidation: a precondition was not met (e.g. no top item selected).
	CodeValidation ErrorCode = "VALIDATION"

	// CodeUpstreamUnmet: the Dependency Gate blocked a stage.
	CodeUpstreamUnmet ErrorCode = "UPSTREAM_UNMET"

	// CodeExternalService: generator or translation provider failure.
	CodeExternalService ErrorCode = "EXTERNAL_SERVICE"

	// CodeTransientStore: store hiccup; the same idempotent call may be retried.
	CodeTransientStore ErrorCode = "TRANSIENT_STORE"

	// CodeConflict: a version check on patch failed.
	CodeConflict ErrorCode = "CONFLICT"
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Stage != "" && e.Scope != nil:
		msg = fmt.Sprintf("%s (stage=%s, scope=%s)", msg, e.Stage, e.Scope.Key())
	case e.Stage != "":
		msg = fmt.Sprintf("%s (stage=%s)", msg, e.Stage)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithStage returns a copy of e located at stage and scope.
func (e *Error) WithStage(stage string, scope Scope) *Error {
	out := *e
	out.Stage = stage
	out.Scope = &scope
	return &out
}

// NotFound creates a CodeNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a CodeValidation error.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// UpstreamUnmet creates a CodeUpstreamUnmet error naming the blocking stage.
func UpstreamUnmet(stage, blocking string, scope Scope) *Error {
	return &Error{
		Code:    CodeUpstreamUnmet,
		Message: fmt.Sprintf("stage %q must be approved before %q", blocking, stage),
		Stage:   stage,
		Scope:   &scope,
	}
}

// Unselected creates a CodeUpstreamUnmet error for a scope whose segment or
// pain id is not among those the source stage's approved records select.
func Unselected(stage, source, id string, scope Scope) *Error {
	return &Error{
		Code:    CodeUpstreamUnmet,
		Message: fmt.Sprintf("%q is not selected by the approved %q; %q cannot be entered", id, source, stage),
		Stage:   stage,
		Scope:   &scope,
	}
}

// External wraps a generator or provider failure.
func External(message string, err error) *Error {
	return &Error{Code: CodeExternalService, Message: message, Err: err}
}

// Transient wraps a retryable store failure.
func Transient(message string, err error) *Error {
	return &Error{Code: CodeTransientStore, Message: message, Err: err}
}

// Conflict creates a CodeConflict error for a failed version check.
func Conflict(rowID string, expected, actual int64) *Error {
	return &Error{
		Code:    CodeConflict,
		Message: fmt.Sprintf("row %s is at version %d, expected %d", rowID, actual, expected),
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsValidation reports whether err carries CodeValidation.
func IsValidation(err error) bool { return CodeOf(err) == CodeValidation }

// IsUpstreamUnmet reports whether err carries CodeUpstreamUnmet.
func IsUpstreamUnmet(err error) bool { return CodeOf(err) == CodeUpstreamUnmet }

// IsExternal reports whether err carries CodeExternalService.
func IsExternal(err error) bool { return CodeOf(err) == CodeExternalService }

// IsTransient reports whether err carries CodeTransientStore.
func IsTransient(err error) bool { return CodeOf(err) == CodeTransientStore }

// IsConflict reports whether err carries CodeConflict.
func IsConflict(err error) bool { return CodeOf(err) == CodeConflict }

// Retryable reports whether the user may simply retry the same operation.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeExternalService, CodeTransientStore:
		return true
	}
	return false
}

// Locate attaches stage and scope to the first *Error in err's chain when it
// has none yet. Other errors pass through unchanged.
func Locate(err error, stage string, scope Scope) error {
	var e *Error
	if errors.As(err, &e) && e.Stage == "" {
		return e.WithStage(stage, scope)
	}
	return err
}
