package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/canvaspipe/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A pipeline precondition failed (validation, blocked stage, conflict)
	ExitCommandError = 2 // Command error (bad flags, unreadable config, store failure)
)

// CLI error codes for failures that carry no ir.ErrorCode.
const (
	ErrCodeGeneric = "E001"
	ErrCodeConfig  = "E002"
	ErrCodeStages  = "E003"
	ErrCodeStore   = "E004"
	ErrCodeUsage   = "E005"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// exitCodeFor maps a pipeline error to a process exit code. Unmet
// preconditions are the user's to fix; everything else is a command error.
func exitCodeFor(err error) int {
	switch ir.CodeOf(err) {
	case ir.CodeValidation, ir.CodeUpstreamUnmet, ir.CodeConflict, ir.CodeNotFound:
		return ExitFailure
	}
	return ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code      string `json:"code"` // ir code ("VALIDATION", ...) or "E00x"
	Message   string `json:"message"`
	Stage     string `json:"stage,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Success outputs data as JSON, or calls text to render it for humans.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	if text != nil {
		text(f.Writer)
		return nil
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Fail reports err in the configured format and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	cliErr := describe(err)
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		_ = enc.Encode(CLIResponse{Status: "error", Error: cliErr})
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
		if f.Verbose && cliErr.Retryable {
			fmt.Fprintln(f.Writer, "The operation may be retried.")
		}
	}
	return WrapExitError(exitCodeFor(err), message, err)
}

// FailWith reports a CLI-level error that has no pipeline code.
func (f *OutputFormatter) FailWith(exitCode int, code, message string, err error) error {
	msg := message
	if err != nil {
		msg = fmt.Sprintf("%s: %v", message, err)
	}
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		_ = enc.Encode(CLIResponse{Status: "error", Error: &CLIError{Code: code, Message: msg}})
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, msg)
	}
	return WrapExitError(exitCode, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func describe(err error) *CLIError {
	var e *ir.Error
	if !errors.As(err, &e) {
		return &CLIError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	out := &CLIError{
		Code:      string(e.Code),
		Message:   e.Message,
		Stage:     e.Stage,
		Retryable: ir.Retryable(e),
	}
	if e.Scope != nil {
		out.Scope = e.Scope.Key()
	}
	if e.Err != nil {
		out.Message = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return out
}
