package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"

	"github.com/roach88/schedstore/internal/config"
	"github.com/roach88/schedstore/internal/storage"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Storage failure (unavailable, corrupt log, constraint violation)
	ExitCommandError = 2 // Command error (bad flags, bad config, unknown lock)
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric         = "E001" // Generic/unknown error
	ErrCodeConfig          = "E002" // Config file missing or invalid
	ErrCodeUnavailable     = "E003" // Log or entity store unavailable
	ErrCodeRecoveryCorrupt = "E004" // Log entry or snapshot unusable
	ErrCodeNotFound        = "E005" // Entity not found
	ErrCodeInvalidArgument = "E006" // Bad query, filter or job key
	ErrCodeConstraint      = "E007" // Constraint violation
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	ErrCode string // One of the ErrCode constants
	Message string
	Err     error // Underlying error (optional)
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
func NewExitError(code int, errCode, message string) *ExitError {
	return &ExitError{Code: code, ErrCode: errCode, Message: message}
}

// WrapExitError wraps err, picking the exit and error codes from its kind.
func WrapExitError(message string, err error) *ExitError {
	code, errCode := classify(err)
	return &ExitError{Code: code, ErrCode: errCode, Message: message, Err: err}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitCommandError, ErrCodeConfig
	case storage.IsInvalidArgument(err):
		return ExitCommandError, ErrCodeInvalidArgument
	case storage.IsRecoveryCorrupt(err):
		return ExitFailure, ErrCodeRecoveryCorrupt
	case storage.IsUnavailable(err):
		return ExitFailure, ErrCodeUnavailable
	case storage.IsConstraintViolation(err):
		return ExitFailure, ErrCodeConstraint
	default:
		return ExitFailure, ErrCodeGeneric
	}
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
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result. In text mode text is printed instead of
// data.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	_, err := fmt.Fprint(f.Writer, text)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "%s %s\n", color.RedString("Error [%s]:", code), message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// ReportError writes err in the configured format.
func (f *OutputFormatter) ReportError(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		var details any
		if exitErr.Err != nil {
			details = exitErr.Err.Error()
		}
		return f.Error(exitErr.ErrCode, exitErr.Message, details)
	}
	return f.Error(ErrCodeGeneric, err.Error(), nil)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
