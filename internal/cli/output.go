package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes.
const (
	ExitSuccess      = 0 // success
	ExitFailure      = 1 // scenario failures, invalid rules, undelivered events
	ExitCommandError = 2 // bad arguments, unreadable config, unopenable tenant
)

// Error codes reported in JSON output.
const (
	CodeConfig      = "E_CONFIG"
	CodeRules       = "E_RULES"
	CodeTenant      = "E_TENANT"
	CodeInput       = "E_INPUT"
	CodeTestFailed  = "E_TEST_FAILED"
	CodeRelayFailed = "E_RELAY_FAILED"
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// NewOutputFormatter returns a formatter for the global options.
func NewOutputFormatter(opts *RootOptions, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: out, ErrWriter: errOut, Verbose: opts.Verbose}
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes a failed command in JSON output.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Texter is implemented by results with their own text rendering.
type Texter interface {
	WriteText(w io.Writer) error
}

// Success writes data. In text mode a Texter renders itself; anything else is
// printed with %v.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	if t, ok := data.(Texter); ok {
		return t.WriteText(f.Writer)
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes a failure report.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports an error and returns the matching ExitError.
func (f *OutputFormatter) Fail(exitCode int, code, message string, err error) error {
	var details any
	if err != nil {
		details = err.Error()
	}
	if werr := f.Error(code, message, details); werr != nil {
		return werr
	}
	return WrapExitError(exitCode, message, err)
}

// VerboseLog writes a diagnostic line when verbose output is on. It goes to
// ErrWriter so JSON on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter, or Writer when unset.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
