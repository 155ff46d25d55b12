// Package errors provides structured error types for the gdb bridge.
// Each error carries a machine-readable code plus a hint that tells the caller
// how to get back on track.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Session-fatal errors
	CodeSpawnFailed       ErrorCode = "SPAWN_FAILED"
	CodeSessionTerminated ErrorCode = "SESSION_TERMINATED"

	// Recovered locally
	CodeProtocolParse ErrorCode = "PROTOCOL_PARSE"

	// Scoped to a single call
	CodeBreakpointRejected ErrorCode = "BREAKPOINT_REJECTED"
	CodeEvaluationFailed   ErrorCode = "EVALUATION_FAILED"
	CodeUnknownRegister    ErrorCode = "UNKNOWN_REGISTER"
	CodeCommandFailed      ErrorCode = "COMMAND_FAILED"

	// Session registry errors
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeInvalidJSON      ErrorCode = "INVALID_JSON"

	// Permission errors
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
)

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrSpawnFailed        = &DebugError{Code: CodeSpawnFailed}
	ErrSessionTerminated  = &DebugError{Code: CodeSessionTerminated}
	ErrBreakpointRejected = &DebugError{Code: CodeBreakpointRejected}
	ErrEvaluationFailed   = &DebugError{Code: CodeEvaluationFailed}
	ErrUnknownRegister    = &DebugError{Code: CodeUnknownRegister}
	ErrPermissionDenied   = &DebugError{Code: CodePermissionDenied}
)

// DebugError is a structured error type that includes helpful information
// about what went wrong and how to fix it.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the debugger's own message)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if sb.Len() == 0 {
		sb.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Code), "_", " ")))
	}

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DebugError with the same code
func (e *DebugError) Is(target error) bool {
	t, ok := target.(*DebugError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HasCode reports whether err is, or wraps, a DebugError with the given code
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &DebugError{Code: code})
}

// --- Session-fatal errors ---

// SpawnFailed creates an error for when gdb cannot be started or rejects the program
func SpawnFailed(path string, err error) *DebugError {
	return &DebugError{
		Code:    CodeSpawnFailed,
		Message: fmt.Sprintf("failed to start debugger for %s: %v", path, err),
		Hint:    "Ensure gdb is installed and on PATH (or set gdb.path in the configuration), and that the program path points to an executable built with debug info (-g).",
		Cause:   err,
		Details: map[string]interface{}{
			"program": path,
		},
	}
}

// SessionTerminated creates an error for commands issued to a dead debugger
func SessionTerminated(cause error) *DebugError {
	return &DebugError{
		Code:    CodeSessionTerminated,
		Message: "debugger session has terminated",
		Hint:    "The gdb process exited or its pipes closed. Use debug_disconnect to clean up and debug_launch to start a new session.",
		Cause:   cause,
	}
}

// ProtocolParse creates an error for an MI line that could not be parsed
func ProtocolParse(line string, err error) *DebugError {
	return &DebugError{
		Code:    CodeProtocolParse,
		Message: fmt.Sprintf("unparseable debugger output: %v", err),
		Cause:   err,
		Details: map[string]interface{}{
			"line": line,
		},
	}
}

// --- Call-scoped errors ---

// BreakpointRejected creates an error for a breakpoint gdb refused to insert
func BreakpointRejected(path string, line int, reason string) *DebugError {
	return &DebugError{
		Code:    CodeBreakpointRejected,
		Message: fmt.Sprintf("could not set breakpoint at %s:%d", path, line),
		Hint:    fmt.Sprintf("Reason: %s. Ensure the file path is correct and the line number contains executable code (not comments or blank lines).", reason),
		Details: map[string]interface{}{
			"path":   path,
			"line":   line,
			"reason": reason,
		},
	}
}

// EvaluationFailed creates an error for expression evaluation failures
func EvaluationFailed(expression string, err error) *DebugError {
	return &DebugError{
		Code:    CodeEvaluationFailed,
		Message: fmt.Sprintf("failed to evaluate expression '%s': %v", expression, err),
		Hint:    "Check that the expression is valid C/C++ for the current frame and that referenced variables are in scope.",
		Cause:   err,
		Details: map[string]interface{}{
			"expression": expression,
		},
	}
}

// UnknownRegister creates an error for a register name gdb does not know
func UnknownRegister(name string) *DebugError {
	return &DebugError{
		Code:    CodeUnknownRegister,
		Message: fmt.Sprintf("unknown register '%s'", name),
		Hint:    "Use debug_registers without names to list the registers of the current architecture.",
		Details: map[string]interface{}{
			"register": name,
		},
	}
}

// CommandFailed creates an error for an MI command answered with ^error
func CommandFailed(command, msg string) *DebugError {
	return &DebugError{
		Code:    CodeCommandFailed,
		Message: fmt.Sprintf("%s failed: %s", command, msg),
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// --- Session registry errors ---

// SessionNotFound creates an error for when a session ID doesn't exist
func SessionNotFound(sessionID string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", sessionID),
		Hint:    "Use debug_list_sessions to see active sessions, or use debug_launch to create a new session.",
		Details: map[string]interface{}{
			"sessionId": sessionID,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use debug_disconnect to terminate an existing session before creating a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// InvalidJSON creates an error for JSON parsing failures
func InvalidJSON(paramName string, reason string, example string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidJSON,
		Message: fmt.Sprintf("invalid JSON in parameter '%s': %s", paramName, reason),
		Hint:    fmt.Sprintf("Provide valid JSON. Example: %s", example),
		Details: map[string]interface{}{
			"parameter": paramName,
			"example":   example,
		},
	}
}

// --- Permission Errors ---

// PermissionDenied creates an error for permission denied
func PermissionDenied(operation, mode string) *DebugError {
	var hint string
	switch operation {
	case "spawn":
		hint = "The server is configured to disallow starting gdb. Ask the administrator to enable 'allowSpawn' in the configuration."
	case "execute":
		hint = "Raw gdb commands are disabled in the current server mode. Use the -p prefix to print an expression instead."
	default:
		hint = fmt.Sprintf("This operation is not allowed in '%s' mode.", mode)
	}

	return &DebugError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current server mode", operation),
		Hint:    hint,
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}

// FromError converts any error to a DebugError
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}
