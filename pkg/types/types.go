// Package types defines shared data types used across the gdb bridge.
//
// This package provides type definitions for:
//   - SessionStatus: Debug session states (initializing, running, stopped, terminated)
//   - Breakpoint and BreakpointState: the reconciler's view of a source breakpoint
//   - Info types: SessionInfo, StackFrame, StackTrace, EvaluateResult, ExceptionInfo
//
// These types are used throughout the codebase to maintain type safety
// and provide clear contracts between components.
package types

// SessionStatus represents the status of a debug session
type SessionStatus string

const (
	SessionStatusInitializing SessionStatus = "initializing"
	SessionStatusRunning      SessionStatus = "running"
	SessionStatusStopped      SessionStatus = "stopped"
	SessionStatusTerminated   SessionStatus = "terminated"
)

// SessionInfo represents information about a debug session
type SessionInfo struct {
	SessionID  string        `json:"sessionId"`
	Status     SessionStatus `json:"status"`
	PID        int           `json:"pid,omitempty"`
	Program    string        `json:"program,omitempty"`
	GDBVersion string        `json:"gdbVersion,omitempty"`
}

// StackFrame represents a stack frame. Line is 1-based.
type StackFrame struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	File  string `json:"file,omitempty"`
	Line  int    `json:"line,omitempty"`
	Addr  string `json:"addr,omitempty"`
}

// StackTrace is a window of the call stack plus the total depth
type StackTrace struct {
	Frames []StackFrame `json:"frames"`
	Count  int          `json:"count"`
}

// BreakpointState tracks a breakpoint through reconciliation
type BreakpointState string

const (
	BreakpointPending  BreakpointState = "pending"  // declared, not yet sent
	BreakpointSent     BreakpointState = "sent"     // insert issued, awaiting confirmation
	BreakpointVerified BreakpointState = "verified" // resolved to an executable location
	BreakpointRejected BreakpointState = "rejected" // gdb refused the insert
)

// Breakpoint represents a source breakpoint. ID is assigned by the bridge and never
// reused; Number is gdb's own breakpoint number once known.
type Breakpoint struct {
	ID            int             `json:"id"`
	Path          string          `json:"path"`
	RequestedLine int             `json:"requestedLine"`
	Line          int             `json:"line"`
	Verified      bool            `json:"verified"`
	State         BreakpointState `json:"state"`
	Number        string          `json:"number,omitempty"`
	Message       string          `json:"message,omitempty"`
}

// EvaluateResult represents the result of evaluating an expression.
// Raw passthrough commands have no direct value; their output arrives as events.
type EvaluateResult struct {
	Result string `json:"result"`
	Kind   string `json:"kind"`
}

// ExceptionInfo describes the last signal that stopped the program
type ExceptionInfo struct {
	Signal  string `json:"signal"`
	Meaning string `json:"meaning,omitempty"`
	Core    string `json:"core,omitempty"`
}
