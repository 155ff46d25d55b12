package gdb

import (
	"fmt"

	"github.com/ctagard/gdb-bridge/internal/mi"
)

// EventKind classifies what a subscriber receives
type EventKind int

const (
	// EventNotification carries an async record (*stopped, =breakpoint-modified, ...)
	EventNotification EventKind = iota
	// EventStream carries console, target, log or raw text
	EventStream
	// EventResult carries a result record no caller is waiting for: the result of a
	// SendRaw or abandoned command, or one that arrived with nothing in flight
	EventResult
	// EventTerminated is the last event; the channel is closed after it
	EventTerminated
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case EventNotification:
		return "notification"
	case EventStream:
		return "stream"
	case EventResult:
		return "result"
	case EventTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is delivered to subscribers in emission order
type Event struct {
	Kind   EventKind
	Record mi.Record
	// Command is the command a discarded EventResult belonged to, if known
	Command string
	// Err is the termination cause for EventTerminated
	Err error
}

// Response is the outcome of one command
type Response struct {
	Command string
	Record  mi.Record
	// Console is the console stream text gdb printed while the command was in flight
	Console string
}

// IsError reports whether gdb answered ^error
func (r *Response) IsError() bool {
	return r.Record.IsError()
}
