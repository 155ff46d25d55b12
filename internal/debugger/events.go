package debugger

import (
	"path/filepath"
	"time"

	"github.com/google/go-dap"

	"github.com/ctagard/gdb-bridge/pkg/types"
)

// EventType names what happened in a debug session
type EventType string

const (
	EventOutput              EventType = "outputRaw"
	EventBreakpointValidated EventType = "breakpointValidated"
	EventStopOnBreakpoint    EventType = "stopOnBreakpoint"
	EventStopOnStep          EventType = "stopOnStep"
	EventStopOnException     EventType = "stopOnException"
	EventStopOnPause         EventType = "stopOnPause"
	EventEnd                 EventType = "end"
)

// Output categories, as used by DAP output events
const (
	CategoryConsole = "console"
	CategoryStdout  = "stdout"
	CategoryStderr  = "stderr"
)

// Event is delivered to the session's event handler
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`

	// outputRaw
	Text     string `json:"text,omitempty"`
	Category string `json:"category,omitempty"`

	// breakpointValidated
	Breakpoint *types.Breakpoint `json:"breakpoint,omitempty"`

	// stopOn*
	Reason      string            `json:"reason,omitempty"`
	Description string            `json:"description,omitempty"`
	ThreadID    int               `json:"threadId,omitempty"`
	Frame       *types.StackFrame `json:"frame,omitempty"`
}

// IsStop reports whether the event means execution stopped
func (e Event) IsStop() bool {
	switch e.Type {
	case EventStopOnBreakpoint, EventStopOnStep, EventStopOnException, EventStopOnPause:
		return true
	}
	return false
}

// DAP converts the event to the Debug Adapter Protocol message a front end
// expects for it
func (e Event) DAP(seq int) dap.Message {
	base := dap.Event{ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "event"}}

	switch e.Type {
	case EventOutput:
		base.Event = "output"
		return &dap.OutputEvent{
			Event: base,
			Body:  dap.OutputEventBody{Category: e.Category, Output: e.Text},
		}

	case EventBreakpointValidated:
		base.Event = "breakpoint"
		body := dap.BreakpointEventBody{Reason: "changed"}
		if bp := e.Breakpoint; bp != nil {
			if bp.State == types.BreakpointRejected {
				body.Reason = "removed"
			}
			body.Breakpoint = dap.Breakpoint{
				Id:       bp.ID,
				Verified: bp.Verified,
				Message:  bp.Message,
				Line:     bp.Line,
				Source:   &dap.Source{Name: filepath.Base(bp.Path), Path: bp.Path},
			}
		}
		return &dap.BreakpointEvent{Event: base, Body: body}

	case EventStopOnBreakpoint, EventStopOnStep, EventStopOnException, EventStopOnPause:
		base.Event = "stopped"
		return &dap.StoppedEvent{
			Event: base,
			Body: dap.StoppedEventBody{
				Reason:            stopReason(e.Type),
				Description:       e.Description,
				Text:              e.Reason,
				ThreadId:          e.ThreadID,
				AllThreadsStopped: true,
			},
		}

	default:
		base.Event = "terminated"
		return &dap.TerminatedEvent{Event: base}
	}
}

func stopReason(t EventType) string {
	switch t {
	case EventStopOnBreakpoint:
		return "breakpoint"
	case EventStopOnException:
		return "exception"
	case EventStopOnPause:
		return "pause"
	default:
		return "step"
	}
}

// FrameToDAP converts a stack frame to its DAP form
func FrameToDAP(f types.StackFrame) dap.StackFrame {
	frame := dap.StackFrame{
		Id:   f.Index,
		Name: f.Name,
		Line: f.Line,
	}
	if f.File != "" {
		frame.Source = &dap.Source{Name: filepath.Base(f.File), Path: f.File}
	}
	if f.Addr != "" {
		frame.InstructionPointerReference = f.Addr
	}
	return frame
}
