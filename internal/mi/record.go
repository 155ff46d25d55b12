package mi

import "fmt"

// RecordKind is the top-level classification of an output line
type RecordKind int

const (
	RecordStream RecordKind = iota
	RecordAsync
	RecordResult
)

// String returns the record kind name
func (k RecordKind) String() string {
	switch k {
	case RecordStream:
		return "stream"
	case RecordAsync:
		return "async"
	case RecordResult:
		return "result"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Channel identifies where stream text came from
type Channel string

const (
	ChannelConsole Channel = "console" // ~"..."
	ChannelTarget  Channel = "target"  // @"..."
	ChannelLog     Channel = "log"     // &"..."
	// ChannelRaw carries lines outside the MI grammar: inferior program output
	// and lines that looked like records but failed to parse.
	ChannelRaw Channel = "raw"
)

// AsyncClass identifies the async record prefix
type AsyncClass string

const (
	AsyncExec   AsyncClass = "exec"   // *
	AsyncStatus AsyncClass = "status" // +
	AsyncNotify AsyncClass = "notify" // =
)

// ResultClass is the outcome of a command
type ResultClass string

const (
	ResultDone      ResultClass = "done"
	ResultRunning   ResultClass = "running"
	ResultConnected ResultClass = "connected"
	ResultError     ResultClass = "error"
	ResultExit      ResultClass = "exit"
)

// Notification classes the bridge reacts to
const (
	ClassStopped            = "stopped"
	ClassRunning            = "running"
	ClassBreakpointCreated  = "breakpoint-created"
	ClassBreakpointModified = "breakpoint-modified"
	ClassBreakpointDeleted  = "breakpoint-deleted"
)

// Record is one parsed line of MI output.
//
// Stream records use Channel and Text. Async records use Async, Class and Payload.
// Result records use Class and Payload; Class holds the ResultClass text.
type Record struct {
	Kind    RecordKind
	Token   string
	Channel Channel
	Text    string
	Async   AsyncClass
	Class   string
	Payload Value

	// ParseErr is set when a line that looked like a record was degraded to raw text
	ParseErr error
}

// Result returns the result class of a result record
func (r Record) Result() ResultClass {
	if r.Kind != RecordResult {
		return ""
	}
	return ResultClass(r.Class)
}

// IsError reports whether this is an ^error result record
func (r Record) IsError() bool {
	return r.Kind == RecordResult && r.Class == string(ResultError)
}

// ErrorMessage returns the msg field of an ^error record
func (r Record) ErrorMessage() string {
	return r.Payload.Get("msg").String()
}

// IsNotification reports whether this is an async record of the given class
func (r Record) IsNotification(class string) bool {
	return r.Kind == RecordAsync && r.Class == class
}

// String renders a compact description, mainly for logs
func (r Record) String() string {
	switch r.Kind {
	case RecordStream:
		return fmt.Sprintf("%s %q", r.Channel, r.Text)
	case RecordAsync:
		return fmt.Sprintf("%s %s %s", r.Async, r.Class, r.Payload.Encode())
	case RecordResult:
		return fmt.Sprintf("^%s %s", r.Class, r.Payload.Encode())
	default:
		return "?"
	}
}
