// Package debugger is the session API front ends drive: launch a program under
// gdb, control execution, inspect the stack, registers and memory, and receive
// events. It combines the gdb client, the breakpoint reconciler and the
// evaluation dispatcher for one debug session.
package debugger

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ctagard/gdb-bridge/internal/breakpoints"
	"github.com/ctagard/gdb-bridge/internal/errors"
	"github.com/ctagard/gdb-bridge/internal/eval"
	"github.com/ctagard/gdb-bridge/internal/gdb"
	"github.com/ctagard/gdb-bridge/internal/mi"
	"github.com/ctagard/gdb-bridge/pkg/types"
)

// recordTimeout bounds the "record full" command issued on the first stop
const recordTimeout = 10 * time.Second

var errNotStarted = stderrors.New("gdb is not running")

// LaunchFunc starts gdb with program loaded
type LaunchFunc func(ctx context.Context, opts gdb.Options, program string) (*gdb.Client, error)

// Options configures a Debugger
type Options struct {
	GDB gdb.Options
	// EntrySymbol is where stopOnEntry places its temporary breakpoint
	EntrySymbol string
	// Record enables process recording on the first stop so Reverse works
	Record bool
	// RegisterFormat is the format letter for register values
	RegisterFormat string
	// AllowRaw permits raw gdb commands through Evaluate
	AllowRaw bool
	// Mode is reported in permission errors
	Mode string
	// Launch replaces gdb.Start, mainly for tests
	Launch LaunchFunc
}

// Debugger is one debug session
type Debugger struct {
	opts Options

	breakpoints *breakpoints.Reconciler
	eval        *eval.Dispatcher

	mu            sync.Mutex
	client        *gdb.Client
	unsubscribe   func()
	loopDone      chan struct{}
	program       string
	status        types.SessionStatus
	pausing       bool
	recording     bool
	lastException *types.ExceptionInfo

	handlerMu sync.Mutex
	handler   func(Event)
	endOnce   sync.Once
}

// New creates a debugger. Nothing is spawned until Start.
func New(opts Options) *Debugger {
	if opts.EntrySymbol == "" {
		opts.EntrySymbol = "_start"
	}
	if opts.Launch == nil {
		opts.Launch = gdb.Start
	}

	d := &Debugger{
		opts:   opts,
		status: types.SessionStatusInitializing,
	}
	d.breakpoints = breakpoints.NewReconciler(d, d)
	d.eval = eval.NewDispatcher(d, eval.Options{
		RegisterFormat: opts.RegisterFormat,
		AllowRaw:       opts.AllowRaw,
		Mode:           opts.Mode,
	})
	return d
}

// SetEventHandler sets the function receiving session events. Calls are serialized.
func (d *Debugger) SetEventHandler(handler func(Event)) {
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()
	d.handler = handler
}

func (d *Debugger) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	d.handlerMu.Lock()
	defer d.handlerMu.Unlock()
	if d.handler != nil {
		d.handler(ev)
	}
}

func (d *Debugger) emitEnd() {
	d.endOnce.Do(func() {
		d.setStatus(types.SessionStatusTerminated)
		d.emit(Event{Type: EventEnd})
	})
}

// BreakpointChanged publishes reconciler updates as breakpointValidated events
func (d *Debugger) BreakpointChanged(bp types.Breakpoint) {
	d.emit(Event{Type: EventBreakpointValidated, Breakpoint: &bp})
}

// Send forwards a command to gdb
func (d *Debugger) Send(ctx context.Context, command string) (*gdb.Response, error) {
	c := d.currentClient()
	if c == nil {
		return nil, errors.SessionTerminated(errNotStarted)
	}
	return c.Send(ctx, command)
}

func (d *Debugger) sendRaw(ctx context.Context, command string) error {
	c := d.currentClient()
	if c == nil {
		return errors.SessionTerminated(errNotStarted)
	}
	return c.SendRaw(ctx, command)
}

func (d *Debugger) currentClient() *gdb.Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client
}

func (d *Debugger) setStatus(s types.SessionStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != types.SessionStatusTerminated {
		d.status = s
	}
}

// Start spawns gdb, loads program, sends the declared breakpoints and runs it.
// With stopOnEntry the program stops at the entry symbol.
func (d *Debugger) Start(ctx context.Context, program string, stopOnEntry bool, args []string) error {
	d.mu.Lock()
	if d.client != nil {
		d.mu.Unlock()
		return errors.CommandFailed("start", "session already started")
	}
	d.mu.Unlock()

	client, err := d.opts.Launch(ctx, d.opts.GDB, program)
	if err != nil {
		return err
	}

	events, unsubscribe := client.Subscribe()
	d.mu.Lock()
	d.client = client
	d.unsubscribe = unsubscribe
	d.program = program
	d.loopDone = make(chan struct{})
	d.mu.Unlock()
	go d.loop(events)

	if err := d.eval.Init(ctx); err != nil {
		log.Printf("Warning: failed to read register names: %v", err)
	}

	if err := d.breakpoints.CreateBreakpoints(ctx, ""); err != nil {
		return err
	}

	if stopOnEntry {
		resp, err := d.Send(ctx, "-break-insert -t "+mi.Quote(d.opts.EntrySymbol))
		if err != nil {
			return err
		}
		if resp.IsError() {
			log.Printf("Warning: no entry breakpoint at %s: %s", d.opts.EntrySymbol, resp.Record.ErrorMessage())
		}
	}

	if len(args) > 0 {
		resp, err := d.Send(ctx, "-exec-arguments "+programArguments(args))
		if err != nil {
			return err
		}
		if resp.IsError() {
			return errors.CommandFailed("-exec-arguments", resp.Record.ErrorMessage())
		}
	}

	d.setStatus(types.SessionStatusRunning)
	return d.sendRaw(ctx, "-exec-run")
}

// programArguments renders args for -exec-arguments. gdb joins the parameters and
// hands the result to a shell, so each argument is shell-quoted, then MI-quoted.
func programArguments(args []string) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = mi.Quote(shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\n'\"\\$`|&;<>()*?[]#~!{}") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Continue resumes the program
func (d *Debugger) Continue(ctx context.Context) error {
	return d.resume(ctx, "-exec-continue")
}

// Step runs to the next source line, stepping over calls
func (d *Debugger) Step(ctx context.Context) error {
	return d.resume(ctx, "-exec-next")
}

// StepIn runs to the next source line, entering calls
func (d *Debugger) StepIn(ctx context.Context) error {
	return d.resume(ctx, "-exec-step")
}

// StepOut runs until the current function returns
func (d *Debugger) StepOut(ctx context.Context) error {
	return d.resume(ctx, "-exec-finish")
}

// Reverse steps backwards one source line. It needs process recording.
func (d *Debugger) Reverse(ctx context.Context) error {
	return d.resume(ctx, "-exec-step --reverse")
}

func (d *Debugger) resume(ctx context.Context, command string) error {
	d.setStatus(types.SessionStatusRunning)
	return d.sendRaw(ctx, command)
}

// Pause interrupts the running program; a stopOnPause event follows
func (d *Debugger) Pause(ctx context.Context) error {
	d.mu.Lock()
	d.pausing = true
	d.mu.Unlock()

	resp, err := d.Send(ctx, "-exec-interrupt")
	if err != nil {
		return err
	}
	if resp.IsError() {
		d.mu.Lock()
		d.pausing = false
		d.mu.Unlock()
		return errors.CommandFailed("-exec-interrupt", resp.Record.ErrorMessage())
	}
	return nil
}

// Stack returns frames [startFrame, endFrame) and the total depth. An endFrame at
// or below startFrame means all frames from startFrame.
func (d *Debugger) Stack(ctx context.Context, startFrame, endFrame int) (types.StackTrace, error) {
	trace := types.StackTrace{Frames: []types.StackFrame{}}

	resp, err := d.Send(ctx, "-stack-info-depth")
	if err != nil {
		return trace, err
	}
	if resp.IsError() {
		return trace, errors.CommandFailed("-stack-info-depth", resp.Record.ErrorMessage())
	}
	trace.Count = resp.Record.Payload.Get("depth").IntOr(0)

	if startFrame < 0 {
		startFrame = 0
	}
	if endFrame <= startFrame || endFrame > trace.Count {
		endFrame = trace.Count
	}
	if startFrame >= endFrame {
		return trace, nil
	}

	cmd := fmt.Sprintf("-stack-list-frames %d %d", startFrame, endFrame-1)
	resp, err = d.Send(ctx, cmd)
	if err != nil {
		return trace, err
	}
	if resp.IsError() {
		return trace, errors.CommandFailed("-stack-list-frames", resp.Record.ErrorMessage())
	}

	for _, f := range resp.Record.Payload.Get("stack").Values() {
		trace.Frames = append(trace.Frames, frameFromMI(f))
	}
	return trace, nil
}

func frameFromMI(f mi.Value) types.StackFrame {
	file := f.Get("fullname").String()
	if file == "" {
		file = f.Get("file").String()
	}
	name := f.Get("func").String()
	if name == "" {
		name = "??"
	}
	return types.StackFrame{
		Index: f.Get("level").IntOr(0),
		Name:  name,
		File:  file,
		Line:  f.Get("line").IntOr(0),
		Addr:  f.Get("addr").String(),
	}
}

// SetBreakPoint declares a breakpoint; it is sent on Start or CreateBreakpoints
func (d *Debugger) SetBreakPoint(path string, line int) types.Breakpoint {
	return d.breakpoints.SetBreakPoint(path, line)
}

// CreateBreakpoints sends the declared breakpoints for path, or all when empty
func (d *Debugger) CreateBreakpoints(ctx context.Context, path string) error {
	if d.currentClient() == nil {
		return nil
	}
	return d.breakpoints.CreateBreakpoints(ctx, path)
}

// ClearBreakpoints removes the breakpoints in path and returns how many gdb
// breakpoints were deleted
func (d *Debugger) ClearBreakpoints(ctx context.Context, path string) (int, error) {
	return d.breakpoints.ClearBreakpoints(ctx, path)
}

// Breakpoints returns the breakpoints for path, or all when empty
func (d *Debugger) Breakpoints(path string) []types.Breakpoint {
	return d.breakpoints.Breakpoints(path)
}

// Evaluate runs a register read, memory read, expression or raw command
func (d *Debugger) Evaluate(ctx context.Context, expr string) (types.EvaluateResult, error) {
	return d.eval.Evaluate(ctx, expr)
}

// Registers reads the named registers, or all of them
func (d *Debugger) Registers(ctx context.Context, names []string) (map[string]string, error) {
	return d.eval.Registers(ctx, names)
}

// LastException returns the signal behind the most recent exception stop
func (d *Debugger) LastException() (types.ExceptionInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastException == nil {
		return types.ExceptionInfo{}, false
	}
	return *d.lastException, true
}

// Status returns the session status
func (d *Debugger) Status() types.SessionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Program returns the executable passed to Start
func (d *Debugger) Program() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.program
}

// PID returns gdb's process id, or 0
func (d *Debugger) PID() int {
	if c := d.currentClient(); c != nil {
		return c.PID()
	}
	return 0
}

// Version returns the detected gdb version, or ""
func (d *Debugger) Version() string {
	if c := d.currentClient(); c != nil && c.Version() != nil {
		return c.Version().String()
	}
	return ""
}

// Close stops gdb and waits for the event loop to drain
func (d *Debugger) Close() error {
	d.mu.Lock()
	c := d.client
	loopDone := d.loopDone
	d.mu.Unlock()

	if c == nil {
		d.setStatus(types.SessionStatusTerminated)
		return nil
	}

	err := c.Close()
	<-loopDone
	return err
}

// loop turns gdb events into session events until gdb terminates
func (d *Debugger) loop(events <-chan gdb.Event) {
	defer func() {
		d.emitEnd()
		close(d.loopDone)
	}()

	for ev := range events {
		switch ev.Kind {
		case gdb.EventStream:
			d.handleStream(ev.Record)

		case gdb.EventResult:
			if ev.Record.IsError() {
				d.emit(Event{Type: EventOutput, Category: CategoryStderr, Text: ev.Record.ErrorMessage() + "\n"})
			}

		case gdb.EventNotification:
			d.handleNotification(ev.Record)

		case gdb.EventTerminated:
			return
		}
	}
}

func (d *Debugger) handleStream(rec mi.Record) {
	switch rec.Channel {
	case mi.ChannelLog:
		d.emit(Event{Type: EventOutput, Category: CategoryConsole, Text: "(gdb) " + rec.Text})
	case mi.ChannelTarget:
		d.emit(Event{Type: EventOutput, Category: CategoryStdout, Text: rec.Text})
	case mi.ChannelRaw:
		d.emit(Event{Type: EventOutput, Category: CategoryStdout, Text: rec.Text + "\n"})
	default:
		d.emit(Event{Type: EventOutput, Category: CategoryConsole, Text: rec.Text})
	}
}

func (d *Debugger) handleNotification(rec mi.Record) {
	if d.breakpoints.HandleNotification(rec) {
		return
	}
	switch {
	case rec.IsNotification(mi.ClassStopped):
		d.handleStop(rec.Payload)
	case rec.IsNotification(mi.ClassRunning):
		d.setStatus(types.SessionStatusRunning)
	}
}

func (d *Debugger) handleStop(payload mi.Value) {
	reason := payload.Get("reason").String()
	if strings.HasPrefix(reason, "exited") {
		d.emitEnd()
		return
	}

	ev := Event{
		Reason:   reason,
		ThreadID: payload.Get("thread-id").IntOr(1),
	}
	if frame := payload.Get("frame"); !frame.IsZero() {
		f := frameFromMI(frame)
		ev.Frame = &f
	}

	d.mu.Lock()
	pausing := d.pausing
	d.pausing = false
	startRecording := d.opts.Record && !d.recording
	d.recording = true
	if d.status != types.SessionStatusTerminated {
		d.status = types.SessionStatusStopped
	}

	switch {
	case reason == "breakpoint-hit" || strings.HasPrefix(reason, "watchpoint"):
		ev.Type = EventStopOnBreakpoint
	case reason == "signal-received":
		signal := payload.Get("signal-name").String()
		if pausing && (signal == "SIGINT" || signal == "0") {
			ev.Type = EventStopOnPause
			break
		}
		ev.Type = EventStopOnException
		ev.Description = "Received signal"
		d.lastException = &types.ExceptionInfo{
			Signal:  signal,
			Meaning: payload.Get("signal-meaning").String(),
			Core:    payload.Get("core").String(),
		}
	case reason == "" && pausing:
		ev.Type = EventStopOnPause
	default:
		ev.Type = EventStopOnStep
	}
	d.mu.Unlock()

	d.emit(ev)

	if startRecording {
		go d.startRecording()
	}
}

// startRecording enables process recording; failures are reported as output
func (d *Debugger) startRecording() {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	resp, err := d.Send(ctx, "record full")
	if err != nil {
		log.Printf("Warning: failed to enable recording: %v", err)
		return
	}
	if resp.IsError() {
		d.emit(Event{Type: EventOutput, Category: CategoryStderr, Text: "recording unavailable: " + resp.Record.ErrorMessage() + "\n"})
	}
}
