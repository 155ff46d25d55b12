package debugger

import (
	"bufio"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ctagard/gdb-bridge/internal/gdb"
)

const (
	fiveSeconds = 5 * time.Second
	tick        = 5 * time.Millisecond
)

// fakeGDB answers commands by script; commands missing from the script get ^done
type fakeGDB struct {
	out *io.PipeWriter

	mu       sync.Mutex
	received []string
	script   map[string]string
}

func (f *fakeGDB) serve(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := scanner.Text()
		f.mu.Lock()
		f.received = append(f.received, cmd)
		reply, ok := f.script[cmd]
		f.mu.Unlock()

		if cmd == "-gdb-exit" {
			f.out.Write([]byte("^exit\n"))
			f.out.Close()
			return
		}
		if !ok {
			reply = "^done\n"
		}
		f.out.Write([]byte(reply))
	}
}

func (f *fakeGDB) emit(text string) {
	f.out.Write([]byte(text))
}

func (f *fakeGDB) crash() {
	f.out.CloseWithError(io.ErrClosedPipe)
}

func (f *fakeGDB) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

func (f *fakeGDB) sent(cmd string) bool {
	for _, c := range f.commands() {
		if c == cmd {
			return true
		}
	}
	return false
}

// launchFake returns a LaunchFunc that connects to f instead of spawning gdb
func launchFake(f *fakeGDB) LaunchFunc {
	return func(ctx context.Context, opts gdb.Options, program string) (*gdb.Client, error) {
		cmdR, cmdW := io.Pipe()
		outR, outW := io.Pipe()
		f.out = outW
		go f.serve(cmdR)
		return gdb.NewClient(gdb.NewStdioTransport(cmdW, outR), nil), nil
	}
}

// eventLog collects debugger events
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// wait returns the first event of type t, failing after a timeout
func (l *eventLog) wait(t *testing.T, typ EventType) Event {
	t.Helper()
	var found Event
	require.Eventually(t, func() bool {
		for _, ev := range l.all() {
			if ev.Type == typ {
				found = ev
				return true
			}
		}
		return false
	}, fiveSeconds, tick, "no %s event", typ)
	return found
}

func (l *eventLog) count(typ EventType) int {
	n := 0
	for _, ev := range l.all() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func baseScript() map[string]string {
	return map[string]string{
		"-data-list-register-names": "^done,register-names=[\"rax\",\"rbx\",\"rip\"]\n",
		"-exec-run":                 "^running\n*running,thread-id=\"all\"\n(gdb)\n",
	}
}

// startDebugger starts a debugger on a fake gdb with script merged over baseScript
func startDebugger(t *testing.T, script map[string]string, opts Options) (*Debugger, *fakeGDB, *eventLog) {
	t.Helper()

	merged := baseScript()
	for k, v := range script {
		merged[k] = v
	}
	f := &fakeGDB{script: merged}
	opts.Launch = launchFake(f)

	d := New(opts)
	log := &eventLog{}
	d.SetEventHandler(log.add)
	require.NoError(t, d.Start(context.Background(), "/src/prog", false, nil))
	t.Cleanup(func() { d.Close() })
	return d, f, log
}
