package gdb

import (
	"bufio"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeGDB answers commands written by a Client according to a script
type fakeGDB struct {
	out *io.PipeWriter

	mu       sync.Mutex
	received []string
	script   func(cmd string) string
}

// newFakeGDB returns a client wired to a fake whose replies come from script.
// script returns the raw output to write for a command ("" for none).
func newFakeGDB(t *testing.T, script func(cmd string) string) (*Client, *fakeGDB) {
	t.Helper()

	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()

	f := &fakeGDB{out: outW, script: script}
	go f.serve(cmdR)

	c := NewClient(NewStdioTransport(cmdW, outR), nil)
	t.Cleanup(func() { c.Close() })
	return c, f
}

func (f *fakeGDB) serve(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := scanner.Text()
		f.mu.Lock()
		f.received = append(f.received, cmd)
		script := f.script
		f.mu.Unlock()

		if cmd == "-gdb-exit" {
			f.out.Write([]byte("^exit\n"))
			f.out.Close()
			return
		}
		if reply := script(cmd); reply != "" {
			f.out.Write([]byte(reply))
		}
	}
}

// emit writes unprompted output
func (f *fakeGDB) emit(text string) {
	f.out.Write([]byte(text))
}

// crash closes gdb's stdout as if the process died
func (f *fakeGDB) crash() {
	f.out.CloseWithError(io.ErrClosedPipe)
}

func (f *fakeGDB) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

// nextEvent waits for the first event satisfying match
func nextEvent(t *testing.T, events <-chan Event, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed")
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return Event{}
		}
	}
}
