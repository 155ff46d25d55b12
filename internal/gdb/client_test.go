package gdb

import (
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/gdb-bridge/internal/errors"
	"github.com/ctagard/gdb-bridge/internal/mi"
)

// echoScript answers every command with the command text and its arrival index
func echoScript() func(string) string {
	var n int
	return func(cmd string) string {
		i := n
		n++
		return fmt.Sprintf("^done,index=\"%d\",echo=%s\n(gdb) \n", i, mi.Quote(cmd))
	}
}

// TestSend_FIFOUnderConcurrentSenders verifies every caller receives the result of
// its own command and that results are consumed in write order.
func TestSend_FIFOUnderConcurrentSenders(t *testing.T) {
	c, f := newFakeGDB(t, echoScript())

	const senders, perSender = 8, 25
	type outcome struct {
		cmd   string
		index int
	}
	var (
		mu       sync.Mutex
		outcomes []outcome
		wg       sync.WaitGroup
	)
	ctx := context.Background()
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				cmd := fmt.Sprintf("-echo %d-%d", s, i)
				resp, err := c.Send(ctx, cmd)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, cmd, resp.Record.Payload.Get("echo").String())
				assert.Equal(t, cmd, resp.Command)

				mu.Lock()
				outcomes = append(outcomes, outcome{cmd: cmd, index: resp.Record.Payload.Get("index").IntOr(-1)})
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	received := f.commands()
	require.Len(t, received, senders*perSender)
	for _, o := range outcomes {
		require.GreaterOrEqual(t, o.index, 0)
		assert.Equal(t, received[o.index], o.cmd, "result %d went to the wrong caller", o.index)
	}
}

// TestSend_ErrorResult verifies ^error is a response, not a transport error
func TestSend_ErrorResult(t *testing.T) {
	c, _ := newFakeGDB(t, func(cmd string) string {
		return "^error,msg=\"Undefined command: \\\"bogus\\\".\"\n(gdb) \n"
	})

	resp, err := c.Send(context.Background(), "bogus")
	require.NoError(t, err)
	assert.True(t, resp.IsError())
	assert.Equal(t, `Undefined command: "bogus".`, resp.Record.ErrorMessage())
}

// TestSend_CapturesConsole verifies console text printed in flight is attached to
// the response and still published.
func TestSend_CapturesConsole(t *testing.T) {
	c, _ := newFakeGDB(t, func(cmd string) string {
		return "~\"$1 = 42\\n\"\n^done\n(gdb) \n"
	})
	events, cancel := c.Subscribe()
	defer cancel()

	resp, err := c.Send(context.Background(), "print 42")
	require.NoError(t, err)
	assert.Equal(t, "$1 = 42\n", resp.Console)

	ev := nextEvent(t, events, func(ev Event) bool { return ev.Kind == EventStream })
	assert.Equal(t, mi.ChannelConsole, ev.Record.Channel)
	assert.Equal(t, "$1 = 42\n", ev.Record.Text)
}

// TestSendQuiet_SuppressesStream verifies quiet commands keep their output private
func TestSendQuiet_SuppressesStream(t *testing.T) {
	c, _ := newFakeGDB(t, func(cmd string) string {
		switch cmd {
		case "-gdb-version":
			return "~\"GNU gdb (GDB) 14.2\\n\"\n&\"log line\\n\"\n@\"program\\n\"\n^done\n(gdb) \n"
		default:
			return "~\"marker\\n\"\n^done\n(gdb) \n"
		}
	})
	events, cancel := c.Subscribe()
	defer cancel()

	resp, err := c.SendQuiet(context.Background(), "-gdb-version")
	require.NoError(t, err)
	assert.Equal(t, "GNU gdb (GDB) 14.2\n", resp.Console)

	_, err = c.Send(context.Background(), "-marker")
	require.NoError(t, err)

	var seen []string
	nextEvent(t, events, func(ev Event) bool {
		if ev.Kind == EventStream {
			seen = append(seen, ev.Record.Text)
		}
		return ev.Kind == EventStream && ev.Record.Text == "marker\n"
	})
	assert.Equal(t, []string{"program\n", "marker\n"}, seen)
}

// TestSendRaw verifies a raw command occupies the slot and its result is published
func TestSendRaw(t *testing.T) {
	c, f := newFakeGDB(t, func(cmd string) string {
		switch cmd {
		case "-exec-continue":
			return "^running\n*running,thread-id=\"all\"\n(gdb) \n"
		default:
			return "^done,after=\"yes\"\n(gdb) \n"
		}
	})
	events, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.SendRaw(context.Background(), "-exec-continue"))

	resp, err := c.Send(context.Background(), "-next-command")
	require.NoError(t, err)
	assert.Equal(t, "yes", resp.Record.Payload.Get("after").String())

	ev := nextEvent(t, events, func(ev Event) bool { return ev.Kind == EventResult })
	assert.Equal(t, "-exec-continue", ev.Command)
	assert.Equal(t, mi.ResultRunning, ev.Record.Result())

	assert.Equal(t, []string{"-exec-continue", "-next-command"}, f.commands())
}

// TestNotifications verifies async records and program output reach subscribers in order
func TestNotifications(t *testing.T) {
	c, f := newFakeGDB(t, func(string) string { return "" })
	events, cancel := c.Subscribe()
	defer cancel()

	f.emit("Hello from the program\n")
	f.emit("*stopped,reason=\"breakpoint-hit\",bkptno=\"1\"\n")
	f.emit("=breakpoint-modified,bkpt={number=\"1\",line=\"12\"}\n(gdb) \n")

	ev := <-events
	assert.Equal(t, EventStream, ev.Kind)
	assert.Equal(t, mi.ChannelRaw, ev.Record.Channel)
	assert.Equal(t, "Hello from the program", ev.Record.Text)

	ev = <-events
	assert.Equal(t, EventNotification, ev.Kind)
	assert.True(t, ev.Record.IsNotification(mi.ClassStopped))

	ev = <-events
	assert.True(t, ev.Record.IsNotification(mi.ClassBreakpointModified))
	assert.Equal(t, 12, ev.Record.Payload.Path("bkpt", "line").IntOr(0))
}

// TestUnsolicitedResult verifies a stray result does not shift correlation
func TestUnsolicitedResult(t *testing.T) {
	c, f := newFakeGDB(t, echoScript())
	events, cancel := c.Subscribe()
	defer cancel()

	f.emit("^done,stray=\"1\"\n")
	ev := nextEvent(t, events, func(ev Event) bool { return ev.Kind == EventResult })
	assert.Equal(t, "1", ev.Record.Payload.Get("stray").String())
	assert.Empty(t, ev.Command)

	resp, err := c.Send(context.Background(), "-mine")
	require.NoError(t, err)
	assert.Equal(t, "-mine", resp.Record.Payload.Get("echo").String())
}

// TestSend_CancelledKeepsSlot verifies a cancelled caller is released while the
// command keeps the slot until gdb answers it.
func TestSend_CancelledKeepsSlot(t *testing.T) {
	c, f := newFakeGDB(t, func(cmd string) string {
		if cmd == "-slow" {
			return ""
		}
		return "^done,which=\"fast\"\n(gdb) \n"
	})
	events, cancel := c.Subscribe()
	defer cancel()

	ctx, cancelCtx := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelCtx()
	_, err := c.Send(ctx, "-slow")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	type result struct {
		resp *Response
		err  error
	}
	next := make(chan result, 1)
	go func() {
		resp, err := c.Send(context.Background(), "-fast")
		next <- result{resp, err}
	}()

	select {
	case <-next:
		t.Fatal("second command was sent while the first was still in flight")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, []string{"-slow"}, f.commands())

	f.emit("^done,which=\"slow\"\n(gdb) \n")

	ev := nextEvent(t, events, func(ev Event) bool { return ev.Kind == EventResult })
	assert.Equal(t, "-slow", ev.Command)
	assert.Equal(t, "slow", ev.Record.Payload.Get("which").String())

	r := <-next
	require.NoError(t, r.err)
	assert.Equal(t, "fast", r.resp.Record.Payload.Get("which").String())
}

// TestSend_CancelledResultPublishedOnce verifies a result that races with its
// caller giving up is either returned or published, never dropped or doubled.
func TestSend_CancelledResultPublishedOnce(t *testing.T) {
	c, f := newFakeGDB(t, func(cmd string) string {
		time.Sleep(time.Millisecond)
		return fmt.Sprintf("^done,echo=%s\n(gdb) \n", mi.Quote(cmd))
	})
	events, cancel := c.Subscribe()
	defer cancel()

	var (
		mu        sync.Mutex
		published = map[string]int{}
	)
	go func() {
		for ev := range events {
			if ev.Kind == EventResult {
				mu.Lock()
				published[ev.Command]++
				mu.Unlock()
			}
		}
	}()

	const n = 100
	returned := map[string]bool{}
	for i := 0; i < n; i++ {
		cmd := fmt.Sprintf("-race %d", i)
		ctx, cancelCtx := context.WithTimeout(context.Background(), time.Millisecond)
		resp, err := c.Send(ctx, cmd)
		cancelCtx()
		if err == nil {
			assert.Equal(t, cmd, resp.Record.Payload.Get("echo").String())
			returned[cmd] = true
		}
	}
	_, err := c.Send(context.Background(), "-sync")
	require.NoError(t, err)

	// a caller may give up before its command is written; only written ones count
	written := len(f.commands()) - 1
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published)+len(returned) == written
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for cmd, count := range published {
		assert.Equal(t, 1, count, "%s published more than once", cmd)
		assert.False(t, returned[cmd], "%s both returned and published", cmd)
	}
}

// TestSend_OutputGluedToResult verifies a result that follows program output on
// the same line still completes its command and frees the slot.
func TestSend_OutputGluedToResult(t *testing.T) {
	c, _ := newFakeGDB(t, func(cmd string) string {
		if cmd == "-first" {
			return "progress 42%^done,value=\"1\"\n(gdb) \n"
		}
		return "^done,value=\"2\"\n(gdb) \n"
	})
	events, cancel := c.Subscribe()
	defer cancel()

	ctx, cancelCtx := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelCtx()

	resp, err := c.Send(ctx, "-first")
	require.NoError(t, err)
	assert.Equal(t, "1", resp.Record.Payload.Get("value").String())

	ev := nextEvent(t, events, func(ev Event) bool { return ev.Kind == EventStream })
	assert.Equal(t, mi.ChannelRaw, ev.Record.Channel)
	assert.Equal(t, "progress 42%", ev.Record.Text)

	resp, err = c.Send(ctx, "-second")
	require.NoError(t, err)
	assert.Equal(t, "2", resp.Record.Payload.Get("value").String())
}

// TestSend_StopGluedToOutput verifies a stop notification is not lost in program output
func TestSend_StopGluedToOutput(t *testing.T) {
	c, f := newFakeGDB(t, echoScript())
	events, cancel := c.Subscribe()
	defer cancel()

	f.emit("Enter a number: *stopped,reason=\"breakpoint-hit\",bkptno=\"1\",thread-id=\"1\"\n(gdb) \n")

	ev := nextEvent(t, events, func(ev Event) bool { return ev.Kind == EventNotification })
	assert.Equal(t, mi.ClassStopped, ev.Record.Class)
	assert.Equal(t, "breakpoint-hit", ev.Record.Payload.Get("reason").String())
}

// TestTermination verifies an outstanding Send fails with SessionTerminated and
// later calls fail without writing.
func TestTermination(t *testing.T) {
	c, f := newFakeGDB(t, func(string) string { return "" })
	events, cancel := c.Subscribe()
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "-never-answered")
		errCh <- err
	}()

	require.Eventually(t, func() bool { return len(f.commands()) == 1 }, 2*time.Second, 5*time.Millisecond)
	f.crash()

	select {
	case err := <-errCh:
		assert.True(t, stderrors.Is(err, errors.ErrSessionTerminated))
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after termination")
	}

	_, err := c.Send(context.Background(), "-after")
	assert.True(t, errors.HasCode(err, errors.CodeSessionTerminated))
	assert.True(t, errors.HasCode(c.SendRaw(context.Background(), "-after-raw"), errors.CodeSessionTerminated))
	assert.Equal(t, []string{"-never-answered"}, f.commands())

	ev := nextEvent(t, events, func(ev Event) bool { return ev.Kind == EventTerminated })
	assert.True(t, errors.HasCode(ev.Err, errors.CodeSessionTerminated))
	_, open := <-events
	assert.False(t, open, "channel must close after EventTerminated")

	// late subscribers still learn about the termination
	late, lateCancel := c.Subscribe()
	defer lateCancel()
	ev = <-late
	assert.Equal(t, EventTerminated, ev.Kind)
}

// TestClose verifies Close asks gdb to exit and unblocks everything
func TestClose(t *testing.T) {
	c, f := newFakeGDB(t, echoScript())
	events, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.Close())
	assert.Equal(t, []string{"-gdb-exit"}, f.commands())

	ev := nextEvent(t, events, func(ev Event) bool { return ev.Kind == EventTerminated })
	assert.Equal(t, EventTerminated, ev.Kind)
	assert.Error(t, c.Err())

	_, err := c.Send(context.Background(), "-late")
	assert.True(t, errors.HasCode(err, errors.CodeSessionTerminated))
}

// TestClose_OutstandingSend verifies a command still waiting when Close runs fails
// with SessionTerminated instead of receiving the ^exit acknowledgement.
func TestClose_OutstandingSend(t *testing.T) {
	c, f := newFakeGDB(t, func(string) string { return "" })

	errCh := make(chan error, 1)
	respCh := make(chan *Response, 1)
	go func() {
		resp, err := c.Send(context.Background(), "-hang")
		respCh <- resp
		errCh <- err
	}()
	require.Eventually(t, func() bool { return len(f.commands()) == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	assert.Equal(t, []string{"-hang", "-gdb-exit"}, f.commands())

	select {
	case err := <-errCh:
		assert.True(t, errors.HasCode(err, errors.CodeSessionTerminated), "got %v", err)
		assert.Nil(t, <-respCh)
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after Close")
	}
}

func TestTransport_RejectsLineBreaks(t *testing.T) {
	c, f := newFakeGDB(t, echoScript())
	_, err := c.Send(context.Background(), "-one\n-two")
	assert.True(t, errors.HasCode(err, errors.CodeInvalidParameter))
	assert.Empty(t, f.commands())

	// the session is unaffected
	resp, err := c.Send(context.Background(), "-one")
	require.NoError(t, err)
	assert.Equal(t, "-one", resp.Record.Payload.Get("echo").String())
}

// TestStart_MissingBinary verifies a missing gdb is a spawn error
func TestStart_MissingBinary(t *testing.T) {
	_, err := Start(context.Background(), Options{Path: "/nonexistent/gdb-bridge-test/gdb"}, "a.out")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSpawnFailed))
}

// TestStart_ImmediateExit verifies a debugger that exits at once is a spawn error
func TestStart_ImmediateExit(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	_, err := Start(context.Background(), Options{Path: "false", StartupTimeout: 5 * time.Second}, "a.out")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSpawnFailed))
}

// TestStart_RealGDB runs against an installed gdb when one is available
func TestStart_RealGDB(t *testing.T) {
	if _, err := exec.LookPath("gdb"); err != nil {
		t.Skip("gdb not installed")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	c, err := Start(ctx, Options{}, "")
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Version())
	assert.Greater(t, c.PID(), 0)

	resp, err := c.Send(ctx, "-data-evaluate-expression "+mi.Quote("1 + 2"))
	require.NoError(t, err)
	assert.Equal(t, "3", resp.Record.Payload.Get("value").String())

	_, err = Start(ctx, Options{}, "/nonexistent/program")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "/nonexistent/program"))
}
