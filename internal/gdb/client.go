package gdb

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ctagard/gdb-bridge/internal/errors"
	"github.com/ctagard/gdb-bridge/internal/mi"
)

const (
	readBufferSize = 32 * 1024
	// closeGracePeriod is how long Close waits for -gdb-exit before killing
	closeGracePeriod = 2 * time.Second
)

// pending is the command currently in flight
type pending struct {
	command string
	quiet   bool
	raw     bool

	console strings.Builder
	resp    chan Response
	// abandoned is guarded by Client.mu; once set, the result is published instead
	abandoned bool
}

// correlated pairs a result record with the command it belongs to (nil if none)
type correlated struct {
	rec mi.Record
	cmd *pending
}

// Client owns one gdb process and correlates commands with results
type Client struct {
	transport *Transport
	stderr    io.Reader

	// gate holds a token while a command is in flight
	gate chan struct{}

	mu       sync.Mutex
	inflight *pending
	subs     map[int]*mailbox
	nextSub  int
	termErr  error

	results chan correlated
	notes   chan mi.Record

	prompt     chan struct{}
	promptOnce sync.Once
	done       chan struct{}
	doneOnce   sync.Once
	closeOnce  sync.Once
	exiting    atomic.Bool

	group *errgroup.Group

	// set by Start
	proc    *exec.Cmd
	exited  chan struct{}
	version *semver.Version
}

// NewClient starts the reader goroutines over an established transport.
// stderr may be nil.
func NewClient(transport *Transport, stderr io.Reader) *Client {
	c := newClient(transport, stderr)
	c.run()
	return c
}

func newClient(transport *Transport, stderr io.Reader) *Client {
	return &Client{
		transport: transport,
		stderr:    stderr,
		gate:      make(chan struct{}, 1),
		subs:      make(map[int]*mailbox),
		results:   make(chan correlated, 16),
		notes:     make(chan mi.Record, 256),
		prompt:    make(chan struct{}),
		done:      make(chan struct{}),
		group:     &errgroup.Group{},
	}
}

func (c *Client) run() {
	c.group.Go(c.readLoop)
	c.group.Go(c.correlateLoop)
	c.group.Go(c.notifyLoop)
	if c.stderr != nil {
		c.group.Go(c.stderrLoop)
	}
	if c.proc != nil {
		c.group.Go(c.waitLoop)
	}
}

// Send issues command and waits for its result record. A ^error result is returned
// as a Response, not an error; errors are reserved for transport failure and ctx.
//
// If ctx is done before the result arrives, Send returns ctx.Err() but the command
// keeps the in-flight slot until gdb answers it.
func (c *Client) Send(ctx context.Context, command string) (*Response, error) {
	return c.send(ctx, &pending{command: command})
}

// SendQuiet is Send, except console and log text printed while the command is in
// flight is only captured in the Response, never published to subscribers.
func (c *Client) SendQuiet(ctx context.Context, command string) (*Response, error) {
	return c.send(ctx, &pending{command: command, quiet: true})
}

// SendRaw writes command without waiting for its result. The command still occupies
// the in-flight slot until its result arrives, which is then published as an
// EventResult. Use it for resuming execution, where notifications matter more
// than the ^running acknowledgement.
func (c *Client) SendRaw(ctx context.Context, command string) error {
	_, err := c.send(ctx, &pending{command: command, raw: true})
	return err
}

func (c *Client) send(ctx context.Context, p *pending) (*Response, error) {
	if err := c.terminated(); err != nil {
		return nil, err
	}
	if strings.ContainsAny(p.command, "\r\n") {
		return nil, errors.InvalidParameter("command", p.command, "a single line")
	}

	select {
	case c.gate <- struct{}{}:
	case <-c.done:
		return nil, c.terminated()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := c.terminated(); err != nil {
		c.release()
		return nil, err
	}

	p.resp = make(chan Response, 1)
	c.mu.Lock()
	c.inflight = p
	p.abandoned = c.exiting.Load()
	c.mu.Unlock()

	if err := c.transport.WriteLine(p.command); err != nil {
		c.mu.Lock()
		if c.inflight == p {
			c.inflight = nil
		}
		c.mu.Unlock()
		c.release()
		return nil, errors.SessionTerminated(err)
	}

	if p.raw {
		return nil, nil
	}

	select {
	case r := <-p.resp:
		return &r, nil
	case <-c.done:
		select {
		case r := <-p.resp:
			return &r, nil
		default:
		}
		return nil, c.terminated()
	case <-ctx.Done():
		c.mu.Lock()
		defer c.mu.Unlock()
		select {
		case r := <-p.resp:
			return &r, nil
		default:
		}
		p.abandoned = true
		return nil, ctx.Err()
	}
}

// release frees the in-flight slot if it is held
func (c *Client) release() {
	select {
	case <-c.gate:
	default:
	}
}

// terminated returns the SessionTerminated error once the session is over
func (c *Client) terminated() error {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return errors.SessionTerminated(c.termErr)
	default:
		return nil
	}
}

// Done is closed once the session has terminated
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the termination error, or nil while the session is alive
func (c *Client) Err() error {
	return c.terminated()
}

// Subscribe returns a channel of events in emission order and a function that
// unsubscribes. The channel is closed after EventTerminated or on unsubscribe.
func (c *Client) Subscribe() (<-chan Event, func()) {
	m := newMailbox()

	c.mu.Lock()
	select {
	case <-c.done:
		cause := c.termErr
		c.mu.Unlock()
		m.put(Event{Kind: EventTerminated, Err: errors.SessionTerminated(cause)})
		m.close()
		return m.out, m.cancel
	default:
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = m
	c.mu.Unlock()

	return m.out, func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		m.cancel()
	}
}

func (c *Client) publish(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.subs {
		m.put(ev)
	}
}

// readLoop is the only reader of gdb's stdout. It frames records, attributes
// console text to the in-flight command and routes each record to exactly one
// consumer.
func (c *Client) readLoop() error {
	defer close(c.notes)
	defer close(c.results)

	dec := mi.NewDecoder()
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.transport.Read(buf)
		if n > 0 {
			records, prompts := dec.Feed(buf[:n])
			c.dispatch(records)
			if prompts > 0 {
				c.promptOnce.Do(func() { close(c.prompt) })
			}
		}
		if err != nil {
			c.dispatch(dec.Flush())
			c.mu.Lock()
			if c.termErr == nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				c.termErr = err
			}
			c.mu.Unlock()
			return nil
		}
	}
}

func (c *Client) dispatch(records []mi.Record) {
	for _, rec := range records {
		switch rec.Kind {
		case mi.RecordResult:
			c.mu.Lock()
			p := c.inflight
			c.inflight = nil
			c.mu.Unlock()
			c.results <- correlated{rec: rec, cmd: p}

		case mi.RecordStream:
			if rec.ParseErr != nil {
				log.Printf("Warning: %v", errors.ProtocolParse(rec.Text, rec.ParseErr))
			}
			quiet := false
			c.mu.Lock()
			if p := c.inflight; p != nil {
				if rec.Channel == mi.ChannelConsole {
					p.console.WriteString(rec.Text)
				}
				quiet = p.quiet && (rec.Channel == mi.ChannelConsole || rec.Channel == mi.ChannelLog)
			}
			c.mu.Unlock()
			if !quiet {
				c.notes <- rec
			}

		default:
			c.notes <- rec
		}
	}
}

// correlateLoop hands each result record to the command it belongs to, exactly once
func (c *Client) correlateLoop() error {
	for item := range c.results {
		p := item.cmd
		if p == nil {
			if !c.exiting.Load() {
				log.Printf("Warning: unsolicited gdb result with no command in flight: %s", item.rec)
			}
			c.publish(Event{Kind: EventResult, Record: item.rec})
			continue
		}

		// resp has room for the one result, so the hand-off never blocks under mu
		c.mu.Lock()
		delivered := !p.raw && !p.abandoned
		if delivered {
			p.resp <- Response{Command: p.command, Record: item.rec, Console: p.console.String()}
		}
		c.mu.Unlock()

		if !delivered {
			c.publish(Event{Kind: EventResult, Record: item.rec, Command: p.command})
		}
		c.release()
	}

	c.doneOnce.Do(func() { close(c.done) })
	return nil
}

// notifyLoop publishes async and stream records in the order gdb emitted them.
// EventTerminated is published last, once every result has been correlated.
func (c *Client) notifyLoop() error {
	for rec := range c.notes {
		kind := EventNotification
		if rec.Kind == mi.RecordStream {
			kind = EventStream
		}
		c.publish(Event{Kind: kind, Record: rec})
	}

	<-c.done

	c.mu.Lock()
	ev := Event{Kind: EventTerminated, Err: errors.SessionTerminated(c.termErr)}
	subs := c.subs
	c.subs = make(map[int]*mailbox)
	c.mu.Unlock()

	for _, m := range subs {
		m.put(ev)
		m.close()
	}
	return nil
}

// stderrLoop publishes gdb's stderr as raw stream text, one event per line
func (c *Client) stderrLoop() error {
	scanner := bufio.NewScanner(c.stderr)
	scanner.Buffer(make([]byte, 4096), readBufferSize)
	for scanner.Scan() {
		c.publish(Event{Kind: EventStream, Record: mi.Record{
			Kind:    mi.RecordStream,
			Channel: mi.ChannelRaw,
			Text:    strings.TrimRight(scanner.Text(), "\r"),
		}})
	}
	return nil
}

// waitLoop reaps gdb. The debugged program may inherit gdb's stdout and keep it
// open, so the read end is closed here to guarantee termination.
func (c *Client) waitLoop() error {
	err := c.proc.Wait()

	c.mu.Lock()
	if c.termErr == nil {
		if err != nil {
			c.termErr = fmt.Errorf("gdb exited: %w", err)
		} else {
			c.termErr = stderrors.New("gdb exited")
		}
	}
	c.mu.Unlock()
	close(c.exited)

	select {
	case <-c.done:
	case <-time.After(200 * time.Millisecond):
	}
	if cerr := c.transport.Close(); cerr != nil {
		log.Printf("Warning: closing gdb pipes: %v", cerr)
	}
	if closer, ok := c.stderr.(io.Closer); ok {
		closer.Close()
	}
	return nil
}

// Version returns the gdb version detected at start, or nil
func (c *Client) Version() *semver.Version {
	return c.version
}

// PID returns the gdb process id, or 0 when the client was built over a bare transport
func (c *Client) PID() int {
	if c.proc == nil || c.proc.Process == nil {
		return 0
	}
	return c.proc.Process.Pid
}

// Close asks gdb to exit, kills its process group if it does not, and waits for
// all goroutines to finish.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.exiting.Store(true)
		if c.terminated() == nil {
			// gdb answers -gdb-exit with ^exit, which must not reach a waiting caller
			c.mu.Lock()
			if p := c.inflight; p != nil {
				p.abandoned = true
			}
			c.mu.Unlock()
			if werr := c.transport.WriteLine("-gdb-exit"); werr != nil {
				log.Printf("Warning: failed to send -gdb-exit: %v", werr)
			}
		}

		if c.proc != nil {
			select {
			case <-c.exited:
			case <-time.After(closeGracePeriod):
			}
			if kerr := killProcessGroup(c.PID(), c.proc); kerr != nil {
				log.Printf("Warning: failed to kill gdb process group: %v", kerr)
			}
		} else {
			select {
			case <-c.done:
			case <-time.After(closeGracePeriod):
			}
		}

		if cerr := c.transport.Close(); cerr != nil && c.terminated() == nil {
			err = cerr
		}
		if closer, ok := c.stderr.(io.Closer); ok {
			closer.Close()
		}
		c.group.Wait()
	})
	return err
}
