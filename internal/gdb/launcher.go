package gdb

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/ctagard/gdb-bridge/internal/errors"
	"github.com/ctagard/gdb-bridge/internal/mi"
	"github.com/ctagard/gdb-bridge/internal/version"
)

// Options controls how gdb is spawned
type Options struct {
	// Path is the gdb binary; "gdb" when empty
	Path string
	// Args are extra arguments placed after the interpreter flags
	Args []string
	// StartupTimeout bounds the wait for gdb's first prompt
	StartupTimeout time.Duration
	// MinVersion is the oldest gdb accepted without a warning
	MinVersion string
	// Dir is the working directory for gdb and the debugged program
	Dir string
}

const defaultStartupTimeout = 10 * time.Second

// Start spawns gdb in its own process group, waits for its first prompt and
// loads executablePath. An empty executablePath skips loading.
func Start(ctx context.Context, opts Options, executablePath string) (*Client, error) {
	path := opts.Path
	if path == "" {
		path = "gdb"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, errors.SpawnFailed(executablePath, err).WithDetails("gdb", path)
	}

	args := append([]string{"--interpreter=mi2", "-q", "-nx"}, opts.Args...)
	cmd := exec.Command(resolved, args...)
	cmd.Dir = opts.Dir
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.SpawnFailed(executablePath, err)
	}
	// os.Pipe instead of StdoutPipe: Wait must not close the read end under the reader
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, errors.SpawnFailed(executablePath, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, errors.SpawnFailed(executablePath, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, errors.SpawnFailed(executablePath, err).WithDetails("gdb", resolved)
	}
	// the child holds its own copies
	stdoutW.Close()
	stderrW.Close()

	c := newClient(NewStdioTransport(stdin, stdoutR), stderrR)
	c.proc = cmd
	c.exited = make(chan struct{})
	c.run()

	fail := func(cause error) (*Client, error) {
		c.Close()
		return nil, errors.SpawnFailed(executablePath, cause).WithDetails("gdb", resolved)
	}

	timeout := opts.StartupTimeout
	if timeout <= 0 {
		timeout = defaultStartupTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.prompt:
	case <-c.done:
		return fail(fmt.Errorf("gdb exited during startup: %w", c.Err()))
	case <-timer.C:
		return fail(fmt.Errorf("no prompt from gdb within %s", timeout))
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	c.detectVersion(ctx, opts.MinVersion)

	// async mode lets -exec-interrupt and -gdb-exit through while the program runs
	if resp, err := c.SendQuiet(ctx, "-gdb-set mi-async on"); err != nil {
		return fail(err)
	} else if resp.IsError() {
		log.Printf("Warning: gdb does not support mi-async: %s", resp.Record.ErrorMessage())
	}

	if executablePath != "" {
		resp, err := c.Send(ctx, "-file-exec-and-symbols "+mi.Quote(executablePath))
		if err != nil {
			return fail(err)
		}
		if resp.IsError() {
			return fail(errors.CommandFailed("-file-exec-and-symbols", resp.Record.ErrorMessage()))
		}
	}

	return c, nil
}

// detectVersion records gdb's version; failures only produce warnings
func (c *Client) detectVersion(ctx context.Context, minVersion string) {
	resp, err := c.SendQuiet(ctx, "-gdb-version")
	if err != nil {
		log.Printf("Warning: could not query gdb version: %v", err)
		return
	}
	if resp.IsError() {
		log.Printf("Warning: could not query gdb version: %s", resp.Record.ErrorMessage())
		return
	}

	v, err := version.ParseGDBVersion(strings.TrimSpace(resp.Console))
	if err != nil {
		log.Printf("Warning: %v", err)
		return
	}
	c.version = v

	if minVersion == "" {
		minVersion = version.DefaultMinGDB
	}
	ok, err := version.AtLeast(v, minVersion)
	if err != nil {
		log.Printf("Warning: %v", err)
		return
	}
	if !ok {
		log.Printf("Warning: gdb %s is older than %s; some features may not work", v, minVersion)
	}
}
