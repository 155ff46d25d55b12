package mcp

import (
	"bufio"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/gdb-bridge/internal/config"
	"github.com/ctagard/gdb-bridge/internal/gdb"
)

// fakeGDB answers commands by script; unscripted commands get ^done
type fakeGDB struct {
	mu       sync.Mutex
	received []string
	script   map[string]string
}

func (f *fakeGDB) launch(ctx context.Context, opts gdb.Options, program string) (*gdb.Client, error) {
	cmdR, cmdW := io.Pipe()
	outR, outW := io.Pipe()
	go f.serve(cmdR, outW)
	return gdb.NewClient(gdb.NewStdioTransport(cmdW, outR), nil), nil
}

func (f *fakeGDB) serve(in io.Reader, out *io.PipeWriter) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		cmd := scanner.Text()
		f.mu.Lock()
		f.received = append(f.received, cmd)
		reply, ok := f.script[cmd]
		f.mu.Unlock()

		if cmd == "-gdb-exit" {
			out.Write([]byte("^exit\n"))
			out.Close()
			return
		}
		if !ok {
			reply = "^done\n"
		}
		out.Write([]byte(reply))
	}
}

func (f *fakeGDB) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

// newTestServer returns a server whose sessions talk to f
func newTestServer(t *testing.T, cfg *config.Config, f *fakeGDB) *Server {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := NewServer(cfg)
	if f != nil {
		s.launch = f.launch
	}
	t.Cleanup(s.Close)
	return s
}

type handlerFunc func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// call invokes a handler and returns its text and error flag
func call(t *testing.T, handler handlerFunc, args map[string]interface{}) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args

	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}
