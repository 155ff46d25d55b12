// Package gdb drives a gdb child process over its machine interface.
//
// This package provides:
//   - Transport: newline-framed command writes and raw output reads over stdio
//   - Client: single in-flight command correlation, notification fan-out, termination
//   - Start: spawning gdb in its own process group and loading the target program
//
// GDB/MI has no request identifiers usable for every command, so results are
// matched to commands purely by order. A one-slot gate keeps at most one command
// outstanding; see Client.Send.
package gdb

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Transport handles raw communication with a gdb process
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewStdioTransport creates a transport using stdio streams
func NewStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser) *Transport {
	rwc := &stdioRWC{
		reader: stdout,
		writer: stdin,
	}

	return &Transport{
		conn:   rwc,
		reader: bufio.NewReader(stdout),
		writer: bufio.NewWriter(stdin),
	}
}

type stdioRWC struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioRWC) Read(p []byte) (n int, err error) {
	return s.reader.Read(p)
}

func (s *stdioRWC) Write(p []byte) (n int, err error) {
	return s.writer.Write(p)
}

func (s *stdioRWC) Close() error {
	err1 := s.writer.Close()
	err2 := s.reader.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// WriteLine writes one command followed by a newline. Embedded newlines are
// rejected since they would be read as separate commands.
func (t *Transport) WriteLine(command string) error {
	if strings.ContainsAny(command, "\r\n") {
		return fmt.Errorf("command contains a line break: %q", command)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.writer.WriteString(command); err != nil {
		return fmt.Errorf("failed to write gdb command: %w", err)
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write gdb command: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush gdb command: %w", err)
	}

	return nil
}

// Read reads whatever output is available
func (t *Transport) Read(p []byte) (int, error) {
	return t.reader.Read(p)
}

// Close closes the transport
func (t *Transport) Close() error {
	return t.conn.Close()
}
