// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes gdb debug sessions through MCP tools that can be used
// by AI assistants and other MCP clients:
//
// Session Management (always available):
//   - debug_launch: Start gdb on a program and run it
//   - debug_disconnect: End a session
//   - debug_list_sessions: List active sessions
//
// Inspection (always available):
//   - debug_stack: Call stack of the stopped program
//   - debug_evaluate: Registers, memory, expressions and gdb commands
//   - debug_registers: Batched register read
//   - debug_events: Session events as DAP messages
//   - debug_exception: Signal behind the last exception stop
//
// Control (full mode only):
//   - debug_breakpoints: Replace the breakpoints of a source file
//   - debug_continue: Resume execution
//   - debug_step: Step over/into/out/back
//   - debug_pause: Interrupt the running program
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/gdb-bridge/internal/config"
	"github.com/ctagard/gdb-bridge/internal/debugger"
	"github.com/ctagard/gdb-bridge/internal/gdb"
	"github.com/ctagard/gdb-bridge/internal/version"
)

// Server wraps the MCP server with debugging capabilities
type Server struct {
	mcpServer      *server.MCPServer
	sessionManager *debugger.SessionManager
	config         *config.Config

	// launch starts gdb; nil means gdb.Start
	launch debugger.LaunchFunc
}

// NewServer creates a new gdb bridge server
func NewServer(cfg *config.Config) *Server {
	mcpServer := server.NewMCPServer(
		"gdb-bridge",
		version.GetVersion(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	sessionManager := debugger.NewSessionManager(debugger.ManagerOptions{
		MaxSessions:    cfg.MaxSessions,
		SessionTimeout: cfg.SessionTimeout.Std(),
		EventHistory:   cfg.EventHistory,
		WatchProgram:   cfg.WatchProgram,
	})

	s := &Server{
		mcpServer:      mcpServer,
		sessionManager: sessionManager,
		config:         cfg,
	}

	s.registerTools()

	return s
}

// debuggerOptions derives per-session options from the configuration
func (s *Server) debuggerOptions(dir string) debugger.Options {
	return debugger.Options{
		GDB: gdb.Options{
			Path:           s.config.GDB.Path,
			Args:           s.config.GDB.Args,
			StartupTimeout: s.config.GDB.StartupTimeout.Std(),
			MinVersion:     s.config.GDB.MinVersion,
			Dir:            dir,
		},
		EntrySymbol:    s.config.GDB.EntrySymbol,
		Record:         s.config.GDB.Record,
		RegisterFormat: s.config.GDB.RegisterFormat,
		AllowRaw:       s.config.CanExecute(),
		Mode:           string(s.config.Mode),
		Launch:         s.launch,
	}
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close shuts down the server
func (s *Server) Close() {
	s.sessionManager.Close()
}

// GetSessionManager returns the session manager
func (s *Server) GetSessionManager() *debugger.SessionManager {
	return s.sessionManager
}

// GetConfig returns the server configuration
func (s *Server) GetConfig() *config.Config {
	return s.config
}
