package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the debug API
func (s *Server) registerTools() {
	// Session Management (3 tools - both modes)
	s.registerDebugLaunch()
	s.registerDebugDisconnect()
	s.registerDebugListSessions()

	// Inspection (5 tools - both modes)
	s.registerDebugStack()
	s.registerDebugEvaluate()
	s.registerDebugRegisters()
	s.registerDebugEvents()
	s.registerDebugException()

	// Control (4 tools - full mode only)
	if s.config.CanUseControlTools() {
		s.registerDebugBreakpoints()
		s.registerDebugContinue()
		s.registerDebugStep()
		s.registerDebugPause()
	}
}

// Session Management Tools

func (s *Server) registerDebugLaunch() {
	tool := mcp.NewTool("debug_launch",
		mcp.WithDescription("Start gdb on a compiled program and run it. Returns sessionId needed for all other tools. Use stopOnEntry=true to stop before main. Declare breakpoints here so they are in place before the program starts."),
		mcp.WithString("program",
			mcp.Description("Path to the executable to debug (built with -g for source-level debugging). Required unless configName is given."),
		),
		mcp.WithString("args",
			mcp.Description("JSON array of program arguments, e.g. [\"--verbose\", \"input.txt\"]"),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory for gdb and the program"),
		),
		mcp.WithBoolean("stopOnEntry",
			mcp.Description("Stop at the program entry point (default: false)"),
		),
		mcp.WithString("breakpoints",
			mcp.Description("JSON array of initial breakpoints: [{\"path\": \"/src/main.c\", \"line\": 12}]"),
		),
		mcp.WithString("configName",
			mcp.Description("Name of a cppdbg or gdb configuration in .vscode/launch.json to take program, args, cwd and miDebuggerPath from"),
		),
		mcp.WithString("launchJson",
			mcp.Description("Path to launch.json (default: discovered upward from cwd or the program's directory)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugLaunch)
}

func (s *Server) registerDebugDisconnect() {
	tool := mcp.NewTool("debug_disconnect",
		mcp.WithDescription("End a debug session. gdb and the debugged program are stopped."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID to disconnect from"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugDisconnect)
}

func (s *Server) registerDebugListSessions() {
	tool := mcp.NewTool("debug_list_sessions",
		mcp.WithDescription("List all active debug sessions"),
	)
	s.mcpServer.AddTool(tool, s.handleDebugListSessions)
}

// Inspection Tools

func (s *Server) registerDebugStack() {
	tool := mcp.NewTool("debug_stack",
		mcp.WithDescription("Get the call stack of the stopped program. Returns DAP stack frames plus totalFrames."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("startFrame",
			mcp.Description("Index of the first frame to return (default: 0)"),
		),
		mcp.WithNumber("levels",
			mcp.Description("Maximum number of frames to return (default: all)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStack)
}

func (s *Server) registerDebugEvaluate() {
	tool := mcp.NewTool("debug_evaluate",
		mcp.WithDescription("Evaluate in the current context. A register name (rip, $sp) reads the register; '-x <addr> <fmt> <size> <rows> <cols>' reads memory; '-p <expr>' prints an expression; anything else runs as a gdb command whose output appears in debug_events."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("What to evaluate, e.g. 'rip', '-p argc * 2', '-x &buf x 1 2 8', 'info frame'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugEvaluate)
}

func (s *Server) registerDebugRegisters() {
	tool := mcp.NewTool("debug_registers",
		mcp.WithDescription("Read several registers with one gdb round trip. Omit names to read all registers."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("names",
			mcp.Description("JSON array of register names, e.g. [\"rax\", \"rip\"]"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugRegisters)
}

func (s *Server) registerDebugEvents() {
	tool := mcp.NewTool("debug_events",
		mcp.WithDescription("Get session events (output, breakpoint, stopped, terminated) as DAP event messages. Pass the last seen seq as 'since' to poll for new events."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("since",
			mcp.Description("Only return events with a larger seq (default: 0)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugEvents)
}

func (s *Server) registerDebugException() {
	tool := mcp.NewTool("debug_exception",
		mcp.WithDescription("Describe the signal behind the last exception stop (e.g. SIGSEGV)"),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugException)
}

// Control Tools (Full mode only)

func (s *Server) registerDebugBreakpoints() {
	tool := mcp.NewTool("debug_breakpoints",
		mcp.WithDescription("Set breakpoints in a source file. Note: This REPLACES all breakpoints in the file - include all desired breakpoints in each call. gdb may move a breakpoint to the nearest executable line; watch debug_events for breakpoint updates."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("The source file path"),
		),
		mcp.WithString("breakpoints",
			mcp.Required(),
			mcp.Description("JSON array of breakpoints: [{\"line\": 10}, {\"line\": 20}] or [10, 20]. Use [] to clear the file."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugBreakpoints)
}

func (s *Server) registerDebugContinue() {
	tool := mcp.NewTool("debug_continue",
		mcp.WithDescription("Continue program execution until next breakpoint or program end. Returns immediately - use debug_events to see where it stopped."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugContinue)
}

func (s *Server) registerDebugStep() {
	tool := mcp.NewTool("debug_step",
		mcp.WithDescription("Execute a step command. Use type='over' to step to next line, 'into' to enter function calls, 'out' to exit current function, 'back' to step backwards through recorded history."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Step type: 'over', 'into', 'out' or 'back'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStep)
}

func (s *Server) registerDebugPause() {
	tool := mcp.NewTool("debug_pause",
		mcp.WithDescription("Pause program execution. Use when program is running and you need to inspect state."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugPause)
}
