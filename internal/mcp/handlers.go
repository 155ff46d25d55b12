package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/go-dap"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/gdb-bridge/internal/debugger"
	"github.com/ctagard/gdb-bridge/internal/errors"
	"github.com/ctagard/gdb-bridge/internal/eval"
	"github.com/ctagard/gdb-bridge/internal/launchconfig"
	"github.com/ctagard/gdb-bridge/pkg/types"
)

// Session Management Handlers

func (s *Server) handleDebugLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanSpawn() {
		return mcp.NewToolResultError(errors.PermissionDenied("spawn", string(s.config.Mode)).Error()), nil
	}

	program := request.GetString("program", "")
	cwd := request.GetString("cwd", "")

	args, err := parseStringArray("args", request.GetString("args", ""), `["--verbose", "input.txt"]`)
	if err != nil {
		return toolError(err), nil
	}
	initial, err := parseSourceBreakpoints(request.GetString("breakpoints", ""))
	if err != nil {
		return toolError(err), nil
	}
	stopOnEntry := request.GetBool("stopOnEntry", false)

	// Explicit arguments override the launch.json entry
	opts := s.debuggerOptions(cwd)
	if name := request.GetString("configName", ""); name != "" {
		start := cwd
		if start == "" && program != "" {
			start = filepath.Dir(program)
		}
		lc, err := launchconfig.Load(request.GetString("launchJson", ""), start, name)
		if err != nil {
			return mcp.NewToolResultError(errors.Wrap(errors.CodeInvalidParameter,
				fmt.Sprintf("cannot use launch configuration %q: %v", name, err),
				"Pass launchJson with the path to .vscode/launch.json, or set cwd inside the workspace.", err).Error()), nil
		}
		if program == "" {
			program = lc.Program
		}
		if len(args) == 0 {
			args = lc.Args
		}
		if cwd == "" && lc.Cwd != "" {
			opts.GDB.Dir = lc.Cwd
		}
		if lc.GDBPath != "" {
			opts.GDB.Path = lc.GDBPath
		}
		stopOnEntry = stopOnEntry || lc.StopOnEntry
	}

	if program == "" {
		return mcp.NewToolResultError(errors.MissingParameter("program",
			"Specify the path to the executable to debug, or a configName from .vscode/launch.json. Build it with -g so gdb can map addresses to source lines.").Error()), nil
	}

	session, err := s.sessionManager.CreateSession(program, opts)
	if err != nil {
		return toolError(err), nil
	}

	for _, bp := range initial {
		session.Debugger.SetBreakPoint(bp.Path, bp.Line)
	}

	if err := session.Debugger.Start(ctx, program, stopOnEntry, args); err != nil {
		if terr := s.sessionManager.TerminateSession(session.ID); terr != nil {
			err = fmt.Errorf("%w (cleanup: %v)", err, terr)
		}
		return toolError(err), nil
	}

	info := session.GetInfo()
	result := map[string]interface{}{
		"sessionId":   session.ID,
		"status":      "launched",
		"program":     program,
		"breakpoints": session.Debugger.Breakpoints(""),
	}
	if info.PID > 0 {
		result["pid"] = info.PID
	}
	if info.GDBVersion != "" {
		result["gdbVersion"] = info.GDBVersion
	}

	return jsonResult(result)
}

func (s *Server) handleDebugDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(err), nil
	}

	if err := s.sessionManager.TerminateSession(sessionID); err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"status":    "disconnected",
	})
}

func (s *Server) handleDebugListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions := s.sessionManager.ListSessions()

	result := make([]types.SessionInfo, len(sessions))
	for i, session := range sessions {
		result[i] = session.GetInfo()
	}

	return jsonResult(map[string]interface{}{
		"sessions": result,
	})
}

// Inspection Handlers

func (s *Server) handleDebugStack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	start := int(request.GetFloat("startFrame", 0))
	if start < 0 {
		return mcp.NewToolResultError(errors.InvalidParameter("startFrame", start, "a frame index >= 0").Error()), nil
	}
	end := 0
	if levels := int(request.GetFloat("levels", 0)); levels > 0 {
		end = start + levels
	}

	trace, err := session.Debugger.Stack(ctx, start, end)
	if err != nil {
		return toolError(err), nil
	}

	frames := make([]dap.StackFrame, len(trace.Frames))
	for i, f := range trace.Frames {
		frames[i] = debugger.FrameToDAP(f)
	}

	return jsonResult(dap.StackTraceResponseBody{
		StackFrames: frames,
		TotalFrames: trace.Count,
	})
}

func (s *Server) handleDebugEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	expression, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("expression",
			"Provide a register name, '-x <memory spec>', '-p <expression>' or a gdb command.").Error()), nil
	}

	result, err := session.Debugger.Evaluate(ctx, expression)
	if err != nil {
		return toolError(err), nil
	}

	out := map[string]interface{}{
		"expression": expression,
		"kind":       result.Kind,
		"result":     result.Result,
	}
	if result.Kind == eval.KindRaw {
		out["note"] = "command output is delivered as output events; see debug_events"
	}
	return jsonResult(out)
}

func (s *Server) handleDebugRegisters(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	names, err := parseStringArray("names", request.GetString("names", ""), `["rax", "rip"]`)
	if err != nil {
		return toolError(err), nil
	}

	values, err := session.Debugger.Registers(ctx, names)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"registers": values,
	})
}

func (s *Server) handleDebugEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	recorded := session.Events(int(request.GetFloat("since", 0)))
	events := make([]dap.Message, len(recorded))
	last := int(request.GetFloat("since", 0))
	for i, r := range recorded {
		events[i] = r.Event.DAP(r.Seq)
		last = r.Seq
	}

	return jsonResult(map[string]interface{}{
		"sessionId": session.ID,
		"status":    session.Debugger.Status(),
		"events":    events,
		"last":      last,
	})
}

func (s *Server) handleDebugException(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	result := map[string]interface{}{
		"sessionId": session.ID,
		"exception": nil,
	}
	if info, ok := session.Debugger.LastException(); ok {
		result["exception"] = info
	}
	return jsonResult(result)
}

// Control Handlers

// handleDebugBreakpoints replaces the breakpoints of one file
func (s *Server) handleDebugBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("path", "Provide the source file path the breakpoints belong to.").Error()), nil
	}

	bpsJSON, err := request.RequireString("breakpoints")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("breakpoints", `Provide a JSON array such as [{"line": 10}]; use [] to clear the file.`).Error()), nil
	}

	lines, err := parseLines(bpsJSON)
	if err != nil {
		return toolError(err), nil
	}

	d := session.Debugger
	cleared, err := d.ClearBreakpoints(ctx, path)
	if err != nil {
		return toolError(err), nil
	}

	requested := make([]types.Breakpoint, len(lines))
	for i, line := range lines {
		requested[i] = d.SetBreakPoint(path, line)
	}

	if err := d.CreateBreakpoints(ctx, path); err != nil {
		return mcp.NewToolResultError(errors.Wrap(errors.CodeSessionTerminated, fmt.Sprintf("failed to send breakpoints for %s", path),
			"The gdb session has ended. Check debug_list_sessions and launch a new session.", err).Error()), nil
	}

	current := make(map[int]types.Breakpoint)
	for _, bp := range d.Breakpoints(path) {
		current[bp.ID] = bp
	}

	result := make([]types.Breakpoint, len(requested))
	for i, bp := range requested {
		if now, ok := current[bp.ID]; ok {
			result[i] = now
			continue
		}
		bp.State = types.BreakpointRejected
		bp.Message = rejectionMessage(session, bp.ID)
		result[i] = bp
	}

	return jsonResult(map[string]interface{}{
		"path":        path,
		"cleared":     cleared,
		"breakpoints": result,
	})
}

// rejectionMessage finds gdb's reason for rejecting breakpoint id in the event history
func rejectionMessage(session *debugger.Session, id int) string {
	events := session.Events(0)
	for i := len(events) - 1; i >= 0; i-- {
		bp := events[i].Event.Breakpoint
		if bp != nil && bp.ID == id && bp.State == types.BreakpointRejected {
			return bp.Message
		}
	}
	return "rejected by gdb"
}

func (s *Server) handleDebugContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	if err := session.Debugger.Continue(ctx); err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"sessionId": session.ID,
		"status":    "continued",
	})
}

func (s *Server) handleDebugStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	stepType, err := request.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("type", "Use 'over', 'into', 'out' or 'back'.").Error()), nil
	}

	d := session.Debugger
	switch stepType {
	case "over":
		err = d.Step(ctx)
	case "into":
		err = d.StepIn(ctx)
	case "out":
		err = d.StepOut(ctx)
	case "back":
		err = d.Reverse(ctx)
	default:
		return mcp.NewToolResultError(errors.InvalidParameter("type", stepType, "'over', 'into', 'out' or 'back'").Error()), nil
	}
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"sessionId": session.ID,
		"status":    "stepping",
		"type":      stepType,
	})
}

func (s *Server) handleDebugPause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	if err := session.Debugger.Pause(ctx); err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"sessionId": session.ID,
		"status":    "pausing",
	})
}

// Helper functions

func (s *Server) getSession(request mcp.CallToolRequest) (*debugger.Session, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return nil, errors.MissingParameter("sessionId", "Provide the sessionId returned from debug_launch. Use debug_list_sessions to see active sessions.")
	}
	return s.sessionManager.GetSession(strings.TrimSpace(sessionID))
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// toolError reports err as a tool failure, giving plain errors a code and hint
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(errors.FromError(err).Error())
}
