package mcp

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ctagard/gdb-bridge/internal/errors"
)

// sourceBreakpoint is one entry of debug_launch's breakpoints argument
type sourceBreakpoint struct {
	Path string
	Line int
}

// parseArray validates raw as a JSON array. Empty input is an empty array.
func parseArray(name, raw, example string) ([]gjson.Result, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	if !gjson.Valid(raw) {
		return nil, errors.InvalidJSON(name, "not valid JSON", example)
	}
	v := gjson.Parse(raw)
	if !v.IsArray() {
		return nil, errors.InvalidJSON(name, "expected a JSON array", example)
	}
	return v.Array(), nil
}

// parseStringArray reads a JSON array of strings; numbers are accepted as text
func parseStringArray(name, raw, example string) ([]string, error) {
	items, err := parseArray(name, raw, example)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch item.Type {
		case gjson.String, gjson.Number:
			out = append(out, item.String())
		default:
			return nil, errors.InvalidJSON(name, "array entries must be strings", example)
		}
	}
	return out, nil
}

// parseLines reads debug_breakpoints' argument: line numbers, or objects with a line field.
// Blank input yields nil; an empty array yields an empty, non-nil slice.
func parseLines(raw string) ([]int, error) {
	const example = `[{"line": 10}, {"line": 20}]`
	items, err := parseArray("breakpoints", raw, example)
	if err != nil || strings.TrimSpace(raw) == "" {
		return nil, err
	}

	lines := make([]int, 0, len(items))
	for _, item := range items {
		line := item
		if item.IsObject() {
			line = item.Get("line")
		}
		if line.Type != gjson.Number {
			return nil, errors.InvalidJSON("breakpoints", "each breakpoint needs a numeric line", example)
		}
		if n := line.Int(); n < 1 || float64(n) != line.Float() {
			return nil, errors.InvalidParameter("breakpoints", line.Raw, "1-based line numbers")
		}
		lines = append(lines, int(line.Int()))
	}
	return lines, nil
}

// parseSourceBreakpoints reads debug_launch's breakpoints argument
func parseSourceBreakpoints(raw string) ([]sourceBreakpoint, error) {
	const example = `[{"path": "/src/main.c", "line": 12}]`
	items, err := parseArray("breakpoints", raw, example)
	if err != nil {
		return nil, err
	}

	out := make([]sourceBreakpoint, 0, len(items))
	for _, item := range items {
		path, line := item.Get("path"), item.Get("line")
		if !item.IsObject() || path.Type != gjson.String || line.Type != gjson.Number {
			return nil, errors.InvalidJSON("breakpoints", "each breakpoint needs a path and a numeric line", example)
		}
		if line.Int() < 1 {
			return nil, errors.InvalidParameter("breakpoints", line.Raw, "1-based line numbers")
		}
		out = append(out, sourceBreakpoint{Path: path.String(), Line: int(line.Int())})
	}
	return out, nil
}
