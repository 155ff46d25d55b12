package launchconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Variable pattern matches ${...} expressions
var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveVariables replaces all ${...} variables in the given text. The first
// unknown variable is reported; it is left in place.
func ResolveVariables(text string, ctx *ResolutionContext) (string, error) {
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	var firstErr error
	result := variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		resolved, err := resolveVariable(match[2:len(match)-1], ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return resolved
	})
	return result, firstErr
}

func resolveVariable(expr string, ctx *ResolutionContext) (string, error) {
	switch {
	case expr == "workspaceFolder", expr == "workspaceRoot":
		if ctx.WorkspaceFolder == "" {
			return "", fmt.Errorf("${%s} needs a workspace folder", expr)
		}
		return ctx.WorkspaceFolder, nil

	case expr == "workspaceFolderBasename":
		return filepath.Base(ctx.WorkspaceFolder), nil

	case expr == "userHome":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home: %w", err)
		}
		return home, nil

	case expr == "cwd":
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get cwd: %w", err)
		}
		return cwd, nil

	case expr == "pathSeparator":
		return string(os.PathSeparator), nil

	case strings.HasPrefix(expr, "env:"):
		name := strings.TrimPrefix(expr, "env:")
		if val, ok := ctx.EnvOverrides[name]; ok {
			return val, nil
		}
		return os.Getenv(name), nil
	}

	// ${file}, ${input:...} and ${command:...} need an editor
	return "", fmt.Errorf("unsupported variable: ${%s}", expr)
}

// Resolve substitutes variables in every field debug_launch uses
func Resolve(cfg *DebugConfiguration, ctx *ResolutionContext) (*Resolved, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}

	program := cfg.Program
	if program == "" {
		program = cfg.Target
	}
	if program == "" {
		return nil, fmt.Errorf("configuration %q has no program", cfg.Name)
	}

	out := &Resolved{
		Name:        cfg.Name,
		StopOnEntry: cfg.StopOnEntry || cfg.StopAtEntry,
	}

	var err error
	if out.Program, err = ResolveVariables(program, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve program: %w", err)
	}
	if out.Cwd, err = ResolveVariables(cfg.Cwd, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve cwd: %w", err)
	}

	gdbPath := cfg.MIDebuggerPath
	if gdbPath == "" {
		gdbPath = cfg.GDBPath
	}
	if out.GDBPath, err = ResolveVariables(gdbPath, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve debugger path: %w", err)
	}

	args := cfg.Args
	if len(args) == 0 && cfg.Arguments != "" {
		args = strings.Fields(cfg.Arguments)
	}
	for _, arg := range args {
		resolved, err := ResolveVariables(arg, ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve args: %w", err)
		}
		out.Args = append(out.Args, resolved)
	}

	return out, nil
}
