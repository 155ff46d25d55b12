package launchconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// LaunchJSONFileName is the standard name for VS Code launch configuration file.
	LaunchJSONFileName = "launch.json"
	// VSCodeDirName is the VS Code configuration directory name.
	VSCodeDirName = ".vscode"
)

// LoadFromPath loads a launch.json file. Comments and trailing commas, which
// VS Code accepts, are removed before decoding.
func LoadFromPath(path string) (*LaunchJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launch.json: %w", err)
	}

	var lj LaunchJSON
	if err := json.Unmarshal(stripJSONC(data), &lj); err != nil {
		return nil, fmt.Errorf("failed to parse launch.json: %w", err)
	}
	return &lj, nil
}

// Discover searches for .vscode/launch.json from startPath up to the filesystem root
func Discover(startPath string) (string, error) {
	if startPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		startPath = cwd
	}

	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if info, err := os.Stat(absPath); err == nil && !info.IsDir() {
		absPath = filepath.Dir(absPath)
	}

	for current := absPath; ; {
		launchPath := filepath.Join(current, VSCodeDirName, LaunchJSONFileName)
		if _, err := os.Stat(launchPath); err == nil {
			return launchPath, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no %s/%s found in %s or parent directories", VSCodeDirName, LaunchJSONFileName, startPath)
}

// WorkspaceFolder returns the folder that contains the .vscode directory
func WorkspaceFolder(launchJSONPath string) string {
	return filepath.Dir(filepath.Dir(launchJSONPath))
}

// FindConfiguration finds a gdb configuration by name
func FindConfiguration(lj *LaunchJSON, name string) (*DebugConfiguration, error) {
	for i := range lj.Configurations {
		cfg := &lj.Configurations[i]
		if cfg.Name != name {
			continue
		}
		if !cfg.IsGDBType() {
			return nil, fmt.Errorf("configuration %q has type %q, which does not use gdb", name, cfg.Type)
		}
		if cfg.Request != "" && cfg.Request != "launch" {
			return nil, fmt.Errorf("configuration %q is a %q request; only launch is supported", name, cfg.Request)
		}
		return cfg, nil
	}
	return nil, fmt.Errorf("configuration %q not found (available: %s)", name, strings.Join(GDBConfigurationNames(lj), ", "))
}

// GDBConfigurationNames lists the configurations FindConfiguration can return
func GDBConfigurationNames(lj *LaunchJSON) []string {
	var names []string
	for i := range lj.Configurations {
		if lj.Configurations[i].IsGDBType() {
			names = append(names, lj.Configurations[i].Name)
		}
	}
	return names
}

// Load discovers launch.json from startPath (or uses path when set), finds the named
// configuration and resolves its variables
func Load(path, startPath, name string) (*Resolved, error) {
	if path == "" {
		found, err := Discover(startPath)
		if err != nil {
			return nil, err
		}
		path = found
	}

	lj, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	cfg, err := FindConfiguration(lj, name)
	if err != nil {
		return nil, err
	}
	return Resolve(cfg, &ResolutionContext{WorkspaceFolder: WorkspaceFolder(path)})
}

// stripJSONC removes // and /* */ comments outside strings, and commas that
// directly precede a closing bracket
func stripJSONC(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data))

	inString := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out.WriteByte(c)
			switch c {
			case '\\':
				if i+1 < len(data) {
					i++
					out.WriteByte(data[i])
				}
			case '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out.WriteByte(c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out.WriteByte('\n')
			}
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			end := bytes.Index(data[i+2:], []byte("*/"))
			if end < 0 {
				i = len(data)
			} else {
				i += end + 3
			}
		case c == ',':
			j := i + 1
			for j < len(data) && (data[j] == ' ' || data[j] == '\t' || data[j] == '\n' || data[j] == '\r') {
				j++
			}
			if j < len(data) && (data[j] == ']' || data[j] == '}') {
				continue
			}
			out.WriteByte(c)
		default:
			out.WriteByte(c)
		}
	}
	return out.Bytes()
}
