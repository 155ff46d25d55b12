// Package launchconfig reads gdb launch configurations from VS Code launch.json files.
//
// Only configurations that run gdb are usable: type "gdb", or "cppdbg" with MIMode
// gdb (the default). Variables such as ${workspaceFolder} and ${env:NAME} are
// substituted before the values reach debug_launch.
package launchconfig

// LaunchJSON is the subset of a launch.json file the bridge reads
type LaunchJSON struct {
	Version        string               `json:"version"`
	Configurations []DebugConfiguration `json:"configurations"`
}

// DebugConfiguration is one entry of the configurations array. Fields of other
// debuggers are ignored.
type DebugConfiguration struct {
	Type    string `json:"type"`    // "cppdbg" or "gdb"
	Request string `json:"request"` // only "launch" is supported
	Name    string `json:"name"`

	Program     string   `json:"program,omitempty"`
	Args        []string `json:"args,omitempty"`
	Cwd         string   `json:"cwd,omitempty"`
	StopOnEntry bool     `json:"stopOnEntry,omitempty"`

	// cppdbg
	StopAtEntry    bool   `json:"stopAtEntry,omitempty"`
	MIMode         string `json:"MIMode,omitempty"`
	MIDebuggerPath string `json:"miDebuggerPath,omitempty"`

	// native-debug "gdb" type
	Target    string `json:"target,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	GDBPath   string `json:"gdbpath,omitempty"`
}

// IsGDBType reports whether the configuration is driven by gdb
func (c *DebugConfiguration) IsGDBType() bool {
	switch c.Type {
	case "gdb":
		return true
	case "cppdbg":
		return c.MIMode == "" || c.MIMode == "gdb"
	}
	return false
}

// ResolutionContext provides values for variable substitution
type ResolutionContext struct {
	WorkspaceFolder string            // parent of the .vscode directory
	EnvOverrides    map[string]string // consulted before the process environment
}

// Resolved is a configuration with every variable substituted, in the shape
// debug_launch consumes
type Resolved struct {
	Name        string
	Program     string
	Args        []string
	Cwd         string
	StopOnEntry bool
	GDBPath     string // empty means the server's configured gdb
}
