// Package config provides configuration management for the gdb bridge.
//
// Configuration controls:
//   - Capability mode (readonly vs full): determines which tools are available
//   - Permission flags: control starting gdb and raw command passthrough
//   - gdb settings: binary path, extra arguments, startup timeout, record mode
//   - Safety limits: maximum sessions and session timeout
//
// Configuration can be loaded from a JSON file or use sensible defaults.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cast"
)

// CapabilityMode defines the level of debugging capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Inspection only
	ModeFull     CapabilityMode = "full"     // All tools enabled
)

// Duration accepts either a Go duration string ("30m") or a number of seconds in JSON
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if n, ok := raw.(float64); ok {
		*d = Duration(time.Duration(n * float64(time.Second)))
		return nil
	}
	v, err := cast.ToDurationE(raw)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the server configuration
type Config struct {
	// Capability levels
	Mode         CapabilityMode `json:"mode"`
	AllowSpawn   bool           `json:"allowSpawn"`
	AllowExecute bool           `json:"allowExecute"`

	GDB GDBConfig `json:"gdb"`

	// Limits for safety
	MaxSessions    int      `json:"maxSessions"`
	SessionTimeout Duration `json:"sessionTimeout"`

	// EventHistory is the number of events kept per session for debug_events
	EventHistory int `json:"eventHistory"`

	// WatchProgram emits an output event when the debugged executable is rebuilt
	WatchProgram bool `json:"watchProgram"`
}

// GDBConfig holds gdb-specific configuration
type GDBConfig struct {
	Path           string   `json:"path"`
	Args           []string `json:"args"`
	StartupTimeout Duration `json:"startupTimeout"`
	MinVersion     string   `json:"minVersion"`
	EntrySymbol    string   `json:"entrySymbol"`    // temporary breakpoint for stopOnEntry
	Record         bool     `json:"record"`         // enable "record full" for reverse stepping
	RegisterFormat string   `json:"registerFormat"` // -data-list-register-values format letter
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:           ModeFull,
		AllowSpawn:     true,
		AllowExecute:   true,
		MaxSessions:    10,
		SessionTimeout: Duration(30 * time.Minute),
		EventHistory:   200,
		GDB: GDBConfig{
			Path:           "gdb",
			StartupTimeout: Duration(10 * time.Second),
			MinVersion:     "7.12",
			EntrySymbol:    "_start",
			Record:         true,
			RegisterFormat: "x",
		},
	}
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// CanUseControlTools returns true if control tools are enabled
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanSpawn returns true if starting gdb is allowed
func (c *Config) CanSpawn() bool {
	return c.AllowSpawn
}

// CanExecute returns true if raw gdb commands may be passed through
func (c *Config) CanExecute() bool {
	return c.Mode == ModeFull && c.AllowExecute
}
