// Package config loads the debugger's TOML configuration: adapter
// definitions, timeouts, daemon behavior, and output buffer limits. All of
// it is read-only input to the session and daemon layers.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrAdapterNotFound is returned when an adapter is neither configured nor
// findable on PATH.
var ErrAdapterNotFound = errors.New("debug adapter not found")

// Config is the root configuration.
type Config struct {
	// Adapters maps adapter names to their launch configuration.
	Adapters map[string]Adapter `toml:"adapters"`

	Defaults Defaults `toml:"defaults"`
	Timeouts Timeouts `toml:"timeouts"`
	Daemon   Daemon   `toml:"daemon"`
	Output   Output   `toml:"output"`
}

// Adapter describes how to launch one debug adapter.
type Adapter struct {
	// Path is the adapter executable.
	Path string `toml:"path"`

	// Args are extra arguments. {{port}} is substituted in TCP modes.
	Args []string `toml:"args"`

	// Mode is the transport: stdio (default), tcp-connect, or tcp-announce.
	Mode string `toml:"mode"`

	// ID is the adapter identifier sent during initialize; defaults to the
	// adapter's configured name.
	ID string `toml:"id"`
}

// Defaults holds fallback settings.
type Defaults struct {
	// Adapter is the adapter used when a start/attach names none.
	Adapter string `toml:"adapter"`
}

// Timeouts, in seconds.
type Timeouts struct {
	// Initialize bounds the adapter handshake.
	InitializeSecs int `toml:"initialize_secs"`

	// Request bounds each individual protocol request.
	RequestSecs int `toml:"request_secs"`

	// AwaitDefault is the await command's timeout when the caller names
	// none.
	AwaitDefaultSecs int `toml:"await_default_secs"`
}

// Daemon holds session host behavior.
type Daemon struct {
	// IdleTimeoutMinutes is how long the host lingers with no active
	// session before exiting.
	IdleTimeoutMinutes int `toml:"idle_timeout_minutes"`
}

// Output holds output buffer limits.
type Output struct {
	// MaxEvents caps the buffered event count.
	MaxEvents int `toml:"max_events"`

	// MaxBytesMB caps the buffered output size, in megabytes.
	MaxBytesMB int `toml:"max_bytes_mb"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Defaults: Defaults{Adapter: "lldb-dap"},
		Timeouts: Timeouts{
			InitializeSecs:   10,
			RequestSecs:      30,
			AwaitDefaultSecs: 300,
		},
		Daemon: Daemon{IdleTimeoutMinutes: 30},
		Output: Output{MaxEvents: 10000, MaxBytesMB: 10},
	}
}

// Load reads the config file at path, layering it over the defaults. A
// missing file is not an error; it yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, readErr)
	}

	if decodeErr := toml.Unmarshal(data, &cfg); decodeErr != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, decodeErr)
	}
	return cfg, nil
}

// ResolveAdapter finds the named adapter (or the default when name is
// empty): an explicit [adapters.<name>] entry wins; otherwise the name is
// looked up on PATH with no extra arguments.
func (c Config) ResolveAdapter(name string) (Adapter, error) {
	if name == "" {
		name = c.Defaults.Adapter
	}

	if adapter, ok := c.Adapters[name]; ok {
		if adapter.ID == "" {
			adapter.ID = name
		}
		return adapter, nil
	}

	path, lookErr := exec.LookPath(name)
	if lookErr != nil {
		return Adapter{}, fmt.Errorf("%w: %q is not configured and not on PATH", ErrAdapterNotFound, name)
	}
	return Adapter{Path: path, ID: name}, nil
}

// RequestTimeout returns the per-request timeout as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeouts.RequestSecs) * time.Second
}

// InitializeTimeout returns the handshake timeout as a duration.
func (c Config) InitializeTimeout() time.Duration {
	return time.Duration(c.Timeouts.InitializeSecs) * time.Second
}

// AwaitDefaultTimeout returns the default await timeout as a duration.
func (c Config) AwaitDefaultTimeout() time.Duration {
	return time.Duration(c.Timeouts.AwaitDefaultSecs) * time.Second
}

// IdleTimeout returns the daemon idle period as a duration.
func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.Daemon.IdleTimeoutMinutes) * time.Minute
}

// OutputMaxBytes returns the output byte limit in bytes.
func (c Config) OutputMaxBytes() int {
	return c.Output.MaxBytesMB * 1024 * 1024
}
