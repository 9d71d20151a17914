package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const appDirName = "debugger-cli"

// SocketPath returns where the session host listens: a per-user path under
// $XDG_RUNTIME_DIR when set, else a uid-scoped directory under /tmp.
func SocketPath() string {
	return filepath.Join(runtimeDir(), "daemon.sock")
}

// DefaultConfigPath returns where Load looks by default:
// $XDG_CONFIG_HOME/debugger-cli/config.toml, falling back to
// ~/.config/debugger-cli/config.toml.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return filepath.Join(runtimeDir(), "config.toml")
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, appDirName, "config.toml")
}

// EnsureSocketDir creates the socket's parent directory, owner-only. The
// socket doubles as a control channel into the debuggee, so the directory
// must not be group or world accessible.
func EnsureSocketDir() (string, error) {
	dir := runtimeDir()
	if mkdirErr := os.MkdirAll(dir, 0o700); mkdirErr != nil {
		return "", fmt.Errorf("failed to create runtime directory %s: %w", dir, mkdirErr)
	}
	return dir, nil
}

func runtimeDir() string {
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return filepath.Join(runtime, appDirName)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", appDirName, os.Getuid()))
}
