// Package cli implements the debugger command tree. Every command is a
// short-lived caller: it connects to the session host over the unix socket
// (spawning the host if needed), issues one command, renders the result, and
// exits.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/akiselev/debugger-cli/internal/config"
	"github.com/akiselev/debugger-cli/internal/ipc"
	"github.com/akiselev/debugger-cli/internal/logging"
)

// app carries the state shared by every command: logger, resolved config,
// and output preferences.
type app struct {
	log *logging.Logger

	configPath string
	socketPath string
	jsonOut    bool

	cfg config.Config
}

// NewRootCmd builds the debugger command tree.
func NewRootCmd() *cobra.Command {
	a := &app{
		log: logging.New("debugger"),
	}

	rootCmd := &cobra.Command{
		Use:   "debugger",
		Short: "Command-line debugging through Debug Adapter Protocol adapters",
		Long: `debugger drives DAP debug adapters (lldb-dap, debugpy, delve, ...) from
the command line. A background session host owns the debug session, so state
survives between invocations: set breakpoints, start the program, and inspect
it across separate commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, loadErr := config.Load(a.configPath)
			if loadErr != nil {
				return loadErr
			}
			a.cfg = cfg
			if a.socketPath == "" {
				a.socketPath = config.SocketPath()
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.log.Flush()
		},
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", config.DefaultConfigPath(), "Path to the configuration file")
	flags.StringVar(&a.socketPath, "socket", "", "Session host socket path (defaults to the per-user runtime directory)")
	flags.BoolVar(&a.jsonOut, "json", false, "Print raw JSON results instead of formatted output")
	a.log.AddLevelFlag(flags)

	rootCmd.AddCommand(
		a.newStartCmd(),
		a.newAttachCmd(),
		a.newStopCmd(),
		a.newDetachCmd(),
		a.newRestartCmd(),
		a.newStatusCmd(),
		a.newAwaitCmd(),
		a.newBreakCmd(),
		a.newContinueCmd(),
		a.newNextCmd(),
		a.newStepCmd(),
		a.newFinishCmd(),
		a.newPauseCmd(),
		a.newStackCmd(),
		a.newLocalsCmd(),
		a.newEvalCmd(),
		a.newScopesCmd(),
		a.newVarsCmd(),
		a.newThreadsCmd(),
		a.newThreadCmd(),
		a.newFrameCmd(),
		a.newOutputCmd(),
		a.newDaemonCmd(),
		a.newShutdownCmd(),
	)

	return rootCmd
}

// connect reaches the session host, spawning one when none is running.
func (a *app) connect(ctx context.Context) (*ipc.Client, error) {
	return ipc.ConnectOrSpawn(ctx, a.socketPath, a.spawnHost, a.log.Logger)
}

// connectExisting reaches the session host but never spawns one.
func (a *app) connectExisting() (*ipc.Client, error) {
	return ipc.Connect(a.socketPath, a.log.Logger)
}

// spawnHost re-executes this binary as a detached session host.
func (a *app) spawnHost() error {
	exe, exeErr := os.Executable()
	if exeErr != nil {
		return fmt.Errorf("failed to locate own executable: %w", exeErr)
	}

	args := []string{"daemon"}
	if a.configPath != "" {
		args = append(args, "--config", a.configPath)
	}
	if a.socketPath != "" {
		args = append(args, "--socket", a.socketPath)
	}

	host := exec.Command(exe, args...)
	host.Stdin = nil
	host.Stdout = nil
	host.Stderr = nil
	// Detach from our process group and controlling terminal so the host
	// outlives this invocation.
	host.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if startErr := host.Start(); startErr != nil {
		return startErr
	}
	// The host is on its own now; reap it from nobody.
	return host.Process.Release()
}

// call issues one command against the host and returns the raw result.
func (a *app) call(ctx context.Context, cmd ipc.Command) (json.RawMessage, error) {
	client, connectErr := a.connect(ctx)
	if connectErr != nil {
		return nil, connectErr
	}
	defer client.Close()

	return client.Call(cmd)
}

// run issues one command and renders the result with render, or as raw JSON
// under --json. render may be nil for commands with no interesting result.
func (a *app) run(ctx context.Context, cmd ipc.Command, render func(json.RawMessage) error) error {
	result, callErr := a.call(ctx, cmd)
	if callErr != nil {
		return callErr
	}

	if a.jsonOut {
		fmt.Println(string(result))
		return nil
	}
	if render == nil {
		return nil
	}
	return render(result)
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if unmarshalErr := json.Unmarshal(raw, &v); unmarshalErr != nil {
		return v, fmt.Errorf("failed to decode host response: %w", unmarshalErr)
	}
	return v, nil
}
