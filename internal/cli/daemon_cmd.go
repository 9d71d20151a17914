package cli

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/akiselev/debugger-cli/internal/config"
	"github.com/akiselev/debugger-cli/internal/daemon"
	"github.com/akiselev/debugger-cli/internal/ipc"
)

// newDaemonCmd runs the session host in the foreground. Callers normally
// never invoke it themselves; commands spawn it on demand.
func (a *app) newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "daemon",
		Short:  "Run the session host in the foreground",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, dirErr := config.EnsureSocketDir(); dirErr != nil {
				return dirErr
			}

			listener, listenErr := ipc.Listen(a.socketPath)
			if listenErr != nil {
				return listenErr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			host := daemon.New(a.cfg, listener, a.log.Logger.WithName("host"))
			return host.Run(ctx)
		},
	}
}

// newShutdownCmd stops a running session host without touching one that
// isn't there.
func (a *app) newShutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Stop the session host",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			client, connectErr := a.connectExisting()
			if connectErr != nil {
				if errors.Is(connectErr, ipc.ErrDaemonNotRunning) {
					fmt.Println(dimColor.Sprint("No session host running."))
					return nil
				}
				return connectErr
			}
			defer client.Close()

			if _, callErr := client.Call(ipc.Command{Type: ipc.CommandShutdown}); callErr != nil {
				return callErr
			}
			fmt.Println("Session host stopped.")
			return nil
		},
	}
}
