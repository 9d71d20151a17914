package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/akiselev/debugger-cli/internal/ipc"
	"github.com/akiselev/debugger-cli/internal/session"
)

// renderStatusResult is the shared renderer for commands whose result is a
// session status.
func (a *app) renderStatusResult(raw json.RawMessage) error {
	status, decodeErr := decode[session.Status](raw)
	if decodeErr != nil {
		return decodeErr
	}
	renderStatus(status)
	return nil
}

func (a *app) newStartCmd() *cobra.Command {
	var adapter string
	var stopOnEntry bool

	cmd := &cobra.Command{
		Use:   "start <program> [-- <args>...]",
		Short: "Launch a program under the debugger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), ipc.Command{
				Type:        ipc.CommandStart,
				Program:     args[0],
				Args:        args[1:],
				Adapter:     adapter,
				StopOnEntry: stopOnEntry,
			}, a.renderStatusResult)
		},
	}
	cmd.Flags().StringVar(&adapter, "adapter", "", "Adapter to use (defaults to the configured default)")
	cmd.Flags().BoolVar(&stopOnEntry, "stop-on-entry", false, "Stop at the program entry point")
	return cmd
}

func (a *app) newAttachCmd() *cobra.Command {
	var adapter string

	cmd := &cobra.Command{
		Use:   "attach <pid>",
		Short: "Attach the debugger to a running process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, parseErr := strconv.Atoi(args[0])
			if parseErr != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			return a.run(cmd.Context(), ipc.Command{
				Type:    ipc.CommandAttach,
				PID:     pid,
				Adapter: adapter,
			}, a.renderStatusResult)
		},
	}
	cmd.Flags().StringVar(&adapter, "adapter", "", "Adapter to use (defaults to the configured default)")
	return cmd
}

func (a *app) newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "End the debug session and terminate the debuggee",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), ipc.Command{Type: ipc.CommandStop}, a.renderStatusResult)
		},
	}
}

func (a *app) newDetachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detach",
		Short: "End the debug session, leaving the debuggee running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), ipc.Command{Type: ipc.CommandDetach}, a.renderStatusResult)
		},
	}
}

func (a *app) newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the debuggee with the original launch arguments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), ipc.Command{Type: ipc.CommandRestart}, a.renderStatusResult)
		},
	}
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the debug session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Checking on a session should not conjure a host into existence.
			client, connectErr := a.connectExisting()
			if connectErr != nil {
				fmt.Println(dimColor.Sprint("No session host running."))
				return nil
			}
			defer client.Close()

			result, callErr := client.Call(ipc.Command{Type: ipc.CommandStatus})
			if callErr != nil {
				return callErr
			}
			if a.jsonOut {
				fmt.Println(string(result))
				return nil
			}
			return a.renderStatusResult(result)
		},
	}
}

func (a *app) newAwaitCmd() *cobra.Command {
	var timeoutSecs int

	cmd := &cobra.Command{
		Use:   "await",
		Short: "Block until the debuggee stops or exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), ipc.Command{
				Type:        ipc.CommandAwait,
				TimeoutSecs: timeoutSecs,
			}, a.renderStatusResult)
		},
	}
	cmd.Flags().IntVar(&timeoutSecs, "timeout", 0, "Seconds to wait (defaults to the configured await timeout)")
	return cmd
}
