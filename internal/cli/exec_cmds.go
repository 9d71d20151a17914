package cli

import (
	"github.com/spf13/cobra"

	"github.com/akiselev/debugger-cli/internal/ipc"
)

// resumeCmd builds the shared shape of the execution commands: fire the
// command, nothing to render.
func (a *app) resumeCmd(use, short string, cmdType ipc.CommandType, aliases ...string) *cobra.Command {
	return &cobra.Command{
		Use:     use,
		Aliases: aliases,
		Short:   short,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), ipc.Command{Type: cmdType}, nil)
		},
	}
}

func (a *app) newContinueCmd() *cobra.Command {
	return a.resumeCmd("continue", "Resume execution", ipc.CommandContinue, "c")
}

func (a *app) newNextCmd() *cobra.Command {
	return a.resumeCmd("next", "Step over the current line", ipc.CommandNext, "n")
}

func (a *app) newStepCmd() *cobra.Command {
	return a.resumeCmd("step", "Step into the call on the current line", ipc.CommandStepIn, "s")
}

func (a *app) newFinishCmd() *cobra.Command {
	return a.resumeCmd("finish", "Run until the current function returns", ipc.CommandStepOut)
}

func (a *app) newPauseCmd() *cobra.Command {
	return a.resumeCmd("pause", "Suspend the running debuggee", ipc.CommandPause)
}
