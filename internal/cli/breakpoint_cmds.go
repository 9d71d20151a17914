package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/akiselev/debugger-cli/internal/ipc"
	"github.com/akiselev/debugger-cli/internal/session"
)

func (a *app) newBreakCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "break",
		Aliases: []string{"bp", "breakpoint"},
		Short:   "Manage breakpoints",
	}
	cmd.AddCommand(
		a.newBreakAddCmd(),
		a.newBreakRemoveCmd(),
		a.newBreakListCmd(),
		a.newBreakEnableCmd(true),
		a.newBreakEnableCmd(false),
	)
	return cmd
}

func (a *app) newBreakAddCmd() *cobra.Command {
	var condition string
	var hitCount int

	cmd := &cobra.Command{
		Use:   "add <file:line | function>",
		Short: "Add a breakpoint at a source line or function",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), ipc.Command{
				Type:      ipc.CommandBreakpointAdd,
				Location:  args[0],
				Condition: condition,
				HitCount:  hitCount,
			}, func(raw json.RawMessage) error {
				bp, decodeErr := decode[session.Breakpoint](raw)
				if decodeErr != nil {
					return decodeErr
				}
				renderBreakpoint(bp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&condition, "condition", "", "Only stop when this expression is true")
	cmd.Flags().IntVar(&hitCount, "hit-count", 0, "Only stop after this many hits")
	return cmd
}

func (a *app) newBreakRemoveCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "remove [id]",
		Short: "Remove a breakpoint by id, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ipcCmd := ipc.Command{Type: ipc.CommandBreakpointRemove, All: all}
			if !all {
				if len(args) == 0 {
					return fmt.Errorf("either a breakpoint id or --all is required")
				}
				id, parseErr := strconv.Atoi(args[0])
				if parseErr != nil {
					return fmt.Errorf("invalid breakpoint id %q", args[0])
				}
				ipcCmd.ID = id
			}
			return a.run(cmd.Context(), ipcCmd, nil)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every breakpoint")
	return cmd
}

func (a *app) newBreakListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List breakpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), ipc.Command{Type: ipc.CommandBreakpointList},
				func(raw json.RawMessage) error {
					result, decodeErr := decode[struct {
						Breakpoints []session.Breakpoint `json:"breakpoints"`
					}](raw)
					if decodeErr != nil {
						return decodeErr
					}
					if len(result.Breakpoints) == 0 {
						fmt.Println("No breakpoints.")
						return nil
					}
					for _, bp := range result.Breakpoints {
						renderBreakpoint(bp)
					}
					return nil
				})
		},
	}
}

func (a *app) newBreakEnableCmd(enable bool) *cobra.Command {
	use, short := "enable <id>", "Enable a disabled breakpoint"
	cmdType := ipc.CommandBreakpointEnable
	if !enable {
		use, short = "disable <id>", "Disable a breakpoint without removing it"
		cmdType = ipc.CommandBreakpointDisable
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, parseErr := strconv.Atoi(args[0])
			if parseErr != nil {
				return fmt.Errorf("invalid breakpoint id %q", args[0])
			}
			return a.run(cmd.Context(), ipc.Command{Type: cmdType, ID: id}, nil)
		},
	}
}
