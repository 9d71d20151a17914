package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	godap "github.com/google/go-dap"
	"github.com/spf13/cobra"

	"github.com/akiselev/debugger-cli/internal/ipc"
)

func (a *app) newStackCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "stack",
		Aliases: []string{"bt", "backtrace"},
		Short:   "Show the current thread's stack",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), ipc.Command{Type: ipc.CommandStackTrace},
				func(raw json.RawMessage) error {
					result, decodeErr := decode[struct {
						Frames       []godap.StackFrame `json:"frames"`
						CurrentFrame int                `json:"currentFrame"`
					}](raw)
					if decodeErr != nil {
						return decodeErr
					}
					renderFrames(result.Frames, result.CurrentFrame)
					return nil
				})
		},
	}
}

// variablesRenderer decodes a {"variables": [...]} result.
func variablesRenderer(raw json.RawMessage) error {
	result, decodeErr := decode[struct {
		Variables []godap.Variable `json:"variables"`
	}](raw)
	if decodeErr != nil {
		return decodeErr
	}
	if len(result.Variables) == 0 {
		fmt.Println("No variables.")
		return nil
	}
	renderVariables(result.Variables)
	return nil
}

func (a *app) newLocalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locals",
		Short: "Show the current frame's local variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), ipc.Command{Type: ipc.CommandLocals}, variablesRenderer)
		},
	}
}

func (a *app) newEvalCmd() *cobra.Command {
	var evalContext string

	cmd := &cobra.Command{
		Use:     "eval <expression>",
		Aliases: []string{"p", "print"},
		Short:   "Evaluate an expression in the current frame",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), ipc.Command{
				Type:       ipc.CommandEvaluate,
				Expression: args[0],
				Context:    evalContext,
			}, func(raw json.RawMessage) error {
				result, decodeErr := decode[godap.EvaluateResponseBody](raw)
				if decodeErr != nil {
					return decodeErr
				}
				typeNote := ""
				if result.Type != "" {
					typeNote = dimColor.Sprintf(" (%s)", result.Type)
				}
				fmt.Printf("%s%s\n", result.Result, typeNote)
				if result.VariablesReference > 0 {
					fmt.Println(dimColor.Sprintf("expandable: debugger vars %d", result.VariablesReference))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&evalContext, "context", "", "Evaluation context: repl, watch, or hover")
	return cmd
}

func (a *app) newScopesCmd() *cobra.Command {
	var frameID int

	cmd := &cobra.Command{
		Use:   "scopes",
		Short: "List the variable scopes of a frame",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), ipc.Command{
				Type:    ipc.CommandScopes,
				FrameID: frameID,
			}, func(raw json.RawMessage) error {
				result, decodeErr := decode[struct {
					Scopes []godap.Scope `json:"scopes"`
				}](raw)
				if decodeErr != nil {
					return decodeErr
				}
				for _, scope := range result.Scopes {
					note := ""
					if scope.Expensive {
						note = dimColor.Sprint(" (expensive)")
					}
					fmt.Printf("  %s  [ref %d]%s\n", scope.Name, scope.VariablesReference, note)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&frameID, "frame", 0, "Frame id (defaults to the current frame)")
	return cmd
}

func (a *app) newVarsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vars <reference>",
		Short: "Expand a variables reference from scopes, locals, or eval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, parseErr := strconv.Atoi(args[0])
			if parseErr != nil {
				return fmt.Errorf("invalid variables reference %q", args[0])
			}
			return a.run(cmd.Context(), ipc.Command{
				Type:      ipc.CommandVariables,
				Reference: ref,
			}, variablesRenderer)
		},
	}
}

func (a *app) newThreadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List the debuggee's threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), ipc.Command{Type: ipc.CommandThreads},
				func(raw json.RawMessage) error {
					result, decodeErr := decode[struct {
						Threads []godap.Thread `json:"threads"`
					}](raw)
					if decodeErr != nil {
						return decodeErr
					}
					for _, th := range result.Threads {
						fmt.Printf("  [%d] %s\n", th.Id, th.Name)
					}
					return nil
				})
		},
	}
}

func (a *app) newThreadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread <id>",
		Short: "Switch the current thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, parseErr := strconv.Atoi(args[0])
			if parseErr != nil {
				return fmt.Errorf("invalid thread id %q", args[0])
			}
			return a.run(cmd.Context(), ipc.Command{Type: ipc.CommandThreadSelect, ThreadID: id}, nil)
		},
	}
}

func (a *app) newFrameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "frame <id | up | down>",
		Short: "Switch the current frame, by id or relative to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "up" || args[0] == "down" {
				return a.moveFrame(cmd, args[0])
			}
			id, parseErr := strconv.Atoi(args[0])
			if parseErr != nil {
				return fmt.Errorf("invalid frame id %q", args[0])
			}
			return a.run(cmd.Context(), ipc.Command{Type: ipc.CommandFrameSelect, FrameID: id}, nil)
		},
	}
}

// moveFrame walks one frame toward the caller (up) or the callee (down),
// relative to the host's current frame.
func (a *app) moveFrame(cmd *cobra.Command, direction string) error {
	raw, traceErr := a.call(cmd.Context(), ipc.Command{Type: ipc.CommandStackTrace})
	if traceErr != nil {
		return traceErr
	}
	result, decodeErr := decode[struct {
		Frames       []godap.StackFrame `json:"frames"`
		CurrentFrame int                `json:"currentFrame"`
	}](raw)
	if decodeErr != nil {
		return decodeErr
	}

	current := 0
	for i, frame := range result.Frames {
		if frame.Id == result.CurrentFrame {
			current = i
			break
		}
	}

	target := current + 1
	if direction == "down" {
		target = current - 1
	}
	if target < 0 || target >= len(result.Frames) {
		return fmt.Errorf("already at the %smost frame", map[string]string{"up": "outer", "down": "inner"}[direction])
	}

	return a.run(cmd.Context(), ipc.Command{
		Type:    ipc.CommandFrameSelect,
		FrameID: result.Frames[target].Id,
	}, nil)
}
