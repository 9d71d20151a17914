package cli

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/akiselev/debugger-cli/internal/ipc"
	"github.com/akiselev/debugger-cli/internal/session"
)

func (a *app) newOutputCmd() *cobra.Command {
	var tail int
	var clear bool
	var follow bool

	cmd := &cobra.Command{
		Use:   "output",
		Short: "Show buffered debuggee output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if follow {
				return a.followOutput(cmd)
			}
			return a.run(cmd.Context(), ipc.Command{
				Type:  ipc.CommandGetOutput,
				Tail:  tail,
				Clear: clear,
			}, func(raw json.RawMessage) error {
				result, decodeErr := decode[struct {
					Events []session.OutputEvent `json:"events"`
				}](raw)
				if decodeErr != nil {
					return decodeErr
				}
				for _, ev := range result.Events {
					renderOutputEvent(ev)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 0, "Only show the last N events")
	cmd.Flags().BoolVar(&clear, "clear", false, "Drain the buffer after showing it")
	cmd.Flags().BoolVar(&follow, "follow", false, "Stream output live until interrupted")
	return cmd
}

// followOutput switches the connection into streaming mode and prints events
// until the host goes away or the command is interrupted.
func (a *app) followOutput(cmd *cobra.Command) error {
	client, connectErr := a.connect(cmd.Context())
	if connectErr != nil {
		return connectErr
	}
	defer client.Close()

	if _, subscribeErr := client.Call(ipc.Command{Type: ipc.CommandSubscribeOutput}); subscribeErr != nil {
		return subscribeErr
	}

	// Interruption cancels the command context; closing the connection
	// unblocks the read below.
	go func() {
		<-cmd.Context().Done()
		client.Close()
	}()

	for {
		var ev session.OutputEvent
		if readErr := client.ReadEvent(&ev); readErr != nil {
			if errors.Is(readErr, io.EOF) || cmd.Context().Err() != nil {
				return nil
			}
			return readErr
		}
		renderOutputEvent(ev)
	}
}
