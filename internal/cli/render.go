package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	godap "github.com/google/go-dap"

	"github.com/akiselev/debugger-cli/internal/session"
)

var (
	headerColor  = color.New(color.Bold)
	stateColor   = color.New(color.FgCyan)
	stoppedColor = color.New(color.FgYellow)
	errColor     = color.New(color.FgRed)
	okColor      = color.New(color.FgGreen)
	dimColor     = color.New(color.Faint)
)

func renderStatus(status session.Status) {
	fmt.Printf("%s %s\n", headerColor.Sprint("State:"), stateColor.Sprint(string(status.State)))
	if status.Attached {
		fmt.Println("Origin: attached")
	}
	if status.StopReason != "" {
		fmt.Printf("Stop reason: %s\n", stoppedColor.Sprint(status.StopReason))
	}
	if status.CurrentThread != 0 {
		fmt.Printf("Thread: %d\n", status.CurrentThread)
	}
	if status.CurrentFrame != 0 {
		fmt.Printf("Frame: %d\n", status.CurrentFrame)
	}
	fmt.Printf("Breakpoints: %d\n", status.Breakpoints)
	if status.BufferedOutput > 0 {
		fmt.Printf("Buffered output events: %d\n", status.BufferedOutput)
	}
	if status.ExitCode != nil {
		fmt.Printf("Exit code: %d\n", *status.ExitCode)
	}
	if status.TerminationReason != "" {
		fmt.Printf("Ended: %s\n", status.TerminationReason)
	}
}

func renderBreakpoint(bp session.Breakpoint) {
	verdict := dimColor.Sprint("pending")
	if bp.Verified {
		verdict = okColor.Sprint("verified")
		if bp.VerifiedLine != 0 && bp.VerifiedLine != bp.Location.Line {
			verdict = okColor.Sprintf("verified (moved to line %d)", bp.VerifiedLine)
		}
	} else if !bp.Enabled {
		verdict = dimColor.Sprint("disabled")
	} else if bp.Message != "" {
		verdict = errColor.Sprint(bp.Message)
	}

	extras := ""
	if bp.Condition != "" {
		extras += fmt.Sprintf(" if %s", bp.Condition)
	}
	if bp.HitCondition != "" {
		extras += fmt.Sprintf(" hits %s", bp.HitCondition)
	}

	fmt.Printf("  [%d] %s%s  %s\n", bp.ID, bp.Location.String(), extras, verdict)
}

func renderFrames(frames []godap.StackFrame, currentFrame int) {
	for i, frame := range frames {
		marker := " "
		if frame.Id == currentFrame {
			marker = ">"
		}
		location := ""
		if frame.Source != nil && frame.Source.Path != "" {
			location = dimColor.Sprintf("  %s:%d", frame.Source.Path, frame.Line)
		}
		fmt.Printf("%s #%d %s%s\n", marker, i, frame.Name, location)
	}
}

func renderVariables(variables []godap.Variable) {
	for _, v := range variables {
		typeNote := ""
		if v.Type != "" {
			typeNote = dimColor.Sprintf(" (%s)", v.Type)
		}
		expandable := ""
		if v.VariablesReference > 0 {
			expandable = dimColor.Sprintf("  [ref %d]", v.VariablesReference)
		}
		fmt.Printf("  %s = %s%s%s\n", v.Name, v.Value, typeNote, expandable)
	}
}

func renderOutputEvent(ev session.OutputEvent) {
	out := os.Stdout
	if ev.Category == "stderr" {
		out = os.Stderr
	}
	fmt.Fprint(out, ev.Output)
	if !strings.HasSuffix(ev.Output, "\n") {
		fmt.Fprintln(out)
	}
}
