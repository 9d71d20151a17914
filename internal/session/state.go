package session

import (
	"fmt"
	"strings"
)

// State is the debug session's lifecycle phase.
type State string

const (
	// StateIdle means no adapter is attached; start/attach is permitted.
	StateIdle State = "Idle"

	// StateInitializing covers the capability handshake with the adapter.
	StateInitializing State = "Initializing"

	// StateConfiguring is the window between the adapter's initialized signal
	// and configurationDone, when breakpoints are submitted.
	StateConfiguring State = "Configuring"

	// StateRunning means the debuggee is executing.
	StateRunning State = "Running"

	// StateStopped means the debuggee is suspended and inspectable.
	StateStopped State = "Stopped"

	// StateTerminating means a stop/detach is in flight.
	StateTerminating State = "Terminating"

	// StateTerminated means the session ended; start/attach is permitted
	// again.
	StateTerminated State = "Terminated"
)

// StateError reports a command attempted in an incompatible session state.
// It names the current state and the states the command requires.
type StateError struct {
	// Op is the rejected operation ("continue", "evaluate", ...).
	Op string

	// Current is the session state at the time of the attempt.
	Current State

	// Required lists the states in which Op is valid.
	Required []State
}

func (e *StateError) Error() string {
	names := make([]string, len(e.Required))
	for i, s := range e.Required {
		names[i] = string(s)
	}
	return fmt.Sprintf("cannot %s in state %s (requires %s)", e.Op, e.Current, strings.Join(names, " or "))
}

// requireState returns a StateError unless current is one of the allowed
// states.
func requireState(op string, current State, allowed ...State) error {
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	return &StateError{Op: op, Current: current, Required: allowed}
}
