// Package ipc defines the wire contract between short-lived caller
// invocations and the long-lived session host, plus the client side of that
// contract. Frames are length-prefixed JSON; every request gets exactly one
// response carrying the same correlation id.
package ipc

import (
	"encoding/json"
	"fmt"
)

// Request is one caller command.
type Request struct {
	// ID is a client-assigned correlation id echoed in the response.
	ID string `json:"id"`

	// Command is the operation to execute.
	Command Command `json:"command"`
}

// Response answers exactly one Request.
type Response struct {
	// ID echoes the request's correlation id.
	ID string `json:"id"`

	// Success reports whether the command succeeded.
	Success bool `json:"success"`

	// Result carries command-specific data on success.
	Result json.RawMessage `json:"result,omitempty"`

	// Error carries a structured code and message on failure.
	Error *Error `json:"error,omitempty"`
}

// Error is the structured failure a response carries.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes. The code, not the message, is the contract callers branch on.
const (
	CodeDaemonNotRunning     = "DAEMON_NOT_RUNNING"
	CodeSessionNotActive     = "SESSION_NOT_ACTIVE"
	CodeSessionAlreadyActive = "SESSION_ALREADY_ACTIVE"
	CodeAdapterNotFound      = "ADAPTER_NOT_FOUND"
	CodeInvalidLocation      = "INVALID_LOCATION"
	CodeBreakpointNotFound   = "BREAKPOINT_NOT_FOUND"
	CodeInvalidState         = "INVALID_STATE"
	CodeThreadNotFound       = "THREAD_NOT_FOUND"
	CodeFrameNotFound        = "FRAME_NOT_FOUND"
	CodeTimeout              = "TIMEOUT"
	CodeProgramExited        = "PROGRAM_EXITED"
	CodeDapRequestFailed     = "DAP_REQUEST_FAILED"
	CodeUnknownCommand       = "UNKNOWN_COMMAND"
	CodeInternalError        = "INTERNAL_ERROR"
)

// CommandType discriminates the closed command set.
type CommandType string

const (
	CommandStart   CommandType = "start"
	CommandAttach  CommandType = "attach"
	CommandDetach  CommandType = "detach"
	CommandStop    CommandType = "stop"
	CommandRestart CommandType = "restart"
	CommandStatus  CommandType = "status"

	CommandBreakpointAdd     CommandType = "breakpoint_add"
	CommandBreakpointRemove  CommandType = "breakpoint_remove"
	CommandBreakpointList    CommandType = "breakpoint_list"
	CommandBreakpointEnable  CommandType = "breakpoint_enable"
	CommandBreakpointDisable CommandType = "breakpoint_disable"

	CommandContinue CommandType = "continue"
	CommandNext     CommandType = "next"
	CommandStepIn   CommandType = "step_in"
	CommandStepOut  CommandType = "step_out"
	CommandPause    CommandType = "pause"

	CommandStackTrace CommandType = "stack_trace"
	CommandLocals     CommandType = "locals"
	CommandEvaluate   CommandType = "evaluate"
	CommandScopes     CommandType = "scopes"
	CommandVariables  CommandType = "variables"

	CommandThreads      CommandType = "threads"
	CommandThreadSelect CommandType = "thread_select"
	CommandFrameSelect  CommandType = "frame_select"

	CommandAwait CommandType = "await"

	CommandGetOutput       CommandType = "get_output"
	CommandSubscribeOutput CommandType = "subscribe_output"

	CommandShutdown CommandType = "shutdown"
)

// Command is the tagged union of caller operations. Type selects the
// variant; the other fields are variant-specific and omitted when unused.
type Command struct {
	Type CommandType `json:"type"`

	// start
	Program     string   `json:"program,omitempty"`
	Args        []string `json:"args,omitempty"`
	Adapter     string   `json:"adapter,omitempty"`
	StopOnEntry bool     `json:"stop_on_entry,omitempty"`

	// attach
	PID int `json:"pid,omitempty"`

	// breakpoint_add / breakpoint_remove / breakpoint_enable / breakpoint_disable
	Location  string `json:"location,omitempty"`
	Condition string `json:"condition,omitempty"`
	HitCount  int    `json:"hit_count,omitempty"`
	ID        int    `json:"bp_id,omitempty"`
	All       bool   `json:"all,omitempty"`

	// stack_trace / locals / evaluate / scopes / variables / thread_select /
	// frame_select
	ThreadID   int    `json:"thread_id,omitempty"`
	FrameID    int    `json:"frame_id,omitempty"`
	Reference  int    `json:"reference,omitempty"`
	Expression string `json:"expression,omitempty"`
	Context    string `json:"context,omitempty"`
	Limit      int    `json:"limit,omitempty"`

	// await
	TimeoutSecs int `json:"timeout_secs,omitempty"`

	// get_output
	Tail  int  `json:"tail,omitempty"`
	Clear bool `json:"clear,omitempty"`
}

// SuccessResponse builds a success response, marshaling result. A marshal
// failure degrades to an internal error response rather than a broken frame.
func SuccessResponse(id string, result any) Response {
	if result == nil {
		return Response{ID: id, Success: true, Result: json.RawMessage(`{}`)}
	}

	data, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return ErrorResponse(id, CodeInternalError, fmt.Sprintf("failed to encode result: %v", marshalErr))
	}
	return Response{ID: id, Success: true, Result: data}
}

// ErrorResponse builds a failure response.
func ErrorResponse(id, code, message string) Response {
	return Response{
		ID:      id,
		Success: false,
		Error:   &Error{Code: code, Message: message},
	}
}
