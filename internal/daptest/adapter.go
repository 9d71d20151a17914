// Package daptest provides an in-process scriptable debug adapter for tests.
// It speaks real Content-Length framed DAP over one end of a net.Pipe, so the
// code under test exercises its full codec and client paths against it.
package daptest

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	godap "github.com/google/go-dap"

	"github.com/akiselev/debugger-cli/internal/dap"
)

// Adapter is a fake debug adapter. Requests are served sequentially by a
// single goroutine; events can be injected at any time from the test.
type Adapter struct {
	conn net.Conn

	mu sync.Mutex

	// Capabilities returned from initialize.
	capabilities godap.Capabilities

	// failCommands maps a command to the error message its response carries
	// (success=false).
	failCommands map[string]string

	// stallCommands lists commands the adapter never answers, for exercising
	// request timeouts.
	stallCommands map[string]bool

	// breakpoints records the most recent full set received per file.
	breakpoints map[string][]godap.SourceBreakpoint

	// bpIDs assigns stable ids to verified breakpoints.
	nextBPID int

	// hitCounts tracks simulated hits per file:line for hit conditions.
	hitCounts map[string]int

	// stopOnResume, when set, makes resume commands (continue, next, stepIn,
	// stepOut) emit a stopped event after their response.
	stopOnResume *StopScript

	// threads, frames, scopes, variables, evalResults are the canned
	// inspection surface.
	threads     []godap.Thread
	frames      []godap.StackFrame
	scopes      []godap.Scope
	variables   map[int][]godap.Variable
	evalResults map[string]godap.EvaluateResponseBody

	// launched and configured track handshake progress.
	launched   bool
	configured bool

	seq     int
	writeMu sync.Mutex

	done chan struct{}
}

// StopScript describes the stop a resume command should produce.
type StopScript struct {
	// Reason for the stopped event ("breakpoint", "step", "pause", ...).
	Reason string

	// ThreadID reported in the stopped event.
	ThreadID int

	// File and Line identify the breakpoint being "hit". When the stored
	// breakpoint at that location carries an integer hit condition N, the
	// adapter counts hits and only stops once N is reached.
	File string
	Line int
}

// New starts an adapter over an in-memory pipe and returns it together with
// the client-side transport.
func New() (*Adapter, dap.Transport) {
	clientConn, adapterConn := net.Pipe()

	a := &Adapter{
		conn: adapterConn,
		capabilities: godap.Capabilities{
			SupportsConfigurationDoneRequest:  true,
			SupportsConditionalBreakpoints:    true,
			SupportsHitConditionalBreakpoints: true,
			SupportsEvaluateForHovers:         true,
			SupportsFunctionBreakpoints:       true,
		},
		failCommands:  make(map[string]string),
		stallCommands: make(map[string]bool),
		breakpoints:   make(map[string][]godap.SourceBreakpoint),
		hitCounts:     make(map[string]int),
		variables:     make(map[int][]godap.Variable),
		evalResults:   make(map[string]godap.EvaluateResponseBody),
		nextBPID:      1,
		done:          make(chan struct{}),
	}

	a.threads = []godap.Thread{{Id: 1, Name: "main"}}
	a.frames = []godap.StackFrame{
		{Id: 1000, Name: "main.main", Line: 10, Source: &godap.Source{Path: "/src/main.go"}},
		{Id: 1001, Name: "runtime.main", Line: 250, Source: &godap.Source{Path: "/usr/lib/go/src/runtime/proc.go"}},
	}
	a.scopes = []godap.Scope{
		{Name: "Locals", VariablesReference: 2000},
		{Name: "Globals", VariablesReference: 2001, Expensive: true},
	}
	a.variables[2000] = []godap.Variable{
		{Name: "x", Value: "42", Type: "int"},
		{Name: "items", Value: "[]int len: 3", Type: "[]int", VariablesReference: 2002},
	}
	a.variables[2002] = []godap.Variable{
		{Name: "[0]", Value: "1", Type: "int"},
		{Name: "[1]", Value: "2", Type: "int"},
		{Name: "[2]", Value: "3", Type: "int"},
	}

	go a.serve()

	return a, dap.NewConnTransport(clientConn)
}

// SetCapabilities overrides the capabilities returned from initialize. Must
// be called before the client initializes.
func (a *Adapter) SetCapabilities(caps godap.Capabilities) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capabilities = caps
}

// FailCommand makes the adapter answer command with success=false and the
// given message.
func (a *Adapter) FailCommand(command, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failCommands[command] = message
}

// StallCommand makes the adapter swallow command without answering.
func (a *Adapter) StallCommand(command string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stallCommands[command] = true
}

// StopOnResume makes resume commands produce a stopped event.
func (a *Adapter) StopOnResume(script *StopScript) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopOnResume = script
}

// SetEvalResult cans the result for an expression.
func (a *Adapter) SetEvalResult(expression string, body godap.EvaluateResponseBody) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.evalResults[expression] = body
}

// Breakpoints returns the most recent full breakpoint set received for file.
func (a *Adapter) Breakpoints(file string) []godap.SourceBreakpoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]godap.SourceBreakpoint(nil), a.breakpoints[file]...)
}

// HitCount returns how many simulated hits a breakpoint location has seen.
func (a *Adapter) HitCount(file string, line int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hitCounts[hitKey(file, line)]
}

// EmitOutput injects an output event.
func (a *Adapter) EmitOutput(category, output string) {
	ev := &godap.OutputEvent{
		Event: godap.Event{Event: "output"},
		Body:  godap.OutputEventBody{Category: category, Output: output},
	}
	a.sendEvent(ev)
}

// EmitStopped injects a stopped event.
func (a *Adapter) EmitStopped(reason string, threadID int) {
	ev := &godap.StoppedEvent{
		Event: godap.Event{Event: "stopped"},
		Body: godap.StoppedEventBody{
			Reason:            reason,
			ThreadId:          threadID,
			AllThreadsStopped: true,
		},
	}
	a.sendEvent(ev)
}

// EmitContinued injects a continued event.
func (a *Adapter) EmitContinued(threadID int) {
	ev := &godap.ContinuedEvent{
		Event: godap.Event{Event: "continued"},
		Body:  godap.ContinuedEventBody{ThreadId: threadID, AllThreadsContinued: true},
	}
	a.sendEvent(ev)
}

// EmitExited injects an exited event carrying the debuggee's exit code.
func (a *Adapter) EmitExited(exitCode int) {
	ev := &godap.ExitedEvent{
		Event: godap.Event{Event: "exited"},
		Body:  godap.ExitedEventBody{ExitCode: exitCode},
	}
	a.sendEvent(ev)
}

// EmitTerminated injects a terminated event.
func (a *Adapter) EmitTerminated() {
	ev := &godap.TerminatedEvent{
		Event: godap.Event{Event: "terminated"},
	}
	a.sendEvent(ev)
}

// CloseAbruptly drops the connection without any protocol farewell,
// simulating an adapter crash.
func (a *Adapter) CloseAbruptly() {
	a.conn.Close()
}

// Done is closed when the adapter's serve loop has exited.
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

func (a *Adapter) serve() {
	defer close(a.done)

	reader := bufio.NewReader(a.conn)
	for {
		msg, readErr := dap.ReadMessage(reader)
		if readErr != nil {
			return
		}

		req, ok := msg.(godap.RequestMessage)
		if !ok {
			continue
		}
		a.handleRequest(req)
	}
}

func (a *Adapter) handleRequest(req godap.RequestMessage) {
	r := req.GetRequest()

	a.mu.Lock()
	if a.stallCommands[r.Command] {
		a.mu.Unlock()
		return
	}
	failMsg, shouldFail := a.failCommands[r.Command]
	a.mu.Unlock()

	if shouldFail {
		a.send(&godap.ErrorResponse{
			Response: failedResponse(r, failMsg),
		})
		return
	}

	switch r.Command {
	case "initialize":
		a.mu.Lock()
		caps := a.capabilities
		a.mu.Unlock()
		a.send(&godap.InitializeResponse{
			Response: okResponse(r),
			Body:     caps,
		})

	case "launch":
		a.mu.Lock()
		a.launched = true
		a.mu.Unlock()
		a.send(&godap.LaunchResponse{Response: okResponse(r)})
		a.sendEvent(&godap.InitializedEvent{Event: godap.Event{Event: "initialized"}})

	case "attach":
		a.mu.Lock()
		a.launched = true
		a.mu.Unlock()
		a.send(&godap.AttachResponse{Response: okResponse(r)})
		a.sendEvent(&godap.InitializedEvent{Event: godap.Event{Event: "initialized"}})

	case "configurationDone":
		a.mu.Lock()
		a.configured = true
		a.mu.Unlock()
		a.send(&godap.ConfigurationDoneResponse{Response: okResponse(r)})

	case "setBreakpoints":
		a.handleSetBreakpoints(req.(*godap.SetBreakpointsRequest))

	case "setFunctionBreakpoints":
		fbReq := req.(*godap.SetFunctionBreakpointsRequest)
		results := make([]godap.Breakpoint, len(fbReq.Arguments.Breakpoints))
		a.mu.Lock()
		for i := range fbReq.Arguments.Breakpoints {
			results[i] = godap.Breakpoint{Id: a.nextBPID, Verified: true}
			a.nextBPID++
		}
		a.mu.Unlock()
		a.send(&godap.SetFunctionBreakpointsResponse{
			Response: okResponse(r),
			Body:     godap.SetFunctionBreakpointsResponseBody{Breakpoints: results},
		})

	case "continue":
		a.send(&godap.ContinueResponse{
			Response: okResponse(r),
			Body:     godap.ContinueResponseBody{AllThreadsContinued: true},
		})
		a.maybeStopAfterResume()

	case "next":
		a.send(&godap.NextResponse{Response: okResponse(r)})
		a.maybeStopAfterResume()

	case "stepIn":
		a.send(&godap.StepInResponse{Response: okResponse(r)})
		a.maybeStopAfterResume()

	case "stepOut":
		a.send(&godap.StepOutResponse{Response: okResponse(r)})
		a.maybeStopAfterResume()

	case "pause":
		a.send(&godap.PauseResponse{Response: okResponse(r)})
		a.EmitStopped("pause", 1)

	case "threads":
		a.mu.Lock()
		threads := append([]godap.Thread(nil), a.threads...)
		a.mu.Unlock()
		a.send(&godap.ThreadsResponse{
			Response: okResponse(r),
			Body:     godap.ThreadsResponseBody{Threads: threads},
		})

	case "stackTrace":
		a.mu.Lock()
		frames := append([]godap.StackFrame(nil), a.frames...)
		a.mu.Unlock()
		a.send(&godap.StackTraceResponse{
			Response: okResponse(r),
			Body:     godap.StackTraceResponseBody{StackFrames: frames, TotalFrames: len(frames)},
		})

	case "scopes":
		a.mu.Lock()
		scopes := append([]godap.Scope(nil), a.scopes...)
		a.mu.Unlock()
		a.send(&godap.ScopesResponse{
			Response: okResponse(r),
			Body:     godap.ScopesResponseBody{Scopes: scopes},
		})

	case "variables":
		varsReq := req.(*godap.VariablesRequest)
		a.mu.Lock()
		vars := append([]godap.Variable(nil), a.variables[varsReq.Arguments.VariablesReference]...)
		a.mu.Unlock()
		a.send(&godap.VariablesResponse{
			Response: okResponse(r),
			Body:     godap.VariablesResponseBody{Variables: vars},
		})

	case "evaluate":
		evalReq := req.(*godap.EvaluateRequest)
		a.mu.Lock()
		body, known := a.evalResults[evalReq.Arguments.Expression]
		a.mu.Unlock()
		if !known {
			body = godap.EvaluateResponseBody{Result: "<unknown>"}
		}
		a.send(&godap.EvaluateResponse{
			Response: okResponse(r),
			Body:     body,
		})

	case "restart":
		a.send(&godap.RestartResponse{Response: okResponse(r)})
		a.sendEvent(&godap.InitializedEvent{Event: godap.Event{Event: "initialized"}})

	case "disconnect":
		a.send(&godap.DisconnectResponse{Response: okResponse(r)})
		a.EmitTerminated()
		a.conn.Close()

	default:
		a.send(&godap.ErrorResponse{
			Response: failedResponse(r, "unsupported command: "+r.Command),
		})
	}
}

func (a *Adapter) handleSetBreakpoints(req *godap.SetBreakpointsRequest) {
	r := &req.Request
	file := req.Arguments.Source.Path

	a.mu.Lock()
	a.breakpoints[file] = append([]godap.SourceBreakpoint(nil), req.Arguments.Breakpoints...)
	results := make([]godap.Breakpoint, len(req.Arguments.Breakpoints))
	for i, sb := range req.Arguments.Breakpoints {
		results[i] = godap.Breakpoint{
			Id:       a.nextBPID,
			Verified: true,
			Line:     sb.Line,
			Source:   &godap.Source{Path: file},
		}
		a.nextBPID++
	}
	a.mu.Unlock()

	a.send(&godap.SetBreakpointsResponse{
		Response: okResponse(r),
		Body:     godap.SetBreakpointsResponseBody{Breakpoints: results},
	})
}

// maybeStopAfterResume simulates the program running until the scripted stop.
// A breakpoint with an integer hit condition is hit repeatedly until the
// count reaches the condition, then the stopped event fires.
func (a *Adapter) maybeStopAfterResume() {
	a.mu.Lock()
	script := a.stopOnResume
	a.mu.Unlock()

	if script == nil {
		return
	}

	if script.File != "" {
		required := 1
		a.mu.Lock()
		for _, sb := range a.breakpoints[script.File] {
			if sb.Line == script.Line && sb.HitCondition != "" {
				if n, parseErr := strconv.Atoi(strings.TrimSpace(sb.HitCondition)); parseErr == nil && n > 0 {
					required = n
				}
			}
		}
		key := hitKey(script.File, script.Line)
		a.hitCounts[key] += required
		a.mu.Unlock()
	}

	a.EmitStopped(script.Reason, script.ThreadID)
}

func (a *Adapter) send(msg godap.Message) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.seq++
	setSeq(msg, a.seq)
	_ = dap.WriteMessage(a.conn, msg)
}

func (a *Adapter) sendEvent(ev godap.EventMessage) {
	a.send(ev)
}

func okResponse(r *godap.Request) godap.Response {
	return godap.Response{
		ProtocolMessage: godap.ProtocolMessage{Type: "response"},
		Command:         r.Command,
		RequestSeq:      r.Seq,
		Success:         true,
	}
}

func failedResponse(r *godap.Request, message string) godap.Response {
	return godap.Response{
		ProtocolMessage: godap.ProtocolMessage{Type: "response"},
		Command:         r.Command,
		RequestSeq:      r.Seq,
		Success:         false,
		Message:         message,
	}
}

// setSeq stamps the outgoing message's seq and its protocol message type;
// the decoder on the other side rejects frames without the latter.
func setSeq(msg godap.Message, seq int) {
	switch m := msg.(type) {
	case godap.RequestMessage:
		pm := &m.GetRequest().ProtocolMessage
		pm.Seq = seq
		pm.Type = "request"
	case godap.ResponseMessage:
		pm := &m.GetResponse().ProtocolMessage
		pm.Seq = seq
		pm.Type = "response"
	case godap.EventMessage:
		pm := &m.GetEvent().ProtocolMessage
		pm.Seq = seq
		pm.Type = "event"
	}
}

func hitKey(file string, line int) string {
	return fmt.Sprintf("%s:%d", file, line)
}
