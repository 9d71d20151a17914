// Package session implements the debug session state machine. A Session owns
// exactly one protocol client and is the only mutator of breakpoint, thread,
// and frame state; callers (the daemon loop) invoke its operations from a
// single goroutine.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	godap "github.com/google/go-dap"

	"github.com/akiselev/debugger-cli/internal/dap"
)

// ReasonAdapterExited is the termination reason recorded when the adapter's
// stream ends without a protocol farewell.
const ReasonAdapterExited = "adapter exited unexpectedly"

// ErrNoStopEvent is returned by WaitStopped when the deadline passes without
// the debuggee stopping or exiting.
var ErrNoStopEvent = errors.New("timed out waiting for the debuggee to stop")

// ErrRestartUnsupported is returned when the adapter does not advertise
// restart support.
var ErrRestartUnsupported = errors.New("adapter does not support restart")

// Lookup failures for ids callers pass in.
var (
	ErrBreakpointNotFound = errors.New("breakpoint not found")
	ErrThreadNotFound     = errors.New("thread not found")
	ErrFrameNotFound      = errors.New("frame not found")
)

// Config describes how to launch and talk to the debug adapter.
type Config struct {
	// Adapter describes the adapter process to launch.
	Adapter *dap.AdapterConfig

	// AdapterID is the adapter identifier sent in the initialize request
	// ("go", "debugpy", ...).
	AdapterID string

	// Transport, when set, is used instead of launching the adapter process.
	// For in-process adapters.
	Transport dap.Transport

	// RequestTimeout bounds each individual protocol request.
	RequestTimeout time.Duration

	// StopGracePeriod bounds the wait for a clean disconnect reply before
	// the transport is force-closed.
	StopGracePeriod time.Duration

	// OutputMaxEvents and OutputMaxBytes are the output buffer limits.
	OutputMaxEvents int
	OutputMaxBytes  int

	// Logger for session operations.
	Logger logr.Logger
}

// Session is the debug session state machine.
type Session struct {
	log    logr.Logger
	config Config

	client  *dap.Client
	adapter *dap.LaunchedAdapter

	state State

	// attached distinguishes attach origin from launch origin; it controls
	// whether disconnect kills the debuggee by default.
	attached bool

	// launchArgs is kept for restart.
	launchArgs json.RawMessage

	breakpoints *breakpointStore
	output      *OutputBuffer

	// Inspection state, valid only while Stopped.
	currentThread int
	currentFrame  int
	frames        []godap.StackFrame
	framesFetched bool

	// stopReason is the reason of the most recent stopped event.
	stopReason string

	// testTransport, when set, bypasses adapter launching. Populated from
	// Config.Transport, or directly by in-package tests.
	testTransport dap.Transport

	// exitCode is the debuggee's exit code, when an exited event reported
	// one.
	exitCode *int

	// terminationReason explains why the session reached Terminated.
	terminationReason string
}

// New creates an Idle session. Nothing is launched until Start or Attach.
func New(config Config) *Session {
	log := config.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Session{
		log:           log,
		config:        config,
		state:         StateIdle,
		breakpoints:   newBreakpointStore(),
		output:        NewOutputBuffer(config.OutputMaxEvents, config.OutputMaxBytes),
		testTransport: config.Transport,
	}
}

// ConfigureAdapter sets the adapter used by the next Start or Attach. The
// host resolves the adapter per start command, after the session exists.
func (s *Session) ConfigureAdapter(adapter *dap.AdapterConfig, adapterID string) {
	s.config.Adapter = adapter
	s.config.AdapterID = adapterID
}

// ConfigureTransport points the next Start or Attach at an existing
// transport instead of launching an adapter process.
func (s *Session) ConfigureTransport(transport dap.Transport) {
	s.testTransport = transport
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return s.state
}

// Attached reports whether the session attached to a running debuggee rather
// than launching it.
func (s *Session) Attached() bool {
	return s.attached
}

// Output returns the session's output buffer.
func (s *Session) Output() *OutputBuffer {
	return s.output
}

// ExitCode returns the debuggee's exit code, or nil if none was reported.
func (s *Session) ExitCode() *int {
	return s.exitCode
}

// TerminationReason explains why the session ended. Empty until Terminated.
func (s *Session) TerminationReason() string {
	return s.terminationReason
}

// Events exposes the adapter's event stream for the host loop to select on.
// Nil when no adapter is connected, which blocks forever in a select.
func (s *Session) Events() <-chan godap.EventMessage {
	if s.client == nil {
		return nil
	}
	return s.client.Events()
}

// Start launches the adapter, performs the handshake with a launch request,
// submits any pre-set breakpoints, and leaves the session Running.
func (s *Session) Start(ctx context.Context, launchArgs json.RawMessage) error {
	if stateErr := requireState("start", s.state, StateIdle, StateTerminated); stateErr != nil {
		return stateErr
	}

	s.launchArgs = launchArgs
	s.attached = false
	return s.establish(ctx, func(handshakeCtx context.Context) error {
		return s.client.Launch(handshakeCtx, launchArgs)
	})
}

// Attach launches the adapter and performs the handshake with an attach
// request. The debuggee already exists, so a later disconnect leaves it
// running by default.
func (s *Session) Attach(ctx context.Context, attachArgs json.RawMessage) error {
	if stateErr := requireState("attach", s.state, StateIdle, StateTerminated); stateErr != nil {
		return stateErr
	}

	s.launchArgs = attachArgs
	s.attached = true
	return s.establish(ctx, func(handshakeCtx context.Context) error {
		return s.client.Attach(handshakeCtx, attachArgs)
	})
}

// establish runs the shared handshake: launch adapter process, initialize,
// launch/attach, wait for the initialized signal, submit breakpoints,
// configurationDone.
func (s *Session) establish(ctx context.Context, sendOrigin func(context.Context) error) error {
	s.resetRuntimeState()
	s.state = StateInitializing

	transport := s.testTransport
	if transport == nil {
		adapter, launchErr := dap.LaunchAdapter(ctx, s.config.Adapter, s.log)
		if launchErr != nil {
			s.state = StateTerminated
			s.terminationReason = "adapter failed to launch"
			return fmt.Errorf("failed to launch debug adapter: %w", launchErr)
		}
		s.adapter = adapter
		transport = adapter.Transport
	}

	s.client = dap.NewClient(dap.ClientConfig{
		Transport:      transport,
		RequestTimeout: s.config.RequestTimeout,
		Logger:         s.log,
	})

	if _, initErr := s.client.Initialize(ctx, s.config.AdapterID); initErr != nil {
		s.failEstablish("initialize failed")
		return initErr
	}

	if originErr := sendOrigin(ctx); originErr != nil {
		s.failEstablish("launch/attach failed")
		return originErr
	}

	if waitErr := s.client.WaitInitialized(ctx); waitErr != nil {
		s.failEstablish("adapter never signalled initialized")
		return waitErr
	}

	s.state = StateConfiguring

	if submitErr := s.submitAllBreakpoints(ctx); submitErr != nil {
		// Unverifiable breakpoints should not abort the session; the
		// adapter's per-breakpoint verdicts are recorded instead.
		s.log.V(1).Info("Breakpoint submission during configuration failed", "cause", submitErr.Error())
	}

	if configErr := s.client.ConfigurationDone(ctx); configErr != nil {
		s.failEstablish("configurationDone failed")
		return configErr
	}

	s.state = StateRunning
	pid := -1
	if s.adapter != nil {
		pid = s.adapter.Pid()
	}
	s.log.Info("Debug session established", "attached", s.attached, "adapterPid", pid)
	return nil
}

func (s *Session) failEstablish(reason string) {
	s.terminationReason = reason
	s.state = StateTerminated
	s.teardownTransport()
}

func (s *Session) resetRuntimeState() {
	s.exitCode = nil
	s.terminationReason = ""
	s.stopReason = ""
	s.currentThread = 0
	s.invalidateHandles()
	s.breakpoints.ClearVerification()
}

// teardownTransport closes the client and kills the adapter process. Safe to
// call multiple times.
func (s *Session) teardownTransport() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.adapter != nil {
		_ = s.adapter.Stop()
	}
}

// HandleEvent applies one adapter event to the session state. The host loop
// calls this for every event it pulls off Events().
func (s *Session) HandleEvent(ev godap.EventMessage) {
	switch e := ev.(type) {
	case *godap.StoppedEvent:
		s.state = StateStopped
		s.stopReason = e.Body.Reason
		if e.Body.ThreadId != 0 {
			s.currentThread = e.Body.ThreadId
		}
		// Every previously issued reference handle died the moment the
		// debuggee stopped in a new place.
		s.invalidateHandles()
		s.log.V(1).Info("Debuggee stopped", "reason", e.Body.Reason, "threadId", e.Body.ThreadId)

	case *godap.ContinuedEvent:
		s.state = StateRunning
		s.invalidateHandles()
		s.log.V(1).Info("Debuggee continued", "threadId", e.Body.ThreadId)

	case *godap.OutputEvent:
		s.output.Append(e.Body.Category, e.Body.Output)

	case *godap.ExitedEvent:
		code := e.Body.ExitCode
		s.exitCode = &code
		s.log.V(1).Info("Debuggee exited", "exitCode", code)

	case *godap.TerminatedEvent:
		if s.state != StateTerminated {
			s.state = StateTerminated
			s.terminationReason = "terminated"
			s.teardownTransport()
		}

	case *godap.BreakpointEvent:
		s.applyBreakpointEvent(e)

	default:
		s.log.V(1).Info("Ignoring adapter event", "type", fmt.Sprintf("%T", ev))
	}
}

// HandleDisconnect reacts to the adapter's event channel closing: stream EOF
// without a terminated event means the adapter died under us.
func (s *Session) HandleDisconnect() {
	if s.state == StateTerminated {
		return
	}
	s.state = StateTerminated
	s.terminationReason = ReasonAdapterExited
	s.teardownTransport()
	s.log.Info("Adapter connection lost", "reason", s.terminationReason)
}

// applyBreakpointEvent folds an adapter-initiated breakpoint change (e.g.
// late verification) into the local store, matched by adapter id.
func (s *Session) applyBreakpointEvent(e *godap.BreakpointEvent) {
	for _, bp := range s.breakpoints.All() {
		if bp.AdapterID != 0 && bp.AdapterID == e.Body.Breakpoint.Id {
			applyResult(bp, e.Body.Breakpoint)
			return
		}
	}
}

// WaitStopped pumps the event stream until the debuggee stops, the session
// terminates, or the timeout elapses. Already-Stopped and Terminated return
// immediately. The caller must be the goroutine that otherwise consumes
// Events().
func (s *Session) WaitStopped(ctx context.Context, timeout time.Duration) error {
	switch s.state {
	case StateStopped, StateTerminated:
		return nil
	}
	if stateErr := requireState("await", s.state, StateRunning); stateErr != nil {
		return stateErr
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				s.HandleDisconnect()
				return nil
			}
			s.HandleEvent(ev)
			if s.state == StateStopped || s.state == StateTerminated {
				return nil
			}

		case <-deadline.C:
			return ErrNoStopEvent

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Continue resumes execution. Reference handles become invalid once the
// adapter confirms the resume; a rejected or timed-out request leaves the
// session Stopped and inspectable.
func (s *Session) Continue(ctx context.Context) error {
	if stateErr := requireState("continue", s.state, StateStopped); stateErr != nil {
		return stateErr
	}

	if _, continueErr := s.client.Continue(ctx, s.currentThread); continueErr != nil {
		return continueErr
	}
	s.toRunning()
	return nil
}

// Next steps over the current line.
func (s *Session) Next(ctx context.Context) error {
	if stateErr := requireState("next", s.state, StateStopped); stateErr != nil {
		return stateErr
	}
	if stepErr := s.client.Next(ctx, s.currentThread); stepErr != nil {
		return stepErr
	}
	s.toRunning()
	return nil
}

// StepIn steps into the call on the current line.
func (s *Session) StepIn(ctx context.Context) error {
	if stateErr := requireState("step-in", s.state, StateStopped); stateErr != nil {
		return stateErr
	}
	if stepErr := s.client.StepIn(ctx, s.currentThread); stepErr != nil {
		return stepErr
	}
	s.toRunning()
	return nil
}

// StepOut runs until the current frame returns.
func (s *Session) StepOut(ctx context.Context) error {
	if stateErr := requireState("step-out", s.state, StateStopped); stateErr != nil {
		return stateErr
	}
	if stepErr := s.client.StepOut(ctx, s.currentThread); stepErr != nil {
		return stepErr
	}
	s.toRunning()
	return nil
}

// Pause asks the adapter to suspend the debuggee; the stop arrives later as a
// stopped event.
func (s *Session) Pause(ctx context.Context) error {
	if stateErr := requireState("pause", s.state, StateRunning); stateErr != nil {
		return stateErr
	}
	return s.client.Pause(ctx, s.currentThreadOrDefault())
}

func (s *Session) toRunning() {
	s.state = StateRunning
	s.invalidateHandles()
}

func (s *Session) currentThreadOrDefault() int {
	if s.currentThread != 0 {
		return s.currentThread
	}
	return 1
}

// invalidateHandles discards all frame/scope/variable reference handles.
func (s *Session) invalidateHandles() {
	s.frames = nil
	s.framesFetched = false
	s.currentFrame = 0
}

// AddBreakpoint records a breakpoint and, when an adapter is connected,
// resubmits the affected per-file (or function) set.
func (s *Session) AddBreakpoint(ctx context.Context, location, condition, hitCondition string) (*Breakpoint, error) {
	loc, parseErr := ParseLocation(location)
	if parseErr != nil {
		return nil, parseErr
	}

	bp := s.breakpoints.Add(loc, condition, hitCondition)
	if submitErr := s.resubmit(ctx, bp.Location); submitErr != nil {
		return bp, submitErr
	}
	return bp, nil
}

// RemoveBreakpoint deletes a breakpoint by id and resubmits the affected set.
func (s *Session) RemoveBreakpoint(ctx context.Context, id int) error {
	bp := s.breakpoints.Remove(id)
	if bp == nil {
		return fmt.Errorf("%w: id %d", ErrBreakpointNotFound, id)
	}
	return s.resubmit(ctx, bp.Location)
}

// SetBreakpointEnabled flips a breakpoint's enabled flag and resubmits the
// affected set; a disabled breakpoint stays in the local store but is omitted
// from the adapter's set.
func (s *Session) SetBreakpointEnabled(ctx context.Context, id int, enabled bool) error {
	bp := s.breakpoints.Get(id)
	if bp == nil {
		return fmt.Errorf("%w: id %d", ErrBreakpointNotFound, id)
	}
	if bp.Enabled == enabled {
		return nil
	}
	bp.Enabled = enabled
	if !enabled {
		bp.Verified = false
		bp.VerifiedLine = 0
		bp.AdapterID = 0
	}
	return s.resubmit(ctx, bp.Location)
}

// ListBreakpoints returns snapshots of every breakpoint.
func (s *Session) ListBreakpoints() []Breakpoint {
	all := s.breakpoints.All()
	out := make([]Breakpoint, len(all))
	for i, bp := range all {
		out[i] = *bp
	}
	return out
}

// resubmit pushes the full set covering loc to the adapter, when connected.
func (s *Session) resubmit(ctx context.Context, loc Location) error {
	if !s.adapterReady() {
		return nil
	}
	if loc.IsFunction() {
		return s.resubmitFunctions(ctx)
	}
	return s.resubmitFile(ctx, loc.File)
}

func (s *Session) adapterReady() bool {
	switch s.state {
	case StateConfiguring, StateRunning, StateStopped:
		return s.client != nil
	}
	return false
}

func (s *Session) resubmitFile(ctx context.Context, file string) error {
	results, submitErr := s.client.SetBreakpoints(ctx, file, s.breakpoints.FileSet(file))
	if submitErr != nil {
		return submitErr
	}
	s.breakpoints.ApplyFileResults(file, results)
	return nil
}

func (s *Session) resubmitFunctions(ctx context.Context) error {
	results, submitErr := s.client.SetFunctionBreakpoints(ctx, s.breakpoints.FunctionSet())
	if submitErr != nil {
		return submitErr
	}
	s.breakpoints.ApplyFunctionResults(results)
	return nil
}

// submitAllBreakpoints pushes every stored set during the configuration
// phase.
func (s *Session) submitAllBreakpoints(ctx context.Context) error {
	var errs []error
	for _, file := range s.breakpoints.Files() {
		if submitErr := s.resubmitFile(ctx, file); submitErr != nil {
			errs = append(errs, submitErr)
		}
	}
	if s.breakpoints.HasFunctions() {
		if submitErr := s.resubmitFunctions(ctx); submitErr != nil {
			errs = append(errs, submitErr)
		}
	}
	return errors.Join(errs...)
}

// Threads lists the debuggee's threads.
func (s *Session) Threads(ctx context.Context) ([]godap.Thread, error) {
	if stateErr := requireState("threads", s.state, StateRunning, StateStopped); stateErr != nil {
		return nil, stateErr
	}
	return s.client.Threads(ctx)
}

// SelectThread switches the session's current thread. Frames are refetched
// lazily for the new thread.
func (s *Session) SelectThread(ctx context.Context, threadID int) error {
	if stateErr := requireState("thread-select", s.state, StateStopped); stateErr != nil {
		return stateErr
	}

	threads, threadsErr := s.client.Threads(ctx)
	if threadsErr != nil {
		return threadsErr
	}
	for _, th := range threads {
		if th.Id == threadID {
			s.currentThread = threadID
			s.invalidateHandles()
			return nil
		}
	}
	return fmt.Errorf("%w: id %d", ErrThreadNotFound, threadID)
}

// StackTrace returns the current thread's frames, fetching them on first use
// after a stop.
func (s *Session) StackTrace(ctx context.Context) ([]godap.StackFrame, error) {
	if stateErr := requireState("stack-trace", s.state, StateStopped); stateErr != nil {
		return nil, stateErr
	}
	if fetchErr := s.ensureFrames(ctx); fetchErr != nil {
		return nil, fetchErr
	}
	return s.frames, nil
}

// SelectFrame switches the current frame to the given frame id (as reported
// by StackTrace).
func (s *Session) SelectFrame(ctx context.Context, frameID int) error {
	if stateErr := requireState("frame-select", s.state, StateStopped); stateErr != nil {
		return stateErr
	}
	if fetchErr := s.ensureFrames(ctx); fetchErr != nil {
		return fetchErr
	}
	for _, frame := range s.frames {
		if frame.Id == frameID {
			s.currentFrame = frameID
			return nil
		}
	}
	return fmt.Errorf("%w: id %d", ErrFrameNotFound, frameID)
}

// CurrentFrame returns the selected frame id, fetching the stack if needed.
func (s *Session) CurrentFrame(ctx context.Context) (int, error) {
	if fetchErr := s.ensureFrames(ctx); fetchErr != nil {
		return 0, fetchErr
	}
	return s.currentFrame, nil
}

// ensureFrames refetches the stack after a stop. Handles from before the
// stop are never reused; the top frame becomes current.
func (s *Session) ensureFrames(ctx context.Context) error {
	if s.framesFetched {
		return nil
	}

	frames, _, fetchErr := s.client.StackTrace(ctx, s.currentThreadOrDefault(), 0, 0)
	if fetchErr != nil {
		return fetchErr
	}

	s.frames = frames
	s.framesFetched = true
	if len(frames) > 0 {
		s.currentFrame = frames[0].Id
	}
	return nil
}

// Scopes returns the variable scopes of the current frame (frameID 0) or a
// specific frame.
func (s *Session) Scopes(ctx context.Context, frameID int) ([]godap.Scope, error) {
	if stateErr := requireState("scopes", s.state, StateStopped); stateErr != nil {
		return nil, stateErr
	}
	if frameID == 0 {
		var frameErr error
		frameID, frameErr = s.CurrentFrame(ctx)
		if frameErr != nil {
			return nil, frameErr
		}
	}
	return s.client.Scopes(ctx, frameID)
}

// Variables expands a reference handle obtained during the current stop.
func (s *Session) Variables(ctx context.Context, variablesReference int) ([]godap.Variable, error) {
	if stateErr := requireState("variables", s.state, StateStopped); stateErr != nil {
		return nil, stateErr
	}
	return s.client.Variables(ctx, variablesReference)
}

// Locals returns the variables of the current frame's Locals scope (first
// non-expensive scope when the adapter names it differently).
func (s *Session) Locals(ctx context.Context) ([]godap.Variable, error) {
	scopes, scopesErr := s.Scopes(ctx, 0)
	if scopesErr != nil {
		return nil, scopesErr
	}

	var target *godap.Scope
	for i := range scopes {
		if scopes[i].Name == "Locals" || scopes[i].Name == "Local" {
			target = &scopes[i]
			break
		}
	}
	if target == nil {
		for i := range scopes {
			if !scopes[i].Expensive {
				target = &scopes[i]
				break
			}
		}
	}
	if target == nil {
		return nil, nil
	}

	return s.client.Variables(ctx, target.VariablesReference)
}

// Evaluate evaluates an expression in the current frame. evalContext is the
// protocol's evaluate context: repl, watch, or hover.
func (s *Session) Evaluate(ctx context.Context, expression, evalContext string) (godap.EvaluateResponseBody, error) {
	if stateErr := requireState("evaluate", s.state, StateStopped); stateErr != nil {
		return godap.EvaluateResponseBody{}, stateErr
	}

	frameID, frameErr := s.CurrentFrame(ctx)
	if frameErr != nil {
		return godap.EvaluateResponseBody{}, frameErr
	}
	if evalContext == "" {
		evalContext = "repl"
	}
	return s.client.Evaluate(ctx, expression, frameID, evalContext)
}

// Restart asks the adapter to restart the debuggee with the original
// launch/attach arguments, then resubmits all breakpoints. Gated on the
// adapter's restart capability.
func (s *Session) Restart(ctx context.Context) error {
	if stateErr := requireState("restart", s.state, StateRunning, StateStopped); stateErr != nil {
		return stateErr
	}
	if !s.client.Capabilities().SupportsRestartRequest {
		return ErrRestartUnsupported
	}

	if restartErr := s.client.Restart(ctx, s.launchArgs); restartErr != nil {
		return restartErr
	}

	s.state = StateRunning
	s.exitCode = nil
	s.stopReason = ""
	s.invalidateHandles()
	s.breakpoints.ClearVerification()
	return s.submitAllBreakpoints(ctx)
}

// Stop ends the session and kills the debuggee (launched origin). The
// session lands in Terminated, from which a new Start/Attach is permitted.
func (s *Session) Stop(ctx context.Context) error {
	return s.shutdown(ctx, "stop", true)
}

// Detach ends the session leaving the debuggee running. Primarily for
// attached sessions; on launched ones the adapter decides whether the
// debuggee survives.
func (s *Session) Detach(ctx context.Context) error {
	return s.shutdown(ctx, "detach", false)
}

func (s *Session) shutdown(ctx context.Context, op string, terminate bool) error {
	if stateErr := requireState(op, s.state,
		StateInitializing, StateConfiguring, StateRunning, StateStopped); stateErr != nil {
		return stateErr
	}

	s.state = StateTerminating

	grace := s.config.StopGracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}

	disconnectErr := s.client.Disconnect(ctx, terminate, grace)

	if s.adapter != nil && terminate {
		// The disconnect should have taken the adapter down; make sure.
		select {
		case <-s.adapter.Done():
		case <-time.After(grace):
			_ = s.adapter.Stop()
		}
	}

	s.state = StateTerminated
	if s.terminationReason == "" {
		s.terminationReason = op + " requested"
	}
	s.invalidateHandles()
	s.log.Info("Debug session ended", "op", op, "terminatedDebuggee", terminate)
	return disconnectErr
}

// Status is a point-in-time summary of the session for callers.
type Status struct {
	State             State  `json:"state"`
	Attached          bool   `json:"attached"`
	StopReason        string `json:"stopReason,omitempty"`
	CurrentThread     int    `json:"currentThread,omitempty"`
	CurrentFrame      int    `json:"currentFrame,omitempty"`
	Breakpoints       int    `json:"breakpoints"`
	BufferedOutput    int    `json:"bufferedOutput"`
	ExitCode          *int   `json:"exitCode,omitempty"`
	TerminationReason string `json:"terminationReason,omitempty"`
}

// Status reports the session's current state and counters.
func (s *Session) Status() Status {
	return Status{
		State:             s.state,
		Attached:          s.attached,
		StopReason:        s.stopReason,
		CurrentThread:     s.currentThread,
		CurrentFrame:      s.currentFrame,
		Breakpoints:       len(s.breakpoints.All()),
		BufferedOutput:    s.output.Len(),
		ExitCode:          s.exitCode,
		TerminationReason: s.terminationReason,
	}
}

// Close force-closes the transport and kills the adapter without the
// disconnect handshake. For host shutdown paths.
func (s *Session) Close() {
	s.teardownTransport()
	if s.state != StateTerminated {
		s.state = StateTerminated
		if s.terminationReason == "" {
			s.terminationReason = "session closed"
		}
	}
}
