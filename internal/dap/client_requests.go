package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/go-dap"
)

// Initialize performs the initialize exchange and records the adapter's
// capabilities.
func (c *Client) Initialize(ctx context.Context, adapterID string) (dap.Capabilities, error) {
	req := &dap.InitializeRequest{
		Request: dap.Request{Command: "initialize"},
		Arguments: dap.InitializeRequestArguments{
			ClientID:                     "debugger-cli",
			ClientName:                   "Debugger CLI",
			AdapterID:                    adapterID,
			Locale:                       "en-US",
			LinesStartAt1:                true,
			ColumnsStartAt1:              true,
			PathFormat:                   "path",
			SupportsRunInTerminalRequest: false,
		},
	}

	resp, sendErr := c.roundTrip(ctx, req)
	if sendErr != nil {
		return dap.Capabilities{}, sendErr
	}

	initResp, ok := resp.(*dap.InitializeResponse)
	if !ok {
		return dap.Capabilities{}, fmt.Errorf("unexpected response type for initialize: %T", resp)
	}

	c.capsMu.Lock()
	c.capabilities = initResp.Body
	c.capsMu.Unlock()

	return initResp.Body, nil
}

// WaitInitialized blocks until the adapter's initialized event arrives. The
// event marks the start of the configuration phase; breakpoints are only
// accepted after it.
func (c *Client) WaitInitialized(ctx context.Context) error {
	select {
	case <-c.initializedCh:
		return nil
	case <-c.done:
		return ErrSessionTerminated
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrRequestTimeout
		}
		return ctx.Err()
	}
}

// Launch sends a launch request with adapter-specific arguments passed
// through verbatim.
func (c *Client) Launch(ctx context.Context, args json.RawMessage) error {
	req := &dap.LaunchRequest{
		Request:   dap.Request{Command: "launch"},
		Arguments: args,
	}
	_, sendErr := c.roundTrip(ctx, req)
	return sendErr
}

// Attach sends an attach request with adapter-specific arguments passed
// through verbatim.
func (c *Client) Attach(ctx context.Context, args json.RawMessage) error {
	req := &dap.AttachRequest{
		Request:   dap.Request{Command: "attach"},
		Arguments: args,
	}
	_, sendErr := c.roundTrip(ctx, req)
	return sendErr
}

// ConfigurationDone ends the configuration phase; the debuggee starts (or
// resumes) after this.
func (c *Client) ConfigurationDone(ctx context.Context) error {
	req := &dap.ConfigurationDoneRequest{
		Request: dap.Request{Command: "configurationDone"},
	}
	_, sendErr := c.roundTrip(ctx, req)
	return sendErr
}

// SetBreakpoints replaces the full breakpoint set for one source file. The
// adapter treats the list as authoritative: omitted breakpoints are cleared.
func (c *Client) SetBreakpoints(ctx context.Context, file string, breakpoints []dap.SourceBreakpoint) ([]dap.Breakpoint, error) {
	req := &dap.SetBreakpointsRequest{
		Request: dap.Request{Command: "setBreakpoints"},
		Arguments: dap.SetBreakpointsArguments{
			Source:      dap.Source{Path: file},
			Breakpoints: breakpoints,
		},
	}

	resp, sendErr := c.roundTrip(ctx, req)
	if sendErr != nil {
		return nil, sendErr
	}

	bpResp, ok := resp.(*dap.SetBreakpointsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for setBreakpoints: %T", resp)
	}

	return bpResp.Body.Breakpoints, nil
}

// SetFunctionBreakpoints replaces the full function breakpoint set.
func (c *Client) SetFunctionBreakpoints(ctx context.Context, breakpoints []dap.FunctionBreakpoint) ([]dap.Breakpoint, error) {
	req := &dap.SetFunctionBreakpointsRequest{
		Request: dap.Request{Command: "setFunctionBreakpoints"},
		Arguments: dap.SetFunctionBreakpointsArguments{
			Breakpoints: breakpoints,
		},
	}

	resp, sendErr := c.roundTrip(ctx, req)
	if sendErr != nil {
		return nil, sendErr
	}

	fbResp, ok := resp.(*dap.SetFunctionBreakpointsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for setFunctionBreakpoints: %T", resp)
	}

	return fbResp.Body.Breakpoints, nil
}

// Continue resumes execution of the given thread.
func (c *Client) Continue(ctx context.Context, threadID int) (allThreadsContinued bool, err error) {
	req := &dap.ContinueRequest{
		Request:   dap.Request{Command: "continue"},
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	}

	resp, sendErr := c.roundTrip(ctx, req)
	if sendErr != nil {
		return false, sendErr
	}

	if contResp, ok := resp.(*dap.ContinueResponse); ok {
		return contResp.Body.AllThreadsContinued, nil
	}
	return false, nil
}

// Next steps over the current line on the given thread.
func (c *Client) Next(ctx context.Context, threadID int) error {
	req := &dap.NextRequest{
		Request:   dap.Request{Command: "next"},
		Arguments: dap.NextArguments{ThreadId: threadID},
	}
	_, sendErr := c.roundTrip(ctx, req)
	return sendErr
}

// StepIn steps into the call on the current line of the given thread.
func (c *Client) StepIn(ctx context.Context, threadID int) error {
	req := &dap.StepInRequest{
		Request:   dap.Request{Command: "stepIn"},
		Arguments: dap.StepInArguments{ThreadId: threadID},
	}
	_, sendErr := c.roundTrip(ctx, req)
	return sendErr
}

// StepOut runs until the current frame returns on the given thread.
func (c *Client) StepOut(ctx context.Context, threadID int) error {
	req := &dap.StepOutRequest{
		Request:   dap.Request{Command: "stepOut"},
		Arguments: dap.StepOutArguments{ThreadId: threadID},
	}
	_, sendErr := c.roundTrip(ctx, req)
	return sendErr
}

// Pause requests the adapter to suspend the given thread. The actual stop is
// reported later via a stopped event.
func (c *Client) Pause(ctx context.Context, threadID int) error {
	req := &dap.PauseRequest{
		Request:   dap.Request{Command: "pause"},
		Arguments: dap.PauseArguments{ThreadId: threadID},
	}
	_, sendErr := c.roundTrip(ctx, req)
	return sendErr
}

// Threads lists the debuggee's threads.
func (c *Client) Threads(ctx context.Context) ([]dap.Thread, error) {
	req := &dap.ThreadsRequest{
		Request: dap.Request{Command: "threads"},
	}

	resp, sendErr := c.roundTrip(ctx, req)
	if sendErr != nil {
		return nil, sendErr
	}

	threadsResp, ok := resp.(*dap.ThreadsResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for threads: %T", resp)
	}

	return threadsResp.Body.Threads, nil
}

// StackTrace returns up to levels frames of the given thread's stack,
// starting at startFrame. levels <= 0 requests all frames.
func (c *Client) StackTrace(ctx context.Context, threadID, startFrame, levels int) ([]dap.StackFrame, int, error) {
	args := dap.StackTraceArguments{ThreadId: threadID, StartFrame: startFrame}
	if levels > 0 {
		args.Levels = levels
	}
	req := &dap.StackTraceRequest{
		Request:   dap.Request{Command: "stackTrace"},
		Arguments: args,
	}

	resp, sendErr := c.roundTrip(ctx, req)
	if sendErr != nil {
		return nil, 0, sendErr
	}

	stResp, ok := resp.(*dap.StackTraceResponse)
	if !ok {
		return nil, 0, fmt.Errorf("unexpected response type for stackTrace: %T", resp)
	}

	return stResp.Body.StackFrames, stResp.Body.TotalFrames, nil
}

// Scopes returns the variable scopes of a stack frame.
func (c *Client) Scopes(ctx context.Context, frameID int) ([]dap.Scope, error) {
	req := &dap.ScopesRequest{
		Request:   dap.Request{Command: "scopes"},
		Arguments: dap.ScopesArguments{FrameId: frameID},
	}

	resp, sendErr := c.roundTrip(ctx, req)
	if sendErr != nil {
		return nil, sendErr
	}

	scopesResp, ok := resp.(*dap.ScopesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for scopes: %T", resp)
	}

	return scopesResp.Body.Scopes, nil
}

// Variables expands a variables reference obtained from a scope, a parent
// variable, or an evaluate result. References are only valid while the
// debuggee is stopped.
func (c *Client) Variables(ctx context.Context, variablesReference int) ([]dap.Variable, error) {
	req := &dap.VariablesRequest{
		Request:   dap.Request{Command: "variables"},
		Arguments: dap.VariablesArguments{VariablesReference: variablesReference},
	}

	resp, sendErr := c.roundTrip(ctx, req)
	if sendErr != nil {
		return nil, sendErr
	}

	varsResp, ok := resp.(*dap.VariablesResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected response type for variables: %T", resp)
	}

	return varsResp.Body.Variables, nil
}

// Evaluate evaluates an expression in the given frame. frameID 0 with an
// adapter that requires a frame evaluates in the adapter's default scope.
func (c *Client) Evaluate(ctx context.Context, expression string, frameID int, evalContext string) (dap.EvaluateResponseBody, error) {
	req := &dap.EvaluateRequest{
		Request: dap.Request{Command: "evaluate"},
		Arguments: dap.EvaluateArguments{
			Expression: expression,
			FrameId:    frameID,
			Context:    evalContext,
		},
	}

	resp, sendErr := c.roundTrip(ctx, req)
	if sendErr != nil {
		return dap.EvaluateResponseBody{}, sendErr
	}

	evalResp, ok := resp.(*dap.EvaluateResponse)
	if !ok {
		return dap.EvaluateResponseBody{}, fmt.Errorf("unexpected response type for evaluate: %T", resp)
	}

	return evalResp.Body, nil
}

// Restart asks the adapter to restart the debuggee. Callers must check the
// supportsRestartRequest capability first.
func (c *Client) Restart(ctx context.Context, args json.RawMessage) error {
	req := &dap.RestartRequest{
		Request:   dap.Request{Command: "restart"},
		Arguments: args,
	}
	_, sendErr := c.roundTrip(ctx, req)
	return sendErr
}

// Disconnect ends the debug session. terminateDebuggee controls whether the
// debuggee is killed (launched sessions) or left running (attached sessions).
// The wait for the adapter's reply is bounded by gracePeriod; on timeout or
// adapter death the transport is force-closed.
func (c *Client) Disconnect(ctx context.Context, terminateDebuggee bool, gracePeriod time.Duration) error {
	req := &dap.DisconnectRequest{
		Request: dap.Request{Command: "disconnect"},
		Arguments: &dap.DisconnectArguments{
			TerminateDebuggee: terminateDebuggee,
		},
	}

	waitCtx, cancel := context.WithTimeout(ctx, gracePeriod)
	defer cancel()

	_, sendErr := c.roundTrip(waitCtx, req)
	closeErr := c.transport.Close()

	switch {
	case sendErr == nil:
		return closeErr
	case IsProtocolError(sendErr):
		// The adapter objected but we are leaving regardless.
		return closeErr
	default:
		// Timeout or dead transport. Forcing the transport closed above is
		// the whole recovery; the disconnect is best-effort.
		c.log.V(1).Info("Disconnect did not complete cleanly", "cause", sendErr.Error())
		return nil
	}
}
