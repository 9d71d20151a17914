package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/akiselev/debugger-cli/internal/config"
	"github.com/akiselev/debugger-cli/internal/dap"
	"github.com/akiselev/debugger-cli/internal/ipc"
	"github.com/akiselev/debugger-cli/internal/session"
)

// handle executes one caller command on the main loop goroutine.
func (d *Daemon) handle(ctx context.Context, req ipc.Request) outcome {
	cmd := req.Command

	switch cmd.Type {
	case ipc.CommandStart:
		result, opErr := d.handleStart(ctx, cmd)
		return d.reply(req.ID, result, opErr)
	case ipc.CommandAttach:
		result, opErr := d.handleAttach(ctx, cmd)
		return d.reply(req.ID, result, opErr)
	case ipc.CommandDetach:
		result, opErr := d.handleDetach(ctx)
		return d.reply(req.ID, result, opErr)
	case ipc.CommandStop:
		result, opErr := d.handleStop(ctx)
		return d.reply(req.ID, result, opErr)
	case ipc.CommandRestart:
		result, opErr := d.handleRestart(ctx)
		return d.reply(req.ID, result, opErr)
	case ipc.CommandStatus:
		return d.reply(req.ID, d.session.Status(), nil)

	case ipc.CommandBreakpointAdd:
		result, opErr := d.handleBreakpointAdd(ctx, cmd)
		return d.reply(req.ID, result, opErr)
	case ipc.CommandBreakpointRemove:
		result, opErr := d.handleBreakpointRemove(ctx, cmd)
		return d.reply(req.ID, result, opErr)
	case ipc.CommandBreakpointList:
		return d.reply(req.ID, map[string]any{"breakpoints": d.session.ListBreakpoints()}, nil)
	case ipc.CommandBreakpointEnable:
		return d.reply(req.ID, nil, d.session.SetBreakpointEnabled(ctx, cmd.ID, true))
	case ipc.CommandBreakpointDisable:
		return d.reply(req.ID, nil, d.session.SetBreakpointEnabled(ctx, cmd.ID, false))

	case ipc.CommandContinue:
		return d.reply(req.ID, nil, d.session.Continue(ctx))
	case ipc.CommandNext:
		return d.reply(req.ID, nil, d.session.Next(ctx))
	case ipc.CommandStepIn:
		return d.reply(req.ID, nil, d.session.StepIn(ctx))
	case ipc.CommandStepOut:
		return d.reply(req.ID, nil, d.session.StepOut(ctx))
	case ipc.CommandPause:
		return d.reply(req.ID, nil, d.session.Pause(ctx))

	case ipc.CommandStackTrace:
		result, opErr := d.handleStackTrace(ctx)
		return d.reply(req.ID, result, opErr)
	case ipc.CommandLocals:
		result, opErr := d.handleLocals(ctx)
		return d.reply(req.ID, result, opErr)
	case ipc.CommandEvaluate:
		result, opErr := d.handleEvaluate(ctx, cmd)
		return d.reply(req.ID, result, opErr)
	case ipc.CommandScopes:
		result, opErr := d.handleScopes(ctx, cmd)
		return d.reply(req.ID, result, opErr)
	case ipc.CommandVariables:
		result, opErr := d.handleVariables(ctx, cmd)
		return d.reply(req.ID, result, opErr)

	case ipc.CommandThreads:
		result, opErr := d.handleThreads(ctx)
		return d.reply(req.ID, result, opErr)
	case ipc.CommandThreadSelect:
		return d.reply(req.ID, nil, d.session.SelectThread(ctx, cmd.ThreadID))
	case ipc.CommandFrameSelect:
		return d.reply(req.ID, nil, d.session.SelectFrame(ctx, cmd.FrameID))

	case ipc.CommandAwait:
		result, opErr := d.handleAwait(ctx, cmd)
		return d.reply(req.ID, result, opErr)

	case ipc.CommandGetOutput:
		return d.reply(req.ID, d.handleGetOutput(cmd), nil)
	case ipc.CommandSubscribeOutput:
		return d.handleSubscribeOutput(req.ID)

	case ipc.CommandShutdown:
		d.Shutdown()
		return outcome{resp: ipc.SuccessResponse(req.ID, nil)}

	default:
		return outcome{resp: ipc.ErrorResponse(req.ID, ipc.CodeUnknownCommand,
			fmt.Sprintf("unknown command type %q", cmd.Type))}
	}
}

// reply folds a (result, error) pair into a response frame.
func (d *Daemon) reply(id string, result any, opErr error) outcome {
	if opErr != nil {
		code, message := classifyError(opErr)
		return outcome{resp: ipc.ErrorResponse(id, code, message)}
	}
	return outcome{resp: ipc.SuccessResponse(id, result)}
}

// classifyError maps internal errors onto the wire error codes callers
// branch on.
func classifyError(opErr error) (code, message string) {
	message = opErr.Error()

	var ipcErr *ipc.Error
	if errors.As(opErr, &ipcErr) {
		return ipcErr.Code, ipcErr.Message
	}

	var stateErr *session.StateError
	var protocolErr *dap.ProtocolError

	switch {
	case errors.As(opErr, &stateErr):
		// Commands needing a session get a dedicated code when there is
		// none to act on, so callers can prompt "start one" instead of
		// "wrong state".
		if stateErr.Current == session.StateIdle || stateErr.Current == session.StateTerminated {
			return ipc.CodeSessionNotActive, message
		}
		return ipc.CodeInvalidState, message
	case errors.Is(opErr, session.ErrInvalidLocation):
		return ipc.CodeInvalidLocation, message
	case errors.Is(opErr, session.ErrBreakpointNotFound):
		return ipc.CodeBreakpointNotFound, message
	case errors.Is(opErr, session.ErrThreadNotFound):
		return ipc.CodeThreadNotFound, message
	case errors.Is(opErr, session.ErrFrameNotFound):
		return ipc.CodeFrameNotFound, message
	case errors.Is(opErr, session.ErrNoStopEvent), errors.Is(opErr, dap.ErrRequestTimeout),
		errors.Is(opErr, dap.ErrAdapterConnectionTimeout):
		return ipc.CodeTimeout, message
	case errors.Is(opErr, dap.ErrAdapterExited), errors.Is(opErr, dap.ErrSessionTerminated):
		return ipc.CodeProgramExited, message
	case errors.As(opErr, &protocolErr), errors.Is(opErr, session.ErrRestartUnsupported):
		return ipc.CodeDapRequestFailed, message
	case errors.Is(opErr, config.ErrAdapterNotFound):
		return ipc.CodeAdapterNotFound, message
	}
	return ipc.CodeInternalError, message
}

func (d *Daemon) handleStart(ctx context.Context, cmd ipc.Command) (any, error) {
	if d.sessionActive() {
		return nil, &ipc.Error{
			Code:    ipc.CodeSessionAlreadyActive,
			Message: fmt.Sprintf("a debug session is already active (state %s)", d.session.State()),
		}
	}

	if configureErr := d.configureAdapter(cmd.Adapter); configureErr != nil {
		return nil, configureErr
	}

	launchArgs, marshalErr := json.Marshal(map[string]any{
		"program":     cmd.Program,
		"args":        cmd.Args,
		"stopOnEntry": cmd.StopOnEntry,
	})
	if marshalErr != nil {
		return nil, marshalErr
	}

	if startErr := d.session.Start(ctx, launchArgs); startErr != nil {
		return nil, startErr
	}
	d.events = d.session.Events()
	return d.session.Status(), nil
}

func (d *Daemon) handleAttach(ctx context.Context, cmd ipc.Command) (any, error) {
	if d.sessionActive() {
		return nil, &ipc.Error{
			Code:    ipc.CodeSessionAlreadyActive,
			Message: fmt.Sprintf("a debug session is already active (state %s)", d.session.State()),
		}
	}

	if configureErr := d.configureAdapter(cmd.Adapter); configureErr != nil {
		return nil, configureErr
	}

	attachArgs, marshalErr := json.Marshal(map[string]any{"pid": cmd.PID})
	if marshalErr != nil {
		return nil, marshalErr
	}

	if attachErr := d.session.Attach(ctx, attachArgs); attachErr != nil {
		return nil, attachErr
	}
	d.events = d.session.Events()
	return d.session.Status(), nil
}

// configureAdapter resolves the named adapter from config and points the
// session at it. Under the test transport hook the session never launches a
// process, so resolution is skipped.
func (d *Daemon) configureAdapter(name string) error {
	if d.newTransport != nil {
		d.session.ConfigureAdapter(nil, name)
		d.setSessionTransport()
		return nil
	}

	adapter, resolveErr := d.cfg.ResolveAdapter(name)
	if resolveErr != nil {
		return resolveErr
	}

	d.session.ConfigureAdapter(&dap.AdapterConfig{
		Args: append([]string{adapter.Path}, adapter.Args...),
		Mode: dap.AdapterMode(adapter.Mode),
	}, adapter.ID)
	return nil
}

func (d *Daemon) handleDetach(ctx context.Context) (any, error) {
	if detachErr := d.session.Detach(ctx); detachErr != nil {
		return nil, detachErr
	}
	d.events = nil
	return d.session.Status(), nil
}

func (d *Daemon) handleStop(ctx context.Context) (any, error) {
	if stopErr := d.session.Stop(ctx); stopErr != nil {
		return nil, stopErr
	}
	d.events = nil
	return d.session.Status(), nil
}

func (d *Daemon) handleRestart(ctx context.Context) (any, error) {
	if restartErr := d.session.Restart(ctx); restartErr != nil {
		return nil, restartErr
	}
	return d.session.Status(), nil
}

func (d *Daemon) handleBreakpointAdd(ctx context.Context, cmd ipc.Command) (any, error) {
	hitCondition := ""
	if cmd.HitCount > 0 {
		hitCondition = strconv.Itoa(cmd.HitCount)
	}

	bp, addErr := d.session.AddBreakpoint(ctx, cmd.Location, cmd.Condition, hitCondition)
	if addErr != nil {
		return nil, addErr
	}
	return bp, nil
}

func (d *Daemon) handleBreakpointRemove(ctx context.Context, cmd ipc.Command) (any, error) {
	if cmd.All {
		var errs []error
		for _, bp := range d.session.ListBreakpoints() {
			if removeErr := d.session.RemoveBreakpoint(ctx, bp.ID); removeErr != nil {
				errs = append(errs, removeErr)
			}
		}
		return nil, errors.Join(errs...)
	}
	return nil, d.session.RemoveBreakpoint(ctx, cmd.ID)
}

func (d *Daemon) handleStackTrace(ctx context.Context) (any, error) {
	frames, traceErr := d.session.StackTrace(ctx)
	if traceErr != nil {
		return nil, traceErr
	}
	currentFrame, frameErr := d.session.CurrentFrame(ctx)
	if frameErr != nil {
		return nil, frameErr
	}
	return map[string]any{"frames": frames, "currentFrame": currentFrame}, nil
}

func (d *Daemon) handleLocals(ctx context.Context) (any, error) {
	variables, localsErr := d.session.Locals(ctx)
	if localsErr != nil {
		return nil, localsErr
	}
	return map[string]any{"variables": variables}, nil
}

func (d *Daemon) handleEvaluate(ctx context.Context, cmd ipc.Command) (any, error) {
	result, evalErr := d.session.Evaluate(ctx, cmd.Expression, cmd.Context)
	if evalErr != nil {
		return nil, evalErr
	}
	return result, nil
}

func (d *Daemon) handleScopes(ctx context.Context, cmd ipc.Command) (any, error) {
	scopes, scopesErr := d.session.Scopes(ctx, cmd.FrameID)
	if scopesErr != nil {
		return nil, scopesErr
	}
	return map[string]any{"scopes": scopes}, nil
}

func (d *Daemon) handleVariables(ctx context.Context, cmd ipc.Command) (any, error) {
	variables, varsErr := d.session.Variables(ctx, cmd.Reference)
	if varsErr != nil {
		return nil, varsErr
	}
	return map[string]any{"variables": variables}, nil
}

func (d *Daemon) handleThreads(ctx context.Context) (any, error) {
	threads, threadsErr := d.session.Threads(ctx)
	if threadsErr != nil {
		return nil, threadsErr
	}
	return map[string]any{"threads": threads}, nil
}

func (d *Daemon) handleAwait(ctx context.Context, cmd ipc.Command) (any, error) {
	timeout := d.cfg.AwaitDefaultTimeout()
	if cmd.TimeoutSecs > 0 {
		timeout = time.Duration(cmd.TimeoutSecs) * time.Second
	}

	if waitErr := d.session.WaitStopped(ctx, timeout); waitErr != nil {
		return nil, waitErr
	}
	return d.session.Status(), nil
}

func (d *Daemon) handleGetOutput(cmd ipc.Command) any {
	var events []session.OutputEvent
	if cmd.Clear {
		events = d.session.Output().Drain()
		if cmd.Tail > 0 && cmd.Tail < len(events) {
			events = events[len(events)-cmd.Tail:]
		}
	} else {
		events = d.session.Output().Tail(cmd.Tail)
	}
	return map[string]any{"events": events}
}

// handleSubscribeOutput acknowledges the subscription, then turns the
// connection into a one-way feed: buffered history first, live events after.
func (d *Daemon) handleSubscribeOutput(id string) outcome {
	snapshot, live, cancel := d.session.Output().Subscribe(0)

	stream := func(c *connection) {
		defer cancel()
		streamOutput(c, snapshot, live, d.shutdownCh)
	}

	return outcome{resp: ipc.SuccessResponse(id, map[string]any{"subscribed": true}), stream: stream}
}

// streamOutput writes the snapshot, then live events, until the live channel
// closes, a write fails, or stop closes. The subscription is registered
// before the snapshot is taken, so an event can arrive on both paths; live
// events at or below the snapshot's last Seq are skipped.
func streamOutput(c *connection, snapshot []session.OutputEvent, live <-chan session.OutputEvent, stop <-chan struct{}) {
	lastSeq := -1
	for _, ev := range snapshot {
		if writeErr := c.writeFrame(ev); writeErr != nil {
			return
		}
		lastSeq = ev.Seq
	}
	for {
		select {
		case ev, ok := <-live:
			if !ok {
				return
			}
			if ev.Seq <= lastSeq {
				continue
			}
			if writeErr := c.writeFrame(ev); writeErr != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

func (d *Daemon) setSessionTransport() {
	d.session.ConfigureTransport(d.newTransport())
}
