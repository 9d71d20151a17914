package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	godap "github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akiselev/debugger-cli/internal/dap"
	"github.com/akiselev/debugger-cli/internal/daptest"
)

func newTestSession(t *testing.T) (*Session, *daptest.Adapter) {
	t.Helper()

	adapter, transport := daptest.New()
	s := New(Config{
		AdapterID:       "mock",
		RequestTimeout:  5 * time.Second,
		StopGracePeriod: 2 * time.Second,
		OutputMaxEvents: 100,
		OutputMaxBytes:  1 << 20,
		Logger:          testr.New(t),
	})
	s.testTransport = transport
	t.Cleanup(s.Close)
	return s, adapter
}

func startSession(t *testing.T, s *Session) {
	t.Helper()
	startErr := s.Start(context.Background(), json.RawMessage(`{"program":"/bin/true"}`))
	require.NoError(t, startErr)
	require.Equal(t, StateRunning, s.State())
}

// stopSession drives the session into Stopped via a scripted stop event.
func stopSession(t *testing.T, s *Session, adapter *daptest.Adapter) {
	t.Helper()
	adapter.EmitStopped("entry", 1)
	require.NoError(t, s.WaitStopped(context.Background(), 5*time.Second))
	require.Equal(t, StateStopped, s.State())
}

func TestCommandsRejectedInIdle(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	ctx := context.Background()

	continueErr := s.Continue(ctx)
	require.Error(t, continueErr)

	var stateErr *StateError
	require.ErrorAs(t, continueErr, &stateErr)
	assert.Equal(t, "continue", stateErr.Op)
	assert.Equal(t, StateIdle, stateErr.Current)
	assert.Equal(t, []State{StateStopped}, stateErr.Required)
	assert.Contains(t, continueErr.Error(), "Idle")
	assert.Contains(t, continueErr.Error(), "Stopped")

	_, evalErr := s.Evaluate(ctx, "x", "repl")
	assert.ErrorAs(t, evalErr, &stateErr)
}

func TestStartRejectedWhileActive(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	startSession(t, s)

	secondErr := s.Start(context.Background(), nil)
	var stateErr *StateError
	require.ErrorAs(t, secondErr, &stateErr)
	assert.Equal(t, "start", stateErr.Op)
	assert.Equal(t, StateRunning, stateErr.Current)
}

func TestStartSubmitsPresetBreakpoints(t *testing.T) {
	t.Parallel()

	s, adapter := newTestSession(t)
	ctx := context.Background()

	// Breakpoints added before start are held locally...
	_, addErr := s.AddBreakpoint(ctx, "/src/main.go:10", "", "")
	require.NoError(t, addErr)
	_, addErr = s.AddBreakpoint(ctx, "/src/main.go:20", "x > 3", "")
	require.NoError(t, addErr)

	// ...and submitted as one full set during configuration.
	startSession(t, s)

	submitted := adapter.Breakpoints("/src/main.go")
	require.Len(t, submitted, 2)
	assert.Equal(t, 10, submitted[0].Line)
	assert.Equal(t, 20, submitted[1].Line)
	assert.Equal(t, "x > 3", submitted[1].Condition)

	// The adapter's verdicts landed on the local records.
	listed := s.ListBreakpoints()
	require.Len(t, listed, 2)
	assert.True(t, listed[0].Verified)
	assert.True(t, listed[1].Verified)
}

func TestBreakpointsAddedSeparatelyBothListed(t *testing.T) {
	t.Parallel()

	s, adapter := newTestSession(t)
	ctx := context.Background()
	startSession(t, s)

	_, addErr := s.AddBreakpoint(ctx, "/src/main.go:10", "", "")
	require.NoError(t, addErr)
	_, addErr = s.AddBreakpoint(ctx, "/src/main.go:20", "", "")
	require.NoError(t, addErr)

	// The second add resubmitted the full two-element set, not just the new
	// breakpoint.
	assert.Len(t, adapter.Breakpoints("/src/main.go"), 2)

	listed := s.ListBreakpoints()
	require.Len(t, listed, 2)
	assert.True(t, listed[0].Verified)
	assert.True(t, listed[1].Verified)
}

func TestRemoveBreakpointResubmitsShrunkSet(t *testing.T) {
	t.Parallel()

	s, adapter := newTestSession(t)
	ctx := context.Background()
	startSession(t, s)

	first, addErr := s.AddBreakpoint(ctx, "/src/main.go:10", "", "")
	require.NoError(t, addErr)
	_, addErr = s.AddBreakpoint(ctx, "/src/main.go:20", "", "")
	require.NoError(t, addErr)

	require.NoError(t, s.RemoveBreakpoint(ctx, first.ID))

	submitted := adapter.Breakpoints("/src/main.go")
	require.Len(t, submitted, 1)
	assert.Equal(t, 20, submitted[0].Line)
}

func TestHitConditionStopsOnNthHit(t *testing.T) {
	t.Parallel()

	s, adapter := newTestSession(t)
	ctx := context.Background()
	startSession(t, s)

	_, addErr := s.AddBreakpoint(ctx, "/src/main.go:10", "", "3")
	require.NoError(t, addErr)

	stopSession(t, s, adapter)

	adapter.StopOnResume(&daptest.StopScript{
		Reason:   "breakpoint",
		ThreadID: 1,
		File:     "/src/main.go",
		Line:     10,
	})

	require.NoError(t, s.Continue(ctx))
	require.NoError(t, s.WaitStopped(ctx, 5*time.Second))

	assert.Equal(t, StateStopped, s.State())
	// The adapter honoured the hit condition: three simulated hits produced
	// exactly one stop.
	assert.Equal(t, 3, adapter.HitCount("/src/main.go", 10))
}

func TestResumeInvalidatesHandles(t *testing.T) {
	t.Parallel()

	s, adapter := newTestSession(t)
	ctx := context.Background()
	startSession(t, s)
	stopSession(t, s, adapter)

	frames, stackErr := s.StackTrace(ctx)
	require.NoError(t, stackErr)
	require.NotEmpty(t, frames)
	assert.True(t, s.framesFetched)
	assert.Equal(t, frames[0].Id, s.currentFrame)

	adapter.StopOnResume(&daptest.StopScript{Reason: "step", ThreadID: 1})
	require.NoError(t, s.Next(ctx))

	// The moment execution resumed, every cached handle died.
	assert.False(t, s.framesFetched)
	assert.Nil(t, s.frames)
	assert.Zero(t, s.currentFrame)

	// The next inspection after the new stop transparently refetches.
	require.NoError(t, s.WaitStopped(ctx, 5*time.Second))
	refreshed, refreshErr := s.StackTrace(ctx)
	require.NoError(t, refreshErr)
	assert.NotEmpty(t, refreshed)
	assert.Equal(t, refreshed[0].Id, s.currentFrame)
}

func TestInspectionWhileStopped(t *testing.T) {
	t.Parallel()

	s, adapter := newTestSession(t)
	ctx := context.Background()
	startSession(t, s)
	stopSession(t, s, adapter)

	locals, localsErr := s.Locals(ctx)
	require.NoError(t, localsErr)
	require.NotEmpty(t, locals)
	assert.Equal(t, "x", locals[0].Name)

	// Drill into a structured variable via its reference handle.
	children, varsErr := s.Variables(ctx, locals[1].VariablesReference)
	require.NoError(t, varsErr)
	assert.Len(t, children, 3)

	adapter.SetEvalResult("x+1", godap.EvaluateResponseBody{Result: "43", Type: "int"})
	result, evalErr := s.Evaluate(ctx, "x+1", "repl")
	require.NoError(t, evalErr)
	assert.Equal(t, "43", result.Result)
}

func TestAdapterExitForcesTerminated(t *testing.T) {
	t.Parallel()

	s, adapter := newTestSession(t)
	startSession(t, s)

	adapter.CloseAbruptly()

	// The very next pump of the event stream observes the death.
	require.NoError(t, s.WaitStopped(context.Background(), 5*time.Second))
	assert.Equal(t, StateTerminated, s.State())
	assert.Equal(t, ReasonAdapterExited, s.TerminationReason())
}

func TestWaitStoppedTimeout(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	startSession(t, s)

	waitErr := s.WaitStopped(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, waitErr, ErrNoStopEvent)
	// A timeout is not a state transition.
	assert.Equal(t, StateRunning, s.State())
}

func TestExitedEventCapturesExitCode(t *testing.T) {
	t.Parallel()

	s, adapter := newTestSession(t)
	startSession(t, s)

	adapter.EmitExited(3)
	adapter.EmitTerminated()

	require.NoError(t, s.WaitStopped(context.Background(), 5*time.Second))
	assert.Equal(t, StateTerminated, s.State())
	require.NotNil(t, s.ExitCode())
	assert.Equal(t, 3, *s.ExitCode())
}

func TestOutputEventsBuffered(t *testing.T) {
	t.Parallel()

	s, adapter := newTestSession(t)
	startSession(t, s)

	adapter.EmitOutput("stdout", "hello\n")
	adapter.EmitStopped("pause", 1)
	require.NoError(t, s.WaitStopped(context.Background(), 5*time.Second))

	events := s.Output().Tail(0)
	require.Len(t, events, 1)
	assert.Equal(t, "stdout", events[0].Category)
	assert.Equal(t, "hello\n", events[0].Output)
}

func TestRestartUnsupported(t *testing.T) {
	t.Parallel()

	adapter, transport := daptest.New()
	adapter.SetCapabilities(godap.Capabilities{
		SupportsConfigurationDoneRequest: true,
	})

	s := New(Config{
		AdapterID:      "mock",
		RequestTimeout: 5 * time.Second,
		Logger:         testr.New(t),
	})
	s.testTransport = transport
	t.Cleanup(s.Close)

	startSession(t, s)
	assert.ErrorIs(t, s.Restart(context.Background()), ErrRestartUnsupported)
}

func TestStopThenStartAgain(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	startSession(t, s)

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateTerminated, s.State())

	// Terminated permits a fresh start; give the session a new adapter.
	_, transport := daptest.New()
	s.testTransport = transport
	startSession(t, s)
	assert.Equal(t, StateRunning, s.State())
}

func TestStatusReport(t *testing.T) {
	t.Parallel()

	s, adapter := newTestSession(t)
	ctx := context.Background()
	startSession(t, s)

	_, addErr := s.AddBreakpoint(ctx, "/src/main.go:10", "", "")
	require.NoError(t, addErr)
	stopSession(t, s, adapter)

	status := s.Status()
	assert.Equal(t, StateStopped, status.State)
	assert.False(t, status.Attached)
	assert.Equal(t, "entry", status.StopReason)
	assert.Equal(t, 1, status.CurrentThread)
	assert.Equal(t, 1, status.Breakpoints)
}

func TestRejectedResumeLeavesSessionStopped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		command string
		resume  func(context.Context, *Session) error
	}{
		{"continue", func(ctx context.Context, s *Session) error { return s.Continue(ctx) }},
		{"next", func(ctx context.Context, s *Session) error { return s.Next(ctx) }},
		{"stepIn", func(ctx context.Context, s *Session) error { return s.StepIn(ctx) }},
		{"stepOut", func(ctx context.Context, s *Session) error { return s.StepOut(ctx) }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.command, func(t *testing.T) {
			t.Parallel()

			s, adapter := newTestSession(t)
			startSession(t, s)
			stopSession(t, s, adapter)

			adapter.FailCommand(tt.command, "cannot resume")

			resumeErr := tt.resume(context.Background(), s)
			require.Error(t, resumeErr)
			assert.True(t, dap.IsProtocolError(resumeErr))

			// The rejected resume leaves the stop intact and inspectable.
			assert.Equal(t, StateStopped, s.State())
			frames, traceErr := s.StackTrace(context.Background())
			require.NoError(t, traceErr)
			assert.NotEmpty(t, frames)
		})
	}
}
