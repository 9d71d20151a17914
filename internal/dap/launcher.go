package dap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-logr/logr"
)

// PortPlaceholder is the placeholder in adapter args that will be replaced
// with the allocated port.
const PortPlaceholder = "{{port}}"

// DefaultAdapterConnectionTimeout bounds how long a TCP-mode adapter may take
// to become reachable.
const DefaultAdapterConnectionTimeout = 10 * time.Second

// AdapterMode selects how the host reaches the adapter's DAP endpoint.
type AdapterMode string

const (
	// AdapterModeStdio speaks DAP over the adapter's stdin/stdout.
	AdapterModeStdio AdapterMode = "stdio"

	// AdapterModeTCPConnect allocates a port, substitutes it into the
	// adapter's args, and connects to the adapter once it listens.
	AdapterModeTCPConnect AdapterMode = "tcp-connect"

	// AdapterModeTCPAnnounce lets the adapter pick its own port and print it
	// on stdout; the host parses the announcement and connects.
	AdapterModeTCPAnnounce AdapterMode = "tcp-announce"
)

// ErrInvalidAdapterConfig is returned when the debug adapter configuration is
// invalid.
var ErrInvalidAdapterConfig = errors.New("invalid debug adapter configuration: Args must have at least one element")

// portAnnouncementRe matches the port announcement adapters print in
// tcp-announce mode, e.g. "DAP server listening at: 127.0.0.1:38697" (delve)
// or a bare "Listening on port 4711".
var portAnnouncementRe = regexp.MustCompile(`(?i)(?:listening|server started).*?(?::| port )\s*(?:[\w.]+:)?(\d{2,5})\b`)

// AdapterConfig describes how to launch and reach a debug adapter.
type AdapterConfig struct {
	// Args is the adapter command line; Args[0] is the executable.
	Args []string

	// Env holds extra NAME=VALUE entries appended to the host environment.
	Env []string

	// Cwd is the working directory for the adapter process. Empty means
	// inherit.
	Cwd string

	// Mode selects stdio, tcp-connect, or tcp-announce. Empty means stdio.
	Mode AdapterMode

	// ConnectionTimeout bounds the wait for a TCP-mode adapter to become
	// reachable. Zero means DefaultAdapterConnectionTimeout.
	ConnectionTimeout time.Duration
}

// LaunchedAdapter is a running debug adapter process with its transport.
type LaunchedAdapter struct {
	// Transport provides DAP message I/O with the debug adapter.
	Transport Transport

	cmd *exec.Cmd

	// done signals when the process has exited.
	done chan struct{}

	// exitCode and exitErr are valid once done is closed.
	exitCode int
	exitErr  error
	mu       sync.Mutex
}

// Wait blocks until the debug adapter process exits and returns its exit
// error, if any.
func (la *LaunchedAdapter) Wait() error {
	<-la.done
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.exitErr
}

// ExitCode returns the process exit code. Only valid after Done is closed;
// -1 before that.
func (la *LaunchedAdapter) ExitCode() int {
	la.mu.Lock()
	defer la.mu.Unlock()
	return la.exitCode
}

// Pid returns the process ID of the debug adapter.
func (la *LaunchedAdapter) Pid() int {
	if la.cmd == nil || la.cmd.Process == nil {
		return -1
	}
	return la.cmd.Process.Pid
}

// Done returns a channel that is closed when the debug adapter process exits.
func (la *LaunchedAdapter) Done() <-chan struct{} {
	return la.done
}

// Close closes the transport. It does not stop the process; use Stop for
// that.
func (la *LaunchedAdapter) Close() error {
	if la.Transport != nil {
		return la.Transport.Close()
	}
	return nil
}

// Stop kills the debug adapter process if it is still running.
func (la *LaunchedAdapter) Stop() error {
	select {
	case <-la.done:
		return nil
	default:
	}
	if la.cmd != nil && la.cmd.Process != nil {
		return la.cmd.Process.Kill()
	}
	return nil
}

// LaunchAdapter starts a debug adapter process per config and returns it with
// a connected transport. The caller owns the returned adapter: Close the
// transport and Stop the process when done.
func LaunchAdapter(ctx context.Context, config *AdapterConfig, log logr.Logger) (*LaunchedAdapter, error) {
	if config == nil || len(config.Args) == 0 {
		return nil, ErrInvalidAdapterConfig
	}

	switch config.Mode {
	case AdapterModeTCPConnect:
		return launchTCPConnectAdapter(ctx, config, log)
	case AdapterModeTCPAnnounce:
		return launchTCPAnnounceAdapter(ctx, config, log)
	case AdapterModeStdio, "":
		return launchStdioAdapter(ctx, config, log)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidAdapterConfig, config.Mode)
	}
}

// launchStdioAdapter starts the adapter and speaks DAP over its pipes.
func launchStdioAdapter(ctx context.Context, config *AdapterConfig, log logr.Logger) (*LaunchedAdapter, error) {
	cmd := buildCmd(ctx, config.Args, config)

	stdin, stdinErr := cmd.StdinPipe()
	if stdinErr != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", stdinErr)
	}

	stdout, stdoutErr := cmd.StdoutPipe()
	if stdoutErr != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", stdoutErr)
	}

	stderr, stderrErr := cmd.StderrPipe()
	if stderrErr != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", stderrErr)
	}

	adapter := &LaunchedAdapter{
		cmd:      cmd,
		done:     make(chan struct{}),
		exitCode: -1,
	}

	if startErr := cmd.Start(); startErr != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start debug adapter: %w", startErr)
	}

	go logStderr(stderr, log)
	go adapter.waitForExit(log)

	log.Info("Launched debug adapter process (stdio mode)",
		"command", config.Args[0],
		"args", config.Args[1:],
		"pid", cmd.Process.Pid)

	adapter.Transport = NewStdioTransport(stdout, stdin)
	return adapter, nil
}

// launchTCPConnectAdapter allocates a port, hands it to the adapter via
// {{port}} substitution, and connects once the adapter listens.
func launchTCPConnectAdapter(ctx context.Context, config *AdapterConfig, log logr.Logger) (*LaunchedAdapter, error) {
	port, portErr := allocateFreePort()
	if portErr != nil {
		return nil, fmt.Errorf("failed to allocate port: %w", portErr)
	}

	args := substitutePort(config.Args, strconv.Itoa(port))
	cmd := buildCmd(ctx, args, config)

	stderr, stderrErr := cmd.StderrPipe()
	if stderrErr != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", stderrErr)
	}

	adapter := &LaunchedAdapter{
		cmd:      cmd,
		done:     make(chan struct{}),
		exitCode: -1,
	}

	if startErr := cmd.Start(); startErr != nil {
		stderr.Close()
		return nil, fmt.Errorf("failed to start debug adapter: %w", startErr)
	}

	go logStderr(stderr, log)
	go adapter.waitForExit(log)

	log.Info("Launched debug adapter process (tcp-connect mode)",
		"command", args[0],
		"args", args[1:],
		"pid", cmd.Process.Pid,
		"port", port)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, connectErr := dialAdapter(ctx, adapter, addr, connectionTimeout(config))
	if connectErr != nil {
		_ = adapter.Stop()
		return nil, connectErr
	}

	log.Info("Connected to debug adapter", "address", addr)

	adapter.Transport = NewConnTransport(conn)
	return adapter, nil
}

// launchTCPAnnounceAdapter starts the adapter and parses the listen port from
// its stdout announcement.
func launchTCPAnnounceAdapter(ctx context.Context, config *AdapterConfig, log logr.Logger) (*LaunchedAdapter, error) {
	cmd := buildCmd(ctx, config.Args, config)

	stdout, stdoutErr := cmd.StdoutPipe()
	if stdoutErr != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", stdoutErr)
	}

	stderr, stderrErr := cmd.StderrPipe()
	if stderrErr != nil {
		stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", stderrErr)
	}

	adapter := &LaunchedAdapter{
		cmd:      cmd,
		done:     make(chan struct{}),
		exitCode: -1,
	}

	if startErr := cmd.Start(); startErr != nil {
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("failed to start debug adapter: %w", startErr)
	}

	go logStderr(stderr, log)
	go adapter.waitForExit(log)

	log.Info("Launched debug adapter process (tcp-announce mode)",
		"command", config.Args[0],
		"args", config.Args[1:],
		"pid", cmd.Process.Pid)

	port, announceErr := awaitPortAnnouncement(stdout, adapter, connectionTimeout(config), log)
	if announceErr != nil {
		_ = adapter.Stop()
		return nil, announceErr
	}

	// Keep draining stdout so the adapter never blocks on a full pipe.
	go logStderr(stdout, log)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, connectErr := dialAdapter(ctx, adapter, addr, connectionTimeout(config))
	if connectErr != nil {
		_ = adapter.Stop()
		return nil, connectErr
	}

	log.Info("Connected to debug adapter", "address", addr)

	adapter.Transport = NewConnTransport(conn)
	return adapter, nil
}

func (la *LaunchedAdapter) waitForExit(log logr.Logger) {
	waitErr := la.cmd.Wait()

	la.mu.Lock()
	la.exitErr = waitErr
	la.exitCode = la.cmd.ProcessState.ExitCode()
	exitCode := la.exitCode
	la.mu.Unlock()
	close(la.done)

	if waitErr != nil {
		log.V(1).Info("Debug adapter process exited with error",
			"pid", la.cmd.Process.Pid,
			"exitCode", exitCode,
			"error", waitErr.Error())
	} else {
		log.V(1).Info("Debug adapter process exited",
			"pid", la.cmd.Process.Pid,
			"exitCode", exitCode)
	}
}

// dialAdapter connects to the adapter's listen address, retrying until the
// timeout. Adapter exit during the retry window aborts immediately.
func dialAdapter(ctx context.Context, adapter *LaunchedAdapter, addr string, timeout time.Duration) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, dialErr := retry.DoWithData(
		func() (net.Conn, error) {
			select {
			case <-adapter.done:
				return nil, retry.Unrecoverable(errors.New("debug adapter process exited before connection could be established"))
			default:
			}
			return net.DialTimeout("tcp", addr, time.Second)
		},
		retry.Context(dialCtx),
		retry.Attempts(0),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if dialErr != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: failed to connect to adapter at %s: %v", ErrAdapterConnectionTimeout, addr, dialErr)
		}
		return nil, fmt.Errorf("failed to connect to adapter at %s: %w", addr, dialErr)
	}

	return conn, nil
}

// awaitPortAnnouncement scans adapter stdout lines until one announces a
// listen port.
func awaitPortAnnouncement(stdout io.Reader, adapter *LaunchedAdapter, timeout time.Duration, log logr.Logger) (int, error) {
	type announcement struct {
		port int
		err  error
	}
	resultCh := make(chan announcement, 1)

	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			log.V(1).Info("Debug adapter output", "line", line)
			if m := portAnnouncementRe.FindStringSubmatch(line); m != nil {
				port, parseErr := strconv.Atoi(m[1])
				if parseErr == nil {
					resultCh <- announcement{port: port}
					return
				}
			}
		}
		resultCh <- announcement{err: errors.New("adapter stdout ended before announcing a listen port")}
	}()

	select {
	case result := <-resultCh:
		return result.port, result.err
	case <-adapter.done:
		return 0, errors.New("debug adapter process exited before announcing a listen port")
	case <-time.After(timeout):
		return 0, fmt.Errorf("%w: no port announcement on adapter stdout", ErrAdapterConnectionTimeout)
	}
}

func buildCmd(ctx context.Context, args []string, config *AdapterConfig) *exec.Cmd {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = config.Cwd
	cmd.Env = append(os.Environ(), config.Env...)
	return cmd
}

func connectionTimeout(config *AdapterConfig) time.Duration {
	if config.ConnectionTimeout > 0 {
		return config.ConnectionTimeout
	}
	return DefaultAdapterConnectionTimeout
}

// allocateFreePort asks the kernel for a free TCP port on loopback.
func allocateFreePort() (int, error) {
	l, listenErr := net.Listen("tcp", "127.0.0.1:0")
	if listenErr != nil {
		return 0, listenErr
	}
	defer l.Close()

	_, portStr, splitErr := net.SplitHostPort(l.Addr().String())
	if splitErr != nil {
		return 0, splitErr
	}
	return strconv.Atoi(portStr)
}

// substitutePort replaces the {{port}} placeholder in args with the actual
// port.
func substitutePort(args []string, port string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = strings.ReplaceAll(arg, PortPlaceholder, port)
	}
	return result
}

// logStderr reads and logs adapter diagnostic output.
func logStderr(r io.Reader, log logr.Logger) {
	buf := make([]byte, 1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			log.Info("Debug adapter stderr", "output", string(buf[:n]))
		}
		if readErr != nil {
			return
		}
	}
}
