// Package daemon implements the session host: the long-lived process that
// owns the debug session and serves caller commands over a unix socket. All
// session mutation happens on the host's main loop goroutine; connection
// goroutines only shuttle frames.
package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
	godap "github.com/google/go-dap"

	"github.com/akiselev/debugger-cli/internal/config"
	"github.com/akiselev/debugger-cli/internal/dap"
	"github.com/akiselev/debugger-cli/internal/ipc"
	"github.com/akiselev/debugger-cli/internal/session"
)

// defaultIdleCheckInterval is how often the host re-evaluates the idle
// timeout.
const defaultIdleCheckInterval = time.Minute

// Daemon hosts one debug session behind a unix socket.
type Daemon struct {
	log      logr.Logger
	cfg      config.Config
	listener net.Listener

	session *session.Session

	// events is the adapter event stream of the current session; nil when no
	// adapter is connected or the stream already ended.
	events <-chan godap.EventMessage

	requests   chan *dispatch
	shutdownCh chan struct{}
	once       sync.Once

	lastActivity      time.Time
	idleCheckInterval time.Duration

	// newTransport, when set, replaces adapter process launching. Test hook.
	newTransport func() dap.Transport
}

// dispatch carries one decoded request from a connection goroutine to the
// main loop and its answer back.
type dispatch struct {
	req    ipc.Request
	result chan outcome
}

// outcome is the main loop's answer: a response frame, plus an optional
// stream to run on the connection after the response is written.
type outcome struct {
	resp   ipc.Response
	stream func(*connection)
}

// New builds a host serving on listener.
func New(cfg config.Config, listener net.Listener, log logr.Logger) *Daemon {
	d := &Daemon{
		log:               log,
		cfg:               cfg,
		listener:          listener,
		requests:          make(chan *dispatch),
		shutdownCh:        make(chan struct{}),
		idleCheckInterval: defaultIdleCheckInterval,
	}
	d.session = session.New(session.Config{
		RequestTimeout:  cfg.RequestTimeout(),
		OutputMaxEvents: cfg.Output.MaxEvents,
		OutputMaxBytes:  cfg.OutputMaxBytes(),
		Logger:          log.WithName("session"),
	})
	return d
}

// Run serves until ctx is cancelled, a shutdown command arrives, or the idle
// timeout fires with no active session.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.listener.Close()
	defer d.session.Close()

	go d.acceptLoop()

	idleTicker := time.NewTicker(d.idleCheckInterval)
	defer idleTicker.Stop()
	d.lastActivity = time.Now()

	d.log.Info("Session host ready", "socket", d.listener.Addr().String())

	for {
		select {
		case <-ctx.Done():
			d.log.Info("Session host interrupted")
			return nil

		case <-d.shutdownCh:
			d.log.Info("Session host shutting down on request")
			return nil

		case disp := <-d.requests:
			d.lastActivity = time.Now()
			disp.result <- d.handle(ctx, disp.req)

		case ev, ok := <-d.events:
			if !ok {
				d.session.HandleDisconnect()
				d.events = nil
				continue
			}
			d.session.HandleEvent(ev)

		case <-idleTicker.C:
			if d.sessionActive() {
				d.lastActivity = time.Now()
				continue
			}
			idle := d.cfg.IdleTimeout()
			if idle > 0 && time.Since(d.lastActivity) >= idle {
				d.log.Info("Session host idle, exiting", "idleTimeout", idle.String())
				return nil
			}
		}
	}
}

// Shutdown asks the main loop to exit. Safe to call multiple times and from
// any goroutine.
func (d *Daemon) Shutdown() {
	d.once.Do(func() {
		close(d.shutdownCh)
	})
}

func (d *Daemon) sessionActive() bool {
	switch d.session.State() {
	case session.StateIdle, session.StateTerminated:
		return false
	}
	return true
}

func (d *Daemon) acceptLoop() {
	for {
		conn, acceptErr := d.listener.Accept()
		if acceptErr != nil {
			// Listener closed; the main loop is on its way out.
			return
		}
		go d.serveConn(conn)
	}
}

// connection wraps one accepted caller connection. The write mutex keeps
// response frames and streamed event frames from interleaving.
type connection struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (c *connection) writeFrame(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ipc.WriteFrame(c.conn, v)
}

func (d *Daemon) serveConn(raw net.Conn) {
	c := &connection{conn: raw}
	defer raw.Close()

	for {
		var req ipc.Request
		if readErr := ipc.ReadFrame(raw, &req); readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				d.log.V(1).Info("Dropping caller connection", "cause", readErr.Error())
			}
			return
		}

		disp := &dispatch{req: req, result: make(chan outcome, 1)}

		select {
		case d.requests <- disp:
		case <-d.shutdownCh:
			_ = c.writeFrame(ipc.ErrorResponse(req.ID, ipc.CodeInternalError, "session host is shutting down"))
			return
		}

		var res outcome
		select {
		case res = <-disp.result:
		case <-d.shutdownCh:
			// A shutdown command closes shutdownCh before its own result is
			// posted; give that result a moment to arrive so the caller gets
			// an acknowledgement.
			select {
			case res = <-disp.result:
			case <-time.After(time.Second):
				return
			}
		}

		if writeErr := c.writeFrame(res.resp); writeErr != nil {
			return
		}

		if res.stream != nil {
			// The connection is now a one-way event feed.
			res.stream(c)
			return
		}
	}
}
