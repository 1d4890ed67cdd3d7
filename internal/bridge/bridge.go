// Package bridge owns the single loopback connection to the script-injection host.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rbright/msbridge/internal/frame"
	"github.com/rbright/msbridge/internal/fsm"
)

const readBufferSize = 1024

// Options bounds every blocking step of the bridge.
type Options struct {
	Host           string
	ConnectTimeout time.Duration
	ProbeTimeout   time.Duration
	PollInterval   time.Duration
}

// DefaultOptions returns loopback defaults matching the injection host's expectations.
func DefaultOptions() Options {
	return Options{
		Host:           "127.0.0.1",
		ConnectTimeout: 100 * time.Millisecond,
		ProbeTimeout:   time.Second,
		PollInterval:   100 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Host == "" {
		o.Host = def.Host
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = def.ProbeTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	return o
}

// link is one live socket plus the listener bookkeeping tied to it.
type link struct {
	port int
	conn net.Conn
	done chan struct{}

	replyMu sync.Mutex
	reply   chan []byte
}

// expectReply routes the next inbound chunk to the returned channel instead of subscribers.
func (l *link) expectReply() <-chan []byte {
	ch := make(chan []byte, 1)
	l.replyMu.Lock()
	l.reply = ch
	l.replyMu.Unlock()
	return ch
}

func (l *link) clearReply() {
	l.replyMu.Lock()
	l.reply = nil
	l.replyMu.Unlock()
}

// deliverReply hands chunk to a waiting probe and reports whether one was waiting.
func (l *link) deliverReply(chunk []byte) bool {
	l.replyMu.Lock()
	defer l.replyMu.Unlock()
	if l.reply == nil {
		return false
	}
	select {
	case l.reply <- chunk:
	default:
	}
	l.reply = nil
	return true
}

// Bridge is the process-wide connection owner. All operations are serialized
// by one mutex; the background listener shares the socket for reads only.
type Bridge struct {
	opts   Options
	sink   Sink
	logger *slog.Logger

	mu    sync.Mutex
	state fsm.State
	link  *link
}

// New creates a disconnected bridge that reports listener events to sink.
func New(opts Options, sink Sink, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bridge{
		opts:   opts.withDefaults(),
		sink:   sink,
		logger: logger,
		state:  fsm.StateDisconnected,
	}
}

// State returns the current connection state snapshot.
func (b *Bridge) State() fsm.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Port returns the attached port, or 0 when disconnected.
func (b *Bridge) Port() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.link == nil {
		return 0
	}
	return b.link.port
}

// Attach connects to 127.0.0.1:port and starts the background listener.
//
// A cached connection that still answers the liveness probe yields
// ErrAlreadyInjected; one that does not is discarded and replaced.
func (b *Bridge) Attach(ctx context.Context, port int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.link != nil {
		alive, err := b.probeLinked(b.link)
		if err != nil {
			return err
		}
		if alive {
			return ErrAlreadyInjected
		}
		b.logger.Info("discarding stale bridge connection", "port", b.link.port)
		_ = b.dropLocked(fsm.EventLost)
	}

	conn, err := b.dial(ctx, port)
	if err != nil {
		return err
	}

	alive, err := probeConn(conn, b.opts.ProbeTimeout)
	if err != nil {
		_ = conn.Close()
		return err
	}
	if !alive {
		_ = conn.Close()
		return ErrSocketNotAlive
	}

	next, err := fsm.Transition(b.state, fsm.EventAttach)
	if err != nil {
		_ = conn.Close()
		return err
	}

	l := &link{port: port, conn: conn, done: make(chan struct{})}
	b.link = l
	b.state = next
	b.logger.Info("bridge attached", "port", port)

	go b.listen(l)
	return nil
}

// Detach shuts down both directions of the socket and clears the connection state.
func (b *Bridge) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.link == nil {
		return ErrNotInjected
	}

	port := b.link.port
	err := b.dropLocked(fsm.EventDetach)
	if err != nil {
		if errors.Is(err, syscall.ENOTCONN) || errors.Is(err, net.ErrClosed) {
			return ErrNotInjected
		}
		return &TransportError{Op: "shutdown", Err: err}
	}

	b.logger.Info("bridge detached", "port", port)
	return nil
}

// Send writes one complete command frame. Write failures report ErrNotInjected
// and leave the connection state untouched.
func (b *Bridge) Send(cmd frame.Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.link == nil {
		return ErrNotInjected
	}

	data := frame.Marshal(cmd)
	conn := b.link.conn
	if err := conn.SetWriteDeadline(time.Now().Add(b.opts.ProbeTimeout)); err != nil {
		return fmt.Errorf("%w: set write deadline: %v", ErrNotInjected, err)
	}
	if _, err := conn.Write(data); err != nil {
		b.logger.Debug("bridge write failed", "tag", cmd.Tag().String(), "error", err.Error())
		return fmt.Errorf("%w: write %s frame: %v", ErrNotInjected, cmd.Tag(), err)
	}
	return nil
}

// IsAlive pings the attached peer and waits a bounded time for the alive marker.
// Timeouts and mismatched replies report false rather than an error.
func (b *Bridge) IsAlive() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.link == nil {
		return false, ErrNotInjected
	}
	return b.probeLinked(b.link)
}

// Close detaches when attached. It is safe to call at process exit.
func (b *Bridge) Close() error {
	err := b.Detach()
	if errors.Is(err, ErrNotInjected) {
		return nil
	}
	return err
}

// dropLocked closes the current link and applies event to the state machine.
// Callers hold b.mu.
func (b *Bridge) dropLocked(event fsm.Event) error {
	l := b.link
	b.link = nil
	if next, err := fsm.Transition(b.state, event); err == nil {
		b.state = next
	} else {
		b.state = fsm.StateDisconnected
	}
	return shutdown(l.conn)
}

// release clears state on behalf of an exiting listener. It reports whether
// the listener should announce the disconnect: false once a newer link owns
// the bridge.
func (b *Bridge) release(l *link) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.link {
	case l:
		b.link = nil
		if next, err := fsm.Transition(b.state, fsm.EventLost); err == nil {
			b.state = next
		}
		return true
	case nil:
		return true
	default:
		return false
	}
}

// probeLinked pings through a link whose listener owns the read side.
func (b *Bridge) probeLinked(l *link) (bool, error) {
	reply := l.expectReply()
	defer l.clearReply()

	if err := l.conn.SetWriteDeadline(time.Now().Add(b.opts.ProbeTimeout)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return false, nil
		}
		return false, fmt.Errorf("set probe deadline: %w", err)
	}
	if _, err := l.conn.Write(frame.Marshal(frame.Ping{})); err != nil {
		b.logger.Debug("bridge probe write failed", "port", l.port, "error", err.Error())
		return false, nil
	}

	timer := time.NewTimer(b.opts.ProbeTimeout)
	defer timer.Stop()

	select {
	case data := <-reply:
		return frame.IsAlive(data), nil
	case <-l.done:
		return false, nil
	case <-timer.C:
		b.logger.Debug("bridge probe timed out", "port", l.port)
		return false, nil
	}
}

// dial opens the loopback socket with a bounded connect timeout.
func (b *Bridge) dial(ctx context.Context, port int) (net.Conn, error) {
	return dialPeer(ctx, b.opts, port)
}

func dialPeer(ctx context.Context, opts Options, port int) (net.Conn, error) {
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		switch {
		case errors.Is(err, syscall.ECONNREFUSED):
			return nil, fmt.Errorf("%w: %s", ErrConnectionRefused, addr)
		case isTimeout(err):
			return nil, fmt.Errorf("%w: %s", ErrTimedOut, addr)
		default:
			return nil, &TransportError{Op: "connect", Err: err}
		}
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}

// probeConn runs the liveness exchange on a socket no listener reads from yet.
func probeConn(conn net.Conn, timeout time.Duration) (bool, error) {
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return false, fmt.Errorf("set probe deadline: %w", err)
	}
	defer func() { _ = conn.SetDeadline(time.Time{}) }()

	if _, err := conn.Write(frame.Marshal(frame.Ping{})); err != nil {
		return false, nil
	}

	buf := make([]byte, readBufferSize)
	n, _ := conn.Read(buf)
	if n == 0 {
		return false, nil
	}
	return frame.IsAlive(buf[:n]), nil
}

// shutdown closes both directions and releases the descriptor.
func shutdown(conn net.Conn) error {
	var shutdownErr error
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseRead(); err != nil {
			shutdownErr = err
		}
		if err := tcp.CloseWrite(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}
	if err := conn.Close(); err != nil && shutdownErr == nil && !errors.Is(err, net.ErrClosed) {
		shutdownErr = err
	}
	return shutdownErr
}
