package bridge

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rbright/msbridge/internal/frame"
	"github.com/stretchr/testify/require"
)

// received is one frame observed by the fake injection host.
type received struct {
	header  frame.Header
	payload []byte
}

// fakePeer is an in-process injection host on a loopback port.
type fakePeer struct {
	listener net.Listener
	port     int

	// reply decides the ping answer; ok=false stays silent.
	reply func(connIndex, pingIndex int) (byte, bool)

	frames chan received
	conns  chan net.Conn

	mu       sync.Mutex
	accepted int
}

func startPeer(t *testing.T, reply func(connIndex, pingIndex int) (byte, bool)) *fakePeer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &fakePeer{
		listener: listener,
		port:     listener.Addr().(*net.TCPAddr).Port,
		reply:    reply,
		frames:   make(chan received, 64),
		conns:    make(chan net.Conn, 8),
	}
	t.Cleanup(func() { _ = listener.Close() })

	go p.acceptLoop()
	return p
}

func alwaysAlive(int, int) (byte, bool) { return frame.AliveMarker, true }

func (p *fakePeer) acceptLoop() {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		index := p.accepted
		p.accepted++
		p.mu.Unlock()

		p.conns <- conn
		go p.serve(conn, index)
	}
}

func (p *fakePeer) acceptedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepted
}

func (p *fakePeer) serve(conn net.Conn, connIndex int) {
	defer conn.Close()

	pings := 0
	header := make([]byte, frame.HeaderSize)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		h, err := frame.DecodeHeader(header)
		if err != nil {
			return
		}
		payload := make([]byte, h.Length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}

		if h.Tag == frame.TagPing {
			b, ok := p.reply(connIndex, pings)
			pings++
			if ok {
				_, _ = conn.Write([]byte{b})
			}
			continue
		}
		p.frames <- received{header: h, payload: payload}
	}
}

// closedPort returns a loopback port with no listener bound.
func closedPort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func eventRecorder() (Sink, chan Event) {
	events := make(chan Event, 64)
	return SinkFunc(func(ev Event) { events <- ev }), events
}

func waitEvent(t *testing.T, events <-chan Event, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(timeout):
		t.Fatalf("no event within %s", timeout)
		return Event{}
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ProbeTimeout = 200 * time.Millisecond
	opts.PollInterval = 20 * time.Millisecond
	return opts
}
