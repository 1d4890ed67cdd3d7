package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// Budget bounds how long a client waits for the owner to answer each command.
//
// Status, detach, execute and setting return as soon as the owner touches its
// bridge, so Base covers them. Attach may scan a port range, probe the peer,
// and run the autoexec scripts before answering; alive waits for one ping.
type Budget struct {
	Base   time.Duration
	Attach time.Duration
	Alive  time.Duration
}

// Timeout returns the wait for command, never less than Base.
func (b Budget) Timeout(command string) time.Duration {
	var timeout time.Duration
	switch command {
	case CommandAttach:
		timeout = b.Attach
	case CommandAlive:
		timeout = b.Alive
	}
	return max(timeout, b.Base)
}

// Send forwards req to the owner listening on path and waits up to timeout
// for its single-line reply. The owner applies the request to its bridge
// before answering, so a slow peer shows up here as a slow reply.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}

	return resp, nil
}

// Probe checks whether a responsive msbridge owner is listening on path.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := Send(ctx, path, Request{Command: CommandStatus}, timeout)
	if err == nil {
		return true, nil
	}
	if Unavailable(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe socket: %w", err)
}

// Unavailable reports whether err from Send means no owner is listening, so
// the caller may fall back to a one-shot bridge or report "no owner".
func Unavailable(err error) bool {
	return isSocketMissing(err) || isConnectionRefused(err)
}

// isSocketMissing reports that no owner ever created the control socket.
func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist)
}

// isConnectionRefused reports a control socket left behind by a dead owner.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
