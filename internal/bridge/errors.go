package bridge

import (
	"context"
	"errors"
	"net"
	"os"
)

var (
	ErrConnectionRefused = errors.New("connection refused by injection host")
	ErrTimedOut          = errors.New("timed out connecting to injection host")
	ErrAlreadyInjected   = errors.New("already attached to a live injection host")
	ErrSocketNotAlive    = errors.New("injection host did not answer the liveness probe")
	ErrNotInjected       = errors.New("not attached to an injection host")
)

// TransportError carries an unclassified OS-level failure. Its message is the
// underlying error text, unchanged.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

var codes = []struct {
	err  error
	code string
}{
	{ErrConnectionRefused, "ConnectionRefused"},
	{ErrTimedOut, "TimedOut"},
	{ErrAlreadyInjected, "AlreadyInjected"},
	{ErrSocketNotAlive, "SocketNotAlive"},
	{ErrNotInjected, "NotInjected"},
}

// Code names err for user-facing reporting. Unclassified errors keep their own message.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return err.Error()
}

// isTimeout reports deadline expiry from dials, reads, and writes.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
