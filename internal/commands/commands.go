// Package commands maps control requests onto bridge operations and named error codes.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/msbridge/internal/bridge"
	"github.com/rbright/msbridge/internal/frame"
)

// CodeInvalidArgument marks requests rejected before reaching the bridge.
const CodeInvalidArgument = "InvalidArgument"

// Bridge is the connection surface the façade drives.
type Bridge interface {
	Attach(ctx context.Context, port int) error
	Detach() error
	Send(cmd frame.Command) error
	IsAlive() (bool, error)
}

// Sender is the subset of Bridge handed to post-attach hooks.
type Sender interface {
	Send(cmd frame.Command) error
}

// PostAttachHook runs once after a fresh attach succeeds, before Attach returns.
type PostAttachHook func(ctx context.Context, s Sender) error

// Error is the user-facing failure of one request.
type Error struct {
	Code   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the request error code carried by err, or "" for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		return cmdErr.Code
	}
	return bridge.Code(err)
}

// Facade is the per-request entry point used by the control socket and one-shot CLI paths.
type Facade struct {
	bridge Bridge
	hook   PostAttachHook
	logger *slog.Logger
}

// New builds a façade over b. hook may be nil.
func New(b Bridge, hook PostAttachHook, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Facade{bridge: b, hook: hook, logger: logger}
}

// Attach connects to port and runs the post-attach hook on success.
func (f *Facade) Attach(ctx context.Context, port int) error {
	if err := validatePort(port); err != nil {
		return err
	}
	if err := f.bridge.Attach(ctx, port); err != nil {
		return wrap(err)
	}

	if f.hook != nil {
		if err := f.hook(ctx, f.bridge); err != nil {
			f.logger.Warn("post-attach hook failed", "port", port, "error", err.Error())
		}
	}
	return nil
}

// AttachFirst tries ports start..end in order, moving on only while the peer
// refuses the connection. It returns the port that was attached, or the port
// that reported AlreadyInjected together with that error.
func (f *Facade) AttachFirst(ctx context.Context, start, end int) (int, error) {
	if err := validatePort(start); err != nil {
		return 0, err
	}
	if err := validatePort(end); err != nil {
		return 0, err
	}
	if start > end {
		return 0, invalid("port range %d-%d is empty", start, end)
	}

	var lastErr error
	for port := start; port <= end; port++ {
		err := f.Attach(ctx, port)
		if err == nil {
			return port, nil
		}
		if CodeOf(err) != "ConnectionRefused" {
			return port, err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return 0, lastErr
}

// Detach closes the active connection.
func (f *Facade) Detach() error {
	return wrap(f.bridge.Detach())
}

// Execute sends one script to the peer.
func (f *Facade) Execute(script string) error {
	return wrap(f.bridge.Send(frame.Execute{Script: script}))
}

// UpdateSetting sends one boolean setting to the peer.
func (f *Facade) UpdateSetting(key string, value bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return invalid("setting key must not be empty")
	}
	if strings.ContainsAny(key, " \t\r\n") {
		return invalid("setting key %q must not contain whitespace", key)
	}
	return wrap(f.bridge.Send(frame.UpdateSetting{Key: key, Value: value}))
}

// Alive probes the attached peer.
func (f *Facade) Alive() (bool, error) {
	alive, err := f.bridge.IsAlive()
	return alive, wrap(err)
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return invalid("port %d out of range 1-65535", port)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return &Error{Code: CodeInvalidArgument, Detail: fmt.Sprintf(format, args...)}
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: bridge.Code(err), Err: err}
}
