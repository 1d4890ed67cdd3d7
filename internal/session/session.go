// Package session runs the owner process: control requests, bridge events, and auto-attach.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rbright/msbridge/internal/bridge"
	"github.com/rbright/msbridge/internal/commands"
	"github.com/rbright/msbridge/internal/console"
	"github.com/rbright/msbridge/internal/frame"
	"github.com/rbright/msbridge/internal/fsm"
	"github.com/rbright/msbridge/internal/ipc"
)

// Bridge is the connection surface the controller drives.
type Bridge interface {
	commands.Bridge
	State() fsm.State
	Port() int
}

// Indicator is the controller-facing subset of indicator behavior.
type Indicator interface {
	ShowAttached(ctx context.Context, port int)
	ShowDetached(ctx context.Context)
	ShowLost(ctx context.Context, port int)
	ShowError(ctx context.Context, text string)
	Hide(ctx context.Context)
}

// Events receives bridge events and the notifications the bridge itself does not emit.
type Events interface {
	bridge.Sink
	PublishAttach(port int)
	PublishOutput(out frame.Output)
}

// Health mirrors the connection state for external probes.
type Health interface {
	bridge.Sink
	SetConnected(connected bool)
}

type noopIndicator struct{}

func (noopIndicator) ShowAttached(context.Context, int) {}
func (noopIndicator) ShowDetached(context.Context)      {}
func (noopIndicator) ShowLost(context.Context, int)     {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) Hide(context.Context)              {}

// Options configures port selection and auto-attach.
type Options struct {
	PortStart          int
	PortEnd            int
	AutoAttach         bool
	AutoAttachInterval time.Duration
}

// Deps are the optional collaborators of a Controller. Nil fields are skipped.
type Deps struct {
	Logger    *slog.Logger
	Indicator Indicator
	Events    Events
	Health    Health
}

// Controller serves control requests for the owner and observes bridge events.
type Controller struct {
	opts      Options
	logger    *slog.Logger
	indicator Indicator
	events    Events
	health    Health
	sinks     bridge.Fanout

	bridge Bridge
	facade *commands.Facade

	// detaching holds the port of an explicit detach whose Disconnect is expected.
	detaching atomic.Int64
}

// NewController builds a controller. Call Bind before serving requests.
func NewController(opts Options, deps Deps) *Controller {
	c := &Controller{
		opts:      opts,
		logger:    deps.Logger,
		indicator: deps.Indicator,
		events:    deps.Events,
		health:    deps.Health,
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.indicator == nil {
		c.indicator = noopIndicator{}
	}

	c.sinks = bridge.Fanout{console.NewAssembler(c.output)}
	if c.events != nil {
		c.sinks = append(c.sinks, c.events)
	}
	if c.health != nil {
		c.sinks = append(c.sinks, c.health)
	}
	return c
}

// Bind attaches the controller to the bridge it reports events for.
func (c *Controller) Bind(b Bridge, hook commands.PostAttachHook) {
	c.bridge = b
	c.facade = commands.New(b, hook, c.logger)
}

// Emit implements bridge.Sink.
func (c *Controller) Emit(ev bridge.Event) {
	c.sinks.Emit(ev)
	if ev.Kind != bridge.EventDisconnect {
		return
	}
	if c.detaching.CompareAndSwap(int64(ev.Port), 0) {
		return
	}
	if c.bridge != nil && c.bridge.State() == fsm.StateConnected {
		c.logger.Debug("ignoring disconnect of replaced connection", "port", ev.Port)
		return
	}
	c.logger.Warn("bridge connection lost", "port", ev.Port)
	c.indicator.ShowLost(context.Background(), ev.Port)
}

func (c *Controller) output(out frame.Output) {
	level := slog.LevelInfo
	if out.Kind == frame.OutputError {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "console output", "kind", out.Kind.String(), "text", out.Text)
	if c.events != nil {
		c.events.PublishOutput(out)
	}
}

// Run drives auto-attach until ctx ends, then detaches.
func (c *Controller) Run(ctx context.Context) error {
	if c.facade == nil {
		return errors.New("session controller is not bound to a bridge")
	}

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
		defer cancel()
		if c.bridge.State() == fsm.StateConnected {
			c.detaching.Store(int64(c.bridge.Port()))
		}
		if err := c.facade.Detach(); err != nil && commands.CodeOf(err) != "NotInjected" {
			c.logger.Warn("detach on shutdown failed", "error", err.Error())
		}
		c.indicator.Hide(cleanupCtx)
	}()

	if !c.opts.AutoAttach {
		<-ctx.Done()
		return nil
	}

	interval := c.opts.AutoAttachInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.autoAttach(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// autoAttach tries the configured range once while disconnected. Refusals are routine.
func (c *Controller) autoAttach(ctx context.Context) {
	if c.bridge.State() != fsm.StateDisconnected {
		return
	}
	port, err := c.facade.AttachFirst(ctx, c.opts.PortStart, c.opts.PortEnd)
	if err != nil {
		if commands.CodeOf(err) == "ConnectionRefused" {
			c.logger.Debug("auto-attach found no injection host", "start", c.opts.PortStart, "end", c.opts.PortEnd)
			return
		}
		c.logger.Warn("auto-attach failed", "port", port, "error", err.Error())
		return
	}
	c.attached(ctx, port)
}

func (c *Controller) attached(ctx context.Context, port int) {
	// A replaced link never announces its Disconnect, so the marker would linger.
	c.detaching.Store(0)
	c.logger.Info("attached", "port", port)
	if c.health != nil {
		c.health.SetConnected(true)
	}
	if c.events != nil {
		c.events.PublishAttach(port)
	}
	c.indicator.ShowAttached(ctx, port)
}

// Handle serves IPC commands for the owner.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	if c.facade == nil {
		return ipc.Response{OK: false, Error: "session controller is not bound to a bridge"}
	}

	switch req.Command {
	case ipc.CommandStatus:
		return c.status("status")
	case ipc.CommandAttach:
		return c.handleAttach(ctx, req.Port)
	case ipc.CommandDetach:
		return c.handleDetach(ctx)
	case ipc.CommandExecute:
		if err := c.facade.Execute(req.Script); err != nil {
			return c.fail(err)
		}
		return c.status("script sent")
	case ipc.CommandSetting:
		if err := c.facade.UpdateSetting(req.Key, req.Value); err != nil {
			return c.fail(err)
		}
		return c.status(fmt.Sprintf("setting %s=%t sent", req.Key, req.Value))
	case ipc.CommandAlive:
		alive, err := c.facade.Alive()
		if err != nil {
			return c.fail(err)
		}
		resp := c.status("alive")
		resp.Alive = alive
		if !alive {
			resp.Message = "not alive"
		}
		return resp
	default:
		return ipc.Response{OK: false, State: string(c.bridge.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) handleAttach(ctx context.Context, port int) ipc.Response {
	var err error
	if port == 0 {
		port, err = c.facade.AttachFirst(ctx, c.opts.PortStart, c.opts.PortEnd)
	} else {
		err = c.facade.Attach(ctx, port)
	}
	if err != nil {
		c.indicator.ShowError(ctx, err.Error())
		resp := c.fail(err)
		resp.Port = port
		return resp
	}
	c.attached(ctx, port)
	return c.status(fmt.Sprintf("attached on port %d", port))
}

func (c *Controller) handleDetach(ctx context.Context) ipc.Response {
	port := c.bridge.Port()
	c.detaching.Store(int64(port))
	if err := c.facade.Detach(); err != nil {
		c.detaching.Store(0)
		return c.fail(err)
	}
	c.logger.Info("detached", "port", port)
	c.indicator.ShowDetached(ctx)
	return c.status("detached")
}

func (c *Controller) status(message string) ipc.Response {
	return ipc.Response{
		OK:      true,
		State:   string(c.bridge.State()),
		Port:    c.bridge.Port(),
		Message: message,
	}
}

func (c *Controller) fail(err error) ipc.Response {
	return ipc.Response{
		OK:    false,
		State: string(c.bridge.State()),
		Code:  commands.CodeOf(err),
		Error: err.Error(),
	}
}
