package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/rbright/msbridge/internal/autoexec"
	"github.com/rbright/msbridge/internal/bridge"
	"github.com/rbright/msbridge/internal/commands"
	"github.com/rbright/msbridge/internal/config"
	"github.com/rbright/msbridge/internal/eventstream"
	"github.com/rbright/msbridge/internal/fsm"
	"github.com/rbright/msbridge/internal/health"
	"github.com/rbright/msbridge/internal/indicator"
	"github.com/rbright/msbridge/internal/ipc"
	"github.com/rbright/msbridge/internal/session"
)

// commandServe runs the single owner process until ctx ends.
func (r Runner) commandServe(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: msbridge owner already running")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	var hook commands.PostAttachHook
	if cfg.AutoExecute {
		if err := autoexec.Ensure(cfg.AutoExecDir); err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		hook = autoexec.Hook(cfg.AutoExecDir, logger)
	}

	indicatorCtl := indicator.NewDesktopNotify(cfg.Indicator, logger)
	defer indicatorCtl.Wait()

	deps := session.Deps{Logger: logger, Indicator: indicatorCtl}

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()
	var background []<-chan error
	var healthServer *health.Server

	if cfg.Events.Listen != "" {
		hub := eventstream.NewHub(logger)
		defer hub.Close()
		eventsListener, listenErr := net.Listen("tcp", cfg.Events.Listen)
		if listenErr != nil {
			fmt.Fprintf(r.Stderr, "error: listen events %s: %v\n", cfg.Events.Listen, listenErr)
			return 1
		}
		logger.Info("event stream listening", "addr", eventsListener.Addr().String())
		background = append(background, goServe(func() error {
			return eventstream.Serve(serverCtx, eventsListener, hub)
		}))
		deps.Events = hub
	}

	if cfg.Health.Enable {
		healthPath, pathErr := ipc.HealthSocketPath()
		if pathErr != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", pathErr)
			return 1
		}
		healthListener, listenErr := health.Listen(healthPath)
		if listenErr != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", listenErr)
			return 1
		}
		defer func() { _ = os.Remove(healthPath) }()
		healthServer = health.NewServer(logger)
		background = append(background, goServe(func() error {
			return healthServer.Serve(serverCtx, healthListener)
		}))
		deps.Health = healthServer
	}

	controller := session.NewController(session.Options{
		PortStart:          cfg.Bridge.PortStart,
		PortEnd:            cfg.Bridge.PortEnd,
		AutoAttach:         cfg.AutoAttach,
		AutoAttachInterval: cfg.Bridge.AutoAttachInterval(),
	}, deps)
	b := bridge.New(bridgeOptions(cfg.Bridge), controller, logger)
	defer func() { _ = b.Close() }()
	if healthServer != nil {
		healthServer.Track(func() bool { return b.State() == fsm.StateConnected })
	}
	controller.Bind(b, hook)

	background = append(background, goServe(func() error {
		return ipc.Serve(serverCtx, listener, controller)
	}))

	logger.Info("owner started", "socket", socketPath, "ports", fmt.Sprintf("%d-%d", cfg.Bridge.PortStart, cfg.Bridge.PortEnd))
	runErr := controller.Run(ctx)
	serverCancel()

	exitCode := 0
	if runErr != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", runErr)
		exitCode = 1
	}
	for _, done := range background {
		if serveErr := <-done; serveErr != nil {
			fmt.Fprintf(r.Stderr, "error: server failed: %v\n", serveErr)
			exitCode = 1
		}
	}
	logger.Info("owner stopped", "exit_code", exitCode)
	return exitCode
}

func goServe(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	return done
}
