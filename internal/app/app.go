// Package app dispatches parsed CLI commands to the owner, the control socket, or local checks.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/msbridge/internal/bridge"
	"github.com/rbright/msbridge/internal/cli"
	"github.com/rbright/msbridge/internal/config"
	"github.com/rbright/msbridge/internal/doctor"
	"github.com/rbright/msbridge/internal/fsm"
	"github.com/rbright/msbridge/internal/ipc"
	"github.com/rbright/msbridge/internal/logging"
	"github.com/rbright/msbridge/internal/version"
)

const (
	// forwardTimeout covers owner requests that never wait on the peer.
	forwardTimeout = 220 * time.Millisecond
	// hookAllowance covers the autoexec scripts sent during a forwarded attach.
	hookAllowance = 5 * time.Second
)

type Runner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	r := Runner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("msbridge"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("msbridge"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		if cfgLoaded.Exists {
			fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		}
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	cfg := cfgLoaded.Config
	budget := forwardBudget(cfg.Bridge)
	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandScan:
		return r.commandScan(ctx, cfg.Bridge, parsed.Port)
	case cli.CommandServe:
		return r.commandServe(ctx, cfg, logger)
	case cli.CommandStatus:
		return r.commandStatus(ctx, budget)
	case cli.CommandAttach:
		return r.forwardOrFail(ctx, budget, ipc.Request{Command: ipc.CommandAttach, Port: parsed.Port})
	case cli.CommandDetach:
		return r.forwardOrFail(ctx, budget, ipc.Request{Command: ipc.CommandDetach})
	case cli.CommandSetting:
		return r.forwardOrFail(ctx, budget, ipc.Request{Command: ipc.CommandSetting, Key: parsed.SettingKey, Value: parsed.SettingValue})
	case cli.CommandAlive:
		return r.commandAlive(ctx, budget)
	case cli.CommandExecute:
		return r.commandExecute(ctx, cfg, budget, parsed, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandScan(ctx context.Context, cfg config.BridgeConfig, port int) int {
	start, end := cfg.PortStart, cfg.PortEnd
	if port != 0 {
		start, end = port, port
	}

	live, err := bridge.Scan(ctx, bridgeOptions(cfg), start, end)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %s\n", bridge.Code(err))
		return 1
	}
	if len(live) == 0 {
		fmt.Fprintf(r.Stdout, "no live injection host on ports %d-%d\n", start, end)
		return 1
	}
	for _, p := range live {
		fmt.Fprintln(r.Stdout, p)
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context, budget ipc.Budget) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, fsm.StateDisconnected)
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus}, budget.Timeout(ipc.CommandStatus))
	if !handled {
		fmt.Fprintf(r.Stdout, "%s (no owner)\n", fsm.StateDisconnected)
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		resp.State = string(fsm.StateDisconnected)
	}
	if resp.Port != 0 {
		fmt.Fprintf(r.Stdout, "%s %d\n", resp.State, resp.Port)
		return 0
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return 0
}

func (r Runner) commandAlive(ctx context.Context, budget ipc.Budget) int {
	resp, ok := r.forward(ctx, budget, ipc.Request{Command: ipc.CommandAlive})
	if !ok {
		return 1
	}
	if resp.Alive {
		fmt.Fprintln(r.Stdout, "alive")
		return 0
	}
	fmt.Fprintln(r.Stdout, "not alive")
	return 1
}

func (r Runner) forwardOrFail(ctx context.Context, budget ipc.Budget, req ipc.Request) int {
	resp, ok := r.forward(ctx, budget, req)
	if !ok {
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// forward sends req to the owner and reports failures on stderr.
func (r Runner) forward(ctx context.Context, budget ipc.Budget, req ipc.Request) (ipc.Response, bool) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ipc.Response{}, false
	}

	resp, handled, err := tryForward(ctx, socketPath, req, budget.Timeout(req.Command))
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no msbridge owner running (start one with `msbridge serve`)")
		return ipc.Response{}, false
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ipc.Response{}, false
	}
	return resp, true
}

func (r Runner) commandExecute(ctx context.Context, cfg config.Config, budget ipc.Budget, parsed cli.Parsed, logger *slog.Logger) int {
	script, err := r.readScript(parsed.ScriptPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	socketPath, err := ipc.RuntimeSocketPath()
	if err == nil {
		resp, handled, fwdErr := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandExecute, Script: script}, budget.Timeout(ipc.CommandExecute))
		if handled {
			if fwdErr != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", fwdErr)
				return 1
			}
			if resp.Message != "" {
				fmt.Fprintln(r.Stdout, resp.Message)
			}
			return 0
		}
	}

	logger.Info("no owner running; executing one-shot", "port", parsed.Port)
	return r.executeOneShot(ctx, cfg.Bridge, parsed.Port, script, logger)
}

// readScript loads the script body from a file, or from stdin for "-".
func (r Runner) readScript(path string) (string, error) {
	if path == cli.StdinPath {
		if r.Stdin == nil {
			return "", errors.New("no stdin available for script")
		}
		data, err := io.ReadAll(io.LimitReader(r.Stdin, ipc.MaxRequestBytes))
		if err != nil {
			return "", fmt.Errorf("read script from stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(data), nil
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.Unavailable(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

// forwardBudget sizes the reply waits from the owner's bridge timings. An
// attach may stale-probe the old link, try every port in the range, probe the
// new link, and run the autoexec hook.
func forwardBudget(cfg config.BridgeConfig) ipc.Budget {
	ports := max(cfg.PortEnd-cfg.PortStart+1, 1)
	attach := time.Duration(ports)*cfg.ConnectTimeout() + 2*cfg.ProbeTimeout() + hookAllowance
	return ipc.Budget{
		Base:   forwardTimeout,
		Attach: attach + forwardTimeout,
		Alive:  cfg.ProbeTimeout() + forwardTimeout,
	}
}

func bridgeOptions(cfg config.BridgeConfig) bridge.Options {
	return bridge.Options{
		ConnectTimeout: cfg.ConnectTimeout(),
		ProbeTimeout:   cfg.ProbeTimeout(),
		PollInterval:   cfg.PollInterval(),
	}
}
