// Package doctor runs runtime readiness diagnostics for config, tools, the injection host, and the owner.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/msbridge/internal/bridge"
	"github.com/rbright/msbridge/internal/config"
	"github.com/rbright/msbridge/internal/health"
	"github.com/rbright/msbridge/internal/ipc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{}

	message := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		message = fmt.Sprintf("%q not found; using defaults", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: message})

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "runtime dir available for control sockets", "XDG_RUNTIME_DIR is empty"))

	if cfg.Config.AutoExecute {
		checks = append(checks, checkAutoexecDir(cfg.Config.AutoExecDir))
	}
	if cfg.Config.Indicator.Enable {
		checks = append(checks, checkBinary("busctl", "desktop notifications"))
	}

	checks = append(checks, checkInjectionHost(ctx, cfg.Config.Bridge))

	if cfg.Config.Health.Enable {
		checks = append(checks, checkOwner(ctx))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkAutoexecDir(raw string) Check {
	dir, err := config.ExpandHome(raw)
	if err != nil {
		return Check{Name: "autoexec_dir", Pass: false, Message: err.Error()}
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Check{Name: "autoexec_dir", Pass: false, Message: fmt.Sprintf("%s does not exist", dir)}
		}
		return Check{Name: "autoexec_dir", Pass: false, Message: err.Error()}
	}
	if !info.IsDir() {
		return Check{Name: "autoexec_dir", Pass: false, Message: fmt.Sprintf("%s is not a directory", dir)}
	}
	return Check{Name: "autoexec_dir", Pass: true, Message: dir}
}

// checkInjectionHost probes the configured port range for a live peer.
func checkInjectionHost(ctx context.Context, cfg config.BridgeConfig) Check {
	opts := bridge.Options{
		ConnectTimeout: cfg.ConnectTimeout(),
		ProbeTimeout:   cfg.ProbeTimeout(),
		PollInterval:   cfg.PollInterval(),
	}
	live, err := bridge.Scan(ctx, opts, cfg.PortStart, cfg.PortEnd)
	if err != nil {
		return Check{Name: "injection_host", Pass: false, Message: fmt.Sprintf("scan failed: %v", err)}
	}
	if len(live) == 0 {
		return Check{Name: "injection_host", Pass: false, Message: fmt.Sprintf("no live host on ports %d-%d", cfg.PortStart, cfg.PortEnd)}
	}
	ports := make([]string, 0, len(live))
	for _, port := range live {
		ports = append(ports, fmt.Sprint(port))
	}
	return Check{Name: "injection_host", Pass: true, Message: "alive on port " + strings.Join(ports, ", ")}
}

// checkOwner asks a running owner for its bridge status. No owner is not a failure.
func checkOwner(ctx context.Context) Check {
	path, err := ipc.HealthSocketPath()
	if err != nil {
		return Check{Name: "owner", Pass: false, Message: err.Error()}
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Check{Name: "owner", Pass: true, Message: "no owner running"}
	}

	status, err := health.Check(ctx, path, 2*time.Second)
	if err != nil {
		return Check{Name: "owner", Pass: false, Message: err.Error()}
	}
	switch status {
	case healthpb.HealthCheckResponse_SERVING:
		return Check{Name: "owner", Pass: true, Message: "owner running, attached"}
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return Check{Name: "owner", Pass: true, Message: "owner running, not attached"}
	default:
		return Check{Name: "owner", Pass: false, Message: fmt.Sprintf("owner health %s", status)}
	}
}
