package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	b := cfg.Bridge
	if b.PortStart < 1 || b.PortStart > 65535 {
		return nil, fmt.Errorf("bridge.port_start must be within 1-65535")
	}
	if b.PortEnd < 1 || b.PortEnd > 65535 {
		return nil, fmt.Errorf("bridge.port_end must be within 1-65535")
	}
	if b.PortEnd < b.PortStart {
		return nil, fmt.Errorf("bridge.port_end must be >= bridge.port_start")
	}
	if b.ConnectTimeoutMS <= 0 {
		return nil, fmt.Errorf("bridge.connect_timeout_ms must be > 0")
	}
	if b.ProbeTimeoutMS <= 0 {
		return nil, fmt.Errorf("bridge.probe_timeout_ms must be > 0")
	}
	if b.PollIntervalMS <= 0 {
		return nil, fmt.Errorf("bridge.poll_interval_ms must be > 0")
	}
	if b.AutoAttachIntervalMS <= 0 {
		return nil, fmt.Errorf("bridge.auto_attach_interval_ms must be > 0")
	}
	if b.PortEnd-b.PortStart >= 64 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("bridge port range %d-%d is unusually wide; auto-attach scans every port", b.PortStart, b.PortEnd)})
	}

	if cfg.AutoExecute && strings.TrimSpace(cfg.AutoExecDir) == "" {
		return nil, fmt.Errorf("autoexec_dir must not be empty when auto_execute=true")
	}

	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if listen := strings.TrimSpace(cfg.Events.Listen); listen != "" {
		host, _, err := net.SplitHostPort(listen)
		if err != nil {
			return nil, fmt.Errorf("events.listen must be host:port: %w", err)
		}
		if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("events.listen %q is not a loopback address", listen)})
		}
	}

	return warnings, nil
}
