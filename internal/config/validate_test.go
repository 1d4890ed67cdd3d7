package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidCoreFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "zero port start", mutate: func(c *Config) { c.Bridge.PortStart = 0 }, wantErr: "bridge.port_start"},
		{name: "port end too high", mutate: func(c *Config) { c.Bridge.PortEnd = 70000 }, wantErr: "bridge.port_end"},
		{name: "reversed range", mutate: func(c *Config) { c.Bridge.PortEnd = c.Bridge.PortStart - 1 }, wantErr: "bridge.port_end must be >="},
		{name: "zero connect timeout", mutate: func(c *Config) { c.Bridge.ConnectTimeoutMS = 0 }, wantErr: "connect_timeout_ms"},
		{name: "zero probe timeout", mutate: func(c *Config) { c.Bridge.ProbeTimeoutMS = 0 }, wantErr: "probe_timeout_ms"},
		{name: "zero poll interval", mutate: func(c *Config) { c.Bridge.PollIntervalMS = 0 }, wantErr: "poll_interval_ms"},
		{name: "zero auto attach interval", mutate: func(c *Config) { c.Bridge.AutoAttachIntervalMS = 0 }, wantErr: "auto_attach_interval_ms"},
		{name: "empty autoexec dir", mutate: func(c *Config) { c.AutoExecDir = " " }, wantErr: "autoexec_dir"},
		{name: "empty desktop app name", mutate: func(c *Config) { c.Indicator.DesktopAppName = "" }, wantErr: "desktop_app_name"},
		{name: "negative error timeout", mutate: func(c *Config) { c.Indicator.ErrorTimeoutMS = -1 }, wantErr: "error_timeout"},
		{name: "bad events listen", mutate: func(c *Config) { c.Events.Listen = "5580" }, wantErr: "events.listen"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateAllowsEmptyAutoexecDirWhenDisabled(t *testing.T) {
	cfg := Default()
	cfg.AutoExecute = false
	cfg.AutoExecDir = ""
	_, err := Validate(cfg)
	require.NoError(t, err)
}

func TestValidateWarnsOnNonLoopbackEvents(t *testing.T) {
	cfg := Default()
	cfg.Events.Listen = "0.0.0.0:5580"
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "loopback")
}

func TestValidateWarnsOnWideRange(t *testing.T) {
	cfg := Default()
	cfg.Bridge.PortEnd = cfg.Bridge.PortStart + 100
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "unusually wide")
}

func TestBridgeDurations(t *testing.T) {
	b := Default().Bridge
	require.Equal(t, 100*time.Millisecond, b.ConnectTimeout())
	require.Equal(t, time.Second, b.ProbeTimeout())
	require.Equal(t, 100*time.Millisecond, b.PollInterval())
	require.Equal(t, time.Second, b.AutoAttachInterval())
}
