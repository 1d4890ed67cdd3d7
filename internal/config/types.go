// Package config resolves, parses, validates, and defaults msbridge configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by msbridge.
type Config struct {
	Bridge      BridgeConfig
	AutoAttach  bool
	AutoExecute bool
	AutoExecDir string
	Indicator   IndicatorConfig
	Events      EventsConfig
	Health      HealthConfig
}

// BridgeConfig controls the port range and timing of the injection-host connection.
type BridgeConfig struct {
	PortStart            int
	PortEnd              int
	ConnectTimeoutMS     int
	ProbeTimeoutMS       int
	PollIntervalMS       int
	AutoAttachIntervalMS int
}

// IndicatorConfig controls desktop notification and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	DesktopAppName string
	SoundEnable    bool
	ErrorTimeoutMS int
}

// EventsConfig controls the websocket event stream for presentation clients.
type EventsConfig struct {
	Listen string
}

// HealthConfig controls the gRPC health endpoint of the owner process.
type HealthConfig struct {
	Enable bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// ConnectTimeout bounds one TCP connect to the injection host.
func (b BridgeConfig) ConnectTimeout() time.Duration {
	return time.Duration(b.ConnectTimeoutMS) * time.Millisecond
}

// ProbeTimeout bounds one liveness round trip.
func (b BridgeConfig) ProbeTimeout() time.Duration {
	return time.Duration(b.ProbeTimeoutMS) * time.Millisecond
}

// PollInterval is the listener's read wait between burst checks.
func (b BridgeConfig) PollInterval() time.Duration {
	return time.Duration(b.PollIntervalMS) * time.Millisecond
}

// AutoAttachInterval spaces auto-attach rounds while disconnected.
func (b BridgeConfig) AutoAttachInterval() time.Duration {
	return time.Duration(b.AutoAttachIntervalMS) * time.Millisecond
}
