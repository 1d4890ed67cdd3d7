package config

// Default returns the canonical runtime configuration used when no file is present.
//
// Ports 5553..5562 cover one injection host per running game client.
func Default() Config {
	return Config{
		Bridge: BridgeConfig{
			PortStart:            5553,
			PortEnd:              5562,
			ConnectTimeoutMS:     100,
			ProbeTimeoutMS:       1000,
			PollIntervalMS:       100,
			AutoAttachIntervalMS: 1000,
		},
		AutoAttach:  true,
		AutoExecute: true,
		AutoExecDir: "~/.local/share/msbridge/autoexec",
		Indicator: IndicatorConfig{
			Enable:         true,
			DesktopAppName: "msbridge",
			SoundEnable:    true,
			ErrorTimeoutMS: 1600,
		},
		Events: EventsConfig{Listen: "127.0.0.1:5580"},
		Health: HealthConfig{Enable: true},
	}
}
