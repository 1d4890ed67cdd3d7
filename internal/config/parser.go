package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/jsonc"
)

type jsoncConfig struct {
	Bridge      *jsoncBridge    `json:"bridge"`
	AutoAttach  *bool           `json:"auto_attach"`
	AutoExecute *bool           `json:"auto_execute"`
	AutoExecDir *string         `json:"autoexec_dir"`
	Indicator   *jsoncIndicator `json:"indicator"`
	Events      *jsoncEvents    `json:"events"`
	Health      *jsoncHealth    `json:"health"`
}

type jsoncBridge struct {
	PortStart            *int `json:"port_start"`
	PortEnd              *int `json:"port_end"`
	ConnectTimeoutMS     *int `json:"connect_timeout_ms"`
	ProbeTimeoutMS       *int `json:"probe_timeout_ms"`
	PollIntervalMS       *int `json:"poll_interval_ms"`
	AutoAttachIntervalMS *int `json:"auto_attach_interval_ms"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	DesktopAppName *string `json:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type jsoncEvents struct {
	Listen *string `json:"listen"`
}

type jsoncHealth struct {
	Enable *bool `json:"enable"`
}

// Parse reads JSONC configuration content over base and validates the result.
//
// Comments and trailing commas are accepted. Unknown keys are rejected.
func Parse(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	// ToJSON blanks comments in place, so decoder offsets still map onto the source.
	normalized := string(jsonc.ToJSON([]byte(content)))

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	payload.applyTo(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) {
	if b := payload.Bridge; b != nil {
		setInt(&cfg.Bridge.PortStart, b.PortStart)
		setInt(&cfg.Bridge.PortEnd, b.PortEnd)
		setInt(&cfg.Bridge.ConnectTimeoutMS, b.ConnectTimeoutMS)
		setInt(&cfg.Bridge.ProbeTimeoutMS, b.ProbeTimeoutMS)
		setInt(&cfg.Bridge.PollIntervalMS, b.PollIntervalMS)
		setInt(&cfg.Bridge.AutoAttachIntervalMS, b.AutoAttachIntervalMS)
	}
	setBool(&cfg.AutoAttach, payload.AutoAttach)
	setBool(&cfg.AutoExecute, payload.AutoExecute)
	if payload.AutoExecDir != nil {
		cfg.AutoExecDir = strings.TrimSpace(*payload.AutoExecDir)
	}
	if ind := payload.Indicator; ind != nil {
		setBool(&cfg.Indicator.Enable, ind.Enable)
		if ind.DesktopAppName != nil {
			cfg.Indicator.DesktopAppName = strings.TrimSpace(*ind.DesktopAppName)
		}
		setBool(&cfg.Indicator.SoundEnable, ind.SoundEnable)
		setInt(&cfg.Indicator.ErrorTimeoutMS, ind.ErrorTimeoutMS)
	}
	if payload.Events != nil && payload.Events.Listen != nil {
		cfg.Events.Listen = strings.TrimSpace(*payload.Events.Listen)
	}
	if payload.Health != nil {
		setBool(&cfg.Health.Enable, payload.Health.Enable)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := min(int(offset), len(content))

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
