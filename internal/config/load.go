package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded is the configuration one msbridge invocation runs with.
//
// Exists is false when no file was found and Config holds the defaults; the
// CLI stays quiet about warnings in that case.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves the config path, parses and validates the file over Default,
// and expands "~" in autoexec_dir so owners and doctor see an absolute path.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: path, Config: Default()}
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = []Warning{{
			Message: fmt.Sprintf("config file %q not found; using defaults", path),
		}}
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	default:
		cfg, warnings, parseErr := Parse(string(content), loaded.Config)
		if parseErr != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", path, parseErr)
		}
		loaded.Config = cfg
		loaded.Warnings = warnings
		loaded.Exists = true
	}

	dir, err := ExpandHome(loaded.Config.AutoExecDir)
	if err != nil {
		return Loaded{}, fmt.Errorf("autoexec_dir: %w", err)
	}
	loaded.Config.AutoExecDir = dir
	return loaded, nil
}
