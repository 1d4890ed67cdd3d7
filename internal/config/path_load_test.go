package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.jsonc"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "msbridge", "config.jsonc"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "msbridge", "config.jsonc"), resolved)
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	expanded, err := ExpandHome("~/.local/share/msbridge/autoexec")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "share", "msbridge", "autoexec"), expanded)

	expanded, err = ExpandHome("/srv/scripts")
	require.NoError(t, err)
	require.Equal(t, "/srv/scripts", expanded)

	expanded, err = ExpandHome("~other/scripts")
	require.NoError(t, err)
	require.Equal(t, "~other/scripts", expanded)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(t.TempDir(), "missing.jsonc")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)

	want := Default()
	want.AutoExecDir = filepath.Join(home, ".local", "share", "msbridge", "autoexec")
	require.Equal(t, want, loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadExistingJSONCParsesAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	contents := `
{
  "auto_attach": false,
  "autoexec_dir": "/srv/msbridge/autoexec",
  "health": { "enable": false }
}
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Config.AutoAttach)
	require.Equal(t, "/srv/msbridge/autoexec", loaded.Config.AutoExecDir)
	require.False(t, loaded.Config.Health.Enable)
}

func TestLoadExpandsAutoexecDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"autoexec_dir": "~/scripts"}`), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "scripts"), loaded.Config.AutoExecDir)
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jsonc")
	require.NoError(t, os.WriteFile(path, []byte("{ not-json }"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}
