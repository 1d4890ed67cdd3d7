package indicator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rbright/msbridge/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDesktopNotifyDispatchReplacesAndDismisses(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
echo 'u 7'
`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false

	notify := NewDesktopNotify(cfg, nil)
	notify.ShowAttached(context.Background(), 5553)
	notify.ShowError(context.Background(), "")
	notify.Hide(context.Background())

	lines := readLines(t, argsFile)
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "Notify susssasa{sv}i msbridge 0 ")
	require.Contains(t, lines[0], "Attached on port 5553")
	require.True(t, strings.HasSuffix(lines[0], " 4000"))
	require.Contains(t, lines[1], "Notify susssasa{sv}i msbridge 7 ")
	require.Contains(t, lines[1], "Bridge error")
	require.True(t, strings.HasSuffix(lines[1], " 1600"))
	require.True(t, strings.HasSuffix(lines[2], "CloseNotification u 7"))
}

func TestDesktopNotifyShowErrorDefaultTimeout(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
echo 'u 3'
`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	cfg.ErrorTimeoutMS = 0

	notify := NewDesktopNotify(cfg, nil)
	notify.ShowError(context.Background(), "custom error")

	lines := readLines(t, argsFile)
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "custom error")
	require.True(t, strings.HasSuffix(lines[0], " 1200"))
}

func TestDesktopNotifyDisabledSkipsDispatch(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
`)

	cfg := config.Default().Indicator
	cfg.Enable = false
	cfg.SoundEnable = false

	notify := NewDesktopNotify(cfg, nil)
	notify.ShowAttached(context.Background(), 5553)
	notify.ShowDetached(context.Background())
	notify.ShowLost(context.Background(), 5553)
	notify.ShowError(context.Background(), "ignored")
	notify.Hide(context.Background())

	_, err := os.Stat(argsFile)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDesktopNotifyHideWithoutNotificationIsNoop(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	NewDesktopNotify(cfg, nil).Hide(context.Background())

	_, err := os.Stat(argsFile)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDesktopNotifyInvalidResponseKeepsID(t *testing.T) {
	installBusctlStub(t, `
echo 'garbage'
`)

	cfg := config.Default().Indicator
	cfg.SoundEnable = false
	notify := NewDesktopNotify(cfg, nil)
	notify.ShowDetached(context.Background())

	notify.mu.Lock()
	defer notify.mu.Unlock()
	require.Zero(t, notify.notificationID)
}

func TestDesktopNotifyPlaysCues(t *testing.T) {
	var plays atomic.Int32
	stubPlayer(t, func([]int16) error {
		plays.Add(1)
		return nil
	})

	cfg := config.Default().Indicator
	cfg.Enable = false
	notify := NewDesktopNotify(cfg, nil)
	notify.ShowAttached(context.Background(), 5553)
	notify.ShowLost(context.Background(), 5553)
	notify.ShowError(context.Background(), "boom")
	notify.Wait()

	require.Equal(t, int32(3), plays.Load())
}

func installBusctlStub(t *testing.T, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "busctl")
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}
