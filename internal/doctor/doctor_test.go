package doctor

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rbright/msbridge/internal/config"
	"github.com/rbright/msbridge/internal/frame"
	"github.com/rbright/msbridge/internal/health"
	"github.com/stretchr/testify/require"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv("TEST_DOCTOR_ENV", func(v string) bool { return v != "" }, "looks good", "unexpected")
	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckBinary(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")

	check = checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckAutoexecDir(t *testing.T) {
	dir := t.TempDir()
	require.True(t, checkAutoexecDir(dir).Pass)

	missing := checkAutoexecDir(filepath.Join(dir, "missing"))
	require.False(t, missing.Pass)
	require.Contains(t, missing.Message, "does not exist")

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	require.Contains(t, checkAutoexecDir(file).Message, "not a directory")
}

func TestCheckInjectionHostFindsLivePeer(t *testing.T) {
	port := startAlivePeer(t)

	cfg := config.Default().Bridge
	cfg.PortStart, cfg.PortEnd = port, port
	check := checkInjectionHost(context.Background(), cfg)
	require.True(t, check.Pass)
	require.Equal(t, "alive on port "+strconv.Itoa(port), check.Message)
}

func TestCheckInjectionHostNoPeer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	cfg := config.Default().Bridge
	cfg.PortStart, cfg.PortEnd = port, port
	check := checkInjectionHost(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "no live host")
}

func TestCheckOwnerWithoutSocket(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	check := checkOwner(context.Background())
	require.True(t, check.Pass)
	require.Equal(t, "no owner running", check.Message)
}

func TestCheckOwnerReportsAttachState(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	listener, err := health.Listen(filepath.Join(runtimeDir, "msbridge-health.sock"))
	require.NoError(t, err)
	server := health.NewServer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	check := checkOwner(context.Background())
	require.True(t, check.Pass)
	require.Equal(t, "owner running, not attached", check.Message)

	server.SetConnected(true)
	check = checkOwner(context.Background())
	require.Equal(t, "owner running, attached", check.Message)
}

func TestRunSkipsDisabledChecks(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	port := startAlivePeer(t)

	cfg := config.Default()
	cfg.AutoExecute = false
	cfg.Indicator.Enable = false
	cfg.Health.Enable = false
	cfg.Bridge.PortStart, cfg.Bridge.PortEnd = port, port

	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.jsonc", Config: cfg})
	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "XDG_RUNTIME_DIR", "injection_host"}, names)
	require.True(t, report.OK())
	require.Contains(t, report.Checks[0].Message, "not found")
}

// startAlivePeer accepts connections and answers every ping with the alive marker.
func startAlivePeer(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				header := make([]byte, frame.HeaderSize)
				for {
					if _, err := c.Read(header); err != nil {
						return
					}
					_, _ = c.Write([]byte{frame.AliveMarker})
				}
			}(conn)
		}
	}()
	return listener.Addr().(*net.TCPAddr).Port
}
