package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbe(t *testing.T) {
	peer := startPeer(t, alwaysAlive)

	alive, err := Probe(context.Background(), testOptions(), peer.port)
	require.NoError(t, err)
	require.True(t, alive)

	alive, err = Probe(context.Background(), testOptions(), closedPort(t))
	require.NoError(t, err)
	require.False(t, alive)
}

func TestScanReportsResponsivePorts(t *testing.T) {
	live := startPeer(t, alwaysAlive)
	dead := startPeer(t, func(int, int) (byte, bool) { return 0x00, true })

	ports, err := Scan(context.Background(), testOptions(), live.port, live.port)
	require.NoError(t, err)
	require.Equal(t, []int{live.port}, ports)

	ports, err = Scan(context.Background(), testOptions(), dead.port, dead.port)
	require.NoError(t, err)
	require.Empty(t, ports)
}

func TestScanStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ports, err := Scan(ctx, testOptions(), 1, 10)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, ports)
}
