package bridge

import (
	"context"
	"errors"
)

// Probe opens a throwaway connection to port, runs one liveness exchange, and
// closes it. A refused connection reports false without an error.
func Probe(ctx context.Context, opts Options, port int) (bool, error) {
	opts = opts.withDefaults()

	conn, err := dialPeer(ctx, opts, port)
	if err != nil {
		if errors.Is(err, ErrConnectionRefused) || errors.Is(err, ErrTimedOut) {
			return false, nil
		}
		return false, err
	}
	defer conn.Close()

	return probeConn(conn, opts.ProbeTimeout)
}

// Scan probes every port in [start, end] in ascending order and returns the
// ones whose peer answered. It stops early when ctx is done.
func Scan(ctx context.Context, opts Options, start, end int) ([]int, error) {
	var live []int
	for port := start; port <= end; port++ {
		if err := ctx.Err(); err != nil {
			return live, err
		}
		alive, err := Probe(ctx, opts, port)
		if err != nil {
			return live, err
		}
		if alive {
			live = append(live, port)
		}
	}
	return live, nil
}
