// Package health exposes the owner's bridge connection state over the gRPC health protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/rbright/msbridge/internal/bridge"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is SERVING while the bridge holds a live connection.
const Service = "msbridge.Bridge"

// Server wraps a gRPC health server whose Service status follows the bridge.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger *slog.Logger

	mu        sync.Mutex
	connected func() bool
}

// NewServer builds a health server. The process itself reports SERVING and
// Service starts NOT_SERVING until SetConnected(true).
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hs := health.NewServer()
	hs.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{grpc: gs, health: hs, logger: logger}
}

// Track makes Emit consult connected before acting on a disconnect. A
// Disconnect delivered after a newer attach already won is ignored.
func (s *Server) Track(connected func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// SetConnected flips Service between SERVING and NOT_SERVING.
func (s *Server) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(connected)
}

func (s *Server) setLocked(connected bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(Service, status)
}

// Emit implements bridge.Sink; a disconnect marks Service NOT_SERVING unless
// the tracked bridge is connected again.
func (s *Server) Emit(ev bridge.Event) {
	if ev.Kind != bridge.EventDisconnect {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected != nil && s.connected() {
		s.logger.Debug("ignoring disconnect of replaced connection", "port", ev.Port)
		return
	}
	s.setLocked(false)
}

// Serve answers health checks on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(listener) }()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		s.logger.Error("health server stopped", "error", err.Error())
		return fmt.Errorf("serve health: %w", err)
	}
}

// Listen binds a unix socket at path, replacing a leftover socket file.
// Callers hold the control socket first, so any existing file is stale.
func Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure health socket dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale health socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen unix %s: %w", path, err)
	}
	_ = os.Chmod(path, 0o600)
	return listener, nil
}
