package grpcserver

import (
	"context"
	"net"
	"time"

	"github.com/sbilibin2017/user-bootstrap/internal/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service reported alongside the server-wide status.
const ServiceName = "user-bootstrap"

// Server exposes bootstrap readiness over the gRPC health protocol.
type Server struct {
	srv    *grpc.Server
	health *health.Server
}

// New creates a server whose health status is NOT_SERVING until SetServing.
func New() *Server {
	srv := grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return &Server{srv: srv, health: hs}
}

// SetServing marks the server and the bootstrap service as ready.
func (s *Server) SetServing() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// Serve blocks serving lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	logger.Log.Infow("gRPC health server listening", "addr", lis.Addr().String())
	return s.srv.Serve(lis)
}

// Shutdown stops gracefully, or forcibly once ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.srv.Stop()
		return ctx.Err()
	}
}

func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logger.Log.Debugw("grpc request",
		"method", info.FullMethod,
		"duration", time.Since(start),
		"error", err,
	)
	return resp, err
}
