// Package health serves the standard gRPC health checking protocol next to a
// coordinator or storage node, so process supervisors can probe it without
// speaking the envelope protocol.
package health

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

type Server struct {
	service  string
	logger   *zap.Logger
	server   *grpc.Server
	health   *grpchealth.Server
	listener net.Listener
}

// Start listens on address and reports service as SERVING.
func Start(address, service string, logger *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s := &Server{
		service:  service,
		logger:   logger,
		server:   grpc.NewServer(),
		health:   grpchealth.NewServer(),
		listener: listener,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	s.health.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := s.server.Serve(listener); err != nil {
			logger.Warn("Health server stopped", zap.Error(err))
		}
	}()

	logger.Info("Health endpoint started",
		zap.String("address", listener.Addr().String()),
		zap.String("service", service))
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop reports NOT_SERVING and shuts the gRPC server down.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
