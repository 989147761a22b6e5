package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"playersync/pkg/logger"
)

// Config holds the facade settings
type Config struct {
	Addr      string
	SecretKey string
}

// Server hosts the PlayerSync service and the standard health service
type Server struct {
	listener     net.Listener
	grpcServer   *grpc.Server
	healthServer *health.Server
	logger       *logger.Logger
}

// Listen binds cfg.Addr and creates a server on it
func Listen(cfg Config, svc *Service, l *logger.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}
	return NewServer(lis, cfg.SecretKey, svc, l), nil
}

// NewServer creates a server on an existing listener
func NewServer(lis net.Listener, secret string, svc *Service, l *logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			ObserveInterceptor(l),
			AuthInterceptor(secret),
		),
	)
	grpcServer.RegisterService(Desc(), svc)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		listener:     lis,
		grpcServer:   grpcServer,
		healthServer: healthServer,
		logger:       l.Named("rpc"),
	}
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve blocks until ctx is cancelled, then drains in-flight calls
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("rpc server listening", zap.String("addr", s.listener.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.healthServer.Shutdown()
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve rpc: %w", err)
		}
		return nil
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve rpc: %w", err)
		}
		return nil
	}
}
