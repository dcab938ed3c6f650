// Package grpcutil provides the gRPC server, interceptors, JSON codec and
// error mapping shared by periscope services.
package grpcutil

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServerConfig holds gRPC server configuration.
type ServerConfig struct {
	Port              int
	ServiceName       string
	EnableReflection  bool
	EnableHealthCheck bool
	ShutdownTimeout   time.Duration
	MaxRecvMsgSize    int
	MaxSendMsgSize    int
	// Registerer receives the server's request metrics. Nil disables them.
	Registerer        prometheus.Registerer
	UnaryInterceptors []grpc.UnaryServerInterceptor
}

// DefaultServerConfig returns defaults for a service listening on port.
func DefaultServerConfig(port int, serviceName string) ServerConfig {
	return ServerConfig{
		Port:              port,
		ServiceName:       serviceName,
		EnableReflection:  true,
		EnableHealthCheck: true,
		ShutdownTimeout:   30 * time.Second,
		MaxRecvMsgSize:    16 * 1024 * 1024,
		MaxSendMsgSize:    16 * 1024 * 1024,
	}
}

// Server wraps a gRPC server with health reporting and graceful shutdown.
type Server struct {
	grpcServer   *grpc.Server
	healthServer *health.Server
	config       ServerConfig
	logger       *slog.Logger
}

// NewServer creates a server with request id, logging, metrics, recovery
// and error mapping interceptors, in that order, ahead of
// cfg.UnaryInterceptors.
func NewServer(cfg ServerConfig, logger *slog.Logger) *Server {
	chain := []grpc.UnaryServerInterceptor{
		RequestIDUnaryInterceptor(),
		LoggingUnaryInterceptor(logger),
	}
	if cfg.Registerer != nil {
		chain = append(chain, NewMetrics(cfg.Registerer).UnaryInterceptor())
	}
	chain = append(chain, RecoveryUnaryInterceptor(logger), ErrorUnaryInterceptor())
	chain = append(chain, cfg.UnaryInterceptors...)

	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(chain...),
	}
	if cfg.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize))
	}
	if cfg.MaxSendMsgSize > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(cfg.MaxSendMsgSize))
	}

	s := &Server{
		grpcServer: grpc.NewServer(opts...),
		config:     cfg,
		logger:     logger.With("component", "grpc_server"),
	}

	if cfg.EnableReflection {
		reflection.Register(s.grpcServer)
	}
	if cfg.EnableHealthCheck {
		s.healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthServer)
		s.healthServer.SetServingStatus(cfg.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	return s
}

// GRPCServer returns the underlying gRPC server for service registration.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// RegisterService implements grpc.ServiceRegistrar.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl any) {
	s.grpcServer.RegisterService(desc, impl)
}

// SetServingStatus sets the health check status.
func (s *Server) SetServingStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	if s.healthServer != nil {
		s.healthServer.SetServingStatus(s.config.ServiceName, status)
	}
}

// Run listens on the configured port and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "gRPC server starting", "addr", lis.Addr().String(), "service", s.config.ServiceName)
		errCh <- s.grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) shutdown() error {
	s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout)
	s.SetServingStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("graceful shutdown completed")
	case <-ctx.Done():
		s.logger.Warn("graceful shutdown timed out, forcing stop")
		s.grpcServer.Stop()
	}
	return nil
}
