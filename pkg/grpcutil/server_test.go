package grpcutil

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/health/grpc_health_v1"

	ptestutil "github.com/instantcocoa/periscope/pkg/testutil"
)

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig(9090, "observe")

	if cfg.Port != 9090 {
		t.Errorf("Port = %v, want %v", cfg.Port, 9090)
	}
	if cfg.ServiceName != "observe" {
		t.Errorf("ServiceName = %v, want %v", cfg.ServiceName, "observe")
	}
	if !cfg.EnableReflection || !cfg.EnableHealthCheck {
		t.Error("reflection and health checks should be enabled by default")
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, 30*time.Second)
	}
	if cfg.Registerer != nil {
		t.Error("Registerer should default to nil")
	}
}

func TestNewServer(t *testing.T) {
	cfg := DefaultServerConfig(9091, "observe")
	cfg.Registerer = prometheus.NewRegistry()

	server := NewServer(cfg, ptestutil.DiscardLogger())
	if server.GRPCServer() == nil {
		t.Fatal("GRPCServer() returned nil")
	}
	if server.healthServer == nil {
		t.Error("healthServer is nil (should be enabled by default)")
	}

	services := server.GRPCServer().GetServiceInfo()
	if _, ok := services["grpc.health.v1.Health"]; !ok {
		t.Error("health service not registered")
	}
}

func TestNewServerWithoutHealthCheck(t *testing.T) {
	cfg := DefaultServerConfig(9092, "observe")
	cfg.EnableHealthCheck = false

	server := NewServer(cfg, ptestutil.DiscardLogger())
	if server.healthServer != nil {
		t.Error("healthServer should be nil when disabled")
	}
	// Must not panic without a health server.
	server.SetServingStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	cfg := DefaultServerConfig(0, "observe")
	cfg.ShutdownTimeout = time.Second
	server := NewServer(cfg, ptestutil.DiscardLogger())

	lis := ptestutil.ListenBufconn(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, lis) }()

	conn := lis.Dial(t)

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ptestutil.TestContext(t),
		&grpc_health_v1.HealthCheckRequest{Service: "observe"})
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.Status)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after context cancellation")
	}
}
