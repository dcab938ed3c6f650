package grpcutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/instantcocoa/periscope/pkg/query"
	"github.com/instantcocoa/periscope/pkg/requestid"
	ptestutil "github.com/instantcocoa/periscope/pkg/testutil"
)

var testInfo = &grpc.UnaryServerInfo{FullMethod: "/periscope.observe.v1.ObserveService/ListLogs"}

func TestLoggingUnaryInterceptor(t *testing.T) {
	interceptor := LoggingUnaryInterceptor(ptestutil.TestLogger(t))

	t.Run("successful call", func(t *testing.T) {
		handler := func(ctx context.Context, req any) (any, error) {
			return "response", nil
		}
		resp, err := interceptor(context.Background(), "request", testInfo, handler)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if resp != "response" {
			t.Errorf("response = %v, want %v", resp, "response")
		}
	})

	t.Run("failed call", func(t *testing.T) {
		expectedErr := status.Error(codes.Unavailable, "down")
		handler := func(ctx context.Context, req any) (any, error) {
			return nil, expectedErr
		}
		resp, err := interceptor(context.Background(), "request", testInfo, handler)
		if err != expectedErr {
			t.Errorf("error = %v, want %v", err, expectedErr)
		}
		if resp != nil {
			t.Errorf("response = %v, want nil", resp)
		}
	})
}

func TestRequestIDUnaryInterceptor(t *testing.T) {
	interceptor := RequestIDUnaryInterceptor()

	var seen string
	handler := func(ctx context.Context, req any) (any, error) {
		seen = requestid.From(ctx)
		return nil, nil
	}

	t.Run("propagates caller id", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestid.MetadataKey, "req-42"))
		if _, err := interceptor(ctx, nil, testInfo, handler); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen != "req-42" {
			t.Errorf("request id = %q, want %q", seen, "req-42")
		}
	})

	t.Run("generates id", func(t *testing.T) {
		if _, err := interceptor(context.Background(), nil, testInfo, handler); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen == "" {
			t.Error("request id not generated")
		}
	})
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	interceptor := RecoveryUnaryInterceptor(ptestutil.DiscardLogger())

	t.Run("no panic", func(t *testing.T) {
		handler := func(ctx context.Context, req any) (any, error) {
			return "ok", nil
		}
		resp, err := interceptor(context.Background(), nil, testInfo, handler)
		if err != nil || resp != "ok" {
			t.Errorf("got (%v, %v), want (ok, nil)", resp, err)
		}
	})

	t.Run("panic becomes internal", func(t *testing.T) {
		handler := func(ctx context.Context, req any) (any, error) {
			panic("boom")
		}
		_, err := interceptor(context.Background(), nil, testInfo, handler)
		if status.Code(err) != codes.Internal {
			t.Errorf("code = %v, want %v", status.Code(err), codes.Internal)
		}
	})
}

func TestErrorUnaryInterceptor(t *testing.T) {
	interceptor := ErrorUnaryInterceptor()

	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"invalid input", fmt.Errorf("%w: bad", query.ErrInvalidInput), codes.InvalidArgument},
		{"cancelled", context.Canceled, codes.Canceled},
		{"other", errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := func(ctx context.Context, req any) (any, error) {
				return "partial", tt.err
			}
			resp, err := interceptor(context.Background(), nil, testInfo, handler)
			if resp != nil {
				t.Errorf("response = %v, want nil on error", resp)
			}
			if status.Code(err) != tt.want {
				t.Errorf("code = %v, want %v", status.Code(err), tt.want)
			}
		})
	}
}

func TestMetricsUnaryInterceptor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	interceptor := m.UnaryInterceptor()

	ok := func(ctx context.Context, req any) (any, error) { return nil, nil }
	bad := func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "bad")
	}

	interceptor(context.Background(), nil, testInfo, ok)
	interceptor(context.Background(), nil, testInfo, ok)
	interceptor(context.Background(), nil, testInfo, bad)

	if got := testutil.ToFloat64(m.requests.WithLabelValues(testInfo.FullMethod, "OK")); got != 2 {
		t.Errorf("OK count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues(testInfo.FullMethod, "InvalidArgument")); got != 1 {
		t.Errorf("InvalidArgument count = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}
