package grpcutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/instantcocoa/periscope/pkg/query"
	"github.com/instantcocoa/periscope/pkg/storage"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"nil", nil, codes.OK},
		{"invalid input", fmt.Errorf("%w: page must be positive", query.ErrInvalidInput), codes.InvalidArgument},
		{"wrapped invalid input", fmt.Errorf("facet services: %w", query.ErrInvalidInput), codes.InvalidArgument},
		{"unavailable", fmt.Errorf("%w: dial tcp", storage.ErrUnavailable), codes.Unavailable},
		{"deadline", fmt.Errorf("query spans: %w", context.DeadlineExceeded), codes.Unavailable},
		{"cancelled", fmt.Errorf("query spans: %w", context.Canceled), codes.Canceled},
		{"status passthrough", status.Error(codes.NotFound, "missing"), codes.NotFound},
		{"unknown", errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToStatus(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if err := ToStatus(nil); err != nil {
			t.Errorf("ToStatus(nil) = %v, want nil", err)
		}
	})

	t.Run("invalid input keeps message", func(t *testing.T) {
		err := ToStatus(fmt.Errorf("%w: bad page", query.ErrInvalidInput))
		s, ok := status.FromError(err)
		if !ok {
			t.Fatalf("expected status error, got %v", err)
		}
		if s.Code() != codes.InvalidArgument {
			t.Errorf("code = %v, want %v", s.Code(), codes.InvalidArgument)
		}
		if s.Message() != "invalid input: bad page" {
			t.Errorf("message = %q", s.Message())
		}
	})

	t.Run("internal hides details", func(t *testing.T) {
		err := ToStatus(errors.New("password=hunter2"))
		s, _ := status.FromError(err)
		if s.Code() != codes.Internal {
			t.Errorf("code = %v, want %v", s.Code(), codes.Internal)
		}
		if s.Message() != "internal error" {
			t.Errorf("message = %q, want %q", s.Message(), "internal error")
		}
	})

	t.Run("status unchanged", func(t *testing.T) {
		in := status.Error(codes.PermissionDenied, "no")
		if got := ToStatus(in); got != in {
			t.Errorf("ToStatus() = %v, want %v", got, in)
		}
	})
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		msg    string
	}{
		{
			name:   "invalid argument",
			err:    status.Error(codes.InvalidArgument, "invalid input: bad page"),
			target: query.ErrInvalidInput,
			msg:    "invalid input: bad page",
		},
		{
			name:   "unavailable",
			err:    status.Error(codes.Unavailable, "connection refused"),
			target: storage.ErrUnavailable,
			msg:    "storage unavailable: connection refused",
		},
		{
			name:   "deadline",
			err:    status.Error(codes.DeadlineExceeded, "deadline exceeded"),
			target: storage.ErrUnavailable,
		},
		{
			name:   "cancelled",
			err:    status.Error(codes.Canceled, "context canceled"),
			target: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromStatus(tt.err)
			if !errors.Is(got, tt.target) {
				t.Errorf("FromStatus() = %v, want errors.Is %v", got, tt.target)
			}
			if tt.msg != "" && got.Error() != tt.msg {
				t.Errorf("FromStatus().Error() = %q, want %q", got.Error(), tt.msg)
			}
		})
	}

	t.Run("other codes unchanged", func(t *testing.T) {
		in := status.Error(codes.Internal, "internal error")
		if got := FromStatus(in); got != in {
			t.Errorf("FromStatus() = %v, want %v", got, in)
		}
	})

	t.Run("roundtrip keeps classification", func(t *testing.T) {
		orig := fmt.Errorf("%w: unknown severity", query.ErrInvalidInput)
		if got := FromStatus(ToStatus(orig)); !errors.Is(got, query.ErrInvalidInput) {
			t.Errorf("roundtrip lost classification: %v", got)
		}
	})
}

func TestIsHelpers(t *testing.T) {
	if !IsInvalidArgument(status.Error(codes.InvalidArgument, "x")) {
		t.Error("IsInvalidArgument() = false, want true")
	}
	if IsInvalidArgument(errors.New("x")) {
		t.Error("IsInvalidArgument(plain) = true, want false")
	}
	if !IsUnavailable(status.Error(codes.Unavailable, "x")) {
		t.Error("IsUnavailable() = false, want true")
	}
}
