package grpcutil

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/instantcocoa/periscope/pkg/query"
	"github.com/instantcocoa/periscope/pkg/storage"
)

// Code returns the gRPC code for a service error: invalid input is
// InvalidArgument, an unavailable or timed-out store is Unavailable, a
// cancelled request is Canceled, and anything else is Internal.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, query.ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return codes.Unavailable
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Internal
}

// ToStatus converts a service error into a gRPC status error. Internal
// errors are reported without their details.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := Code(err)
	if code == codes.Internal {
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

// FromStatus converts a gRPC status error back into an error that matches
// the service sentinels with errors.Is.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch s.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", query.ErrInvalidInput, trimPrefix(s.Message(), query.ErrInvalidInput))
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", storage.ErrUnavailable, trimPrefix(s.Message(), storage.ErrUnavailable))
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, s.Message())
	default:
		return err
	}
}

func trimPrefix(msg string, sentinel error) string {
	prefix := sentinel.Error() + ": "
	if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

// IsInvalidArgument checks if an error is an INVALID_ARGUMENT error.
func IsInvalidArgument(err error) bool {
	return status.Code(err) == codes.InvalidArgument
}

// IsUnavailable checks if an error is an UNAVAILABLE error.
func IsUnavailable(err error) bool {
	return status.Code(err) == codes.Unavailable
}
