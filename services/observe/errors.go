package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/instantcocoa/periscope/pkg/query"
	"github.com/instantcocoa/periscope/pkg/storage"
)

// Errors returned by the service. Use errors.Is or KindOf to classify.
var (
	// ErrInvalidInput marks caller mistakes: malformed filters, unknown
	// enumeration values, bad paging, unsafe literals.
	ErrInvalidInput = query.ErrInvalidInput
	// ErrUpstreamUnavailable marks a storage engine that is unreachable or
	// failed to answer.
	ErrUpstreamUnavailable = storage.ErrUnavailable
)

// ErrorKind classifies errors for transports.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInvalidInput
	KindUnavailable
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnavailable:
		return "upstream_unavailable"
	case KindCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// KindOf classifies err. A request that ran out of time counts as the
// upstream being unavailable; a caller that went away counts as cancelled.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrUpstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindUnavailable
	default:
		return KindInternal
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
