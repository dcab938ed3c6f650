// Package requestid carries a per-request correlation id through contexts,
// HTTP headers and gRPC metadata.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the id. gRPC metadata uses MetadataKey.
const (
	Header      = "X-Request-ID"
	MetadataKey = "x-request-id"
)

// maxLength bounds ids accepted from callers.
const maxLength = 128

type contextKey struct{}

// New returns a fresh random id.
func New() string {
	return uuid.NewString()
}

// Sanitize returns id when it is a usable caller-supplied id, otherwise a
// fresh one.
func Sanitize(id string) string {
	if id == "" || len(id) > maxLength {
		return New()
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return New()
		}
	}
	return id
}

// With returns ctx carrying id.
func With(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// From returns the id in ctx, or "".
func From(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
