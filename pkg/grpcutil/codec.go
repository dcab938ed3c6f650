package grpcutil

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype of JSON-encoded messages
// ("application/grpc+json").
const CodecName = "json"

// JSONCodec marshals plain Go structs as JSON gRPC messages.
type JSONCodec struct{}

var _ encoding.Codec = JSONCodec{}

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

// Marshal implements encoding.Codec.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	return b, nil
}

// Unmarshal implements encoding.Codec.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", v, err)
	}
	return nil
}

// Name implements encoding.Codec.
func (JSONCodec) Name() string { return CodecName }

// JSONCallOption selects the JSON codec for a client call.
func JSONCallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
