// Package connect provides the Connect RPC player control service.
package connect

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec serializes plain Go messages as JSON. It replaces the
// protobuf JSON codec registered under the same name.
type jsonCodec struct{}

var _ connect.Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// WithJSON returns the option selecting the JSON codec for handlers and
// clients of this package.
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
