// Package grpcagency is the concrete, wired implementation of the
// agency.Client boundary (C9): a gRPC transport carrying plain JSON
// payloads (via a custom encoding.Codec) instead of protobuf, since this
// module has no .proto toolchain step and the message shapes are simple
// Go structs. It also ships an in-memory reference server implementing
// the same service, standing in for the otherwise-external mediator
// (spec.md §1: "the mediator/agency REST client... out of scope").
package grpcagency

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec over
// encoding/json, letting Invoke/ServiceDesc handlers exchange plain Go
// structs without generated protobuf stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
