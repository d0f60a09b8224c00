// Package jsoncodec registers a gRPC codec named "proto" backed by
// encoding/json instead of protobuf wire encoding. The collaborator
// surfaces in this module (Hook Engine, Gateway/Orchestrator) exchange
// plain Go structs over grpc.ClientConn/grpc.Server without .proto
// files or generated marshallers; registering under the name "proto"
// is what lets grpc-go's default content-subtype negotiation pick it
// up without every call site setting a CallContentSubtype option.
package jsoncodec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const Name = "proto"

func init() {
	encoding.RegisterCodec(codec{})
}

type codec struct{}

func (codec) Name() string { return Name }

func (codec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jsoncodec: marshal: %w", err)
	}
	return b, nil
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("jsoncodec: unmarshal: %w", err)
	}
	return nil
}
