// Package grpc implements the gRPC transport variant of a HookAdapter:
// it forwards Invoke calls to an externally registered hook service over
// a resilient connection, so hook logic can live in a separate deploy
// from the pipeline that calls it.
package grpc

import (
	"context"
	"encoding/json"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	clientgrpc "github.com/chris-alexander-pop/system-design-library/pkg/client/grpc"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/rpc/jsoncodec"

	"google.golang.org/grpc"
)

// Config describes the remote hook service this adapter calls.
type Config struct {
	Group  ports.HookGroup
	Client clientgrpc.Config
}

// invokeRequest/invokeResponse are the JSON-over-grpc payloads exchanged
// with the remote hook service. No .proto file backs these; the codec
// registered in pkg/rpc/jsoncodec marshals them as JSON on the wire.
type invokeRequest struct {
	Point    ports.HookPoint   `json:"point"`
	Headers  map[string]string `json:"headers"`
	Metadata map[string]string `json:"metadata"`
	Message  json.RawMessage   `json:"message"`
}

type invokeResponse struct {
	Headers  map[string]string `json:"headers"`
	Metadata map[string]string `json:"metadata"`
	Message  json.RawMessage   `json:"message"`
	Error    string            `json:"error,omitempty"`
}

// Adapter calls a registered hook service over a resilient grpc.ClientConn.
type Adapter struct {
	group ports.HookGroup
	conn  *grpc.ClientConn
}

// New dials the remote hook service. The circuit breaker and retry
// behavior come from pkg/client/grpc, the same factory every other
// outbound gRPC client in this module uses.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	conn, err := clientgrpc.New(ctx, cfg.Client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial hook service")
	}
	return &Adapter{group: cfg.Group, conn: conn}, nil
}

func (a *Adapter) Group() ports.HookGroup { return a.group }

func (a *Adapter) Invoke(ctx context.Context, point ports.HookPoint, env *ports.HookEnvelope) error {
	msgJSON, err := json.Marshal(env.Message)
	if err != nil {
		return errors.Wrap(err, "failed to encode hook envelope message")
	}

	req := &invokeRequest{
		Point:    point,
		Headers:  env.Headers,
		Metadata: env.Metadata,
		Message:  msgJSON,
	}
	resp := &invokeResponse{}

	if err := a.conn.Invoke(ctx, "/hook.v1.HookService/Invoke", req, resp, grpc.CallContentSubtype(jsoncodec.Name)); err != nil {
		return errors.FromGRPCStatus(err)
	}
	if resp.Error != "" {
		return errors.Internal(resp.Error, nil)
	}

	if len(resp.Message) > 0 {
		if err := json.Unmarshal(resp.Message, env.Message); err != nil {
			return errors.Wrap(err, "failed to decode hook envelope message")
		}
	}
	if resp.Headers != nil {
		env.Headers = resp.Headers
	}
	if resp.Metadata != nil {
		env.Metadata = resp.Metadata
	}
	return nil
}

// Close releases the underlying connection.
func (a *Adapter) Close() error {
	return a.conn.Close()
}
