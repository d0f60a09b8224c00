// Package unary builds grpc.ServiceDesc values for the JSON-over-gRPC
// services in this module (see pkg/rpc/jsoncodec) without generated
// protobuf stubs: each RPC is a plain Go function, wrapped into the
// grpc.MethodHandler shape grpc-go expects from generated code.
package unary

import (
	"context"

	"google.golang.org/grpc"
)

// Handler adapts a typed unary RPC function into a grpc.MethodHandler.
// Req and Resp are plain structs decoded/encoded by the jsoncodec.
func Handler[Req any, Resp any](fn func(ctx context.Context, req *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		wrapped := func(ctx context.Context, reqIface interface{}) (interface{}, error) {
			return fn(ctx, reqIface.(*Req))
		}
		return interceptor(ctx, req, info, wrapped)
	}
}

// Method names one RPC within a ServiceDesc.
type Method struct {
	Name    string
	Handler grpc.MethodHandler
}

// NewServiceDesc builds a grpc.ServiceDesc for serviceName with methods,
// suitable for (*grpc.Server).RegisterService. impl is any value; this
// module's services hold no per-call state so a nil impl is typical.
func NewServiceDesc(serviceName string, methods ...Method) *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Methods:     make([]grpc.MethodDesc, len(methods)),
		Metadata:    serviceName + ".json",
	}
	for i, m := range methods {
		desc.Methods[i] = grpc.MethodDesc{MethodName: m.Name, Handler: m.Handler}
	}
	return desc
}
