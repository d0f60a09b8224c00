package errors

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// grpcCodes maps our abstract error kinds to canonical gRPC status codes.
var grpcCodes = map[string]codes.Code{
	CodeInvalidArgument:   codes.InvalidArgument,
	CodeUnauthenticated:   codes.Unauthenticated,
	CodePermissionDenied:  codes.PermissionDenied,
	CodeNotFound:          codes.NotFound,
	CodeConflict:          codes.AlreadyExists,
	CodeTimeout:           codes.DeadlineExceeded,
	CodeUnavailable:       codes.Unavailable,
	CodeResourceExhausted: codes.ResourceExhausted,
	CodeInternal:          codes.Internal,
	CodePayloadTooLarge:   codes.ResourceExhausted,
	CodeCancelled:         codes.Canceled,
}

// ToGRPCStatus converts an AppError (or any error) into a gRPC status error,
// preserving the message. Unknown error kinds map to codes.Internal.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	code, ok := grpcCodes[Code(err)]
	if !ok {
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// FromGRPCStatus converts a gRPC status error back into an AppError so
// callers on both sides of an RPC boundary can branch on the same codes.
func FromGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return Internal("rpc failed", err)
	}
	for appCode, grpcCode := range grpcCodes {
		if grpcCode == st.Code() {
			return New(appCode, st.Message(), err)
		}
	}
	return Internal(st.Message(), err)
}
