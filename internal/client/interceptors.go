package client

import (
	"context"

	"github.com/rs/zerolog/hlog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Metadata keys stamped on outgoing calls.
const (
	MetadataClientName = "x-p2p-client"
	MetadataRequestID  = "x-request-id"
)

// outgoingMetadata returns a unary client interceptor that forwards incoming
// request metadata and tags the call with the caller's name and, when the
// context carries one, its hlog request id.
func outgoingMetadata(clientName string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		md, ok := metadata.FromIncomingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.MD{}
		}
		if out, ok := metadata.FromOutgoingContext(ctx); ok {
			md = metadata.Join(md, out)
		}
		md.Set(MetadataClientName, clientName)
		if id, ok := hlog.IDFromCtx(ctx); ok && len(md.Get(MetadataRequestID)) == 0 {
			md.Set(MetadataRequestID, id.String())
		}
		return invoker(metadata.NewOutgoingContext(ctx, md), method, req, reply, cc, opts...)
	}
}
