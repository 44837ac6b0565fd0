package client

import (
	"context"
	"testing"

	"github.com/rs/xid"
	"github.com/rs/zerolog/hlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func captureMetadata(t *testing.T, ctx context.Context) metadata.MD {
	t.Helper()
	var got metadata.MD
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		got, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}
	require.NoError(t, outgoingMetadata("p2pctl")(ctx, methodGetReport, nil, nil, nil, invoker))
	return got
}

func TestOutgoingMetadata_StampsClientName(t *testing.T) {
	md := captureMetadata(t, context.Background())
	assert.Equal(t, []string{"p2pctl"}, md.Get(MetadataClientName))
	assert.Empty(t, md.Get(MetadataRequestID))
}

func TestOutgoingMetadata_ForwardsIncoming(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc"))
	ctx = metadata.AppendToOutgoingContext(ctx, "x-extra", "1")

	md := captureMetadata(t, ctx)
	assert.Equal(t, []string{"Bearer abc"}, md.Get("authorization"))
	assert.Equal(t, []string{"1"}, md.Get("x-extra"))
}

func TestOutgoingMetadata_RequestID(t *testing.T) {
	id := xid.New()
	ctx := hlog.CtxWithID(context.Background(), id)

	md := captureMetadata(t, ctx)
	assert.Equal(t, []string{id.String()}, md.Get(MetadataRequestID))

	ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(MetadataRequestID, "upstream"))
	md = captureMetadata(t, ctx)
	assert.Equal(t, []string{"upstream"}, md.Get(MetadataRequestID))
}
