package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-p2p-workflow/internal/errors"
	"github.com/pesio-ai/be-p2p-workflow/internal/service"
)

// AnalysisServiceName is the fully qualified gRPC service name. Requests and
// replies are google.protobuf.Struct documents mirroring the HTTP JSON bodies.
const AnalysisServiceName = "p2p.v1.AnalysisService"

// AnalysisServiceServer is the server API for p2p.v1.AnalysisService.
type AnalysisServiceServer interface {
	GetReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatistics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecommendVendors(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// AnalysisServiceDesc describes p2p.v1.AnalysisService for grpc.Server.
var AnalysisServiceDesc = grpc.ServiceDesc{
	ServiceName: AnalysisServiceName,
	HandlerType: (*AnalysisServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetReport", Handler: unaryHandler("GetReport", AnalysisServiceServer.GetReport)},
		{MethodName: "GetStatistics", Handler: unaryHandler("GetStatistics", AnalysisServiceServer.GetStatistics)},
		{MethodName: "RecommendVendors", Handler: unaryHandler("RecommendVendors", AnalysisServiceServer.RecommendVendors)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "p2p/v1/analysis.proto",
}

// RegisterAnalysisServiceServer registers srv on s.
func RegisterAnalysisServiceServer(s grpc.ServiceRegistrar, srv AnalysisServiceServer) {
	s.RegisterService(&AnalysisServiceDesc, srv)
}

func unaryHandler(
	method string,
	call func(AnalysisServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AnalysisServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AnalysisServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AnalysisServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// GRPCHandler implements the AnalysisService gRPC interface
type GRPCHandler struct {
	workflow *service.WorkflowService
	analysis *service.AnalysisService
	logger   zerolog.Logger
}

var _ AnalysisServiceServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(workflow *service.WorkflowService, analysis *service.AnalysisService, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		workflow: workflow,
		analysis: analysis,
		logger:   logger.With().Str("handler", "grpc").Logger(),
	}
}

// GetReport returns the full analysis report.
func (h *GRPCHandler) GetReport(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	report, err := h.analysis.Report(ctx)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(report)
}

// GetStatistics returns the workflow dashboard statistics.
func (h *GRPCHandler) GetStatistics(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(h.workflow.Statistics())
}

// RecommendVendors expects {"category": string, "exclude_high_risk": bool}.
func (h *GRPCHandler) RecommendVendors(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	category := fields["category"].GetStringValue()
	exclude := fields["exclude_high_risk"].GetBoolValue()

	h.logger.Debug().
		Str("category", category).
		Bool("exclude_high_risk", exclude).
		Msg("gRPC RecommendVendors called")

	recs, err := h.analysis.RecommendVendors(category, exclude)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(map[string]any{"recommendations": recs})
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func toGRPCError(err error) error {
	var code codes.Code
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		code = codes.NotFound
	case errors.ErrCodeInvalidInput:
		code = codes.InvalidArgument
	case errors.ErrCodeUnknownApprover:
		code = codes.PermissionDenied
	case errors.ErrCodeInvalidPrecondition, errors.ErrCodeNotPending, errors.ErrCodeNotApproved,
		errors.ErrCodeNotReceived, errors.ErrCodeMatchPrecondition, errors.ErrCodeNoPolicyMatch:
		code = codes.FailedPrecondition
	case errors.ErrCodeUnavailable:
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// LoggingInterceptor logs every unary call with its outcome and duration.
func LoggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		event := log.Info()
		if err != nil {
			event = log.Warn().Err(err)
		}
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-p2p-client"); len(v) > 0 {
				event = event.Str("client", v[0])
			}
			if v := md.Get("x-request-id"); len(v) > 0 {
				event = event.Str("request_id", v[0])
			}
		}
		event.
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC request")
		return resp, err
	}
}
