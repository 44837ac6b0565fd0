package client

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-p2p-workflow/internal/reasoning"
)

// Full method names of p2p.v1.AnalysisService.
const (
	methodGetReport        = "/p2p.v1.AnalysisService/GetReport"
	methodGetStatistics    = "/p2p.v1.AnalysisService/GetStatistics"
	methodRecommendVendors = "/p2p.v1.AnalysisService/RecommendVendors"
)

// AnalysisGRPCClient is a gRPC client for the P2P analysis service.
type AnalysisGRPCClient struct {
	conn *grpc.ClientConn
}

// NewAnalysisGRPCClient creates a new analysis service gRPC client. clientName
// is sent with every call.
func NewAnalysisGRPCClient(addr, clientName string) (*AnalysisGRPCClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(outgoingMetadata(clientName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return &AnalysisGRPCClient{conn: conn}, nil
}

// NewAnalysisGRPCClientConn wraps an existing connection.
func NewAnalysisGRPCClientConn(conn *grpc.ClientConn) *AnalysisGRPCClient {
	return &AnalysisGRPCClient{conn: conn}
}

// Close closes the gRPC connection
func (c *AnalysisGRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// GetReport fetches the full analysis report.
func (c *AnalysisGRPCClient) GetReport(ctx context.Context) (*reasoning.Report, error) {
	var report reasoning.Report
	if err := c.call(ctx, methodGetReport, map[string]any{}, &report); err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &report, nil
}

// GetStatistics fetches workflow statistics as a generic document.
func (c *AnalysisGRPCClient) GetStatistics(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	if err := c.call(ctx, methodGetStatistics, map[string]any{}, &stats); err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	return stats, nil
}

// RecommendVendors fetches ranked vendors for a category.
func (c *AnalysisGRPCClient) RecommendVendors(ctx context.Context, category string, excludeHighRisk bool) ([]reasoning.VendorRecommendation, error) {
	var resp struct {
		Recommendations []reasoning.VendorRecommendation `json:"recommendations"`
	}
	req := map[string]any{"category": category, "exclude_high_risk": excludeHighRisk}
	if err := c.call(ctx, methodRecommendVendors, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to recommend vendors: %w", err)
	}
	return resp.Recommendations, nil
}

// call sends req as a google.protobuf.Struct and decodes the Struct reply
// into out through its JSON form.
func (c *AnalysisGRPCClient) call(ctx context.Context, method string, req map[string]any, out any) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return err
	}
	reply := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, in, reply); err != nil {
		return err
	}
	data, err := reply.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
