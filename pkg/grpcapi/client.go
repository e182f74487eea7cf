package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ForecastClient is the client API of ghgcast.v1.Forecast.
type ForecastClient struct {
	cc grpc.ClientConnInterface
}

// NewForecastClient creates a client over cc.
func NewForecastClient(cc grpc.ClientConnInterface) *ForecastClient {
	return &ForecastClient{cc: cc}
}

// Predict calls ghgcast.v1.Forecast/Predict.
func (c *ForecastClient) Predict(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PredictMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Explain calls ghgcast.v1.Forecast/Explain.
func (c *ForecastClient) Explain(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ExplainMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
