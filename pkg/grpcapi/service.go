// Package grpcapi exposes predict and explain over gRPC as the
// ghgcast.v1.Forecast service. Requests and responses are
// google.protobuf.Struct values carrying the same JSON documents as the HTTP API.
package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/HatiCode/ghgcast/pkg/api"
	"github.com/HatiCode/ghgcast/pkg/features"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ghgcast.v1.Forecast"

// Full method names.
const (
	PredictMethod = "/" + ServiceName + "/Predict"
	ExplainMethod = "/" + ServiceName + "/Explain"
)

// Backend computes responses for the service.
type Backend interface {
	Predict(ctx context.Context, req api.Request) (*api.PredictResponse, error)
	Explain(ctx context.Context, req api.Request) (*api.ExplainResponse, error)
}

// ForecastServer is the server API of ghgcast.v1.Forecast.
type ForecastServer interface {
	Predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Explain(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes ghgcast.v1.Forecast for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ForecastServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
		{MethodName: "Explain", Handler: explainHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ghgcast/v1/forecast.proto",
}

// RegisterForecastServer registers srv on s.
func RegisterForecastServer(s grpc.ServiceRegistrar, srv ForecastServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func predictHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ForecastServer).Predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PredictMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ForecastServer).Predict(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func explainHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ForecastServer).Explain(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ExplainMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ForecastServer).Explain(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Handler adapts a Backend to ForecastServer.
type Handler struct {
	backend Backend
}

// NewHandler creates a handler over backend.
func NewHandler(backend Backend) *Handler {
	return &Handler{backend: backend}
}

// Predict implements ForecastServer.
func (h *Handler) Predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := ToRequest(in)
	if err != nil {
		return nil, err
	}
	resp, err := h.backend.Predict(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return ToStruct(resp)
}

// Explain implements ForecastServer.
func (h *Handler) Explain(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := ToRequest(in)
	if err != nil {
		return nil, err
	}
	resp, err := h.backend.Explain(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return ToStruct(resp)
}

// ToRequest decodes a request document.
func ToRequest(in *structpb.Struct) (api.Request, error) {
	var req api.Request
	data, err := protojson.Marshal(in)
	if err != nil {
		return req, status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return req, nil
}

// ToStruct encodes any JSON-serializable value as a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

// FromStruct decodes a Struct into v through its JSON form.
func FromStruct(s *structpb.Struct, v any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode struct: %w", err)
	}
	return json.Unmarshal(data, v)
}

func toStatus(err error) error {
	switch {
	case features.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
