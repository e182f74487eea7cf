package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/ghgcast/pkg/api"
	"github.com/HatiCode/ghgcast/pkg/client"
	"github.com/HatiCode/ghgcast/pkg/grpcapi"
)

const defaultTimeout = 30 * time.Second

// backend is the part of the API ghgctl calls.
type backend interface {
	Predict(ctx context.Context, req api.Request) (*api.PredictResponse, error)
	Explain(ctx context.Context, req api.Request) (*api.ExplainResponse, error)
	Health(ctx context.Context) (*api.Health, error)
}

func connect(c *cli.Context) (backend, func(), error) {
	server := c.String("server")
	switch c.String("transport") {
	case "http":
		return client.NewWithTimeout(server, c.Duration("timeout")), func() {}, nil
	case "grpc":
		conn, err := grpc.NewClient(server, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to %s: %w", server, err)
		}
		return &grpcBackend{
			forecast: grpcapi.NewForecastClient(conn),
			health:   healthpb.NewHealthClient(conn),
		}, func() { conn.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", c.String("transport"))
	}
}

type grpcBackend struct {
	forecast *grpcapi.ForecastClient
	health   healthpb.HealthClient
}

func (g *grpcBackend) Predict(ctx context.Context, req api.Request) (*api.PredictResponse, error) {
	in, err := grpcapi.ToStruct(req)
	if err != nil {
		return nil, err
	}
	out, err := g.forecast.Predict(ctx, in)
	if err != nil {
		return nil, err
	}
	var resp api.PredictResponse
	if err := grpcapi.FromStruct(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *grpcBackend) Explain(ctx context.Context, req api.Request) (*api.ExplainResponse, error) {
	in, err := grpcapi.ToStruct(req)
	if err != nil {
		return nil, err
	}
	out, err := g.forecast.Explain(ctx, in)
	if err != nil {
		return nil, err
	}
	var resp api.ExplainResponse
	if err := grpcapi.FromStruct(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (g *grpcBackend) Health(ctx context.Context) (*api.Health, error) {
	resp, err := g.health.Check(ctx, &healthpb.HealthCheckRequest{Service: grpcapi.ServiceName})
	if err != nil {
		return nil, err
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		return &api.Health{Status: "offline", Message: resp.Status.String()}, nil
	}
	h := api.OnlineHealth
	return &h, nil
}

func requestFrom(c *cli.Context) api.Request {
	req := api.Request{
		Country: c.String("country"),
		Sector:  c.String("sector"),
		Gas:     c.String("gas"),
	}
	if c.IsSet("year") {
		v := c.Int("year")
		req.Year = &v
	}
	if c.IsSet("month") {
		v := c.Int("month")
		req.Month = &v
	}
	if c.IsSet("lat") {
		v := c.Float64("lat")
		req.Lat = &v
	}
	if c.IsSet("lon") {
		v := c.Float64("lon")
		req.Lon = &v
	}
	return req
}

func runPredict(c *cli.Context) error {
	b, closeFn, err := connect(c)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	req := requestFrom(c)
	resp, err := b.Predict(ctx, req)
	if err != nil {
		return fmt.Errorf("predict failed: %w", err)
	}

	if c.String("format") == "json" {
		return writeJSON(c, resp)
	}
	writePredictSummary(c.App.Writer, req.Resolve(time.Now()), resp)
	return nil
}

func runExplain(c *cli.Context) error {
	b, closeFn, err := connect(c)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	resp, err := b.Explain(ctx, requestFrom(c))
	if err != nil {
		return fmt.Errorf("explain failed: %w", err)
	}

	if c.String("format") == "json" {
		return writeJSON(c, resp)
	}
	writeExplainSummary(c.App.Writer, resp)
	return nil
}

func runHealth(c *cli.Context) error {
	b, closeFn, err := connect(c)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	h, err := b.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "%s: %s\n", h.Status, h.Message)
	return nil
}

func writeJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
