// Package router configures the HTTP API of ghgserver.
//
// Routes:
//   - POST /predict, POST /api/predict - emission forecast with gas composition
//   - POST /explain, POST /api/explain - integrated gradients attribution
//   - GET /health, GET /api/health - service status document
//   - GET /healthz - liveness probe (returns 200 OK)
//   - GET /metrics - Prometheus metrics
//
// Every route is wrapped with request ID, panic recovery, request logging
// and CORS middleware.
package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/ghgcast/pkg/api"
	"github.com/HatiCode/ghgcast/pkg/features"
	"github.com/HatiCode/ghgcast/pkg/httpx"
)

// Backend computes API responses.
type Backend interface {
	Predict(ctx context.Context, req api.Request) (*api.PredictResponse, error)
	Explain(ctx context.Context, req api.Request) (*api.ExplainResponse, error)
}

// Recorder receives per-request instrumentation.
type Recorder interface {
	ObserveRequest(endpoint, status string, seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, string, float64) {}

// SetupRoutes builds the HTTP handler for backend.
func SetupRoutes(backend Backend, recorder Recorder, corsOrigins []string, logger *slog.Logger) http.Handler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	predict := instrument("predict", recorder, handlePredict(backend, logger))
	explain := instrument("explain", recorder, handleExplain(backend, logger))
	health := instrument("health", recorder, handleHealth())

	for _, prefix := range []string{"", "/api"} {
		mux.Handle("POST "+prefix+"/predict", predict)
		mux.Handle("POST "+prefix+"/explain", explain)
		mux.Handle("GET "+prefix+"/health", health)
	}

	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /metrics", promhttp.Handler())

	return httpx.Chain(mux,
		httpx.RequestIDMiddleware(),
		httpx.RecoveryMiddleware(logger),
		httpx.LoggingMiddleware(logger),
		httpx.CORSMiddleware(corsOrigins),
	)
}

func handlePredict(backend Backend, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := httpx.DecodeJSON[api.Request](r)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}

		resp, err := backend.Predict(r.Context(), req)
		if err != nil {
			writeBackendError(w, r, "predict", err, logger)
			return
		}
		_ = httpx.WriteJSON(w, http.StatusOK, resp)
	}
}

func handleExplain(backend Backend, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := httpx.DecodeJSON[api.Request](r)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}

		resp, err := backend.Explain(r.Context(), req)
		if err != nil {
			writeBackendError(w, r, "explain", err, logger)
			return
		}
		_ = httpx.WriteJSON(w, http.StatusOK, resp)
	}
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = httpx.WriteJSON(w, http.StatusOK, api.OnlineHealth)
	}
}

func writeBackendError(w http.ResponseWriter, r *http.Request, endpoint string, err error, logger *slog.Logger) {
	switch {
	case features.IsValidation(err):
		httpx.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", "endpoint", endpoint, "error", err)
		httpx.WriteErrorMessage(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// client went away; nobody reads the body
		logger.Debug("request canceled", "endpoint", endpoint)
		httpx.WriteErrorMessage(w, http.StatusServiceUnavailable, "request canceled")
	default:
		logger.Error("request failed", "endpoint", endpoint, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func instrument(endpoint string, recorder Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		recorder.ObserveRequest(endpoint, strconv.Itoa(sr.status), time.Since(start).Seconds())
	})
}
