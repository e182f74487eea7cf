// Package service answers predict and explain calls for both transports:
// validate, resolve defaults, consult the result store, compute, store.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/HatiCode/ghgcast/pkg/api"
	"github.com/HatiCode/ghgcast/pkg/explain"
	"github.com/HatiCode/ghgcast/pkg/features"
	"github.com/HatiCode/ghgcast/pkg/forecast"
	"github.com/HatiCode/ghgcast/pkg/storage"
)

// Snapshot kinds in the result store.
const (
	KindPredict = "predict"
	KindExplain = "explain"
)

// DefaultComputeTimeout bounds one shared forecast or explanation. It matches
// the HTTP server's write timeout.
const DefaultComputeTimeout = 30 * time.Second

// Recorder receives service instrumentation.
type Recorder interface {
	RecordCache(kind string, hit bool)
	ObserveForecast(seconds float64)
	ObserveExplain(seconds float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordCache(string, bool) {}
func (nopRecorder) ObserveForecast(float64)  {}
func (nopRecorder) ObserveExplain(float64)   {}

// Service orchestrates forecast and explanation requests.
type Service struct {
	runner    *forecast.Runner
	explainer *explain.Explainer
	store     storage.Store
	recorder  Recorder
	logger    *slog.Logger

	group          singleflight.Group
	computeTimeout time.Duration
	now            func() time.Time
}

// New creates a Service. store may be nil to disable result caching.
func New(runner *forecast.Runner, explainer *explain.Explainer, store storage.Store, recorder Recorder, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runner:    runner,
		explainer: explainer,
		store:     store,
		recorder:  recorder,
		logger:    logger,

		computeTimeout: DefaultComputeTimeout,
		now:            time.Now,
	}
}

// Predict forecasts the requested gas and the gas composition.
func (s *Service) Predict(ctx context.Context, req api.Request) (*api.PredictResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	resolved := req.Resolve(s.now())

	var data api.PredictData
	err := s.cached(ctx, KindPredict, resolved.Key(), &data, func(ctx context.Context) (any, bool, error) {
		start := time.Now()
		f, err := s.runner.Forecast(ctx, resolved)
		if err != nil {
			return nil, false, err
		}
		duration := time.Since(start)
		s.recorder.ObserveForecast(duration.Seconds())

		s.logger.Info("forecast complete",
			"country", f.Request.Country,
			"sector", f.Request.Sector,
			"gas", f.Request.Gas,
			"subsectors", len(f.Result.Subsectors),
			"unknown_subsectors", len(f.Result.Unknown),
			"failed_subsectors", len(f.Result.Failed),
			"total", f.Result.Total,
			"duration_ms", duration.Milliseconds(),
		)

		// partial results are served but never stored
		return api.NewPredictData(f), f.Result.Status() == forecast.StatusComplete, nil
	})
	if err != nil {
		return nil, err
	}

	return api.NewPredictResponse(resolved, data), nil
}

// Explain attributes the forecast of the first subsector of the request.
func (s *Service) Explain(ctx context.Context, req api.Request) (*api.ExplainResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	resolved := req.Resolve(s.now())

	var data api.ExplainData
	err := s.cached(ctx, KindExplain, resolved.Key(), &data, func(ctx context.Context) (any, bool, error) {
		start := time.Now()
		e, err := s.explainer.Explain(ctx, resolved)
		if err != nil {
			return nil, false, err
		}
		duration := time.Since(start)
		s.recorder.ObserveExplain(duration.Seconds())

		s.logger.Info("explanation complete",
			"subsector", e.TargetSubsector,
			"steps", s.explainer.Steps(),
			"duration_ms", duration.Milliseconds(),
		)
		return api.NewExplainData(e), true, nil
	})
	if err != nil {
		return nil, err
	}

	return api.NewExplainResponse(resolved, data), nil
}

// cached loads the payload for kind/key into dst, computing it on a miss.
// Concurrent misses for the same key share one computation. The shared
// computation is detached from the caller that started it and bounded by
// the compute timeout, so a caller that goes away only abandons its own wait.
// Store failures are logged and otherwise ignored.
func (s *Service) cached(ctx context.Context, kind, key string, dst any, compute func(context.Context) (any, bool, error)) error {
	if s.store != nil {
		snap, found, err := s.store.Get(ctx, kind, key)
		if err != nil {
			s.logger.Warn("result store read failed", "kind", kind, "error", err)
		}
		if found {
			if err := json.Unmarshal(snap.Body, dst); err == nil {
				s.recorder.RecordCache(kind, true)
				return nil
			}
			s.logger.Warn("discarding unreadable snapshot", "kind", kind, "key", key)
		}
		s.recorder.RecordCache(kind, false)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	ch := s.group.DoChan(kind+"|"+key, func() (v any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s computation panicked: %v", kind, r)
			}
		}()

		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.computeTimeout)
		defer cancel()

		payload, storable, err := compute(workCtx)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
		}
		if storable && s.store != nil {
			snap := storage.Snapshot{Key: key, Kind: kind, GeneratedAt: s.now(), Body: body}
			if err := s.store.Put(workCtx, snap); err != nil {
				s.logger.Warn("result store write failed", "kind", kind, "error", err)
			}
		}
		return body, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		if res.Shared {
			s.logger.Debug("shared in-flight computation", "kind", kind, "key", key)
		}
		return json.Unmarshal(res.Val.([]byte), dst)
	}
}

// IsClientError reports whether err should be answered as a bad request.
func IsClientError(err error) bool {
	return features.IsValidation(err)
}
