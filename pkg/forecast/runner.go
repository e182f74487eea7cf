package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/mat"

	"github.com/HatiCode/ghgcast/pkg/features"
	"github.com/HatiCode/ghgcast/pkg/models"
)

// Recorder receives runner instrumentation. All methods must be safe for
// concurrent use.
type Recorder interface {
	ObservePredict(seconds float64)
	RecordSubsectorFailure(subsector string)
}

type nopRecorder struct{}

func (nopRecorder) ObservePredict(float64)        {}
func (nopRecorder) RecordSubsectorFailure(string) {}

// Runner is the inference runner: encode, predict each subsector, invert the
// target transform, aggregate.
type Runner struct {
	encoder  *features.Encoder
	model    models.Model
	sem      *semaphore.Weighted
	recorder Recorder
	logger   *slog.Logger
}

// NewRunner creates a runner. maxConcurrent bounds the number of model forward
// passes in flight across all requests; values < 1 mean 1.
func NewRunner(encoder *features.Encoder, model models.Model, maxConcurrent int, recorder Recorder, logger *slog.Logger) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		encoder:  encoder,
		model:    model,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		recorder: recorder,
		logger:   logger,
	}
}

// Run forecasts 12 months of emissions for every subsector of the request.
//
// Validation failures from the encoder are returned as *features.ValidationError.
// A failing subsector is logged, recorded on Result.Failed and skipped.
// A sector with no encodable subsector yields a zero Result and no error.
func (r *Runner) Run(ctx context.Context, req features.Request) (*Result, error) {
	enc, err := r.encoder.Encode(req)
	if err != nil {
		return nil, err
	}

	res := &Result{Unknown: enc.Skipped}
	for _, s := range enc.Sequences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sub, err := r.predictSubsector(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("subsector prediction failed",
				"subsector", s.Subsector,
				"error", err,
			)
			r.recorder.RecordSubsectorFailure(s.Subsector)
			res.Failed = append(res.Failed, &SubsectorError{Subsector: s.Subsector, Err: err})
			continue
		}
		res.add(sub)
	}

	return res, nil
}

func (r *Runner) predictSubsector(ctx context.Context, s features.SubsectorSequence) (SubsectorResult, error) {
	in := Inputs(&s.Sequence)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return SubsectorResult{}, err
	}
	start := time.Now()
	y, err := r.model.Predict(ctx, in)
	r.sem.Release(1)
	if err != nil {
		return SubsectorResult{}, err
	}
	r.recorder.ObservePredict(time.Since(start).Seconds())

	if len(y) != Months {
		return SubsectorResult{}, fmt.Errorf("model returned %d values, want %d: %w", len(y), Months, models.ErrShapeMismatch)
	}

	out := SubsectorResult{Name: s.Subsector}
	for i, v := range y {
		out.Monthly[i] = FromLog1p(v)
		out.Total += out.Monthly[i]
	}
	return out, nil
}

// Inputs splits a sequence into the model's five inputs: four categorical
// index streams and the 12x6 numerical block.
func Inputs(seq *features.Sequence) models.Inputs {
	var in models.Inputs
	for s := range models.NumStreams {
		idx := seq.Categorical(s)
		in.Categorical[s] = append([]int(nil), idx[:]...)
	}
	num := seq.Numerical()
	data := make([]float64, 0, features.SequenceLength*features.NumNumerical)
	for t := range num {
		data = append(data, num[t][:]...)
	}
	in.Numerical = mat.NewDense(features.SequenceLength, features.NumNumerical, data)
	return in
}

// IsCanceled reports whether err is a context cancellation or deadline.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
