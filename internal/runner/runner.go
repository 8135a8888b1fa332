// Package runner executes the normalization pipeline and, when a store is
// configured, records the run and its results.
package runner

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/beerprice/internal/model"
	"github.com/sells-group/beerprice/internal/normalize"
	"github.com/sells-group/beerprice/internal/store"
)

// Pipeline is the part of *normalize.Pipeline the runner needs.
type Pipeline interface {
	Run(ctx context.Context, listings []model.Listing) (*normalize.Result, error)
}

// Runner couples a pipeline with an optional run store.
type Runner struct {
	pipeline Pipeline
	store    store.Store
}

// New creates a Runner. st may be nil to skip persistence.
func New(p Pipeline, st store.Store) *Runner {
	return &Runner{pipeline: p, store: st}
}

// Pipeline returns the wrapped pipeline.
func (r *Runner) Pipeline() Pipeline {
	return r.pipeline
}

// Outcome is the result of Process. Run is nil when nothing was persisted.
type Outcome struct {
	Run    *model.Run
	Result *normalize.Result
}

// Process normalizes listings. With a store the run moves through
// queued, processing and then complete or failed; results are saved before
// the run is marked complete.
func (r *Runner) Process(ctx context.Context, input string, listings []model.Listing) (*Outcome, error) {
	start := time.Now()
	if r.store == nil {
		res, err := r.pipeline.Run(ctx, listings)
		if err != nil {
			return nil, err
		}
		return &Outcome{Result: res}, nil
	}

	run, err := r.store.CreateRun(ctx, input)
	if err != nil {
		return nil, eris.Wrap(err, "runner: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("input", input))

	if err := r.store.UpdateRunStatus(ctx, run.ID, model.RunStatusProcessing); err != nil {
		return nil, eris.Wrap(err, "runner: mark processing")
	}

	res, err := r.pipeline.Run(ctx, listings)
	if err == nil {
		err = r.save(ctx, run.ID, res)
	}
	if err != nil {
		// Record the failure even when ctx was cancelled.
		if ferr := r.store.FailRun(context.WithoutCancel(ctx), run.ID, err.Error()); ferr != nil {
			log.Error("runner: record failure", zap.Error(ferr))
		}
		return nil, err
	}

	if err := r.store.CompleteRun(ctx, run.ID, res.Stats); err != nil {
		return nil, eris.Wrap(err, "runner: complete run")
	}

	got, err := r.store.GetRun(ctx, run.ID)
	if err != nil {
		return nil, eris.Wrap(err, "runner: reload run")
	}

	log.Info("runner: run complete",
		zap.Int("listings", res.Stats.Total),
		zap.Int("categories_found", res.Stats.CategoriesHit),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &Outcome{Run: got, Result: res}, nil
}

func (r *Runner) save(ctx context.Context, runID string, res *normalize.Result) error {
	if err := r.store.SaveListings(ctx, runID, res.Listings); err != nil {
		return eris.Wrap(err, "runner: save listings")
	}
	if err := r.store.SaveSummary(ctx, runID, res.Summary); err != nil {
		return eris.Wrap(err, "runner: save summary")
	}
	return nil
}
