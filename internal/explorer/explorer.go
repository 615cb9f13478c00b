// Package explorer drives an exploration run: it walks the covariate space
// in layers, fans each layer's subsets out to a bounded worker pool where
// every fold is fitted, then merges the results into leaderboard entries on
// a single goroutine. Fit failures are data, not errors; only configuration
// problems abort a run.
package explorer

import (
	"context"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/rover/internal/covspace"
	"github.com/sells-group/rover/internal/fitter"
	"github.com/sells-group/rover/internal/model"
	"github.com/sells-group/rover/internal/scorer"
)

// Options tunes a run.
type Options struct {
	// Strategy selects the walk order; empty means full enumeration.
	Strategy covspace.Strategy

	// Concurrency bounds the fit worker pool; zero uses GOMAXPROCS.
	Concurrency int

	// Budget caps the wall-clock time spent fitting. Subsets still pending
	// when it expires are recorded as timed out, not dropped. Zero means no
	// cap.
	Budget time.Duration

	// Layer tunes frontier filtering for forward and backward walks.
	Layer covspace.LayerOptions
}

// Explorer runs explorations against a fixed fitter, scorer, and fold
// sequence. The fold sequence is shared by every subset; a trailing full
// fold (no validation rows) produces final coefficients.
type Explorer struct {
	fitter *fitter.Fitter
	scorer *scorer.Scorer
	folds  []model.Fold
	opts   Options
}

// New builds an explorer.
func New(fit *fitter.Fitter, sc *scorer.Scorer, foldSeq []model.Fold, opts Options) *Explorer {
	if opts.Strategy == "" {
		opts.Strategy = covspace.StrategyFull
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Explorer{fitter: fit, scorer: sc, folds: foldSeq, opts: opts}
}

// Explore walks the space and returns the finished leaderboard. A budget
// expiry degrades the run (pending subsets become unscored) but does not
// fail it; cancellation of the parent context does.
func (e *Explorer) Explore(ctx context.Context, runID string, space *covspace.Space) (*model.Leaderboard, error) {
	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.opts.Budget > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.opts.Budget)
	}
	defer cancel()

	walker, err := covspace.NewWalker(e.opts.Strategy, space)
	if err != nil {
		return nil, err
	}

	holdouts := 0
	for _, f := range e.folds {
		if !f.IsFull() {
			holdouts++
		}
	}

	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("strategy", string(e.opts.Strategy)),
	)
	start := time.Now()

	var entries []model.LeaderboardEntry
	layerNum := 0
	for layer := walker.First(); len(layer) > 0; layerNum++ {
		layerEntries, layerErr := e.fitLayer(runCtx, layer, holdouts)
		if layerErr != nil {
			return nil, layerErr
		}
		entries = append(entries, layerEntries...)

		log.Debug("layer explored",
			zap.Int("layer", layerNum),
			zap.Int("subsets", len(layer)),
		)

		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "explorer: run cancelled")
		}
		if runCtx.Err() != nil {
			log.Warn("budget expired, stopping exploration",
				zap.Int("explored", len(entries)),
			)
			break
		}

		scored := make([]covspace.ScoredSubset, len(layerEntries))
		for i := range layerEntries {
			scored[i] = covspace.ScoredSubset{
				Subset: layerEntries[i].Subset,
				Score:  layerEntries[i].Score,
			}
		}
		layer = walker.Next(scored, e.opts.Layer)
	}

	board := model.NewLeaderboard(runID, entries)
	log.Info("exploration finished",
		zap.Int("subsets", len(board.Entries)),
		zap.Int("scored", board.ScoredCount()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return board, nil
}

// fitLayer fans the layer's subsets out to the worker pool. Each worker
// fits all folds for its subset; aggregation happens here after the final
// join, so the entries slice has exactly one writer.
func (e *Explorer) fitLayer(ctx context.Context, layer []model.Subset, holdouts int) ([]model.LeaderboardEntry, error) {
	results := make([][]*model.Submodel, len(layer))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, subset := range layer {
		g.Go(func() error {
			subs := make([]*model.Submodel, 0, len(e.folds))
			for _, fold := range e.folds {
				// An expired context does not error here: the fitter
				// records the fold as timed out and the subset surfaces
				// as unscored.
				sm, err := e.fitter.FitFold(gctx, subset, fold)
				if err != nil {
					return err
				}
				subs = append(subs, sm)
			}
			results[i] = subs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]model.LeaderboardEntry, len(layer))
	for i, subset := range layer {
		entries[i] = e.scorer.Aggregate(subset, results[i], holdouts)
	}
	return entries, nil
}
