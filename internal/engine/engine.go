// Package engine orchestrates a full exploration run: load the dataset,
// build folds and the covariate space, explore, blend the ensemble, and
// record every lifecycle transition in the store.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rover/internal/config"
	"github.com/sells-group/rover/internal/covspace"
	"github.com/sells-group/rover/internal/dataset"
	"github.com/sells-group/rover/internal/ensemble"
	"github.com/sells-group/rover/internal/explorer"
	"github.com/sells-group/rover/internal/fitter"
	"github.com/sells-group/rover/internal/folds"
	"github.com/sells-group/rover/internal/model"
	"github.com/sells-group/rover/internal/scorer"
	"github.com/sells-group/rover/internal/store"
	"github.com/sells-group/rover/pkg/regression"
)

// Engine ties the exploration pipeline to a store.
type Engine struct {
	store store.Store
	cfg   *config.Config
}

// New builds an engine.
func New(st store.Store, cfg *config.Config) *Engine {
	return &Engine{store: st, cfg: cfg}
}

// Result bundles everything a finished run produced.
type Result struct {
	Run         *model.Run
	Leaderboard *model.Leaderboard
	Ensemble    *ensemble.Result
}

// Run executes one exploration end to end. The run record moves through
// queued, exploring, ensembling, and finally complete or failed; whatever
// leaderboard exists when something goes wrong is still persisted.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	run, err := e.store.CreateRun(ctx, e.cfg.Data.Source)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("run created", zap.String("dataset", e.cfg.Data.Source))

	res, err := e.execute(ctx, run)
	if err != nil {
		if failErr := e.store.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			log.Error("record run failure", zap.Error(failErr))
		}
		return nil, err
	}
	return res, nil
}

func (e *Engine) execute(ctx context.Context, run *model.Run) (*Result, error) {
	start := time.Now()
	cfg := e.cfg

	if err := e.store.UpdateRunStatus(ctx, run.ID, model.RunStatusExploring); err != nil {
		return nil, err
	}
	run.Status = model.RunStatusExploring

	frame, err := dataset.Load(ctx, cfg.Data.Source,
		dataset.FetchOptions{
			UserAgent: cfg.Data.UserAgent,
			Timeout:   time.Duration(cfg.Data.TimeoutSecs) * time.Second,
		},
		dataset.ReadOptions{
			Charset:    cfg.Data.Charset,
			SheetIndex: cfg.Data.SheetIndex,
			SheetName:  cfg.Data.SheetName,
		},
	)
	if err != nil {
		return nil, err
	}
	if cfg.Model.Intercept != "" {
		if err := frame.EnsureIntercept(cfg.Model.Intercept); err != nil {
			return nil, err
		}
	}

	space, err := covspace.New(cfg.Model.Required, cfg.Model.Optional, cfg.Model.MaxSubsetSize)
	if err != nil {
		return nil, err
	}

	foldSeq, err := folds.Build(frame.Rows(), cfg.Folds)
	if err != nil {
		return nil, err
	}
	// A trailing full fold produces the final coefficients each ensemble
	// member needs. The full strategy already is one.
	if cfg.Folds.Strategy != folds.StrategyFull {
		foldSeq = append(foldSeq, folds.FullFold(frame.Rows()))
	}

	sc, err := scorer.New(cfg.Scoring.Metric)
	if err != nil {
		return nil, err
	}

	fit, err := fitter.New(frame, cfg.Data.Response, cfg.Data.Weight,
		regression.LeastSquares{Ridge: cfg.Model.Ridge}, sc)
	if err != nil {
		return nil, err
	}

	strategy, err := covspace.ParseStrategy(cfg.Explore.Strategy)
	if err != nil {
		return nil, err
	}

	exp := explorer.New(fit, sc, foldSeq, explorer.Options{
		Strategy:    strategy,
		Concurrency: cfg.Explore.Concurrency,
		Budget:      cfg.Explore.Budget(),
		Layer: covspace.LayerOptions{
			NumBest:     cfg.Explore.NumBest,
			ParentRatio: cfg.Explore.ParentRatio,
		},
	})

	board, err := exp.Explore(ctx, run.ID, space)
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveEntries(ctx, run.ID, board.Entries); err != nil {
		return nil, err
	}

	if err := e.store.UpdateRunStatus(ctx, run.ID, model.RunStatusEnsembling); err != nil {
		return nil, err
	}
	run.Status = model.RunStatusEnsembling

	blend, err := ensemble.Build(board, ensemble.Options{
		Temperature:   cfg.Ensemble.Temperature,
		TopPctScore:   cfg.Ensemble.TopPctScore,
		TopPctLearner: cfg.Ensemble.TopPctLearner,
		TopK:          cfg.Ensemble.TopK,
	})
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveEnsemble(ctx, run.ID, blend); err != nil {
		return nil, err
	}

	summary := model.Summarize(board, time.Since(start))
	if err := e.store.CompleteRun(ctx, run.ID, summary); err != nil {
		return nil, err
	}
	run.Status = model.RunStatusComplete
	run.Summary = summary

	zap.L().Info("run complete",
		zap.String("run_id", run.ID),
		zap.Int("subsets", summary.Subsets),
		zap.Int("scored", summary.Scored),
		zap.String("best", summary.BestSubset),
	)
	return &Result{Run: run, Leaderboard: board, Ensemble: blend}, nil
}

// ErrIsConfiguration reports whether the failure was a setup problem rather
// than a runtime one, for exit-code and HTTP-status mapping.
func ErrIsConfiguration(err error) bool {
	return eris.Is(err, model.ErrConfiguration)
}
