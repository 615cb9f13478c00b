// Package fitter fits one covariate subset on one fold. It builds the
// design matrix from the shared frame, delegates the solve to the regression
// collaborator, and scores validation predictions. Numeric failure never
// propagates as an error: it is recorded on the returned submodel so one bad
// subset cannot abort a run.
package fitter

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/rover/internal/dataset"
	"github.com/sells-group/rover/internal/model"
	"github.com/sells-group/rover/internal/scorer"
	"github.com/sells-group/rover/pkg/regression"
)

// Fitter produces submodels for subset/fold pairs against a fixed frame.
// It is stateless after construction and safe for concurrent use.
type Fitter struct {
	frame    *dataset.Frame
	response string
	weight   string
	engine   regression.Fitter
	scorer   *scorer.Scorer
}

// New validates the response and weight columns against the frame and
// returns a ready fitter. weight may be empty for unweighted fits.
func New(frame *dataset.Frame, response, weight string, engine regression.Fitter, sc *scorer.Scorer) (*Fitter, error) {
	if err := frame.Require(response); err != nil {
		return nil, eris.Wrap(model.ErrConfiguration, err.Error())
	}
	if weight != "" {
		if err := frame.Require(weight); err != nil {
			return nil, eris.Wrap(model.ErrConfiguration, err.Error())
		}
	}
	return &Fitter{
		frame:    frame,
		response: response,
		weight:   weight,
		engine:   engine,
		scorer:   sc,
	}, nil
}

// FitFold fits the subset on the fold's training rows and, for holdout
// folds, scores predictions on the validation rows. The returned submodel
// always carries a terminal status. The error return is reserved for
// configuration problems such as covariates missing from the frame.
func (f *Fitter) FitFold(ctx context.Context, subset model.Subset, fold model.Fold) (*model.Submodel, error) {
	sm := &model.Submodel{
		Subset:    subset,
		SubsetKey: subset.Key(),
		FoldID:    fold.ID,
		Status:    model.FitNotFitted,
	}

	if err := ctx.Err(); err != nil {
		sm.Status = model.FitTimedOut
		sm.Reason = err.Error()
		return sm, nil
	}

	names := subset.Names()
	if len(names) == 0 {
		// A zero-column design has nothing to fit.
		sm.Status = model.FitSingular
		sm.Reason = "empty subset"
		return sm, nil
	}
	if err := f.frame.Require(names...); err != nil {
		return nil, eris.Wrap(model.ErrConfiguration, err.Error())
	}

	design, err := f.design(names, fold.Train)
	if err != nil {
		return nil, err
	}
	observed, err := f.frame.Column(f.response, fold.Train)
	if err != nil {
		return nil, err
	}
	weights, err := f.weights(fold.Train)
	if err != nil {
		return nil, err
	}

	fit, fitErr := f.solve(ctx, design, observed, weights)
	if fitErr != nil {
		sm.Status, sm.Reason = classify(fitErr)
		zap.L().Debug("fit failed",
			zap.String("subset", subset.String()),
			zap.String("fold", fold.ID),
			zap.String("status", string(sm.Status)),
		)
		return sm, nil
	}

	sm.Status = model.FitSuccess
	sm.Coefficients = fit.Coefficients

	if fold.IsFull() {
		score := f.scorer.Score(observed, regression.Predict(design, fit.Coefficients), weights)
		sm.TrainPerformance = &score
		return sm, nil
	}

	valDesign, err := f.design(names, fold.Validation)
	if err != nil {
		return nil, err
	}
	valObserved, err := f.frame.Column(f.response, fold.Validation)
	if err != nil {
		return nil, err
	}
	valWeights, err := f.weights(fold.Validation)
	if err != nil {
		return nil, err
	}

	score := f.scorer.Score(valObserved, regression.Predict(valDesign, fit.Coefficients), valWeights)
	sm.Performance = &score
	return sm, nil
}

// solve isolates the collaborator call so a panicking solver degrades to a
// solver failure instead of killing the worker.
func (f *Fitter) solve(ctx context.Context, design mat.Matrix, observed, weights []float64) (fit *regression.Fit, err error) {
	defer func() {
		if r := recover(); r != nil {
			fit, err = nil, eris.Wrapf(regression.ErrNoConverge, "solver panic: %v", r)
		}
	}()
	return f.engine.Fit(ctx, design, observed, weights)
}

func (f *Fitter) design(names []string, rows []int) (*mat.Dense, error) {
	raw, err := f.frame.Matrix(names, rows)
	if err != nil {
		return nil, err
	}

	flat := make([]float64, 0, len(raw)*len(names))
	for _, row := range raw {
		flat = append(flat, row...)
	}
	return mat.NewDense(len(raw), len(names), flat), nil
}

func (f *Fitter) weights(rows []int) ([]float64, error) {
	if f.weight == "" {
		return nil, nil
	}
	return f.frame.Column(f.weight, rows)
}

func classify(err error) (model.FitStatus, string) {
	switch {
	case eris.Is(err, regression.ErrSingular):
		return model.FitSingular, err.Error()
	case eris.Is(err, context.Canceled), eris.Is(err, context.DeadlineExceeded):
		return model.FitTimedOut, err.Error()
	default:
		return model.FitSolverFailed, err.Error()
	}
}
