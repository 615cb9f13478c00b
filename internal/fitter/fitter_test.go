package fitter

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/rover/internal/dataset"
	"github.com/sells-group/rover/internal/folds"
	"github.com/sells-group/rover/internal/model"
	"github.com/sells-group/rover/internal/scorer"
	"github.com/sells-group/rover/pkg/regression"
)

type stubEngine struct {
	fit *regression.Fit
	err error
}

func (s stubEngine) Fit(context.Context, mat.Matrix, []float64, []float64) (*regression.Fit, error) {
	return s.fit, s.err
}

type panicEngine struct{}

func (panicEngine) Fit(context.Context, mat.Matrix, []float64, []float64) (*regression.Fit, error) {
	panic("index out of range")
}

func lineFrame(t *testing.T) *dataset.Frame {
	t.Helper()
	f := dataset.NewFrame()
	// y = 2*x1 exactly.
	require.NoError(t, f.AddColumn("y", []float64{2, 4, 6, 8}))
	require.NoError(t, f.AddColumn("x1", []float64{1, 2, 3, 4}))
	require.NoError(t, f.AddColumn("x2", []float64{1, 1, 1, 1}))
	return f
}

func newFitter(t *testing.T, engine regression.Fitter) *Fitter {
	t.Helper()
	sc, err := scorer.New(scorer.MetricRMSE)
	require.NoError(t, err)

	f, err := New(lineFrame(t), "y", "", engine, sc)
	require.NoError(t, err)
	return f
}

func TestNewValidatesColumns(t *testing.T) {
	sc, err := scorer.New("")
	require.NoError(t, err)

	_, err = New(lineFrame(t), "nope", "", regression.LeastSquares{}, sc)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrConfiguration))

	_, err = New(lineFrame(t), "y", "missing-weight", regression.LeastSquares{}, sc)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrConfiguration))
}

func TestFitFoldScoresValidation(t *testing.T) {
	f := newFitter(t, regression.LeastSquares{})

	fold := model.Fold{ID: "fold-1", Train: []int{0, 1, 2}, Validation: []int{3}}
	sm, err := f.FitFold(context.Background(), model.NewSubset(nil, []string{"x1"}), fold)
	require.NoError(t, err)

	assert.Equal(t, model.FitSuccess, sm.Status)
	require.Len(t, sm.Coefficients, 1)
	assert.InDelta(t, 2.0, sm.Coefficients[0], 1e-9)

	// The fit is exact, so the holdout error is zero.
	require.NotNil(t, sm.Performance)
	assert.InDelta(t, 0.0, *sm.Performance, 1e-9)
	assert.Nil(t, sm.TrainPerformance)
}

func TestFitFoldFullFit(t *testing.T) {
	f := newFitter(t, regression.LeastSquares{})

	sm, err := f.FitFold(context.Background(), model.NewSubset(nil, []string{"x1"}), folds.FullFold(4))
	require.NoError(t, err)

	assert.Equal(t, model.FitSuccess, sm.Status)
	assert.Equal(t, "full", sm.FoldID)
	assert.Nil(t, sm.Performance)
	require.NotNil(t, sm.TrainPerformance)
	assert.InDelta(t, 0.0, *sm.TrainPerformance, 1e-9)
}

func TestFitFoldSingular(t *testing.T) {
	f := newFitter(t, regression.LeastSquares{})

	// Two training rows cannot identify three coefficients.
	fold := model.Fold{ID: "fold-1", Train: []int{0, 1}, Validation: []int{2, 3}}
	sm, err := f.FitFold(context.Background(), model.NewSubset(nil, []string{"x1", "x2", "y"}), fold)
	require.NoError(t, err)

	assert.Equal(t, model.FitSingular, sm.Status)
	assert.True(t, sm.Failed())
	assert.Nil(t, sm.Performance)
	assert.NotEmpty(t, sm.Reason)
}

func TestFitFoldSolverFailure(t *testing.T) {
	f := newFitter(t, stubEngine{err: eris.Wrap(regression.ErrNoConverge, "stalled")})

	fold := model.Fold{ID: "fold-1", Train: []int{0, 1, 2}, Validation: []int{3}}
	sm, err := f.FitFold(context.Background(), model.NewSubset(nil, []string{"x1"}), fold)
	require.NoError(t, err)

	assert.Equal(t, model.FitSolverFailed, sm.Status)
}

func TestFitFoldRecoversPanic(t *testing.T) {
	f := newFitter(t, panicEngine{})

	fold := model.Fold{ID: "fold-1", Train: []int{0, 1, 2}, Validation: []int{3}}
	sm, err := f.FitFold(context.Background(), model.NewSubset(nil, []string{"x1"}), fold)
	require.NoError(t, err)

	assert.Equal(t, model.FitSolverFailed, sm.Status)
	assert.Contains(t, sm.Reason, "panic")
}

func TestFitFoldTimedOutContext(t *testing.T) {
	f := newFitter(t, regression.LeastSquares{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fold := model.Fold{ID: "fold-1", Train: []int{0, 1, 2}, Validation: []int{3}}
	sm, err := f.FitFold(ctx, model.NewSubset(nil, []string{"x1"}), fold)
	require.NoError(t, err)

	assert.Equal(t, model.FitTimedOut, sm.Status)
}

func TestFitFoldEmptySubset(t *testing.T) {
	f := newFitter(t, regression.LeastSquares{})

	fold := model.Fold{ID: "fold-1", Train: []int{0, 1, 2}, Validation: []int{3}}
	sm, err := f.FitFold(context.Background(), model.NewSubset(nil, nil), fold)
	require.NoError(t, err)

	assert.Equal(t, model.FitSingular, sm.Status)
	assert.Equal(t, "empty subset", sm.Reason)
}

func TestFitFoldUnknownCovariate(t *testing.T) {
	f := newFitter(t, regression.LeastSquares{})

	fold := model.Fold{ID: "fold-1", Train: []int{0, 1, 2}, Validation: []int{3}}
	_, err := f.FitFold(context.Background(), model.NewSubset(nil, []string{"ghost"}), fold)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrConfiguration))
}
