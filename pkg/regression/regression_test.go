package regression

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFitRecoversExactCoefficients(t *testing.T) {
	// y = 2 + 3*x, no noise.
	design := mat.NewDense(4, 2, []float64{
		1, 0,
		1, 1,
		1, 2,
		1, 3,
	})
	response := []float64{2, 5, 8, 11}

	fit, err := LeastSquares{}.Fit(context.Background(), design, response, nil)
	require.NoError(t, err)
	require.True(t, fit.Converged)
	require.Len(t, fit.Coefficients, 2)

	assert.InDelta(t, 2.0, fit.Coefficients[0], 1e-9)
	assert.InDelta(t, 3.0, fit.Coefficients[1], 1e-9)
	assert.InDelta(t, 0.0, fit.Diagnostics.ResidualSS, 1e-12)
	assert.Equal(t, 2, fit.Diagnostics.Rank)
}

func TestFitWeightsFavorHeavyRows(t *testing.T) {
	// Two inconsistent observations of a constant; the weighted mean wins.
	design := mat.NewDense(2, 1, []float64{1, 1})
	response := []float64{0, 10}

	fit, err := LeastSquares{}.Fit(context.Background(), design, response, []float64{1, 3})
	require.NoError(t, err)
	assert.InDelta(t, 7.5, fit.Coefficients[0], 1e-9)
}

func TestFitSingularDesign(t *testing.T) {
	// Second column is twice the first.
	design := mat.NewDense(3, 2, []float64{
		1, 2,
		2, 4,
		3, 6,
	})

	_, err := LeastSquares{}.Fit(context.Background(), design, []float64{1, 2, 3}, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSingular))
}

func TestFitUnderdetermined(t *testing.T) {
	design := mat.NewDense(1, 2, []float64{1, 2})

	_, err := LeastSquares{}.Fit(context.Background(), design, []float64{1}, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSingular))
}

func TestFitRidgeResolvesCollinearity(t *testing.T) {
	design := mat.NewDense(3, 2, []float64{
		1, 2,
		2, 4,
		3, 6,
	})

	fit, err := LeastSquares{Ridge: 0.1}.Fit(context.Background(), design, []float64{1, 2, 3}, nil)
	require.NoError(t, err)
	assert.Len(t, fit.Coefficients, 2)
}

func TestFitDimensionMismatch(t *testing.T) {
	design := mat.NewDense(2, 1, []float64{1, 1})

	_, err := LeastSquares{}.Fit(context.Background(), design, []float64{1, 2, 3}, nil)
	assert.Error(t, err)

	_, err = LeastSquares{}.Fit(context.Background(), design, []float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestFitCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	design := mat.NewDense(2, 1, []float64{1, 1})
	_, err := LeastSquares{}.Fit(ctx, design, []float64{1, 2}, nil)
	assert.Error(t, err)
}

func TestPredict(t *testing.T) {
	design := mat.NewDense(2, 2, []float64{
		1, 2,
		1, 5,
	})

	preds := Predict(design, []float64{1, 0.5})
	assert.Equal(t, []float64{2, 3.5}, preds)
}
