// Package regression is the model-fitting collaborator used by the
// exploration engine. The engine depends only on the Fitter contract; the
// default implementation solves (optionally ridge-penalized) weighted least
// squares with gonum. Numerical failure is reported through typed errors,
// never a panic, so the caller can record it and move on.
package regression

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Typed fit failures. Callers match with eris.Is.
var (
	// ErrSingular means the design matrix is rank deficient: some covariate
	// columns are linearly dependent on the rest.
	ErrSingular = eris.New("regression: singular design matrix")

	// ErrNoConverge means the solver could not produce a solution.
	ErrNoConverge = eris.New("regression: solver did not converge")
)

// Diagnostics summarizes the solve.
type Diagnostics struct {
	Rank       int
	Columns    int
	ResidualSS float64
}

// Fit holds fitted coefficients, one per design column in order.
type Fit struct {
	Coefficients []float64
	Converged    bool
	Diagnostics  Diagnostics
}

// Fitter is the narrow contract the exploration engine consumes: fit a
// response against a design matrix, optionally weighted per row, and return
// coefficients or a typed failure.
type Fitter interface {
	Fit(ctx context.Context, design mat.Matrix, response, weights []float64) (*Fit, error)
}

// LeastSquares solves weighted least squares via QR, with an SVD rank check
// first so singular designs fail cleanly instead of producing garbage.
type LeastSquares struct {
	// Ridge adds an L2 penalty with this strength; zero disables it.
	Ridge float64

	// RankTolerance scales the singular-value cutoff; zero uses 1e-12.
	RankTolerance float64
}

var _ Fitter = LeastSquares{}

// Fit implements Fitter.
func (ls LeastSquares) Fit(ctx context.Context, design mat.Matrix, response, weights []float64) (*Fit, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "regression: fit cancelled")
	}

	rows, cols := design.Dims()
	if rows == 0 || cols == 0 {
		return nil, eris.Errorf("regression: empty design (%dx%d)", rows, cols)
	}
	if len(response) != rows {
		return nil, eris.Errorf("regression: response has %d rows, design has %d", len(response), rows)
	}
	if weights != nil && len(weights) != rows {
		return nil, eris.Errorf("regression: weights have %d rows, design has %d", len(weights), rows)
	}
	if rows < cols {
		return nil, eris.Wrapf(ErrSingular, "%d rows cannot identify %d coefficients", rows, cols)
	}

	x, y := scale(design, response, weights)
	if ls.Ridge > 0 {
		x, y = ridgeAugment(x, y, ls.Ridge)
	}

	if rank, ok := ls.rank(x); !ok {
		return nil, eris.Wrap(ErrNoConverge, "svd factorization failed")
	} else if rank < cols {
		return nil, eris.Wrapf(ErrSingular, "rank %d of %d columns", rank, cols)
	}

	var qr mat.QR
	qr.Factorize(x)

	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, y); err != nil {
		return nil, eris.Wrap(ErrNoConverge, err.Error())
	}

	coef := make([]float64, cols)
	for j := 0; j < cols; j++ {
		v := beta.At(j, 0)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, eris.Wrap(ErrNoConverge, "non-finite coefficient")
		}
		coef[j] = v
	}

	rss := 0.0
	preds := Predict(design, coef)
	for i, p := range preds {
		r := response[i] - p
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		rss += w * r * r
	}

	return &Fit{
		Coefficients: coef,
		Converged:    true,
		Diagnostics: Diagnostics{
			Rank:       cols,
			Columns:    cols,
			ResidualSS: rss,
		},
	}, nil
}

// Predict evaluates design × coef row by row.
func Predict(design mat.Matrix, coef []float64) []float64 {
	rows, cols := design.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols && j < len(coef); j++ {
			sum += design.At(i, j) * coef[j]
		}
		out[i] = sum
	}
	return out
}

func (ls LeastSquares) rank(x *mat.Dense) (int, bool) {
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return 0, false
	}

	values := svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return 0, true
	}

	tol := ls.RankTolerance
	if tol == 0 {
		tol = 1e-12
	}
	rows, cols := x.Dims()
	cutoff := values[0] * tol * float64(max(rows, cols))

	rank := 0
	for _, v := range values {
		if v > cutoff {
			rank++
		}
	}
	return rank, true
}

// scale applies sqrt-weight row scaling, turning weighted least squares into
// an ordinary solve. Unit weights leave the system untouched.
func scale(design mat.Matrix, response, weights []float64) (*mat.Dense, *mat.Dense) {
	rows, cols := design.Dims()
	x := mat.NewDense(rows, cols, nil)
	y := mat.NewDense(rows, 1, nil)

	for i := 0; i < rows; i++ {
		w := 1.0
		if weights != nil {
			w = math.Sqrt(math.Max(weights[i], 0))
		}
		for j := 0; j < cols; j++ {
			x.Set(i, j, design.At(i, j)*w)
		}
		y.Set(i, 0, response[i]*w)
	}
	return x, y
}

// ridgeAugment appends sqrt(lambda)·I rows, the standard augmented-system
// formulation of ridge regression.
func ridgeAugment(x, y *mat.Dense, lambda float64) (*mat.Dense, *mat.Dense) {
	rows, cols := x.Dims()
	ax := mat.NewDense(rows+cols, cols, nil)
	ay := mat.NewDense(rows+cols, 1, nil)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			ax.Set(i, j, x.At(i, j))
		}
		ay.Set(i, 0, y.At(i, 0))
	}
	s := math.Sqrt(lambda)
	for j := 0; j < cols; j++ {
		ax.Set(rows+j, j, s)
	}
	return ax, ay
}
