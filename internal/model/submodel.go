package model

// FitStatus classifies the outcome of fitting one subset on one fold.
type FitStatus string

const (
	// FitSuccess means the collaborator converged and returned coefficients.
	FitSuccess FitStatus = "success"
	// FitSingular means the design matrix was rank deficient.
	FitSingular FitStatus = "singular"
	// FitSolverFailed means the optimizer did not converge.
	FitSolverFailed FitStatus = "solver_failed"
	// FitTimedOut means the exploration budget expired before the unit ran.
	FitTimedOut FitStatus = "timed_out"
	// FitNotFitted is the zero state before fitting.
	FitNotFitted FitStatus = "not_fitted"
)

// Submodel is the result of fitting one covariate subset on one fold.
// It is created by the fitter and never mutated afterwards; the coefficient
// slice is owned exclusively by the Submodel.
type Submodel struct {
	Subset       Subset    `json:"-"`
	SubsetKey    string    `json:"subset_key"`
	FoldID       string    `json:"fold_id"`
	Status       FitStatus `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty"`

	// Performance is the validation-fold score (lower is better). Nil for
	// full-fit folds and for failed fits.
	Performance *float64 `json:"performance,omitempty"`

	// TrainPerformance is the in-sample score on the training rows. Only
	// full-fit folds carry it, as the fallback when no holdout folds exist.
	TrainPerformance *float64 `json:"train_performance,omitempty"`
}

// Failed reports whether the fit produced no usable coefficients.
func (s *Submodel) Failed() bool { return s.Status != FitSuccess }
