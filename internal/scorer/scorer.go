// Package scorer turns per-fold fit results into leaderboard entries. It
// owns the metric definitions and the cross-validation aggregation rule:
// the aggregate score is the mean validation score over the folds that fit
// successfully, lower always better.
package scorer

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rover/internal/model"
)

// Supported metrics.
const (
	MetricRMSE     = "rmse"
	MetricMSE      = "mse"
	MetricDeviance = "deviance"
)

// Metric scores predictions against observations, lower is better. Weights
// may be nil for unit weights.
type Metric func(observed, predicted, weights []float64) float64

// Scorer computes fold scores and aggregates them across folds.
type Scorer struct {
	name string
	fn   Metric
}

// New returns a scorer for the named metric. An empty name selects RMSE.
func New(name string) (*Scorer, error) {
	if name == "" {
		name = MetricRMSE
	}
	switch name {
	case MetricRMSE:
		return &Scorer{name: name, fn: rmse}, nil
	case MetricMSE:
		return &Scorer{name: name, fn: mse}, nil
	case MetricDeviance:
		return &Scorer{name: name, fn: deviance}, nil
	default:
		return nil, eris.Wrapf(model.ErrConfiguration, "scorer: unknown metric %q", name)
	}
}

// Name returns the metric name.
func (s *Scorer) Name() string { return s.name }

// Score applies the metric.
func (s *Scorer) Score(observed, predicted, weights []float64) float64 {
	return s.fn(observed, predicted, weights)
}

// Aggregate folds one subset's submodels into a leaderboard entry.
// holdouts is the number of validation folds the run attempted for the
// subset; an entry scored on fewer than that is marked Degraded. When the
// run has no holdout folds at all, the full fit's in-sample score is used
// and the entry is marked InSample. An entry with no usable score at all is
// Unscored: its Score stays nil and the fold failures are carried in
// FailReasons.
func (s *Scorer) Aggregate(subset model.Subset, submodels []*model.Submodel, holdouts int) model.LeaderboardEntry {
	entry := model.LeaderboardEntry{
		Subset:    subset,
		Submodels: submodels,
	}

	var scores []float64
	for _, sm := range submodels {
		if sm.Performance != nil {
			scores = append(scores, *sm.Performance)
		}
		if sm.Failed() {
			entry.FailReasons = append(entry.FailReasons, failReason(sm))
		}
	}

	switch {
	case len(scores) > 0:
		m := mean(scores)
		entry.Score = &m
		entry.Degraded = len(scores) < holdouts
	case holdouts == 0:
		for i := len(submodels) - 1; i >= 0; i-- {
			sm := submodels[i]
			if sm.Status == model.FitSuccess && sm.TrainPerformance != nil {
				v := *sm.TrainPerformance
				entry.Score = &v
				entry.InSample = true
				break
			}
		}
	}

	return entry
}

func failReason(sm *model.Submodel) string {
	if sm.Reason == "" {
		return fmt.Sprintf("%s: %s", sm.FoldID, sm.Status)
	}
	return fmt.Sprintf("%s: %s (%s)", sm.FoldID, sm.Status, sm.Reason)
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func mse(observed, predicted, weights []float64) float64 {
	num, den := 0.0, 0.0
	for i := range observed {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		r := observed[i] - predicted[i]
		num += w * r * r
		den += w
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

func rmse(observed, predicted, weights []float64) float64 {
	return math.Sqrt(mse(observed, predicted, weights))
}

// deviance is the weighted residual sum of squares, the gaussian deviance up
// to an additive constant.
func deviance(observed, predicted, weights []float64) float64 {
	sum := 0.0
	for i := range observed {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		r := observed[i] - predicted[i]
		sum += w * r * r
	}
	return sum
}
