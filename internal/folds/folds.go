// Package folds builds the train/validation partitions shared by every
// candidate subset in an exploration run. Fold membership depends only on
// the row count, strategy, and seed, so identical arguments always produce
// identical folds and scores stay comparable across subsets.
package folds

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rover/internal/model"
)

// Fold strategies.
const (
	StrategyKFold = "kfold"
	StrategyFull  = "full"
)

// Plan describes how to partition the dataset rows.
type Plan struct {
	Strategy string `yaml:"strategy" mapstructure:"strategy"`
	K        int    `yaml:"k" mapstructure:"k"`
	Seed     int64  `yaml:"seed" mapstructure:"seed"`
}

// Build returns the ordered fold sequence for the plan.
func Build(rowCount int, plan Plan) ([]model.Fold, error) {
	if rowCount <= 0 {
		return nil, eris.Wrapf(model.ErrConfiguration, "folds: row count %d must be positive", rowCount)
	}

	switch plan.Strategy {
	case StrategyFull:
		return []model.Fold{FullFold(rowCount)}, nil
	case StrategyKFold:
		return kfold(rowCount, plan.K, plan.Seed)
	default:
		return nil, eris.Wrapf(model.ErrConfiguration, "folds: unknown strategy %q", plan.Strategy)
	}
}

// FullFold is the train-on-everything fold used for final coefficient fits.
func FullFold(rowCount int) model.Fold {
	train := make([]int, rowCount)
	for i := range train {
		train[i] = i
	}
	return model.Fold{ID: "full", Train: train}
}

func kfold(rowCount, k int, seed int64) ([]model.Fold, error) {
	if k < 2 {
		return nil, eris.Wrapf(model.ErrConfiguration, "folds: k must be at least 2, got %d", k)
	}
	if rowCount < k {
		return nil, eris.Wrapf(model.ErrConfiguration, "folds: %d rows cannot fill %d folds", rowCount, k)
	}

	// Seeded PCG shuffle so the partition is a pure function of the inputs.
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))
	perm := rng.Perm(rowCount)

	base := rowCount / k
	extra := rowCount % k

	out := make([]model.Fold, 0, k)
	offset := 0
	for i := 0; i < k; i++ {
		size := base
		if i < extra {
			size++
		}

		validation := append([]int(nil), perm[offset:offset+size]...)
		train := make([]int, 0, rowCount-size)
		train = append(train, perm[:offset]...)
		train = append(train, perm[offset+size:]...)
		offset += size

		sort.Ints(validation)
		sort.Ints(train)

		out = append(out, model.Fold{
			ID:         fmt.Sprintf("fold-%d", i+1),
			Train:      train,
			Validation: validation,
		})
	}
	return out, nil
}
