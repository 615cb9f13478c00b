package folds

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rover/internal/model"
)

func TestBuildRejectsBadConfiguration(t *testing.T) {
	_, err := Build(0, Plan{Strategy: StrategyFull})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrConfiguration))

	_, err = Build(10, Plan{Strategy: StrategyKFold, K: 1})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrConfiguration))

	_, err = Build(2, Plan{Strategy: StrategyKFold, K: 3})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrConfiguration))

	_, err = Build(10, Plan{Strategy: "loocv"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrConfiguration))
}

func TestFullFold(t *testing.T) {
	fs, err := Build(5, Plan{Strategy: StrategyFull})
	require.NoError(t, err)
	require.Len(t, fs, 1)

	assert.Equal(t, "full", fs[0].ID)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, fs[0].Train)
	assert.Empty(t, fs[0].Validation)
	assert.True(t, fs[0].IsFull())
}

func TestKFoldPartitionsNineRowsIntoThrees(t *testing.T) {
	fs, err := Build(9, Plan{Strategy: StrategyKFold, K: 3, Seed: 42})
	require.NoError(t, err)
	require.Len(t, fs, 3)

	covered := make(map[int]int)
	for _, f := range fs {
		assert.Len(t, f.Validation, 3)
		assert.Len(t, f.Train, 6)
		for _, row := range f.Validation {
			covered[row]++
		}

		// Train and validation are disjoint within a fold.
		inVal := make(map[int]bool)
		for _, row := range f.Validation {
			inVal[row] = true
		}
		for _, row := range f.Train {
			assert.False(t, inVal[row], "row %d in both train and validation of %s", row, f.ID)
		}
	}

	// Validation sets cover all rows exactly once.
	require.Len(t, covered, 9)
	for row, n := range covered {
		assert.Equal(t, 1, n, "row %d validated %d times", row, n)
	}
}

func TestKFoldDeterministic(t *testing.T) {
	plan := Plan{Strategy: StrategyKFold, K: 4, Seed: 7}

	a, err := Build(22, plan)
	require.NoError(t, err)
	b, err := Build(22, plan)
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Validation, b[i].Validation)
		assert.Equal(t, a[i].Train, b[i].Train)
	}
}

func TestKFoldSeedChangesPartition(t *testing.T) {
	a, err := Build(30, Plan{Strategy: StrategyKFold, K: 3, Seed: 1})
	require.NoError(t, err)
	b, err := Build(30, Plan{Strategy: StrategyKFold, K: 3, Seed: 2})
	require.NoError(t, err)

	different := false
	for i := range a {
		if !assert.ObjectsAreEqual(a[i].Validation, b[i].Validation) {
			different = true
		}
	}
	assert.True(t, different, "different seeds should shuffle differently")
}

func TestKFoldUnevenRows(t *testing.T) {
	fs, err := Build(10, Plan{Strategy: StrategyKFold, K: 3, Seed: 3})
	require.NoError(t, err)
	require.Len(t, fs, 3)

	// 10 rows over 3 folds: sizes 4, 3, 3.
	assert.Len(t, fs[0].Validation, 4)
	assert.Len(t, fs[1].Validation, 3)
	assert.Len(t, fs[2].Validation, 3)
}
