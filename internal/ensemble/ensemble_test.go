package ensemble

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rover/internal/dataset"
	"github.com/sells-group/rover/internal/model"
)

func ptr(v float64) *float64 { return &v }

func entry(score *float64, coefs []float64, names ...string) model.LeaderboardEntry {
	subset := model.NewSubset(nil, names)
	e := model.LeaderboardEntry{Subset: subset, Score: score}
	if coefs != nil {
		e.Submodels = []*model.Submodel{{
			Subset:       subset,
			SubsetKey:    subset.Key(),
			FoldID:       "full",
			Status:       model.FitSuccess,
			Coefficients: coefs,
		}}
	}
	return e
}

func testBoard() *model.Leaderboard {
	return model.NewLeaderboard("run-1", []model.LeaderboardEntry{
		entry(ptr(1.0), []float64{2, 3}, "x1", "x2"),
		entry(ptr(2.0), []float64{4}, "x1"),
		entry(ptr(10.0), []float64{7}, "x3"),
		entry(nil, nil, "zero"),
	})
}

func TestBuildWeightsSumToOne(t *testing.T) {
	res, err := Build(testBoard(), Options{})
	require.NoError(t, err)

	// The unscored entry is excluded.
	require.Len(t, res.Members, 3)

	sum := 0.0
	for _, m := range res.Members {
		sum += m.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-12)

	// Lower score, higher weight.
	assert.Greater(t, res.Members[0].Weight, res.Members[1].Weight)
	assert.Greater(t, res.Members[1].Weight, res.Members[2].Weight)
}

func TestBuildBlendsCoefficients(t *testing.T) {
	res, err := Build(testBoard(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"x1", "x2", "x3"}, res.Covariates)

	w0 := res.Members[0].Weight
	w1 := res.Members[1].Weight
	w2 := res.Members[2].Weight
	assert.InDelta(t, 2*w0+4*w1, res.Coefficients["x1"], 1e-12)
	assert.InDelta(t, 3*w0, res.Coefficients["x2"], 1e-12)
	assert.InDelta(t, 7*w2, res.Coefficients["x3"], 1e-12)
}

func TestBuildTopK(t *testing.T) {
	res, err := Build(testBoard(), Options{TopK: 1})
	require.NoError(t, err)

	require.Len(t, res.Members, 1)
	assert.InDelta(t, 1.0, res.Members[0].Weight, 1e-12)
	assert.InDelta(t, 2.0, res.Coefficients["x1"], 1e-12)
	assert.NotContains(t, res.Coefficients, "x3")
}

func TestBuildTopPctScore(t *testing.T) {
	// Cutoff 1.0*(1+1.5) = 2.5 keeps the first two members only.
	res, err := Build(testBoard(), Options{TopPctScore: 1.5})
	require.NoError(t, err)
	assert.Len(t, res.Members, 2)
}

func TestBuildTopPctLearner(t *testing.T) {
	// ceil(0.5 * 3) = 2 members.
	res, err := Build(testBoard(), Options{TopPctLearner: 0.5})
	require.NoError(t, err)
	assert.Len(t, res.Members, 2)
}

func TestBuildTemperatureSharpens(t *testing.T) {
	warm, err := Build(testBoard(), Options{Temperature: 10})
	require.NoError(t, err)
	cold, err := Build(testBoard(), Options{Temperature: 0.1})
	require.NoError(t, err)

	assert.Greater(t, cold.Members[0].Weight, warm.Members[0].Weight)
}

func TestBuildEmptyEnsemble(t *testing.T) {
	board := model.NewLeaderboard("run-2", []model.LeaderboardEntry{
		entry(nil, nil, "x1"),
		// Scored but the full fit failed, so there are no coefficients.
		entry(ptr(1.0), nil, "x2"),
	})

	_, err := Build(board, Options{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrEmptyEnsemble))
}

func TestPredict(t *testing.T) {
	res, err := Build(testBoard(), Options{TopK: 1})
	require.NoError(t, err)

	f := dataset.NewFrame()
	require.NoError(t, f.AddColumn("x1", []float64{1, 2}))
	require.NoError(t, f.AddColumn("x2", []float64{1, 0}))

	preds, err := res.Predict(f)
	require.NoError(t, err)
	// coefficients: x1=2, x2=3.
	assert.InDelta(t, 5.0, preds[0], 1e-12)
	assert.InDelta(t, 4.0, preds[1], 1e-12)

	empty := dataset.NewFrame()
	require.NoError(t, empty.AddColumn("x1", []float64{1}))
	_, err = res.Predict(empty)
	assert.Error(t, err)
}
