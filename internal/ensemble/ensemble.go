// Package ensemble blends the leaderboard's fitted subsets into one model.
// Scored entries with final coefficients become members, weighted by a
// softmax over their scores; per-covariate coefficients are the
// weight-averaged member coefficients, with absent covariates contributing
// zero. Unscored entries never participate.
package ensemble

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rover/internal/dataset"
	"github.com/sells-group/rover/internal/model"
)

// Options tunes member selection and weighting. Zero values disable each
// truncation knob and use the default temperature.
type Options struct {
	// Temperature controls how sharply weights concentrate on the best
	// scores. Lower is sharper; zero or negative selects 1.
	Temperature float64

	// TopPctScore drops entries scoring worse than the best score scaled by
	// (1 + TopPctScore).
	TopPctScore float64

	// TopPctLearner caps the member count at this fraction of the scored
	// entries, rounded up.
	TopPctLearner float64

	// TopK caps the member count absolutely.
	TopK int
}

// Member is one weighted subset in the ensemble.
type Member struct {
	Subset       model.Subset `json:"-"`
	SubsetKey    string       `json:"subset_key"`
	Score        float64      `json:"score"`
	Weight       float64      `json:"weight"`
	Coefficients []float64    `json:"coefficients"`
}

// Result is the blended model: members with their weights, plus one
// coefficient per covariate that ever appeared in a member.
type Result struct {
	RunID      string   `json:"run_id"`
	Covariates []string `json:"covariates"`
	Members    []Member `json:"members"`

	// Coefficients maps covariate name to its blended coefficient.
	Coefficients map[string]float64 `json:"coefficients"`
}

// Build blends the leaderboard into an ensemble. It fails with
// model.ErrEmptyEnsemble when no entry is both scored and carries final
// coefficients.
func Build(board *model.Leaderboard, opts Options) (*Result, error) {
	candidates := eligible(board)
	if len(candidates) == 0 {
		return nil, eris.Wrapf(model.ErrEmptyEnsemble, "run %s has no scored entries with final coefficients", board.RunID)
	}

	members := truncate(candidates, opts)
	weigh(members, opts.Temperature)

	res := &Result{
		RunID:        board.RunID,
		Members:      members,
		Coefficients: make(map[string]float64),
	}
	for _, m := range members {
		names := m.Subset.Names()
		for j, name := range names {
			if _, seen := res.Coefficients[name]; !seen {
				res.Covariates = append(res.Covariates, name)
			}
			res.Coefficients[name] += m.Weight * m.Coefficients[j]
		}
	}

	zap.L().Info("ensemble built",
		zap.String("run_id", board.RunID),
		zap.Int("members", len(members)),
		zap.Int("covariates", len(res.Covariates)),
	)
	return res, nil
}

// Predict evaluates the blended model on a frame. Every ensemble covariate
// must be present as a column.
func (r *Result) Predict(frame *dataset.Frame) ([]float64, error) {
	if err := frame.Require(r.Covariates...); err != nil {
		return nil, err
	}

	out := make([]float64, frame.Rows())
	for _, name := range r.Covariates {
		col, err := frame.Column(name, nil)
		if err != nil {
			return nil, err
		}
		coef := r.Coefficients[name]
		for i, v := range col {
			out[i] += coef * v
		}
	}
	return out, nil
}

// eligible returns the scored entries that have final coefficients, in
// leaderboard rank order.
func eligible(board *model.Leaderboard) []Member {
	var out []Member
	for i := range board.Entries {
		e := &board.Entries[i]
		if !e.Scored() {
			continue
		}
		final := e.Final()
		if final == nil {
			continue
		}
		out = append(out, Member{
			Subset:       e.Subset,
			SubsetKey:    e.Subset.Key(),
			Score:        *e.Score,
			Coefficients: final.Coefficients,
		})
	}
	return out
}

// truncate applies the score-percentage, learner-percentage, and absolute
// caps, in that order, to the rank-ordered candidates.
func truncate(candidates []Member, opts Options) []Member {
	members := candidates

	if opts.TopPctScore > 0 {
		best := members[0].Score
		cutoff := best * (1 + opts.TopPctScore)
		if best < 0 {
			cutoff = best * (1 - opts.TopPctScore)
		}
		n := 0
		for _, m := range members {
			if m.Score <= cutoff {
				n++
			}
		}
		members = members[:n]
	}

	if opts.TopPctLearner > 0 {
		limit := int(math.Ceil(opts.TopPctLearner * float64(len(candidates))))
		if limit < 1 {
			limit = 1
		}
		if len(members) > limit {
			members = members[:limit]
		}
	}

	if opts.TopK > 0 && len(members) > opts.TopK {
		members = members[:opts.TopK]
	}

	out := make([]Member, len(members))
	copy(out, members)
	return out
}

// weigh assigns softmax weights over the negated scores so lower scores get
// larger weights, summing to exactly 1.
func weigh(members []Member, temperature float64) {
	if temperature <= 0 {
		temperature = 1
	}

	best := members[0].Score
	total := 0.0
	for i := range members {
		w := math.Exp(-(members[i].Score - best) / temperature)
		members[i].Weight = w
		total += w
	}
	for i := range members {
		members[i].Weight /= total
	}
}
