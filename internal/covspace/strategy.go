package covspace

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rover/internal/model"
)

// Strategy selects how the walker moves through the covariate space.
type Strategy string

const (
	// StrategyFull visits the entire space in one layer.
	StrategyFull Strategy = "full"
	// StrategyForward starts from the required-only subset and grows
	// frontiers by adding one optional covariate at a time.
	StrategyForward Strategy = "forward"
	// StrategyBackward starts from the all-covariate subset and shrinks
	// frontiers by removing one optional covariate at a time.
	StrategyBackward Strategy = "backward"
)

// ParseStrategy validates a strategy name from configuration.
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(name) {
	case StrategyFull, StrategyForward, StrategyBackward:
		return Strategy(name), nil
	default:
		return "", eris.Wrapf(model.ErrConfiguration, "covspace: unknown strategy %q", name)
	}
}

// LayerOptions tunes frontier filtering between layers.
type LayerOptions struct {
	// NumBest keeps only the best-scoring subsets of the current layer
	// before expanding. Zero keeps a single best subset.
	NumBest int

	// ParentRatio drops a subset whose score failed to beat its best
	// upstream score scaled by this ratio (scores are lower-is-better, so
	// ratio 1.0 requires strict improvement over the best parent).
	// Zero disables the check.
	ParentRatio float64
}

// ScoredSubset feeds a layer's outcomes back into the walker.
type ScoredSubset struct {
	Subset model.Subset
	Score  *float64
}

// Walker produces layered frontiers of subsets according to a strategy,
// never revisiting a subset. The caller fits and scores each layer, then
// feeds the scores back to obtain the next one.
type Walker struct {
	strategy Strategy
	space    *Space

	visited map[string]bool
	scores  map[string]float64
	chosen  map[string][]string
}

// NewWalker builds a walker over the given space.
func NewWalker(strategy Strategy, space *Space) (*Walker, error) {
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}
	return &Walker{
		strategy: strategy,
		space:    space,
		visited:  make(map[string]bool),
		scores:   make(map[string]float64),
		chosen:   make(map[string][]string),
	}, nil
}

// First returns the initial frontier.
func (w *Walker) First() []model.Subset {
	switch w.strategy {
	case StrategyForward:
		return w.mark([][]string{nil})
	case StrategyBackward:
		if w.space.MaxSize() < len(w.space.Optional()) {
			// A size cap shrinks the starting frontier to every subset of
			// the largest allowed size.
			return w.mark(w.largestChosen())
		}
		return w.mark([][]string{w.space.Optional()})
	default: // StrategyFull
		w.space.Reset()
		subs := w.space.All()
		for _, sub := range subs {
			w.visited[sub.Key()] = true
		}
		for _, sub := range subs {
			w.chosen[sub.Key()] = chosenOf(sub, w.space)
		}
		return subs
	}
}

// Next filters the scored current layer and expands the survivors into the
// next frontier. It returns nil when the walk is finished.
func (w *Walker) Next(current []ScoredSubset, opts LayerOptions) []model.Subset {
	if w.strategy == StrategyFull {
		return nil
	}

	for _, cs := range current {
		if cs.Score != nil {
			w.scores[cs.Subset.Key()] = *cs.Score
		}
	}

	survivors := w.filter(current, opts)

	seen := make(map[string]bool)
	var next [][]string
	for _, sub := range survivors {
		for _, expansion := range w.expand(sub) {
			key := model.NewSubset(w.space.Required(), expansion).Key()
			if w.visited[key] || seen[key] {
				continue
			}
			seen[key] = true
			next = append(next, expansion)
		}
	}
	return w.mark(next)
}

// filter keeps the NumBest best-scoring subsets of the layer, then applies
// the parent-ratio check against previously seen upstream scores.
func (w *Walker) filter(current []ScoredSubset, opts LayerOptions) []model.Subset {
	numBest := opts.NumBest
	if numBest <= 0 {
		numBest = 1
	}

	scored := make([]ScoredSubset, 0, len(current))
	for _, cs := range current {
		if cs.Score != nil {
			scored = append(scored, cs)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return *scored[i].Score < *scored[j].Score })
	if len(scored) > numBest {
		scored = scored[:numBest]
	}

	out := make([]model.Subset, 0, len(scored))
	for _, cs := range scored {
		if opts.ParentRatio > 0 {
			if parent, ok := w.bestUpstream(cs.Subset); ok && *cs.Score > parent*opts.ParentRatio {
				continue
			}
		}
		out = append(out, cs.Subset)
	}
	return out
}

// bestUpstream returns the best (lowest) score among the subset's upstream
// neighbors: one covariate fewer for forward walks, one more for backward.
func (w *Walker) bestUpstream(sub model.Subset) (float64, bool) {
	chosen := w.chosen[sub.Key()]
	var upstream [][]string
	if w.strategy == StrategyForward {
		upstream = removals(chosen)
	} else {
		upstream = additions(chosen, w.space.Optional())
	}

	best, found := 0.0, false
	for _, u := range upstream {
		key := model.NewSubset(w.space.Required(), u).Key()
		if s, ok := w.scores[key]; ok && (!found || s < best) {
			best, found = s, true
		}
	}
	return best, found
}

func (w *Walker) expand(sub model.Subset) [][]string {
	chosen := w.chosen[sub.Key()]
	if w.strategy == StrategyForward {
		return additions(chosen, w.space.Optional())
	}
	return removals(chosen)
}

func (w *Walker) mark(layers [][]string) []model.Subset {
	out := make([]model.Subset, 0, len(layers))
	for _, chosen := range layers {
		if len(chosen) > w.space.MaxSize() {
			continue
		}
		sub := model.NewSubset(w.space.Required(), chosen)
		if w.visited[sub.Key()] {
			continue
		}
		w.visited[sub.Key()] = true
		w.chosen[sub.Key()] = chosen
		out = append(out, sub)
	}
	return out
}

// largestChosen enumerates every chosen-set of exactly the space's size cap.
func (w *Walker) largestChosen() [][]string {
	w.space.Reset()
	var out [][]string
	for sub, ok := w.space.Next(); ok; sub, ok = w.space.Next() {
		chosen := chosenOf(sub, w.space)
		if len(chosen) == w.space.MaxSize() {
			out = append(out, chosen)
		}
	}
	w.space.Reset()
	return out
}

// additions returns every chosen-set formed by adding one unused optional
// covariate, preserving the optional input order.
func additions(chosen, optional []string) [][]string {
	in := make(map[string]bool, len(chosen))
	for _, c := range chosen {
		in[c] = true
	}
	var out [][]string
	for _, opt := range optional {
		if in[opt] {
			continue
		}
		next := make([]string, 0, len(chosen)+1)
		for _, o := range optional {
			if in[o] || o == opt {
				next = append(next, o)
			}
		}
		out = append(out, next)
	}
	return out
}

// removals returns every chosen-set formed by dropping one covariate.
func removals(chosen []string) [][]string {
	var out [][]string
	for i := range chosen {
		next := make([]string, 0, len(chosen)-1)
		next = append(next, chosen[:i]...)
		next = append(next, chosen[i+1:]...)
		out = append(out, next)
	}
	return out
}

func chosenOf(sub model.Subset, space *Space) []string {
	req := make(map[string]bool)
	for _, r := range space.Required() {
		req[r] = true
	}
	var chosen []string
	for _, n := range sub.Names() {
		if !req[n] {
			chosen = append(chosen, n)
		}
	}
	return chosen
}
