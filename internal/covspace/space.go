// Package covspace enumerates the covariate-subset search space: every
// combination of the optional covariates, unioned with the required ones,
// subject to a size bound. Enumeration is lazy, deterministic, and
// restartable, ordered by subset size ascending and then lexicographically
// by the input order of the optional covariates.
package covspace

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/rover/internal/model"
)

// Unbounded lifts the subset-size cap: all combination sizes are generated.
const Unbounded = -1

// Space is a lazy, restartable generator over covariate subsets.
type Space struct {
	required []string
	optional []string
	maxSize  int

	size int
	comb []int
	done bool
}

// New validates the covariate lists and size bound and returns a fresh
// generator positioned before the first subset.
func New(required, optional []string, maxSize int) (*Space, error) {
	seen := make(map[string]bool, len(required)+len(optional))
	for _, n := range required {
		if seen[n] {
			return nil, eris.Wrapf(model.ErrConfiguration, "covspace: duplicate covariate %q", n)
		}
		seen[n] = true
	}
	for _, n := range optional {
		if seen[n] {
			return nil, eris.Wrapf(model.ErrConfiguration, "covspace: covariate %q is both required and optional", n)
		}
		seen[n] = true
	}

	if maxSize == Unbounded {
		maxSize = len(optional)
	}
	if maxSize < 0 {
		return nil, eris.Wrapf(model.ErrConfiguration, "covspace: max subset size %d is negative", maxSize)
	}
	if maxSize > len(optional) {
		return nil, eris.Wrapf(model.ErrConfiguration,
			"covspace: max subset size %d exceeds %d optional covariates", maxSize, len(optional))
	}

	s := &Space{
		required: append([]string(nil), required...),
		optional: append([]string(nil), optional...),
		maxSize:  maxSize,
	}
	s.Reset()
	return s, nil
}

// Reset rewinds the generator; a reset Space yields the identical sequence.
func (s *Space) Reset() {
	s.size = 0
	s.comb = nil
	s.done = false
}

// Next returns the next subset in canonical order. The second return is
// false once the space is exhausted.
func (s *Space) Next() (model.Subset, bool) {
	if s.done {
		return model.Subset{}, false
	}

	if s.comb == nil {
		// First combination of the current size: indices 0..size-1.
		s.comb = make([]int, s.size)
		for i := range s.comb {
			s.comb[i] = i
		}
		return s.subsetAt(s.comb), true
	}

	if nextCombination(s.comb, len(s.optional)) {
		return s.subsetAt(s.comb), true
	}

	// Current size exhausted; move to the next.
	s.size++
	if s.size > s.maxSize {
		s.done = true
		return model.Subset{}, false
	}
	s.comb = make([]int, s.size)
	for i := range s.comb {
		s.comb[i] = i
	}
	return s.subsetAt(s.comb), true
}

// All drains the generator from its current position into a slice.
func (s *Space) All() []model.Subset {
	var out []model.Subset
	for sub, ok := s.Next(); ok; sub, ok = s.Next() {
		out = append(out, sub)
	}
	return out
}

// Count returns the total number of subsets the space generates:
// sum over k=0..maxSize of C(len(optional), k).
func (s *Space) Count() int64 {
	total := int64(0)
	for k := 0; k <= s.maxSize; k++ {
		total += binomial(len(s.optional), k)
	}
	return total
}

// Required returns the covariates present in every subset.
func (s *Space) Required() []string {
	return append([]string(nil), s.required...)
}

// Optional returns the explorable covariates in input order.
func (s *Space) Optional() []string {
	return append([]string(nil), s.optional...)
}

// MaxSize returns the effective size bound after Unbounded resolution.
func (s *Space) MaxSize() int { return s.maxSize }

func (s *Space) subsetAt(comb []int) model.Subset {
	chosen := make([]string, len(comb))
	for i, idx := range comb {
		chosen[i] = s.optional[idx]
	}
	return model.NewSubset(s.required, chosen)
}

// nextCombination advances comb to the next k-combination of 0..n-1 in
// lexicographic order, returning false when exhausted.
func nextCombination(comb []int, n int) bool {
	k := len(comb)
	if k == 0 {
		return false
	}
	i := k - 1
	for i >= 0 && comb[i] == n-k+i {
		i--
	}
	if i < 0 {
		return false
	}
	comb[i]++
	for j := i + 1; j < k; j++ {
		comb[j] = comb[j-1] + 1
	}
	return true
}

func binomial(n, k int) int64 {
	if k < 0 || k > n {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	result := int64(1)
	for i := 1; i <= k; i++ {
		result = result * int64(n-k+i) / int64(i)
	}
	return result
}
