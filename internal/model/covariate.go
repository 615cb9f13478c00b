package model

import (
	"sort"
	"strings"
)

// Covariate names one explanatory variable in a candidate model.
// Required covariates appear in every subset; optional ones are explored.
type Covariate struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// Subset is an ordered, duplicate-free set of covariate names: the required
// covariates followed by the chosen optional ones, both in their input order.
// A Subset is immutable once created; two subsets are equal iff their name
// sets are equal, regardless of generation order.
type Subset struct {
	names []string
	key   string
}

// NewSubset builds a subset from the required covariates plus the chosen
// optional ones. The caller guarantees the two lists are disjoint.
func NewSubset(required, chosen []string) Subset {
	names := make([]string, 0, len(required)+len(chosen))
	names = append(names, required...)
	names = append(names, chosen...)

	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	return Subset{
		names: names,
		key:   strings.Join(sorted, ","),
	}
}

// Names returns a copy of the covariate names in canonical order.
func (s Subset) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of covariates in the subset.
func (s Subset) Len() int { return len(s.names) }

// Key returns an order-independent identity for the subset, usable as a map
// key and as the stored identifier for leaderboard entries.
func (s Subset) Key() string { return s.key }

// Equal reports whether two subsets contain the same covariates.
func (s Subset) Equal(other Subset) bool { return s.key == other.key }

// Contains reports whether the subset includes the named covariate.
func (s Subset) Contains(name string) bool {
	for _, n := range s.names {
		if n == name {
			return true
		}
	}
	return false
}

// String renders the subset as {a,b,c} for logs and error messages.
func (s Subset) String() string {
	return "{" + strings.Join(s.names, ",") + "}"
}
