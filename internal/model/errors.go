package model

import "github.com/rotisserie/eris"

// Sentinel errors for the failure taxonomy. Packages wrap these with
// eris.Wrap so callers can match with eris.Is while keeping context.
var (
	// ErrConfiguration marks invalid run configuration (bad subset-size
	// bound, overlapping covariate lists, too few rows for the fold plan).
	// Raised before any fitting begins; always fatal.
	ErrConfiguration = eris.New("invalid configuration")

	// ErrEmptyEnsemble is returned when zero subsets are scorable, so no
	// ensemble can be built.
	ErrEmptyEnsemble = eris.New("no scorable subsets to ensemble")
)
