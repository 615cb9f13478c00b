package model

import "sort"

// LeaderboardEntry aggregates one subset's outcome across all folds.
type LeaderboardEntry struct {
	Subset Subset `json:"-"`

	// Score is the aggregate validation score (lower is better).
	// Nil means Unscored: every fold failed for this subset.
	Score *float64 `json:"score,omitempty"`

	// Degraded marks entries whose score was computed from a strict subset
	// of the folds because some folds failed.
	Degraded bool `json:"degraded,omitempty"`

	// InSample marks scores computed without holdout folds (full-fit only).
	InSample bool `json:"in_sample,omitempty"`

	// Submodels holds the per-fold fits that produced this entry, with the
	// full-fit submodel (if any) last.
	Submodels []*Submodel `json:"submodels,omitempty"`

	// FailReasons surfaces why folds failed, so an unevaluable subset is
	// distinguishable from a merely bad one.
	FailReasons []string `json:"fail_reasons,omitempty"`
}

// Scored reports whether at least one fold produced a usable score.
func (e *LeaderboardEntry) Scored() bool { return e.Score != nil }

// Final returns the successful full-fit submodel, or nil if the full fit
// failed or was never run.
func (e *LeaderboardEntry) Final() *Submodel {
	for i := len(e.Submodels) - 1; i >= 0; i-- {
		sm := e.Submodels[i]
		if sm.Status == FitSuccess && sm.Performance == nil {
			return sm
		}
	}
	return nil
}

// Leaderboard is the ranked collection of every explored subset, best first.
// It is built once by the explorer's merge step and immutable afterwards.
type Leaderboard struct {
	RunID   string             `json:"run_id"`
	Entries []LeaderboardEntry `json:"entries"`

	byKey map[string]int
}

// NewLeaderboard sorts the entries into rank order and indexes them by
// subset key. Unscored entries rank last; ties break by subset size then by
// the canonical covariate-name ordering, so the order is total and
// reproducible.
func NewLeaderboard(runID string, entries []LeaderboardEntry) *Leaderboard {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := &entries[i], &entries[j]
		switch {
		case a.Scored() != b.Scored():
			return a.Scored()
		case a.Scored() && *a.Score != *b.Score:
			return *a.Score < *b.Score
		case a.Subset.Len() != b.Subset.Len():
			return a.Subset.Len() < b.Subset.Len()
		default:
			return a.Subset.Key() < b.Subset.Key()
		}
	})

	byKey := make(map[string]int, len(entries))
	for i := range entries {
		byKey[entries[i].Subset.Key()] = i
	}

	return &Leaderboard{RunID: runID, Entries: entries, byKey: byKey}
}

// Entry returns the entry for the given subset key, or nil if absent.
func (b *Leaderboard) Entry(key string) *LeaderboardEntry {
	i, ok := b.byKey[key]
	if !ok {
		return nil
	}
	return &b.Entries[i]
}

// Best returns the top-ranked scored entry, or nil when nothing scored.
func (b *Leaderboard) Best() *LeaderboardEntry {
	if len(b.Entries) == 0 || !b.Entries[0].Scored() {
		return nil
	}
	return &b.Entries[0]
}

// ScoredCount returns how many entries carry a usable score.
func (b *Leaderboard) ScoredCount() int {
	n := 0
	for i := range b.Entries {
		if b.Entries[i].Scored() {
			n++
		}
	}
	return n
}
