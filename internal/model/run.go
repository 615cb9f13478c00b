package model

import "time"

// RunStatus tracks an exploration run through its lifecycle.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusExploring  RunStatus = "exploring"
	RunStatusEnsembling RunStatus = "ensembling"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// Run is one stored exploration: configuration snapshot, lifecycle status,
// and (once complete) the leaderboard summary.
type Run struct {
	ID        string      `json:"id"`
	Dataset   string      `json:"dataset"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary captures the headline numbers of a finished exploration.
type RunSummary struct {
	Subsets    int      `json:"subsets"`
	Scored     int      `json:"scored"`
	Unscored   int      `json:"unscored"`
	Degraded   int      `json:"degraded"`
	BestSubset string   `json:"best_subset,omitempty"`
	BestScore  *float64 `json:"best_score,omitempty"`
	DurationMs int64    `json:"duration_ms"`
}

// Summarize builds a RunSummary from a finished leaderboard.
func Summarize(board *Leaderboard, duration time.Duration) *RunSummary {
	s := &RunSummary{
		Subsets:    len(board.Entries),
		DurationMs: duration.Milliseconds(),
	}
	for i := range board.Entries {
		e := &board.Entries[i]
		if e.Scored() {
			s.Scored++
		} else {
			s.Unscored++
		}
		if e.Degraded {
			s.Degraded++
		}
	}
	if best := board.Best(); best != nil {
		s.BestSubset = best.Subset.String()
		score := *best.Score
		s.BestScore = &score
	}
	return s
}
