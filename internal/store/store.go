// Package store persists exploration runs, their leaderboards, and their
// ensembles. Two backends implement the same interface: SQLite for local
// single-user work and Postgres for shared deployments.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rover/internal/ensemble"
	"github.com/sells-group/rover/internal/model"
)

// ErrNotFound marks lookups for runs or ensembles that do not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store is the persistence interface for the exploration engine.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, dataset string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Leaderboard
	SaveEntries(ctx context.Context, runID string, entries []model.LeaderboardEntry) error
	GetLeaderboard(ctx context.Context, runID string, limit int) (*model.Leaderboard, error)

	// Ensemble
	SaveEnsemble(ctx context.Context, runID string, res *ensemble.Result) error
	GetEnsemble(ctx context.Context, runID string) (*ensemble.Result, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// entryPayload is the JSON document stored alongside an entry's scalar
// columns. The covariate names preserve the subset's canonical order so the
// entry can be reconstructed.
type entryPayload struct {
	Names       []string          `json:"names"`
	Submodels   []*model.Submodel `json:"submodels,omitempty"`
	FailReasons []string          `json:"fail_reasons,omitempty"`
}

func marshalEntry(e *model.LeaderboardEntry) ([]byte, error) {
	payload := entryPayload{
		Names:       e.Subset.Names(),
		Submodels:   e.Submodels,
		FailReasons: e.FailReasons,
	}
	data, err := json.Marshal(payload)
	return data, eris.Wrap(err, "store: marshal entry payload")
}

func unmarshalEntry(data []byte, score *float64, degraded, inSample bool) (model.LeaderboardEntry, error) {
	var payload entryPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return model.LeaderboardEntry{}, eris.Wrap(err, "store: unmarshal entry payload")
	}
	return model.LeaderboardEntry{
		Subset:      model.NewSubset(payload.Names, nil),
		Score:       score,
		Degraded:    degraded,
		InSample:    inSample,
		Submodels:   payload.Submodels,
		FailReasons: payload.FailReasons,
	}, nil
}
