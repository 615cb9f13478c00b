package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/rover/internal/config"
	"github.com/sells-group/rover/internal/folds"
	"github.com/sells-group/rover/internal/model"
	"github.com/sells-group/rover/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "rover.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	base := &config.Config{
		Data:    config.DataConfig{Source: "data.csv", Response: "y"},
		Model:   config.ModelConfig{Optional: []string{"x1"}},
		Folds:   folds.Plan{Strategy: folds.StrategyKFold, K: 3, Seed: 1},
		Scoring: config.ScoringConfig{Metric: "rmse"},
		Explore: config.ExploreConfig{Strategy: "full"},
		Store:   config.StoreConfig{Driver: "sqlite", Path: "unused"},
		Server:  config.ServerConfig{Port: 8080},
	}

	srv := httptest.NewServer(newMux(context.Background(), st, base))
	t.Cleanup(srv.Close)
	return srv, st
}

func TestServeHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServeListRuns(t *testing.T) {
	srv, st := newTestServer(t)

	_, err := st.CreateRun(context.Background(), "data.csv")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/runs")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []model.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "data.csv", runs[0].Dataset)
}

func TestServeGetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/runs/no-such-run")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeGetLeaderboard(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "data.csv")
	require.NoError(t, err)

	score := 1.5
	entries := []model.LeaderboardEntry{
		{Subset: model.NewSubset(nil, []string{"x1"}), Score: &score},
	}
	require.NoError(t, st.SaveEntries(ctx, run.ID, entries))

	resp, err := http.Get(srv.URL + "/runs/" + run.ID + "/leaderboard")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var board struct {
		RunID   string                   `json:"run_id"`
		Entries []model.LeaderboardEntry `json:"entries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&board))
	assert.Equal(t, run.ID, board.RunID)
	require.Len(t, board.Entries, 1)
}

func TestServeGetEnsembleNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/runs/no-such-run/ensemble")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServePostRunBadBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/runs", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServePostRunAccepted(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/runs", "application/json",
		strings.NewReader(`{"source":"other.csv"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "other.csv", body["source"])
}

func TestServePostRunInvalidConfig(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "rover.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	// A base config with no covariates cannot produce a valid run no
	// matter what the request overrides.
	base := &config.Config{
		Data:    config.DataConfig{Response: "y"},
		Scoring: config.ScoringConfig{Metric: "rmse"},
		Explore: config.ExploreConfig{Strategy: "full"},
		Store:   config.StoreConfig{Driver: "sqlite", Path: "unused"},
		Server:  config.ServerConfig{Port: 8080},
	}
	srv := httptest.NewServer(newMux(context.Background(), st, base))
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/runs", "application/json",
		strings.NewReader(`{"source":"data.csv"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
