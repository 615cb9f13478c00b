package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/rover/internal/folds"
	"github.com/sells-group/rover/internal/model"
)

func chTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "y", cfg.Data.Response)
	assert.Equal(t, 30, cfg.Data.TimeoutSecs)
	assert.Equal(t, -1, cfg.Model.MaxSubsetSize)
	assert.Equal(t, folds.StrategyKFold, cfg.Folds.Strategy)
	assert.Equal(t, 5, cfg.Folds.K)
	assert.Equal(t, int64(42), cfg.Folds.Seed)
	assert.Equal(t, "rmse", cfg.Scoring.Metric)
	assert.Equal(t, "full", cfg.Explore.Strategy)
	assert.Equal(t, 1, cfg.Explore.NumBest)
	assert.InDelta(t, 1.0, cfg.Ensemble.Temperature, 0.001)
	assert.InDelta(t, 0.1, cfg.Ensemble.TopPctScore, 0.001)
	assert.InDelta(t, 1.0, cfg.Ensemble.TopPctLearner, 0.001)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "rover.db", cfg.Store.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
data:
  source: data.csv
  response: price
model:
  required: [intercept]
  optional: [sqft, beds, baths]
folds:
  k: 3
explore:
  strategy: forward
  num_best: 4
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data.csv", cfg.Data.Source)
	assert.Equal(t, "price", cfg.Data.Response)
	assert.Equal(t, []string{"intercept"}, cfg.Model.Required)
	assert.Equal(t, []string{"sqft", "beds", "baths"}, cfg.Model.Optional)
	assert.Equal(t, 3, cfg.Folds.K)
	assert.Equal(t, "forward", cfg.Explore.Strategy)
	assert.Equal(t, 4, cfg.Explore.NumBest)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, "rmse", cfg.Scoring.Metric)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chTempDir(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ROVER_STORE_DRIVER", "postgres")
	t.Setenv("ROVER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("ROVER_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func validConfig() *Config {
	return &Config{
		Data:    DataConfig{Source: "data.csv", Response: "y"},
		Model:   ModelConfig{Optional: []string{"x1"}},
		Scoring: ScoringConfig{Metric: "rmse"},
		Explore: ExploreConfig{Strategy: "full"},
		Store:   StoreConfig{Driver: "sqlite", Path: "rover.db"},
		Server:  ServerConfig{Port: 8080},
	}
}

func TestValidateOK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Data.Source = ""
	cfg.Scoring.Metric = "r2"
	cfg.Explore.Strategy = "sideways"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrConfiguration))
	assert.Contains(t, err.Error(), "data.source is required")
	assert.Contains(t, err.Error(), "scoring.metric")
	assert.Contains(t, err.Error(), "explore.strategy")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store = StoreConfig{Driver: "postgres"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store = StoreConfig{Driver: "mysql"}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
