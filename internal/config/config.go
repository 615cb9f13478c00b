// Package config loads application configuration from a yaml file and the
// environment and owns global logger setup.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/rover/internal/folds"
	"github.com/sells-group/rover/internal/model"
	"github.com/sells-group/rover/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Model    ModelConfig    `yaml:"model" mapstructure:"model"`
	Folds    folds.Plan     `yaml:"folds" mapstructure:"folds"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Explore  ExploreConfig  `yaml:"explore" mapstructure:"explore"`
	Ensemble EnsembleConfig `yaml:"ensemble" mapstructure:"ensemble"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DataConfig describes the dataset and how to fetch it.
type DataConfig struct {
	Source      string `yaml:"source" mapstructure:"source"`
	Response    string `yaml:"response" mapstructure:"response"`
	Weight      string `yaml:"weight" mapstructure:"weight"`
	Charset     string `yaml:"charset" mapstructure:"charset"`
	SheetName   string `yaml:"sheet_name" mapstructure:"sheet_name"`
	SheetIndex  int    `yaml:"sheet_index" mapstructure:"sheet_index"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ModelConfig describes the covariate space and the solver.
type ModelConfig struct {
	Required      []string `yaml:"required" mapstructure:"required"`
	Optional      []string `yaml:"optional" mapstructure:"optional"`
	MaxSubsetSize int      `yaml:"max_subset_size" mapstructure:"max_subset_size"`
	Intercept     string   `yaml:"intercept" mapstructure:"intercept"`
	Ridge         float64  `yaml:"ridge" mapstructure:"ridge"`
}

// ScoringConfig selects the cross-validation metric.
type ScoringConfig struct {
	Metric string `yaml:"metric" mapstructure:"metric"`
}

// ExploreConfig tunes the subset walk.
type ExploreConfig struct {
	Strategy    string  `yaml:"strategy" mapstructure:"strategy"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	BudgetSecs  int     `yaml:"budget_secs" mapstructure:"budget_secs"`
	NumBest     int     `yaml:"num_best" mapstructure:"num_best"`
	ParentRatio float64 `yaml:"parent_ratio" mapstructure:"parent_ratio"`
}

// Budget returns the exploration wall-clock cap, zero meaning none.
func (c ExploreConfig) Budget() time.Duration {
	return time.Duration(c.BudgetSecs) * time.Second
}

// EnsembleConfig tunes member selection and weighting.
type EnsembleConfig struct {
	Temperature   float64 `yaml:"temperature" mapstructure:"temperature"`
	TopPctScore   float64 `yaml:"top_pct_score" mapstructure:"top_pct_score"`
	TopPctLearner float64 `yaml:"top_pct_learner" mapstructure:"top_pct_learner"`
	TopK          int     `yaml:"top_k" mapstructure:"top_k"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	Path        string           `yaml:"path" mapstructure:"path"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the settings an exploration run depends on, collecting
// every problem rather than stopping at the first.
func (c *Config) Validate() error {
	var problems []string

	if c.Data.Source == "" {
		problems = append(problems, "data.source is required")
	}
	if c.Data.Response == "" {
		problems = append(problems, "data.response is required")
	}
	if len(c.Model.Optional) == 0 && len(c.Model.Required) == 0 {
		problems = append(problems, "model needs at least one covariate")
	}
	switch c.Scoring.Metric {
	case "rmse", "mse", "deviance":
	default:
		problems = append(problems, "scoring.metric must be rmse, mse, or deviance")
	}
	switch c.Explore.Strategy {
	case "full", "forward", "backward":
	default:
		problems = append(problems, "explore.strategy must be full, forward, or backward")
	}
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			problems = append(problems, "store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.Wrap(model.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ROVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.response", "y")
	v.SetDefault("data.user_agent", "rover/1.0")
	v.SetDefault("data.timeout_secs", 30)
	v.SetDefault("model.max_subset_size", -1)
	v.SetDefault("folds.strategy", folds.StrategyKFold)
	v.SetDefault("folds.k", 5)
	v.SetDefault("folds.seed", 42)
	v.SetDefault("scoring.metric", "rmse")
	v.SetDefault("explore.strategy", "full")
	v.SetDefault("explore.num_best", 1)
	v.SetDefault("ensemble.temperature", 1.0)
	v.SetDefault("ensemble.top_pct_score", 0.1)
	v.SetDefault("ensemble.top_pct_learner", 1.0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "rover.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
