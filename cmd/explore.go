package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/rover/internal/engine"
	"github.com/sells-group/rover/internal/model"
)

var (
	exploreData     string
	exploreResponse string
	exploreStrategy string
	exploreOut      string
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Run a full exploration over the configured dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if exploreData != "" {
			cfg.Data.Source = exploreData
		}
		if exploreResponse != "" {
			cfg.Data.Response = exploreResponse
		}
		if exploreStrategy != "" {
			cfg.Explore.Strategy = exploreStrategy
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		res, err := engine.New(st, cfg).Run(ctx)
		if err != nil {
			return eris.Wrap(err, "explore")
		}

		zap.L().Info("exploration complete",
			zap.String("run_id", res.Run.ID),
			zap.Int("subsets", res.Run.Summary.Subsets),
			zap.Int("members", len(res.Ensemble.Members)),
		)

		if exploreOut != "" {
			if err := writeArtifact(exploreOut, res); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Run)
	},
}

func init() {
	exploreCmd.Flags().StringVar(&exploreData, "data", "", "dataset path or URL (overrides config)")
	exploreCmd.Flags().StringVar(&exploreResponse, "response", "", "response column (overrides config)")
	exploreCmd.Flags().StringVar(&exploreStrategy, "strategy", "", "exploration strategy: full, forward, backward")
	exploreCmd.Flags().StringVar(&exploreOut, "out", "", "write the run artifact (summary, leaderboard, ensemble) to a yaml file")
	rootCmd.AddCommand(exploreCmd)
}

// artifactEntry is the export shape of one leaderboard row.
type artifactEntry struct {
	Subset      string   `yaml:"subset"`
	Score       *float64 `yaml:"score,omitempty"`
	Degraded    bool     `yaml:"degraded,omitempty"`
	InSample    bool     `yaml:"in_sample,omitempty"`
	FailReasons []string `yaml:"fail_reasons,omitempty"`
}

type artifactMember struct {
	Subset       string    `yaml:"subset"`
	Score        float64   `yaml:"score"`
	Weight       float64   `yaml:"weight"`
	Coefficients []float64 `yaml:"coefficients"`
}

type artifact struct {
	RunID       string             `yaml:"run_id"`
	Dataset     string             `yaml:"dataset"`
	Summary     *model.RunSummary  `yaml:"summary"`
	Leaderboard []artifactEntry    `yaml:"leaderboard"`
	Members     []artifactMember   `yaml:"members"`
	Blended     map[string]float64 `yaml:"blended_coefficients"`
}

func writeArtifact(path string, res *engine.Result) error {
	a := artifact{
		RunID:   res.Run.ID,
		Dataset: res.Run.Dataset,
		Summary: res.Run.Summary,
		Blended: res.Ensemble.Coefficients,
	}
	for i := range res.Leaderboard.Entries {
		e := &res.Leaderboard.Entries[i]
		a.Leaderboard = append(a.Leaderboard, artifactEntry{
			Subset:      e.Subset.String(),
			Score:       e.Score,
			Degraded:    e.Degraded,
			InSample:    e.InSample,
			FailReasons: e.FailReasons,
		})
	}
	for _, m := range res.Ensemble.Members {
		a.Members = append(a.Members, artifactMember{
			Subset:       m.SubsetKey,
			Score:        m.Score,
			Weight:       m.Weight,
			Coefficients: m.Coefficients,
		})
	}

	out, err := yaml.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "explore: marshal artifact")
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return eris.Wrap(err, "explore: write artifact")
	}
	return nil
}
