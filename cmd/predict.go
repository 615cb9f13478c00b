package main

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rover/internal/dataset"
)

var predictData string

var predictCmd = &cobra.Command{
	Use:   "predict <run-id>",
	Short: "Evaluate a run's ensemble on a dataset",
	Long:  "Loads the blended ensemble of a completed run and writes one prediction per dataset row to stdout as CSV.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		res, err := st.GetEnsemble(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "predict")
		}

		source := predictData
		if source == "" {
			source = cfg.Data.Source
		}

		frame, err := dataset.Load(ctx, source,
			dataset.FetchOptions{
				UserAgent: cfg.Data.UserAgent,
				Timeout:   time.Duration(cfg.Data.TimeoutSecs) * time.Second,
			},
			dataset.ReadOptions{
				Charset:    cfg.Data.Charset,
				SheetIndex: cfg.Data.SheetIndex,
				SheetName:  cfg.Data.SheetName,
			},
		)
		if err != nil {
			return err
		}
		if cfg.Model.Intercept != "" {
			if err := frame.EnsureIntercept(cfg.Model.Intercept); err != nil {
				return err
			}
		}

		preds, err := res.Predict(frame)
		if err != nil {
			return eris.Wrap(err, "predict")
		}

		zap.L().Info("predictions computed",
			zap.String("run_id", args[0]),
			zap.Int("rows", len(preds)),
		)

		w := csv.NewWriter(os.Stdout)
		if err := w.Write([]string{"prediction"}); err != nil {
			return eris.Wrap(err, "predict: write header")
		}
		for _, p := range preds {
			if err := w.Write([]string{strconv.FormatFloat(p, 'g', -1, 64)}); err != nil {
				return eris.Wrap(err, "predict: write row")
			}
		}
		w.Flush()
		return eris.Wrap(w.Error(), "predict: flush output")
	},
}

func init() {
	predictCmd.Flags().StringVar(&predictData, "data", "", "dataset to predict on (defaults to the configured source)")
	rootCmd.AddCommand(predictCmd)
}
