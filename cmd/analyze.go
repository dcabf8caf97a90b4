package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jglaspey/supplement-cli/internal/model"
	"github.com/jglaspey/supplement-cli/internal/pipeline"
)

var (
	analyzeRoof     string
	analyzeStrategy string
	analyzeXLSX     string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <estimate.pdf>",
	Short: "Analyze a carrier estimate against an optional roof report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		strategy := analyzeStrategy
		if strategy == "" {
			strategy = cfg.Pipeline.Strategy
		}

		job, err := env.Pipeline.Run(ctx, model.JobInput{
			EstimateDoc: args[0],
			RoofDoc:     analyzeRoof,
			Strategy:    strategy,
		})
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		zap.L().Info("analysis finished",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
		)

		if job.Result != nil && job.Result.Report != "" {
			fmt.Fprintln(os.Stdout, job.Result.Report)
		}

		if analyzeXLSX != "" && job.Result != nil {
			if err := pipeline.ExportXLSX(job.Result, analyzeXLSX); err != nil {
				return eris.Wrap(err, "analyze: export")
			}
			zap.L().Info("workbook written", zap.String("path", analyzeXLSX))
		}

		if job.Status == model.JobStatusFailed {
			return eris.Errorf("job %s failed", job.ID)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeRoof, "roof", "", "roof-measurement report PDF (optional)")
	analyzeCmd.Flags().StringVar(&analyzeStrategy, "strategy", "", "extraction strategy: TEXT_ONLY, VISION_ONLY, HYBRID, FALLBACK (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeXLSX, "xlsx", "", "write the recommendation workbook to this path")
	rootCmd.AddCommand(analyzeCmd)
}
