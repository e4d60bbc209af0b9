package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paddock-labs/raceday-cli/internal/config"
	"github.com/paddock-labs/raceday-cli/internal/model"
)

var (
	analyzeTrack     string
	analyzeDate      string
	analyzeMaxHorses int
	analyzeBreaker   int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a full analysis session for one track and date",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initCoordinator(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Coordinator.Run(ctx, config.RunConfig{
			Track:            analyzeTrack,
			Date:             analyzeDate,
			Model:            cfg.Anthropic.Model,
			MaxHorses:        analyzeMaxHorses,
			BreakerThreshold: analyzeBreaker,
		})
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		if sess.Status == model.StatusFailed {
			zap.L().Error("analysis failed",
				zap.String("session", sess.ID),
				zap.String("detail", sess.ErrorDetail))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sess)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeTrack, "track", "", "track code, e.g. DMR (required)")
	analyzeCmd.Flags().StringVar(&analyzeDate, "date", "", "race date, MM/DD/YYYY or YYYY-MM-DD (required)")
	analyzeCmd.Flags().IntVar(&analyzeMaxHorses, "max-horses", 0, "cap on horses scraped, 0 = unlimited")
	analyzeCmd.Flags().IntVar(&analyzeBreaker, "breaker-threshold", 0, "challenge failures before skipping remaining figure pages, 0 = config default")
	_ = analyzeCmd.MarkFlagRequired("track")
	_ = analyzeCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(analyzeCmd)
}
