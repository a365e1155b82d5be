package cli

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"placement-quiz-service/internal/config"
)

// NewSweepCmd closes stale attempts once and exits.
func NewSweepCmd(configPath *string) *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Close in-progress attempts past their time limit as timed_out",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("grace") {
				grace = config.TTLDuration(cfg.Sweeper.Grace, 2*time.Minute)
			}
			rt, err := buildRuntime(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			closed, err := rt.attemptService.SweepStale(cmd.Context(), grace)
			if err != nil {
				return err
			}
			logger.Info("sweep finished", slog.Int("closed", closed), slog.Duration("grace", grace))
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 2*time.Minute, "extra time allowed past the quiz time limit")
	return cmd
}
