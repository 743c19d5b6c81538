package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/tonecheck/internal/analysis"
	"github.com/MikeSquared-Agency/tonecheck/internal/batch"
	"github.com/MikeSquared-Agency/tonecheck/internal/config"
	"github.com/MikeSquared-Agency/tonecheck/internal/slack"
	"github.com/MikeSquared-Agency/tonecheck/internal/store"
)

func newBatchCmd() *cobra.Command {
	var bc batch.Config
	var tier string

	cmd := &cobra.Command{
		Use:   "batch [export-dir]",
		Short: "Analyze every .txt chat export in a directory, resuming across runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg.LogLevel, cmd.ErrOrStderr())

			if len(args) == 1 {
				bc.Dir = args[0]
			}
			bc.Tier = analysis.Tier(tier)

			llm := newLLM(cfg)
			if llm == nil && !bc.DryRun {
				return errNoAPIKey
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var opts []analysis.Option
			if cfg.DatabaseURL != "" && !bc.DryRun {
				db, err := store.New(ctx, cfg.DatabaseURL, nil)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := db.EnsureSchema(ctx); err != nil {
					return err
				}
				opts = append(opts, analysis.WithObserver(db))
			}

			r := batch.NewRunner(bc, newAnalyzer(cfg, llm, opts...), cmd.OutOrStdout(), nil)
			if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
				r.SetNotifier(slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, nil))
			}
			return r.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&tier, "tier", "t", string(analysis.TierFree), "Subscription tier applied to every export")
	cmd.Flags().StringVar(&bc.Me, "me", "", "Name of the requesting participant (detected per file when empty)")
	cmd.Flags().StringVar(&bc.Them, "them", "", "Name of the other participant (detected per file when empty)")
	cmd.Flags().StringVar(&bc.SingleFile, "file", "", "Analyze a single export instead of a directory")
	cmd.Flags().StringVarP(&bc.OutDir, "out", "o", "", "Directory for results (default: next to each export)")
	cmd.Flags().StringVar(&bc.StatePath, "state", batch.DefaultStatePath, "Progress file used to resume")
	cmd.Flags().IntVar(&bc.MinLines, "min-lines", 4, "Skip exports with fewer non-empty lines")
	cmd.Flags().IntVar(&bc.BatchSize, "batch-size", 10, "Analyses between pauses")
	cmd.Flags().DurationVar(&bc.Pause, "pause", 30*time.Second, "Pause between batches")
	cmd.Flags().BoolVar(&bc.DryRun, "dry-run", false, "List exports without calling the provider")
	return cmd
}
