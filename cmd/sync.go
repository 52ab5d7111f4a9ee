package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/dashsync"
	"github.com/klimadashboard/klimasync/internal/dashsync/dataset"
	"github.com/klimadashboard/klimasync/internal/fetcher"
	"github.com/klimadashboard/klimasync/pkg/slack"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync datasets into Directus",
	Long: `Sync external climate and energy datasets into the Directus backend.

By default, syncs all datasets whose schedule says they are due.
Use --datasets to restrict to specific datasets.
Use --force to ignore the schedule and sync regardless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "sync"))

		pool, err := syncPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Ensure migrations are current.
		if err := dashsync.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "sync: migrate")
		}

		opts := parseSyncOpts(cmd)

		tempDir := cfg.Sync.TempDir
		if err := os.MkdirAll(tempDir, 0o755); err != nil {
			return eris.Wrapf(err, "sync: create temp dir %s", tempDir)
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:    cfg.Sync.UserAgent,
			MaxRetries:   3,
			RateLimiters: fetcher.DefaultRateLimiters(),
		})

		dc, err := directusClient()
		if err != nil {
			return err
		}

		deps := dataset.Deps{
			Fetcher:  f,
			Directus: dc,
			Config:   cfg,
			TempDir:  tempDir,
		}
		engine := dataset.NewEngine(deps,
			dashsync.NewSyncLog(pool),
			dataset.NewRegistry(),
			slack.NewNotifier(cfg.Slack.WebhookURL),
		)

		log.Info("starting sync",
			zap.Strings("datasets", opts.Datasets),
			zap.Bool("force", opts.Force),
		)

		if err := engine.Run(ctx, opts); err != nil {
			return eris.Wrap(err, "sync")
		}

		fmt.Println("Sync complete")
		return nil
	},
}

func init() {
	syncCmd.Flags().String("datasets", "", "comma-separated dataset names (e.g., dwd,gasusage)")
	syncCmd.Flags().Bool("force", false, "ignore the dataset schedule")
	rootCmd.AddCommand(syncCmd)
}

// parseSyncOpts extracts dataset.RunOpts from the cobra command flags.
func parseSyncOpts(cmd *cobra.Command) dataset.RunOpts {
	datasetsStr, _ := cmd.Flags().GetString("datasets")
	force, _ := cmd.Flags().GetBool("force")

	opts := dataset.RunOpts{Force: force}
	if datasetsStr != "" {
		opts.Datasets = strings.Split(datasetsStr, ",")
		for i := range opts.Datasets {
			opts.Datasets[i] = strings.TrimSpace(opts.Datasets[i])
		}
	}
	return opts
}
