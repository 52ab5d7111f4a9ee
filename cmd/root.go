package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/klimadashboard/klimasync/internal/config"
	"github.com/klimadashboard/klimasync/internal/db"
	"github.com/klimadashboard/klimasync/internal/directus"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "klimasync",
	Short: "Klimadashboard data pipeline",
	Long:  "Pulls open climate and energy datasets into the Directus backend, imports approved Slack news posts, fills missing content translations.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// syncPool creates a pgxpool.Pool for the sync log database.
func syncPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Sync.DatabaseURL == "" {
		return nil, eris.New("sync: no database_url configured (set sync.database_url)")
	}

	pool, err := db.Connect(ctx, cfg.Sync.DatabaseURL)
	if err != nil {
		return nil, err
	}

	fmt.Println("Connected to database")
	return pool, nil
}

// directusClient builds the Items API client from the configuration.
func directusClient() (directus.Client, error) {
	if cfg.Directus.BaseURL == "" || cfg.Directus.Token == "" {
		return nil, eris.New("directus: base_url and token must be configured")
	}

	var opts []directus.Option
	if cfg.Directus.WriteRate > 0 {
		burst := int(cfg.Directus.WriteRate)
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, directus.WithWriteLimiter(rate.NewLimiter(rate.Limit(cfg.Directus.WriteRate), burst)))
	}

	return directus.NewClient(cfg.Directus.BaseURL, cfg.Directus.Token, opts...), nil
}
