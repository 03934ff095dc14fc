package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/gyeh/payrun/internal/db"
	"github.com/gyeh/payrun/internal/exitcode"
	"github.com/gyeh/payrun/internal/logging"
	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/store"
)

var statsRunID string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the stored stats of a run as JSON",
	Long: `Print the stored stats of a run as JSON.

Dry runs save their stats document too unless started with
--no-dry-run-stats, so the latest run of a PaymentEvent may be a dry run.`,
	RunE: runStats,
}

func init() {
	f := statsCmd.Flags()
	f.StringVar(&cfg.PaymentEventID, "payment-event-id", "", "Print the latest run of this PaymentEvent")
	f.StringVar(&statsRunID, "run-id", "", "Print this run")
	statsCmd.MarkFlagsOneRequired("payment-event-id", "run-id")
	statsCmd.MarkFlagsMutuallyExclusive("payment-event-id", "run-id")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat, cfg.LogLevel)
	ctx := context.Background()

	if err := cfg.ValidateDB(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}

	pool, err := db.NewPool(ctx, cfg.DBURI, 0)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()
	repo := store.New(pool, cfg.Retry, log).Stats

	var stats *model.PaymentEventStats
	if statsRunID != "" {
		stats, err = repo.Load(ctx, statsRunID)
	} else {
		stats, err = repo.Latest(ctx, cfg.PaymentEventID)
	}
	if err != nil {
		log.Error().Err(err).Msg("loading stats failed")
		os.Exit(exitcode.FromError(err))
	}

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("marshal stats failed")
		os.Exit(exitcode.ProcessingError)
	}
	fmt.Println(string(data))
	return nil
}
