package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gyeh/payrun/internal/backup"
	"github.com/gyeh/payrun/internal/claimstore"
	"github.com/gyeh/payrun/internal/db"
	"github.com/gyeh/payrun/internal/exitcode"
	"github.com/gyeh/payrun/internal/lock"
	"github.com/gyeh/payrun/internal/logging"
	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/notify"
	"github.com/gyeh/payrun/internal/run"
	"github.com/gyeh/payrun/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a payment event in dry-run or final mode",
	RunE:  runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&cfg.PaymentEventID, "payment-event-id", "", "PaymentEvent to run (required)")
	f.StringVar(&cfg.Mode, "mode", "", "Run mode: dry-run or final (required)")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "Worker count; 0 picks min(NumCPU, 8)")
	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Claim and service-line batch size")
	f.BoolVar(&cfg.Resume, "resume", false, "Skip parent claims already paid for this event")
	f.StringVar(&cfg.PCType, "pc-type", "", "PaymentCenter type: provider or dmr (default from the event)")
	f.BoolVar(&cfg.ValidateOnly, "validate-only", false, "Stop after validation")
	f.BoolVar(&cfg.NoDryRunStats, "no-dry-run-stats", false, "Do not save the stats document of a dry run")
	f.StringVar(&cfg.ClaimsURI, "claims-uri", cfg.ClaimsURI, "Claim store MongoDB URI (or set PAYRUN_CLAIMS_URI)")
	f.StringVar(&cfg.ClaimsDB, "claims-db", cfg.ClaimsDB, "Claim store database name")
	f.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the run lock; empty locks in-process")
	f.StringVar(&cfg.RedisPassword, "redis-password", cfg.RedisPassword, "Redis password")
	f.StringVar(&cfg.BackupDir, "backup-dir", cfg.BackupDir, "Directory for final-run parquet snapshots")
	f.StringVar(&cfg.BackupBucket, "backup-bucket", cfg.BackupBucket, "Bucket to upload snapshots to; empty keeps them local")
	f.StringVar(&cfg.Minio.Endpoint, "minio-endpoint", cfg.Minio.Endpoint, "Object store endpoint")
	f.StringVar(&cfg.Minio.AccessKey, "minio-access-key", cfg.Minio.AccessKey, "Object store access key")
	f.StringVar(&cfg.Minio.SecretKey, "minio-secret-key", cfg.Minio.SecretKey, "Object store secret key")
	f.BoolVar(&cfg.Minio.UseSSL, "minio-use-ssl", cfg.Minio.UseSSL, "Use TLS for the object store")
	f.StringVar(&cfg.AMQPURL, "amqp-url", cfg.AMQPURL, "Publish finalized stats to this AMQP broker")
	f.StringVar(&cfg.StatsOut, "stats-out", "", "Write the finalized stats JSON to this file")
	_ = runCmd.MarkFlagRequired("payment-event-id")
	_ = runCmd.MarkFlagRequired("mode")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	log := logging.Setup(cfg.LogFormat, cfg.LogLevel)
	ctx := context.Background()

	if cfg.ConfigFile != "" {
		if err := cfg.LoadFromFile(cfg.ConfigFile); err != nil {
			log.Error().Err(err).Msg("config file invalid")
			os.Exit(exitcode.ConfigError)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("config validation failed")
		os.Exit(exitcode.UsageError)
	}
	if cfg.ClaimsURI == "" {
		log.Error().Msg("--claims-uri or PAYRUN_CLAIMS_URI is required")
		os.Exit(exitcode.UsageError)
	}
	mode := cfg.RunMode()
	workers := cfg.ResolvedWorkers()

	pool, err := db.NewPool(ctx, cfg.DBURI, workers)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer pool.Close()
	st := store.New(pool, cfg.Retry, log)

	claimsDB, err := claimstore.Connect(ctx, cfg.ClaimsURI, cfg.ClaimsDB, cfg.BatchSize, cfg.Retry, log)
	if err != nil {
		log.Error().Err(err).Msg("claim store connection failed")
		os.Exit(exitcode.DBConnError)
	}
	defer claimsDB.Close(context.Background())

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		rl, err := lock.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.LockTTL, log)
		if err != nil {
			log.Error().Err(err).Msg("redis connection failed")
			os.Exit(exitcode.ExternalError)
		}
		defer rl.Close()
		locker = rl
	}

	var snapshots run.Snapshotter
	if mode == model.RunModeFinal {
		snapshots = newSnapshotter(ctx, log)
	}

	var publisher notify.Publisher
	if cfg.AMQPURL != "" {
		pub, err := notify.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Warn().Err(err).Msg("stats notifications disabled")
		} else {
			defer pub.Close()
			publisher = pub
		}
	}

	proc := run.NewProcessor(run.Deps{
		Config:    st.Config,
		Claims:    claimsDB,
		Centers:   st.Centers,
		Payments:  st.Payments,
		OverUnder: st.OverUnder,
		Stats:     st.Stats,
		Locker:    locker,
		Backup:    snapshots,
		Notifier:  publisher,
	}, log)

	stats, err := proc.Run(ctx, run.Options{
		PaymentEventID:    cfg.PaymentEventID,
		Mode:              mode,
		PCType:            cfg.PaymentCenterType(),
		Workers:           workers,
		BatchSize:         cfg.BatchSize,
		Resume:            cfg.Resume,
		ValidateOnly:      cfg.ValidateOnly,
		AdjustmentFactor:  cfg.AdjustmentFactor,
		BackupCollections: cfg.BackupCollections,
		NoDryRunStats:     cfg.NoDryRunStats,
	})
	if err != nil {
		var pe *run.PhaseError
		if errors.As(err, &pe) {
			log.Error().Err(pe.Err).Str("phase", pe.Phase).Msg("run failed")
		} else {
			log.Error().Err(err).Msg("run failed")
		}
		os.Exit(exitcode.FromError(err))
	}

	if cfg.StatsOut != "" {
		if err := writeStats(cfg.StatsOut, stats); err != nil {
			log.Error().Err(err).Msg("writing stats failed")
			os.Exit(exitcode.ProcessingError)
		}
	}

	if stats.Findings.Blocked {
		msgs := make([]string, 0)
		for _, f := range stats.Findings.Critical() {
			msgs = append(msgs, f.Message)
		}
		fmt.Printf("Run %s blocked by validation: %s\n", stats.RunID, strings.Join(msgs, "; "))
		return nil
	}
	fmt.Printf("Run %s complete: %d claims, %d PaymentCenters, total %.2f\n",
		stats.RunID, stats.TotalClaims, len(stats.Totals.ByPaymentCenter), stats.Totals.Overall)
	return nil
}

// newSnapshotter writes snapshots under --backup-dir and uploads them when a
// bucket is configured. An unreachable bucket leaves snapshots local.
func newSnapshotter(ctx context.Context, log zerolog.Logger) *backup.Snapshotter {
	var uploader backup.Uploader
	if cfg.BackupBucket != "" {
		up, err := backup.NewMinioUploader(ctx, backup.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.BackupBucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			log.Warn().Err(err).Str("bucket", cfg.BackupBucket).Msg("backup upload disabled")
		} else {
			uploader = up
		}
	}
	return backup.NewSnapshotter(cfg.BackupDir, uploader, log)
}

func writeStats(path string, stats *model.PaymentEventStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
