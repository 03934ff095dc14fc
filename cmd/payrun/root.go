package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gyeh/payrun/internal/config"
)

var cfg = config.FromEnv()

// envFlags binds flags to the environment variables that default them.
var envFlags = map[string]string{
	"db-uri":           "PAYRUN_DB_URI",
	"claims-uri":       "PAYRUN_CLAIMS_URI",
	"claims-db":        "PAYRUN_CLAIMS_DB",
	"workers":          "PAYRUN_MAX_WORKERS",
	"batch-size":       "PAYRUN_BATCH_SIZE",
	"log-format":       "PAYRUN_LOG_FORMAT",
	"log-level":        "PAYRUN_LOG_LEVEL",
	"redis-addr":       "PAYRUN_REDIS_ADDR",
	"redis-password":   "PAYRUN_REDIS_PASSWORD",
	"backup-dir":       "PAYRUN_BACKUP_DIR",
	"backup-bucket":    "PAYRUN_BACKUP_BUCKET",
	"minio-endpoint":   "PAYRUN_MINIO_ENDPOINT",
	"minio-access-key": "PAYRUN_MINIO_ACCESS_KEY",
	"minio-secret-key": "PAYRUN_MINIO_SECRET_KEY",
	"minio-use-ssl":    "PAYRUN_MINIO_USE_SSL",
	"amqp-url":         "PAYRUN_AMQP_URL",
}

var rootCmd = &cobra.Command{
	Use:               "payrun",
	Short:             "Payment event reconciliation runner",
	Long:              "Prices the claims of a payment event per PaymentCenter, applies over/under offsets and interest, and records the run's stats in Postgres.",
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvFile,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.DBURI, "db-uri", cfg.DBURI, "Postgres connection string (or set PAYRUN_DB_URI)")
	pf.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	pf.StringVar(&cfg.EnvFile, "env-file", "", "Load environment variables from this .env file first")
	pf.StringVar(&cfg.ConfigFile, "config", "", "Optional YAML config file")
}

// loadEnvFile loads --env-file and re-applies environment defaults to every
// flag the user did not set explicitly.
func loadEnvFile(cmd *cobra.Command, _ []string) error {
	if cfg.EnvFile == "" {
		return nil
	}
	if err := godotenv.Load(cfg.EnvFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	var setErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := envFlags[f.Name]
		if !ok || f.Changed || setErr != nil {
			return
		}
		if v, ok := os.LookupEnv(key); ok {
			if err := f.Value.Set(v); err != nil {
				setErr = fmt.Errorf("%s from %s: %w", f.Name, key, err)
			}
		}
	})
	return setErr
}
