package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gyeh/payrun/internal/backup"
	"github.com/gyeh/payrun/internal/logging"
	"github.com/gyeh/payrun/internal/model"
	"github.com/gyeh/payrun/internal/parallel"
	"github.com/gyeh/payrun/internal/payerr"
)

// DefaultBatchSize is the claim and service-line batch size.
const DefaultBatchSize = 1000

// DefaultLockTTL bounds how long a crashed run keeps its event locked.
const DefaultLockTTL = 30 * time.Minute

// Config holds all runtime configuration for a payrun invocation.
type Config struct {
	DBURI          string
	ClaimsURI      string
	ClaimsDB       string
	PaymentEventID string
	Mode           string
	PCType         string
	Workers        int
	BatchSize      int
	Resume         bool
	ValidateOnly   bool
	NoDryRunStats  bool
	LogFormat      string // "text" or "json"
	LogLevel       string
	StatsOut       string
	EnvFile        string
	ConfigFile     string

	RedisAddr     string
	RedisPassword string
	LockTTL       time.Duration

	BackupDir         string
	BackupBucket      string
	BackupCollections []string
	Minio             MinioConfig

	AMQPURL string

	AdjustmentFactor float64
	Retry            payerr.RetryPolicy
}

// MinioConfig locates the object store used for backup uploads.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// yamlConfig is the on-disk YAML structure.
type yamlConfig struct {
	AdjustmentFactor *float64 `yaml:"adjustment_factor"`
	Backup           struct {
		Dir         string   `yaml:"dir"`
		Bucket      string   `yaml:"bucket"`
		Collections []string `yaml:"collections"`
	} `yaml:"backup"`
	Retry   *payerr.RetryPolicy `yaml:"retry"`
	LockTTL time.Duration       `yaml:"lock_ttl"`
}

// FromEnv returns a Config populated from PAYRUN_* environment variables and
// defaults. Flags override these values.
func FromEnv() Config {
	return Config{
		DBURI:         os.Getenv("PAYRUN_DB_URI"),
		ClaimsURI:     os.Getenv("PAYRUN_CLAIMS_URI"),
		ClaimsDB:      envOr("PAYRUN_CLAIMS_DB", "claims"),
		Workers:       envInt("PAYRUN_MAX_WORKERS", 0),
		BatchSize:     envInt("PAYRUN_BATCH_SIZE", DefaultBatchSize),
		LogFormat:     envOr("PAYRUN_LOG_FORMAT", "text"),
		LogLevel:      envOr("PAYRUN_LOG_LEVEL", "info"),
		RedisAddr:     os.Getenv("PAYRUN_REDIS_ADDR"),
		RedisPassword: os.Getenv("PAYRUN_REDIS_PASSWORD"),
		LockTTL:       DefaultLockTTL,
		BackupDir:     envOr("PAYRUN_BACKUP_DIR", "backups"),
		BackupBucket:  os.Getenv("PAYRUN_BACKUP_BUCKET"),
		Minio: MinioConfig{
			Endpoint:  os.Getenv("PAYRUN_MINIO_ENDPOINT"),
			AccessKey: os.Getenv("PAYRUN_MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("PAYRUN_MINIO_SECRET_KEY"),
			UseSSL:    os.Getenv("PAYRUN_MINIO_USE_SSL") == "true",
		},
		AMQPURL: os.Getenv("PAYRUN_AMQP_URL"),
		Retry:   payerr.DefaultRetryPolicy,
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

// LoadFromFile reads a YAML config file and merges its values into Config.
// Keys absent from the file leave the current values untouched.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return payerr.Wrap(payerr.KindConfiguration, "config.LoadFromFile", fmt.Errorf("read config file: %w", err))
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return payerr.Wrap(payerr.KindConfiguration, "config.LoadFromFile", fmt.Errorf("parse config file: %w", err))
	}
	if yc.AdjustmentFactor != nil {
		c.AdjustmentFactor = *yc.AdjustmentFactor
	}
	if yc.Backup.Dir != "" {
		c.BackupDir = yc.Backup.Dir
	}
	if yc.Backup.Bucket != "" {
		c.BackupBucket = yc.Backup.Bucket
	}
	if len(yc.Backup.Collections) > 0 {
		c.BackupCollections = yc.Backup.Collections
	}
	if yc.Retry != nil {
		c.Retry = *yc.Retry
	}
	if yc.LockTTL > 0 {
		c.LockTTL = yc.LockTTL
	}
	return c.validateFile()
}

var knownCollections = []string{
	backup.CollectionClaims,
	backup.CollectionClaimPayments,
	backup.CollectionPaymentCenters,
}

func (c *Config) validateFile() error {
	if c.AdjustmentFactor < 0 {
		return payerr.New(payerr.KindConfiguration, "config.LoadFromFile",
			"adjustment_factor must be non-negative, got %v", c.AdjustmentFactor)
	}
	for _, name := range c.BackupCollections {
		if !slices.Contains(knownCollections, name) {
			return payerr.New(payerr.KindConfiguration, "config.LoadFromFile",
				"unknown backup collection %q", name)
		}
	}
	if c.Retry.Attempts < 0 || c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return payerr.New(payerr.KindConfiguration, "config.LoadFromFile", "retry policy must be non-negative")
	}
	return nil
}

// Validate checks the run command's CLI contract.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.PaymentEventID) == "" {
		return fmt.Errorf("--payment-event-id is required")
	}
	if _, err := model.ParseRunMode(c.Mode); err != nil {
		return fmt.Errorf("--mode must be dry-run or final, got %q", c.Mode)
	}
	if c.PCType != "" {
		if _, ok := model.ParsePaymentCenterType(c.PCType); !ok {
			return fmt.Errorf("--pc-type must be provider or dmr, got %q", c.PCType)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("--workers must be >= 0, got %d", c.Workers)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("--batch-size must be > 0, got %d", c.BatchSize)
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("--log-level %q is not a valid level", c.LogLevel)
	}
	return c.ValidateDB()
}

// ValidateDB checks that the run store is reachable by URI.
func (c *Config) ValidateDB() error {
	if c.DBURI == "" {
		return fmt.Errorf("--db-uri or PAYRUN_DB_URI is required")
	}
	return nil
}

// RunMode returns the parsed --mode.
func (c *Config) RunMode() model.RunMode {
	m, _ := model.ParseRunMode(c.Mode)
	return m
}

// PaymentCenterType returns the parsed --pc-type, or "" to use the event's.
func (c *Config) PaymentCenterType() model.PaymentCenterType {
	t, _ := model.ParsePaymentCenterType(c.PCType)
	return t
}

// ResolvedWorkers applies the default worker heuristic when Workers is 0.
func (c *Config) ResolvedWorkers() int {
	if c.Workers <= 0 {
		return parallel.DefaultWorkers()
	}
	return c.Workers
}
