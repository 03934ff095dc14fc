package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gyeh/payrun/internal/payerr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func validConfig() Config {
	return Config{
		DBURI:          "postgres://localhost/payrun",
		PaymentEventID: "PE-1",
		Mode:           "dry-run",
		BatchSize:      1000,
		LogLevel:       "info",
	}
}

func TestLoadFromFile_Valid(t *testing.T) {
	path := writeConfig(t, `
adjustment_factor: 0.9
backup:
  dir: /var/backups/payrun
  collections: [claims, payment_centers]
retry:
  attempts: 6
  base_delay: 100ms
  max_delay: 2s
  multiplier: 1.5
lock_ttl: 10m
`)
	c := FromEnv()
	if err := c.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.AdjustmentFactor != 0.9 {
		t.Errorf("adjustment factor = %v", c.AdjustmentFactor)
	}
	if c.BackupDir != "/var/backups/payrun" || len(c.BackupCollections) != 2 {
		t.Errorf("backup = %q %v", c.BackupDir, c.BackupCollections)
	}
	if c.Retry.Attempts != 6 || c.Retry.BaseDelay != 100*time.Millisecond || c.Retry.MaxDelay != 2*time.Second {
		t.Errorf("retry = %+v", c.Retry)
	}
	if c.LockTTL != 10*time.Minute {
		t.Errorf("lock ttl = %v", c.LockTTL)
	}
}

func TestLoadFromFile_KeepsDefaults(t *testing.T) {
	path := writeConfig(t, "adjustment_factor: 1.1\n")
	c := FromEnv()
	if err := c.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.Retry != payerr.DefaultRetryPolicy {
		t.Errorf("retry changed: %+v", c.Retry)
	}
	if c.LockTTL != DefaultLockTTL {
		t.Errorf("lock ttl = %v", c.LockTTL)
	}
}

func TestLoadFromFile_UnknownCollection(t *testing.T) {
	path := writeConfig(t, "backup:\n  collections: [claims, ledgers]\n")
	c := FromEnv()
	err := c.LoadFromFile(path)
	if !errors.Is(err, payerr.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadFromFile_NegativeFactor(t *testing.T) {
	path := writeConfig(t, "adjustment_factor: -1\n")
	c := FromEnv()
	if err := c.LoadFromFile(path); err == nil {
		t.Fatal("expected error for negative adjustment factor")
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	var c Config
	err := c.LoadFromFile("/nonexistent/config.yaml")
	if !errors.Is(err, payerr.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(*Config){
		"no_event":      func(c *Config) { c.PaymentEventID = "" },
		"bad_mode":      func(c *Config) { c.Mode = "preview" },
		"bad_pc_type":   func(c *Config) { c.PCType = "vendor" },
		"neg_workers":   func(c *Config) { c.Workers = -1 },
		"zero_batch":    func(c *Config) { c.BatchSize = 0 },
		"no_db":         func(c *Config) { c.DBURI = "" },
		"bad_log_level": func(c *Config) { c.LogLevel = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParsedValues(t *testing.T) {
	c := validConfig()
	c.Mode = "final"
	c.PCType = "dmr"
	if c.RunMode() != "final" || c.PaymentCenterType() != "DMR" {
		t.Errorf("mode=%q pc_type=%q", c.RunMode(), c.PaymentCenterType())
	}
	c.PCType = ""
	if c.PaymentCenterType() != "" {
		t.Errorf("empty pc type parsed to %q", c.PaymentCenterType())
	}
}

func TestResolvedWorkers(t *testing.T) {
	c := validConfig()
	want := min(runtime.NumCPU(), 8)
	if got := c.ResolvedWorkers(); got != want {
		t.Errorf("default workers = %d, want %d", got, want)
	}
	c.Workers = 3
	if c.ResolvedWorkers() != 3 {
		t.Errorf("explicit workers = %d", c.ResolvedWorkers())
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PAYRUN_DB_URI", "postgres://env/payrun")
	t.Setenv("PAYRUN_MAX_WORKERS", "4")
	t.Setenv("PAYRUN_BATCH_SIZE", "oops")
	c := FromEnv()
	if c.DBURI != "postgres://env/payrun" || c.Workers != 4 {
		t.Errorf("env not applied: %+v", c)
	}
	if c.BatchSize != DefaultBatchSize {
		t.Errorf("bad PAYRUN_BATCH_SIZE must fall back, got %d", c.BatchSize)
	}
}
