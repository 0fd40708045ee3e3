// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string   // Base directory for the results database (always absolute)
	Port          int      // HTTP listen port
	LogLevel      string   // zerolog level
	DevMode       bool     // permissive CORS, pretty logs
	Tickers       []string // Default portfolio universe for scheduled/defaulted runs
	StartDate     string   // Default history window start (YYYY-MM-DD)
	EndDate       string   // Default history window end (YYYY-MM-DD)
	LookbackDays  int      // Trailing observations for risk/return estimation
	RiskAversion  float64  // Default λ
	MinAllocation float64  // Default per-asset weight floor
	MaxAllocation float64  // Default per-asset weight cap
	RunSchedule   string   // Cron spec for scheduled optimization runs ("" disables)
	Backup        *BackupConfig
}

// BackupConfig holds S3-compatible snapshot backup settings.
// Backups are disabled when Bucket is empty.
type BackupConfig struct {
	Bucket          string
	Endpoint        string // Custom endpoint for S3-compatible providers ("" = AWS)
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Keep            int           // Number of snapshots to retain
	Schedule        string        // Cron spec for scheduled backups ("" disables)
	Timeout         time.Duration // Per-upload timeout
}

// Load reads configuration from environment variables (.env file honored).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("FOLIO_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Default history window: two years of data ending today.
	now := time.Now().UTC()
	defaultEnd := now.Format("2006-01-02")
	defaultStart := now.AddDate(-2, 0, 0).Format("2006-01-02")

	cfg := &Config{
		DataDir:       absDataDir,
		Port:          getEnvAsInt("FOLIO_PORT", 8000),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DevMode:       getEnvAsBool("DEV_MODE", false),
		Tickers:       getEnvAsList("PORTFOLIO_TICKERS", []string{"AAPL", "MSFT", "GOOGL", "RELIANCE", "TCS"}),
		StartDate:     getEnv("START_DATE", defaultStart),
		EndDate:       getEnv("END_DATE", defaultEnd),
		LookbackDays:  getEnvAsInt("LOOKBACK_DAYS", 252),
		RiskAversion:  getEnvAsFloat("RISK_AVERSION", 1.0),
		MinAllocation: getEnvAsFloat("MINIMUM_ALLOCATION", 0.0),
		MaxAllocation: getEnvAsFloat("MAXIMUM_ALLOCATION", 0.4),
		RunSchedule:   getEnv("RUN_SCHEDULE", ""),
		Backup:        loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configured defaults are coherent.
func (c *Config) Validate() error {
	if c.MinAllocation > c.MaxAllocation {
		return fmt.Errorf("MINIMUM_ALLOCATION (%.4f) exceeds MAXIMUM_ALLOCATION (%.4f)", c.MinAllocation, c.MaxAllocation)
	}
	if c.RiskAversion < 0 {
		return fmt.Errorf("RISK_AVERSION must be non-negative, got %.4f", c.RiskAversion)
	}
	if c.LookbackDays <= 0 {
		return fmt.Errorf("LOOKBACK_DAYS must be positive, got %d", c.LookbackDays)
	}
	if _, err := time.Parse("2006-01-02", c.StartDate); err != nil {
		return fmt.Errorf("invalid START_DATE %q: %w", c.StartDate, err)
	}
	if _, err := time.Parse("2006-01-02", c.EndDate); err != nil {
		return fmt.Errorf("invalid END_DATE %q: %w", c.EndDate, err)
	}
	return nil
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
		Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:          getEnv("BACKUP_S3_REGION", "auto"),
		AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		Keep:            getEnvAsInt("BACKUP_KEEP", 7),
		Schedule:        getEnv("BACKUP_SCHEDULE", ""),
		Timeout:         time.Duration(getEnvAsInt("BACKUP_TIMEOUT_SECONDS", 300)) * time.Second,
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
