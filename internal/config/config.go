package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port        string
	HTTPTimeout time.Duration

	// Record store.
	DBDriver string
	DBDSN    string

	// Archive build.
	ArchiveConfigPath   string
	StartYear           int
	FetchRetryPasses    int
	FetchMaxInFlight    int // 0 = unbounded
	ArchiveWorkers      int
	BuildArchiveOnStart bool

	// Daily update.
	DailyCron       string
	DailyRetryDelay time.Duration
	DailyMaxRetries int

	LogLevel  string
	LogFormat string

	// Archive holds the static data read from ArchiveConfigPath.
	Archive ArchiveData
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "8080")
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	cfg.DBDriver = getenvDefault("DB_DRIVER", "sqlite")
	cfg.DBDSN = getenvDefault("DB_DSN", "data/statistic.db")

	cfg.ArchiveConfigPath = getenvDefault("ARCHIVE_CONFIG", "configs/archive.yaml")
	cfg.StartYear = getenvInt("ARCHIVE_START_YEAR", 2010)
	cfg.FetchRetryPasses = getenvInt("FETCH_RETRY_PASSES", 20)
	cfg.FetchMaxInFlight = getenvInt("FETCH_MAX_IN_FLIGHT", 0)
	cfg.ArchiveWorkers = getenvInt("ARCHIVE_WORKERS", runtime.NumCPU())
	cfg.BuildArchiveOnStart = getenvBool("BUILD_ARCHIVE_ON_START", false)

	cfg.DailyCron = getenvDefault("DAILY_UPDATE_CRON", "30 0 * * *")
	if cfg.DailyRetryDelay, err = getenvDuration("DAILY_RETRY_DELAY", 30*time.Minute); err != nil {
		return nil, err
	}
	cfg.DailyMaxRetries = getenvInt("DAILY_MAX_RETRIES", 12)

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getenvDefault("LOG_FORMAT", "json")

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("invalid DB_DRIVER %q: want sqlite or postgres", cfg.DBDriver)
	}
	if cfg.StartYear < 1900 || cfg.StartYear > time.Now().Year() {
		return nil, fmt.Errorf("invalid ARCHIVE_START_YEAR: %d", cfg.StartYear)
	}

	archive, err := LoadArchiveData(cfg.ArchiveConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Archive = archive

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
