package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleArchive = `
base_url: https://diary.example/diary
cities:
  - code: "4248"
    name: Minsk
  - code: "4368"
    name: Moscow
headers:
  Accept-Language: ru-RU
user_agents:
  - agent-a
wind_codes:
  N: North
`

func writeArchive(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ARCHIVE_CONFIG", writeArchive(t, sampleArchive))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "data/statistic.db", cfg.DBDSN)
	assert.Equal(t, 2010, cfg.StartYear)
	assert.Equal(t, 20, cfg.FetchRetryPasses)
	assert.Zero(t, cfg.FetchMaxInFlight)
	assert.Positive(t, cfg.ArchiveWorkers)
	assert.False(t, cfg.BuildArchiveOnStart)
	assert.Equal(t, "30 0 * * *", cfg.DailyCron)
	assert.Equal(t, 30*time.Minute, cfg.DailyRetryDelay)
	assert.Equal(t, 12, cfg.DailyMaxRetries)

	assert.Equal(t, "https://diary.example/diary", cfg.Archive.BaseURL)
	assert.Equal(t, []string{"Minsk", "Moscow"}, cfg.Archive.CityNames())
	assert.Equal(t, "ru-RU", cfg.Archive.Headers["Accept-Language"])
	assert.Equal(t, []string{"agent-a"}, cfg.Archive.UserAgents)
	assert.Equal(t, "North", cfg.Archive.WindCodes["N"])
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ARCHIVE_CONFIG", writeArchive(t, sampleArchive))
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://localhost/weather")
	t.Setenv("FETCH_MAX_IN_FLIGHT", "64")
	t.Setenv("BUILD_ARCHIVE_ON_START", "true")
	t.Setenv("DAILY_RETRY_DELAY", "5m")
	t.Setenv("ARCHIVE_WORKERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 64, cfg.FetchMaxInFlight)
	assert.True(t, cfg.BuildArchiveOnStart)
	assert.Equal(t, 5*time.Minute, cfg.DailyRetryDelay)
	assert.Positive(t, cfg.ArchiveWorkers)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("driver", func(t *testing.T) {
		t.Setenv("ARCHIVE_CONFIG", writeArchive(t, sampleArchive))
		t.Setenv("DB_DRIVER", "mysql")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("duration", func(t *testing.T) {
		t.Setenv("ARCHIVE_CONFIG", writeArchive(t, sampleArchive))
		t.Setenv("HTTP_TIMEOUT", "soon")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("missing archive file", func(t *testing.T) {
		t.Setenv("ARCHIVE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadArchiveData_Validation(t *testing.T) {
	cases := map[string]string{
		"no base url":    "cities: [{code: '1', name: A}]",
		"no cities":      "base_url: http://x",
		"no city code":   "base_url: http://x\ncities: [{name: A}]",
		"duplicate name": "base_url: http://x\ncities: [{code: '1', name: A}, {code: '2', name: A}]",
		"bad yaml":       "base_url: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadArchiveData(writeArchive(t, body))
			assert.Error(t, err)
		})
	}
}

func TestRepositoryArchiveConfig(t *testing.T) {
	a, err := LoadArchiveData("../../configs/archive.yaml")
	require.NoError(t, err)
	assert.NotEmpty(t, a.UserAgents)
	assert.Contains(t, a.WindCodes, "Calm")
}
