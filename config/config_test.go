package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadJSONConfigGroupedSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"app": {"AppPort": "9090", "JWTSecret": "s3cret", "AllowedOrigins": ["https://ctf.example"]},
		"database": {"StoreDriver": "memory", "DBName": "ctf"},
		"redis": {"RedisPort": 6380},
		"hints": {"AutoApproveSeconds": 120, "SweepBatchSize": 25},
		"leaderboard": {"CacheSeconds": 5, "StreakTimezone": "Europe/Berlin"}
	}`), 0o600))

	var c AppConfig
	require.NoError(t, loadJSONConfig(path, &c))
	applyDefaults(&c)

	assert.Equal(t, "9090", c.AppPort)
	assert.Equal(t, "s3cret", c.JWTSecret)
	assert.Equal(t, []string{"https://ctf.example"}, c.AllowedOrigins)
	assert.Equal(t, StoreDriverMemory, c.StoreDriver)
	assert.Equal(t, "ctf", c.DBName)
	assert.Equal(t, 6380, c.RedisPort)
	assert.Equal(t, 2*time.Minute, c.AutoApproveAfter())
	assert.Equal(t, 25, c.HintSweepBatchSize)
	assert.Equal(t, 30*time.Second, c.SweepInterval())
	assert.Equal(t, 5*time.Second, c.LeaderboardCacheTTL())
	assert.Equal(t, "Europe/Berlin", c.StreakLocation().String())
}

func TestLoadJSONConfigMissingFileIsIgnored(t *testing.T) {
	var c AppConfig
	assert.NoError(t, loadJSONConfig(filepath.Join(t.TempDir(), "absent.json"), &c))
}

func TestLoadJSONConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"app":`), 0o600))
	var c AppConfig
	assert.Error(t, loadJSONConfig(path, &c))
}

func TestDefaults(t *testing.T) {
	var c AppConfig
	applyDefaults(&c)

	assert.Equal(t, StoreDriverMySQL, c.StoreDriver)
	assert.Equal(t, 90*time.Second, c.AutoApproveAfter())
	assert.Equal(t, 100, c.HintSweepBatchSize)
	assert.Equal(t, 300, c.SpeedThresholdSeconds)
	assert.Equal(t, time.UTC, c.StreakLocation())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("HINT_AUTO_APPROVE_SECONDS", "45")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	var c AppConfig
	applyDefaults(&c)
	applyEnvOverrides(&c)

	assert.Equal(t, StoreDriverMemory, c.StoreDriver)
	assert.Equal(t, 45*time.Second, c.AutoApproveAfter())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
}

func TestStreakLocationFallsBackToUTC(t *testing.T) {
	c := AppConfig{StreakTimezone: "Mars/Olympus_Mons"}
	assert.Equal(t, time.UTC, c.StreakLocation())
}

func TestDSN(t *testing.T) {
	c := AppConfig{DBUser: "ctf", DBPassword: "pw", DBHost: "db", DBPort: "3307", DBName: "heist"}
	assert.Equal(t, "ctf:pw@tcp(db:3307)/heist?charset=utf8mb4&parseTime=True&loc=UTC", c.DSN())

	c.DatabaseURI = "user@unix(/tmp/mysql.sock)/heist"
	assert.Equal(t, "user@unix(/tmp/mysql.sock)/heist", c.DSN())
}
