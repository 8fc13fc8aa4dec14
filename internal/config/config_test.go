package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "turbo" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "unknown log_level"},
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }, "redis: addr"},
		{"bad postgres port", func(c *Config) { c.Postgres.Port = 0 }, "postgres: port"},
		{"pool min over max", func(c *Config) {
			c.Postgres.PoolMinConns = 20
			c.Postgres.PoolMaxConns = 10
		}, "pool_min_conns"},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
		{"archive without bucket", func(c *Config) {
			c.Archive.Enabled = true
			c.S3.Bucket = ""
		}, "s3: bucket"},
		{"archive interval too short", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Interval = duration{time.Second}
		}, "archive: interval"},
		{"archive retention zero", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.RetentionDays = 0
		}, "retention_days"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateSkipsS3WhenArchiveDisabled(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = false
	cfg.S3.Endpoint = ""
	cfg.S3.Bucket = ""
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "serve"
log_level = "debug"

[postgres]
host = "db.internal"
database = "markets"

[archive]
enabled = true
interval = "30m"
retention_days = 14

[server]
port = 9090
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "markets", cfg.Postgres.Database)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Archive.Interval.Duration)
	assert.Equal(t, 14, cfg.Archive.RetentionDays)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 5000, cfg.Archive.BatchSize)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"serve\"\n"), 0o600))

	t.Setenv("LMSRD_POSTGRES_PASSWORD", "s3cret")
	t.Setenv("LMSRD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("LMSRD_ARCHIVE_INTERVAL", "2h")
	t.Setenv("LMSRD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LMSRD_MODE", "archive")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Postgres.Password)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Archive.Interval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "archive", cfg.Mode)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://user:pw@host/db"
	cfg.Postgres.Password = "pw"
	cfg.Redis.Password = "rpw"
	cfg.S3.SecretKey = "sk"
	cfg.Server.APIKey = "ak"

	red := RedactedConfig(&cfg)

	assert.NotContains(t, red.Postgres.DSN, "pw")
	assert.NotEqual(t, "pw", red.Postgres.Password)
	assert.NotEqual(t, "rpw", red.Redis.Password)
	assert.NotEqual(t, "sk", red.S3.SecretKey)
	assert.NotEqual(t, "ak", red.Server.APIKey)

	// The original is untouched.
	assert.Equal(t, "pw", cfg.Postgres.Password)
}
