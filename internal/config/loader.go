package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LMSRD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LMSRD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LMSRD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "LMSRD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LMSRD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LMSRD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LMSRD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LMSRD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LMSRD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LMSRD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LMSRD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LMSRD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LMSRD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LMSRD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LMSRD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LMSRD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LMSRD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LMSRD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LMSRD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LMSRD_S3_REGION")
	setStr(&cfg.S3.Bucket, "LMSRD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LMSRD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LMSRD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LMSRD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LMSRD_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LMSRD_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "LMSRD_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "LMSRD_ARCHIVE_RETENTION_DAYS")
	setInt(&cfg.Archive.BatchSize, "LMSRD_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LMSRD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LMSRD_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "LMSRD_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "LMSRD_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "LMSRD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "LMSRD_SERVER_RATE_LIMIT_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "LMSRD_MODE")
	setStr(&cfg.LogLevel, "LMSRD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
