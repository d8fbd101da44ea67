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
// built-in defaults, applies MARKETENGINE_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known MARKETENGINE_* environment variables
// and overwrites the corresponding Config fields when a variable is set
// (i.e. not empty). This lets operators inject secrets at deploy time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain / admin ──
	setInt64(&cfg.Chain.ID, "MARKETENGINE_CHAIN_ID")
	setStr(&cfg.Admin.SuperAdmin, "MARKETENGINE_ADMIN_SUPER_ADMIN")

	// ── Storage ──
	setStr(&cfg.Storage.Backend, "MARKETENGINE_STORAGE_BACKEND")
	setStr(&cfg.Storage.SQLitePath, "MARKETENGINE_STORAGE_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MARKETENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MARKETENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKETENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKETENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKETENGINE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKETENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETENGINE_REDIS_TLS_ENABLED")

	// ── S3 / archive ──
	setStr(&cfg.S3.Endpoint, "MARKETENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MARKETENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "MARKETENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MARKETENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MARKETENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MARKETENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MARKETENGINE_S3_FORCE_PATH_STYLE")
	setBool(&cfg.Archive.Enabled, "MARKETENGINE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "MARKETENGINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "MARKETENGINE_ARCHIVE_CRON")

	// ── Engine ──
	setInt64(&cfg.Engine.FeeBps, "MARKETENGINE_ENGINE_FEE_BPS")
	setInt64(&cfg.Engine.MaxStalenessSeconds, "MARKETENGINE_ENGINE_MAX_STALENESS_SECONDS")
	setInt64(&cfg.Engine.MaxConfidenceRatioBps, "MARKETENGINE_ENGINE_MAX_CONFIDENCE_RATIO_BPS")
	setStr(&cfg.Engine.MinStake, "MARKETENGINE_ENGINE_MIN_STAKE")
	setStr(&cfg.Engine.MaxStake, "MARKETENGINE_ENGINE_MAX_STAKE")
	setInt(&cfg.Engine.MaxExtensionDays, "MARKETENGINE_ENGINE_MAX_EXTENSION_DAYS")
	setDuration(&cfg.Engine.ActionTTL, "MARKETENGINE_ENGINE_ACTION_TTL")
	setInt64(&cfg.Engine.DefaultDisputeWindowSeconds, "MARKETENGINE_ENGINE_DEFAULT_DISPUTE_WINDOW_SECONDS")
	setInt64(&cfg.Engine.DefaultResolutionTimeoutSeconds, "MARKETENGINE_ENGINE_DEFAULT_RESOLUTION_TIMEOUT_SECONDS")
	setInt(&cfg.Engine.DisputeExtensionHours, "MARKETENGINE_ENGINE_DISPUTE_EXTENSION_HOURS")
	setStr(&cfg.Engine.BaseDisputeThreshold, "MARKETENGINE_ENGINE_BASE_DISPUTE_THRESHOLD")
	setStr(&cfg.Engine.MaxDisputeThreshold, "MARKETENGINE_ENGINE_MAX_DISPUTE_THRESHOLD")
	setInt64(&cfg.Engine.DisputeVotingWindowSeconds, "MARKETENGINE_ENGINE_DISPUTE_VOTING_WINDOW_SECONDS")
	setDuration(&cfg.Engine.WithdrawLock, "MARKETENGINE_ENGINE_WITHDRAW_LOCK")
	setInt(&cfg.Engine.MaxWithdrawalsPerPeriod, "MARKETENGINE_ENGINE_MAX_WITHDRAWALS_PER_PERIOD")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MARKETENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKETENGINE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "MARKETENGINE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETENGINE_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKETENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKETENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKETENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKETENGINE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETENGINE_MODE")
	setStr(&cfg.LogLevel, "MARKETENGINE_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
