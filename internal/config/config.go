// Package config defines the top-level configuration for the market engine
// service and provides validation helpers.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/predictify/marketengine/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MARKETENGINE_* environment
// variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Admin    AdminConfig    `toml:"admin"`
	Storage  StorageConfig  `toml:"storage"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Engine   EngineConfig   `toml:"engine"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig names the chain identity the EIP-712 authenticator binds its
// domain separator to; callers signing off-chain must use the same chain ID.
type ChainConfig struct {
	ID int64 `toml:"id"`
}

// AdminConfig names the identity bootstrap seeds as the first SuperAdmin.
type AdminConfig struct {
	SuperAdmin string `toml:"super_admin"`
}

// StorageConfig selects which host.KV backend the service runs against.
type StorageConfig struct {
	// Backend is one of "postgres" or "sqlite".
	Backend  string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters for the
// KV/value-transfer/event-log stores (when storage.backend = "postgres").
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters, used for the rate limiter
// and the live event fan-out signal bus.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters used by the cold
// storage archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls when the cold-storage archiver runs and how far
// back it reaches.
type ArchiveConfig struct {
	Enabled            bool     `toml:"enabled"`
	RetentionDays      int      `toml:"retention_days"`
	Cron               string   `toml:"cron"`
}

// EngineConfig mirrors domain.EngineConfig's tunables so operators can
// override the platform defaults from TOML/env without recompiling.
// Duration fields accept Go duration strings ("72h", "30s").
type EngineConfig struct {
	FeeBps                          int64    `toml:"fee_bps"`
	MaxStalenessSeconds             int64    `toml:"max_staleness_seconds"`
	MaxConfidenceRatioBps           int64    `toml:"max_confidence_ratio_bps"`
	MinStake                        string   `toml:"min_stake"`
	MaxStake                        string   `toml:"max_stake"`
	MaxExtensionDays                int      `toml:"max_extension_days"`
	ActionTTL                       duration `toml:"action_ttl"`
	DefaultDisputeWindowSeconds     int64    `toml:"default_dispute_window_seconds"`
	DefaultResolutionTimeoutSeconds int64    `toml:"default_resolution_timeout_seconds"`
	DisputeExtensionHours           int      `toml:"dispute_extension_hours"`
	BaseDisputeThreshold            string   `toml:"base_dispute_threshold"`
	MaxDisputeThreshold             string   `toml:"max_dispute_threshold"`
	DisputeVotingWindowSeconds      int64    `toml:"dispute_voting_window_seconds"`
	WithdrawLock                    duration `toml:"withdraw_lock"`
	MaxWithdrawalsPerPeriod         int      `toml:"max_withdrawals_per_period"`
}

// Domain converts the TOML-facing EngineConfig into domain.EngineConfig,
// falling back to domain.DefaultEngineConfig's amount fields when the
// corresponding string is empty.
func (e EngineConfig) Domain() (domain.EngineConfig, error) {
	out := domain.DefaultEngineConfig()

	out.FeeBps = e.FeeBps
	out.MaxStalenessSeconds = e.MaxStalenessSeconds
	out.MaxConfidenceRatioBps = e.MaxConfidenceRatioBps
	out.MaxExtensionDays = e.MaxExtensionDays
	out.ActionTTL = e.ActionTTL.Duration
	out.DefaultDisputeWindowSeconds = e.DefaultDisputeWindowSeconds
	out.DefaultResolutionTimeoutSeconds = e.DefaultResolutionTimeoutSeconds
	out.DisputeExtensionHours = e.DisputeExtensionHours
	out.DisputeVotingWindowSeconds = e.DisputeVotingWindowSeconds
	out.WithdrawLock = e.WithdrawLock.Duration
	out.MaxWithdrawalsPerPeriod = e.MaxWithdrawalsPerPeriod

	var err error
	if out.MinStake, err = parseAmount(e.MinStake, out.MinStake); err != nil {
		return out, fmt.Errorf("engine.min_stake: %w", err)
	}
	if out.MaxStake, err = parseAmount(e.MaxStake, out.MaxStake); err != nil {
		return out, fmt.Errorf("engine.max_stake: %w", err)
	}
	if out.BaseDisputeThreshold, err = parseAmount(e.BaseDisputeThreshold, out.BaseDisputeThreshold); err != nil {
		return out, fmt.Errorf("engine.base_dispute_threshold: %w", err)
	}
	if out.MaxDisputeThreshold, err = parseAmount(e.MaxDisputeThreshold, out.MaxDisputeThreshold); err != nil {
		return out, fmt.Errorf("engine.max_dispute_threshold: %w", err)
	}
	return out, nil
}

func parseAmount(s string, fallback domain.Amount) (domain.Amount, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	amt, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", s)
	}
	return amt, nil
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials and which event
// topics should trigger an outbound alert.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{ID: 137},
		Storage: StorageConfig{
			Backend:    "postgres",
			SQLitePath: "marketengine.db",
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "marketengine",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketengine-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 180,
			Cron:          "0 3 1 * *",
		},
		Engine: EngineConfig{
			FeeBps:                          200,
			MaxStalenessSeconds:             60,
			MaxConfidenceRatioBps:           500,
			MaxExtensionDays:                90,
			ActionTTL:                       duration{72 * time.Hour},
			DefaultDisputeWindowSeconds:     24 * 3600,
			DefaultResolutionTimeoutSeconds: 3 * 24 * 3600,
			DisputeExtensionHours:           48,
			DisputeVotingWindowSeconds:      3 * 24 * 3600,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"MarketResolved", "DisputeOpened", "OracleDegradation", "ManualResolutionRequired"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. "bootstrap"
// seeds the first SuperAdmin and multisig config, then exits; "serve" runs
// the HTTP/WS surface indefinitely.
var validModes = map[string]bool{
	"serve":     true,
	"bootstrap": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, bootstrap)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Chain.ID <= 0 {
		errs = append(errs, "chain: id must be positive")
	}

	if c.Mode == "bootstrap" && c.Admin.SuperAdmin == "" {
		errs = append(errs, "admin: super_admin is required for bootstrap mode")
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, "storage: sqlite_path must not be empty when backend is sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: postgres, sqlite)", c.Storage.Backend))
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays <= 0 {
			errs = append(errs, "archive: retention_days must be > 0 when enabled")
		}
	}

	if c.Engine.FeeBps < 0 || c.Engine.FeeBps > 10_000 {
		errs = append(errs, "engine: fee_bps must be between 0 and 10000")
	}
	if c.Engine.MaxStalenessSeconds <= 0 {
		errs = append(errs, "engine: max_staleness_seconds must be > 0")
	}
	if c.Engine.MaxExtensionDays < 0 {
		errs = append(errs, "engine: max_extension_days must be >= 0")
	}
	if _, err := c.Engine.Domain(); err != nil {
		errs = append(errs, fmt.Sprintf("engine: %s", err))
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
