package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictify/marketengine/internal/config"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := config.Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "trade"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateRequiresSuperAdminInBootstrapMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "bootstrap"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "super_admin is required")

	cfg.Admin.SuperAdmin = "0xabc"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadStorageBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Backend = "mongo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestValidateSqliteBackendSkipsPostgresChecks(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Backend = "sqlite"
	cfg.Postgres = config.PostgresConfig{}
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadFeeBps(t *testing.T) {
	cfg := config.Defaults()
	cfg.Engine.FeeBps = 20_000
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fee_bps")
}

func TestEngineConfigDomainDefaultsAmounts(t *testing.T) {
	cfg := config.Defaults()
	domainCfg, err := cfg.Engine.Domain()
	require.NoError(t, err)
	assert.Equal(t, int64(200), domainCfg.FeeBps)
	assert.NotNil(t, domainCfg.MinStake)
	assert.NotNil(t, domainCfg.MaxStake)
}

func TestEngineConfigDomainOverridesAmounts(t *testing.T) {
	cfg := config.Defaults()
	cfg.Engine.MinStake = "50"
	cfg.Engine.MaxStake = "999999"
	domainCfg, err := cfg.Engine.Domain()
	require.NoError(t, err)
	assert.Equal(t, "50", domainCfg.MinStake.String())
	assert.Equal(t, "999999", domainCfg.MaxStake.String())
}

func TestEngineConfigDomainRejectsInvalidAmount(t *testing.T) {
	cfg := config.Defaults()
	cfg.Engine.MinStake = "not-a-number"
	_, err := cfg.Engine.Domain()
	require.Error(t, err)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := config.Defaults()
	cfg.Postgres.Password = "supersecret"
	cfg.S3.SecretKey = "supersecret"
	cfg.Server.APIKey = "supersecret"

	redacted := config.RedactedConfig(&cfg)
	assert.Equal(t, "***", redacted.Postgres.Password)
	assert.Equal(t, "***", redacted.S3.SecretKey)
	assert.Equal(t, "***", redacted.Server.APIKey)
	assert.Equal(t, "supersecret", cfg.Postgres.Password, "original config must be unmodified")
}
