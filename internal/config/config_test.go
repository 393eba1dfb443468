package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("VAULT_ADDR", "")
	t.Setenv("DATABASE_URL", "user:pass@tcp(db:3306)/backstage?parseTime=true")
	t.Setenv("JWT_PRIVATE_KEY_PATH", "/keys/private.pem")
	t.Setenv("JWT_PUBLIC_KEY_PATH", "/keys/public.pem")
	t.Setenv("METRICS_ALLOWED_IPS", "")
	t.Setenv("REQUESTS_PER_MINUTE", "")
	t.Setenv("TRACING_STDOUT", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "9090", cfg.MetricsPort)
	assert.Equal(t, "Backstage", cfg.OTPIssuerName)
	assert.Equal(t, uint(1), cfg.TOTPEnrollSkew)
	assert.Equal(t, uint(0), cfg.TOTPChallengeSkew)
	assert.Equal(t, 15*time.Minute, cfg.RecoveryCodeTTL)
	assert.Equal(t, time.Minute, cfg.RecoveryRequestCooldown)
	assert.Equal(t, 5, cfg.AttemptLimit)
	assert.Equal(t, 5*time.Minute, cfg.AttemptWindow)
	assert.Equal(t, 100, cfg.RequestsPerMinute)
	assert.Empty(t, cfg.MetricsAllowedIPs)
	assert.False(t, cfg.UseVault())
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	setBaseEnv(t)

	path := filepath.Join(t.TempDir(), "backstage.yaml")
	yamlDoc := `
port: "7000"
otp:
  issuer_name: "Backstage Staging"
  challenge_skew: 1
attempts:
  limit: 3
  window: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7100")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Port)
	assert.Equal(t, "Backstage Staging", cfg.OTPIssuerName)
	assert.Equal(t, uint(1), cfg.TOTPChallengeSkew)
	assert.Equal(t, 3, cfg.AttemptLimit)
	assert.Equal(t, time.Minute, cfg.AttemptWindow)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                 "http",
		"RECOVERY_CODE_TTL":    "soon",
		"TOTP_ENROLL_SKEW":     "-1",
		"ATTEMPT_LIMIT":        "many",
		"JWT_ACCESS_TOKEN_TTL": "0s",
		"REQUESTS_PER_MINUTE":  "0",
		"TRACING_STDOUT":       "vielleicht",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setBaseEnv(t)
			t.Setenv(key, value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigRequiresSecretsSource(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("VAULT_ADDR", "http://vault:8200")
	_, err = LoadConfig()
	require.Error(t, err, "vault mode without AppRole credentials must fail")

	t.Setenv("BACKSTAGE_APPROLE_ROLE_ID", "role")
	t.Setenv("BACKSTAGE_APPROLE_SECRET_ID", "secret")
	t.Setenv("VAULT_JWT_SECRET_PATH", "kv/data/backstage/jwt")
	t.Setenv("VAULT_DB_CREDS_PATH", "database/creds/backstage")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.UseVault())
}

func TestLoadConfigMetricsAllowlist(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("METRICS_ALLOWED_IPS", " 10.0.0.5, 127.0.0.1 ,")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.5", "127.0.0.1"}, cfg.MetricsAllowedIPs)
}
