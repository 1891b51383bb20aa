package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)

	require.Equal(t, 168*time.Hour, cfg.Auth.JWT.TTL)
	require.Equal(t, 300*time.Second, cfg.Auth.OTP.ExpiryWindow)
	require.Equal(t, 60*time.Second, cfg.Auth.OTP.ResendInterval)
	require.Equal(t, 3, cfg.Auth.OTP.MaxAttempts)
	require.True(t, cfg.Auth.OTP.RequireStepUp)
	require.False(t, cfg.Auth.OTP.SkipEnabled)
	require.False(t, cfg.Auth.OTP.ExposePreview)

	require.Equal(t, "https://accounts.google.com", cfg.Auth.Federated.Google.Issuer)
	require.Equal(t, "https://appleid.apple.com", cfg.Auth.Federated.Apple.Issuer)
	require.False(t, cfg.Auth.Federated.MockEnabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("HUBAUTH_SERVER_PORT", "9100")
	t.Setenv("HUBAUTH_AUTH_OTP_MAX_ATTEMPTS", "5")
	t.Setenv("HUBAUTH_AUTH_OTP_SKIP_ENABLED", "true")
	t.Setenv("HUBAUTH_AUTH_FEDERATED_MOCK_ENABLED", "true")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, 5, cfg.Auth.OTP.MaxAttempts)
	require.True(t, cfg.Auth.OTP.SkipEnabled)
	require.True(t, cfg.Auth.Federated.MockEnabled)
}

func TestOTPPolicyConversion(t *testing.T) {
	cfg := AuthConfig{}
	policy := cfg.OTPPolicy()
	require.Equal(t, 300*time.Second, policy.ExpiryWindow)
	require.Equal(t, 60*time.Second, policy.ResendInterval)
	require.Equal(t, 3, policy.MaxAttempts)

	cfg.OTP.ExpiryWindow = 2 * time.Minute
	cfg.OTP.MaxAttempts = 10
	cfg.OTP.SkipEnabled = true
	policy = cfg.OTPPolicy()
	require.Equal(t, 2*time.Minute, policy.ExpiryWindow)
	require.Equal(t, 10, policy.MaxAttempts)
	require.True(t, policy.SkipEnabled)
	require.Equal(t, "000000", policy.SkipCode)
}

func TestAuthPolicyConversion(t *testing.T) {
	cfg := AuthConfig{}
	cfg.OTP.RequireStepUp = true
	cfg.Federated.MockEnabled = true
	cfg.Federated.EmailDomain = "hubauth.local"

	policy := cfg.AuthPolicy()
	require.True(t, policy.RequireStepUpForPrivileged)
	require.True(t, policy.AllowMockIdentity)
	require.Equal(t, "hubauth.local", policy.FederatedEmailDomain)
}

func TestLocalProviderConfigDefaults(t *testing.T) {
	cfg := AuthConfig{}
	local := cfg.LocalProviderConfig()
	require.Equal(t, defaultLockoutThreshold, local.LockoutThreshold)
	require.Equal(t, defaultLockoutDuration, local.LockoutDuration)
}

func TestApplyRuntimeDefaultsGeneratesSecret(t *testing.T) {
	cfg := &Config{}
	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.True(t, generated["auth.jwt.secret"])
	require.NotEmpty(t, cfg.Auth.JWT.Secret)

	// A configured secret is left alone.
	cfg2 := &Config{}
	cfg2.Auth.JWT.Secret = "configured"
	generated, err = ApplyRuntimeDefaults(cfg2)
	require.NoError(t, err)
	require.False(t, generated["auth.jwt.secret"])
	require.Equal(t, "configured", cfg2.Auth.JWT.Secret)
}

func TestDatabaseOptionsPostgres(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: "postgres",
		Postgres: DBHostConfig{
			Host:     "db.internal",
			Port:     5432,
			Database: "hubauth",
			Username: "svc",
			Password: "secret",
		},
	}

	opts := cfg.DatabaseOptions()
	require.Equal(t, "postgres", opts.Driver)
	require.Equal(t, "db.internal", opts.Host)
	require.Equal(t, "svc", opts.User)
	require.Equal(t, "hubauth", opts.Name)
}
