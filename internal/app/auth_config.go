package app

import (
	"time"

	"github.com/rajkayal/hubauth/internal/auth"
	"github.com/rajkayal/hubauth/internal/auth/otp"
	"github.com/rajkayal/hubauth/internal/auth/providers"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultTokenTTL
	}

	return auth.JWTConfig{
		Secret:   c.JWT.Secret,
		Issuer:   c.JWT.Issuer,
		TokenTTL: ttl,
	}
}

// LocalProviderConfig converts AuthConfig into LocalProvider parameters.
func (c AuthConfig) LocalProviderConfig() providers.LocalConfig {
	duration := c.Local.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}

	threshold := c.Local.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}

	return providers.LocalConfig{
		LockoutThreshold: threshold,
		LockoutDuration:  duration,
	}
}

// OTPPolicy converts AuthConfig into the one-time code policy.
func (c AuthConfig) OTPPolicy() otp.Policy {
	policy := otp.DefaultPolicy()

	if c.OTP.ExpiryWindow > 0 {
		policy.ExpiryWindow = c.OTP.ExpiryWindow
	}
	if c.OTP.ResendInterval > 0 {
		policy.ResendInterval = c.OTP.ResendInterval
	}
	if c.OTP.MaxAttempts > 0 {
		policy.MaxAttempts = c.OTP.MaxAttempts
	}
	policy.SkipEnabled = c.OTP.SkipEnabled
	if c.OTP.SkipCode != "" {
		policy.SkipCode = c.OTP.SkipCode
	}

	return policy
}

// AuthPolicy converts AuthConfig into the login state-machine policy.
func (c AuthConfig) AuthPolicy() auth.AuthPolicy {
	return auth.AuthPolicy{
		RequireStepUpForPrivileged: c.OTP.RequireStepUp,
		AllowMockIdentity:          c.Federated.MockEnabled,
		FederatedEmailDomain:       c.Federated.EmailDomain,
	}
}
