package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
}

func TestGenerateAndValidateToken(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{
		Secret: "test-secret",
		Issuer: "hubauth",
		Clock:  fixedClock(start),
	})
	require.NoError(t, err)

	token, err := svc.GenerateToken(TokenInput{
		UserID:   "user-1",
		Email:    "user@example.com",
		Role:     "privileged",
		Provider: "local",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "user@example.com", claims.Email)
	require.Equal(t, "privileged", claims.Role)
	require.Equal(t, "local", claims.Provider)
	require.Equal(t, "hubauth", claims.Issuer)
	require.Equal(t, start.Add(DefaultTokenTTL).Unix(), claims.ExpiresAt.Unix())
}

func TestValidateTokenExpired(t *testing.T) {
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewJWTService(JWTConfig{
		Secret:   "test-secret",
		TokenTTL: time.Hour,
		Clock:    fixedClock(issuedAt),
	})
	require.NoError(t, err)

	token, err := issuer.GenerateToken(TokenInput{UserID: "user-1"})
	require.NoError(t, err)

	later, err := NewJWTService(JWTConfig{
		Secret:   "test-secret",
		TokenTTL: time.Hour,
		Clock:    fixedClock(issuedAt.Add(2 * time.Hour)),
	})
	require.NoError(t, err)

	_, err = later.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret-a"})
	require.NoError(t, err)

	token, err := svc.GenerateToken(TokenInput{UserID: "user-1"})
	require.NoError(t, err)

	other, err := NewJWTService(JWTConfig{Secret: "secret-b"})
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateTokenIssuerMismatch(t *testing.T) {
	issuer, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "other"})
	require.NoError(t, err)

	token, err := issuer.GenerateToken(TokenInput{UserID: "user-1"})
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{Secret: "test-secret", Issuer: "hubauth"})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
}

func TestGenerateTokenRequiresUserID(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "test-secret"})
	require.NoError(t, err)

	_, err = svc.GenerateToken(TokenInput{})
	require.Error(t, err)
}
