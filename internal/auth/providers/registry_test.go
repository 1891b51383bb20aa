package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewMockVerifier("google"))

	v, err := registry.Lookup("Google")
	require.NoError(t, err)
	require.Equal(t, "google", v.Provider())

	_, err = registry.Lookup("apple")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestMockVerifier(t *testing.T) {
	verifier := NewMockVerifier("apple")

	identity, err := verifier.VerifyToken(context.Background(), "mock-apple-token")
	require.NoError(t, err)
	require.Equal(t, "apple", identity.Provider)
	require.Equal(t, "mock-apple-user", identity.Subject)
	require.True(t, identity.EmailVerified)

	_, err = verifier.VerifyToken(context.Background(), "real-looking-token")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestSynthesizeEmail(t *testing.T) {
	require.Equal(t, "sub-1@appleuser.hubauth.local", SynthesizeEmail("apple", "sub-1", "hubauth.local"))
	require.Equal(t, "sub-1@googleuser.hubauth.local", SynthesizeEmail("google", " sub-1 ", ""))
}

func TestResolveName(t *testing.T) {
	require.Equal(t, "Jess", ResolveName(&FederatedIdentity{Name: "Jess"}, "fallback"))
	require.Equal(t, "jess", ResolveName(&FederatedIdentity{Email: "jess@example.com"}, "fallback"))
	require.Equal(t, "fallback", ResolveName(&FederatedIdentity{}, "fallback"))
}
