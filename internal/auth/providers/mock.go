package providers

import (
	"context"
	"fmt"
)

// MockVerifier accepts the fixed token "mock-<provider>-token" and
// returns a canned identity. Enabled only by explicit configuration so
// client integrations can be exercised without real provider accounts.
type MockVerifier struct {
	name string
}

// NewMockVerifier builds a mock verifier for the named provider.
func NewMockVerifier(provider string) *MockVerifier {
	return &MockVerifier{name: provider}
}

// Provider returns the provider key this verifier serves.
func (v *MockVerifier) Provider() string { return v.name }

// VerifyToken accepts only the provider's fixed mock token.
func (v *MockVerifier) VerifyToken(_ context.Context, token string) (*FederatedIdentity, error) {
	if token != fmt.Sprintf("mock-%s-token", v.name) {
		return nil, ErrTokenInvalid
	}

	return &FederatedIdentity{
		Provider:      v.name,
		Subject:       fmt.Sprintf("mock-%s-user", v.name),
		Email:         fmt.Sprintf("test-%s@hubauth.dev", v.name),
		EmailVerified: true,
		Name:          fmt.Sprintf("Test %s User", titleCase(v.name)),
	}, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
