package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Verification errors shared by the federated providers.
var (
	ErrTokenInvalid    = errors.New("providers: token verification failed")
	ErrEmailUnverified = errors.New("providers: email not verified by provider")
	ErrNotConfigured   = errors.New("providers: provider not configured")
)

// FederatedIdentity represents the claims extracted from a provider token.
type FederatedIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Verifier validates a provider-issued token and returns the identity it
// asserts. Implementations never create accounts; that is the step-up
// service's job.
type Verifier interface {
	Provider() string
	VerifyToken(ctx context.Context, token string) (*FederatedIdentity, error)
}

// SynthesizeEmail derives a stable address for identities whose provider
// withheld the real email, keyed on the provider subject.
func SynthesizeEmail(provider, subject, domain string) string {
	subject = strings.TrimSpace(subject)
	if domain == "" {
		domain = "hubauth.local"
	}
	return strings.ToLower(fmt.Sprintf("%s@%suser.%s", subject, provider, domain))
}

// ResolveEmail returns the identity's email when present, falling back
// to a synthesized address.
func ResolveEmail(identity *FederatedIdentity, domain string) string {
	if email := strings.TrimSpace(identity.Email); email != "" {
		return strings.ToLower(email)
	}
	return SynthesizeEmail(identity.Provider, identity.Subject, domain)
}

// ResolveName returns a display name for the identity, deriving one from
// the email local part when the provider omitted it.
func ResolveName(identity *FederatedIdentity, fallback string) string {
	if name := strings.TrimSpace(identity.Name); name != "" {
		return name
	}
	if email := strings.TrimSpace(identity.Email); email != "" {
		if at := strings.Index(email, "@"); at > 0 {
			return email[:at]
		}
	}
	return fallback
}
