package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// CodeLength is the number of digits in a one-time code.
const CodeLength = 6

// Defaults applied when a policy value is not configured.
const (
	DefaultExpiryWindow   = 300 * time.Second
	DefaultResendInterval = 60 * time.Second
	DefaultMaxAttempts    = 3
	DefaultSkipCode       = "000000"
)

var codeSpace = big.NewInt(1_000_000)

// Policy captures the tunable rules for issuing and verifying codes.
type Policy struct {
	// ExpiryWindow is how long a code stays valid after issuance.
	ExpiryWindow time.Duration
	// ResendInterval is the minimum gap between two codes for one email.
	ResendInterval time.Duration
	// MaxAttempts is the number of wrong guesses before the code burns.
	MaxAttempts int
	// SkipEnabled accepts SkipCode for any live code. Development only.
	SkipEnabled bool
	SkipCode    string
}

// DefaultPolicy returns the production policy values.
func DefaultPolicy() Policy {
	return Policy{
		ExpiryWindow:   DefaultExpiryWindow,
		ResendInterval: DefaultResendInterval,
		MaxAttempts:    DefaultMaxAttempts,
		SkipCode:       DefaultSkipCode,
	}
}

// GenerateCode produces a uniformly distributed six digit code using
// the operating system CSPRNG.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("otp: generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ValidFormat reports whether the input looks like a six digit code.
func ValidFormat(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsExpired reports whether a code issued at issuedAt is past its window.
func (p Policy) IsExpired(issuedAt, now time.Time) bool {
	return now.Sub(issuedAt) >= p.ExpiryWindow
}

// RemainingSeconds returns the whole seconds of validity left, never negative.
func (p Policy) RemainingSeconds(issuedAt, now time.Time) int {
	remaining := p.ExpiryWindow - now.Sub(issuedAt)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds())
}

// CanResend reports whether enough time has passed since the last issuance.
func (p Policy) CanResend(issuedAt, now time.Time) bool {
	return now.Sub(issuedAt) >= p.ResendInterval
}

// ResendWaitSeconds returns the whole seconds to wait before the next
// code can be issued, rounded up, never negative.
func (p Policy) ResendWaitSeconds(issuedAt, now time.Time) int {
	wait := p.ResendInterval - now.Sub(issuedAt)
	if wait <= 0 {
		return 0
	}
	return int((wait + time.Second - 1) / time.Second)
}

// MatchesSkip reports whether the supplied code is the configured
// development bypass value.
func (p Policy) MatchesSkip(code string) bool {
	return p.SkipEnabled && p.SkipCode != "" && code == p.SkipCode
}
