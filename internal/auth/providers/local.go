package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/pkg/crypto"
)

var (
	// ErrInvalidCredentials is returned when the email/password pair is invalid.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked signals that the user has exceeded the permitted failed attempts.
	ErrAccountLocked = errors.New("auth: account locked")
	// ErrAccountDisabled signals that the user has been deactivated.
	ErrAccountDisabled = errors.New("auth: account disabled")
)

// LocalConfig defines tunable behaviour for the local provider.
type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// LocalProvider implements email/password authentication with account lockout controls.
type LocalProvider struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

// NewLocalProvider builds a provider with sane defaults.
func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = 15 * time.Minute
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LocalProvider{
		db:        db,
		clock:     clock,
		threshold: threshold,
		duration:  duration,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the associated account when successful.
func (p *LocalProvider) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var account models.Account
	err := p.db.WithContext(ctx).Where("email = ?", email).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Burn a hash comparison so missing accounts cost the same as
		// wrong passwords.
		crypto.VerifyPassword("$2a$10$N9qo8uLOickgx2ZMRZoMye/IoZ5i1rXim/hQ2Lztz0gBPnlnF8C2W", password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("local provider: query account: %w", err)
	}

	now := p.clock()

	if !account.Active {
		return nil, ErrAccountDisabled
	}

	if account.IsLocked(now) {
		return nil, ErrAccountLocked
	}

	// Unlock the account if the lockout duration has elapsed.
	if account.LockedUntil != nil && !account.LockedUntil.After(now) {
		account.LockedUntil = nil
		account.FailedLogins = 0
		if err := p.db.WithContext(ctx).Model(&account).Updates(map[string]any{
			"locked_until":  nil,
			"failed_logins": 0,
		}).Error; err != nil {
			return nil, fmt.Errorf("local provider: reset lock state: %w", err)
		}
	}

	if !account.HasPassword() || !crypto.VerifyPassword(account.PasswordHash, password) {
		return nil, p.handleFailedAttempt(ctx, &account, now)
	}

	account.FailedLogins = 0
	account.LockedUntil = nil
	account.LastLoginAt = &now

	if err := p.db.WithContext(ctx).Model(&account).Updates(map[string]any{
		"failed_logins": 0,
		"locked_until":  nil,
		"last_login_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("local provider: update account: %w", err)
	}

	return &account, nil
}

func (p *LocalProvider) handleFailedAttempt(ctx context.Context, account *models.Account, now time.Time) error {
	account.FailedLogins++

	updates := map[string]any{
		"failed_logins": account.FailedLogins,
	}

	if account.FailedLogins >= p.threshold {
		lockUntil := now.Add(p.duration)
		account.LockedUntil = &lockUntil
		updates["locked_until"] = lockUntil
	}

	if err := p.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return fmt.Errorf("local provider: update failed attempts: %w", err)
	}

	if account.LockedUntil != nil && account.LockedUntil.After(now) {
		return ErrAccountLocked
	}

	return ErrInvalidCredentials
}
