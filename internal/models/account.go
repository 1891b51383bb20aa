package models

import "time"

// Account roles. Privileged accounts require a verified one-time code
// before a session token is issued.
const (
	RoleStandard   = "standard"
	RolePrivileged = "privileged"
)

// Federated identity providers accepted at login.
const (
	ProviderLocal    = "local"
	ProviderGoogle   = "google"
	ProviderApple    = "apple"
	ProviderFacebook = "facebook"
)

// Account is a registered user of the platform.
type Account struct {
	BaseModel
	Email         string     `gorm:"uniqueIndex;not null" json:"email"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone,omitempty"`
	PasswordHash  string     `gorm:"column:password_hash" json:"-"`
	Role          string     `gorm:"not null;default:standard" json:"role"`
	Provider      string     `gorm:"not null;default:local" json:"provider"`
	ProviderID    string     `gorm:"index" json:"-"`
	EmailVerified bool       `gorm:"default:false" json:"email_verified"`
	Active        bool       `gorm:"default:true" json:"active"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`

	FailedLogins int        `gorm:"default:0" json:"-"`
	LockedUntil  *time.Time `json:"-"`
}

func (Account) TableName() string { return "accounts" }

// IsPrivileged reports whether the account requires step-up verification.
func (a *Account) IsPrivileged() bool { return a.Role == RolePrivileged }

// IsLocked reports whether the account is under a temporary lockout.
func (a *Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// HasPassword reports whether the account can authenticate with a password.
func (a *Account) HasPassword() bool { return a.PasswordHash != "" }
