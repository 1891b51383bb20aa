package models

import "time"

// OTP purposes. A record issued for one purpose cannot satisfy a
// verification for another, except legacy records with an empty purpose
// which are accepted for login and verification flows.
const (
	PurposeLogin         = "login"
	PurposeRegistration  = "registration"
	PurposeVerification  = "verification"
	PurposePasswordReset = "password-reset"
)

// OTPRecord is a single live one-time code for an email address.
// Issuing a new code for the same email replaces any existing record.
type OTPRecord struct {
	BaseModel
	Email    string `gorm:"index;not null" json:"email"`
	Code     string `gorm:"not null" json:"-"`
	Purpose  string `gorm:"index" json:"purpose"`
	Attempts int    `gorm:"default:0" json:"attempts"`
	Verified bool   `gorm:"default:false" json:"verified"`
}

func (OTPRecord) TableName() string { return "otp_records" }

// ExpiresAt returns the instant the code stops being acceptable.
func (r *OTPRecord) ExpiresAt(window time.Duration) time.Time {
	return r.CreatedAt.Add(window)
}

// MatchesPurpose reports whether the record can satisfy a verification
// for the given purpose.
func (r *OTPRecord) MatchesPurpose(purpose string) bool {
	if r.Purpose == purpose {
		return true
	}
	if r.Purpose == "" {
		return purpose == PurposeLogin || purpose == PurposeVerification
	}
	return false
}
