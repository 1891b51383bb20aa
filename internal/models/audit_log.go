package models

// Audit event types recorded by the auth flows.
const (
	AuditLoginSuccess    = "login.success"
	AuditLoginFailure    = "login.failure"
	AuditLoginLocked     = "login.locked"
	AuditOTPIssued       = "otp.issued"
	AuditOTPVerified     = "otp.verified"
	AuditOTPRejected     = "otp.rejected"
	AuditAccountCreated  = "account.created"
	AuditPasswordChanged = "account.password_changed"
	AuditPasswordReset   = "account.password_reset"
)

// AuditLog is an append-only record of a security-relevant event.
type AuditLog struct {
	BaseModel
	AccountID string `gorm:"index" json:"account_id,omitempty"`
	Email     string `gorm:"index" json:"email,omitempty"`
	Event     string `gorm:"index;not null" json:"event"`
	Provider  string `json:"provider,omitempty"`
	IP        string `json:"ip,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

func (AuditLog) TableName() string { return "audit_logs" }
