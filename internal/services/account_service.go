package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rajkayal/hubauth/internal/auth/otp"
	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/pkg/crypto"
	appErrors "github.com/rajkayal/hubauth/pkg/errors"
	"github.com/rajkayal/hubauth/pkg/logger"
)

const minPasswordLength = 8

// AccountService owns account lifecycle operations outside the login
// flow: registration, profile updates and password management.
type AccountService struct {
	db    *gorm.DB
	otp   *OTPService
	audit *AuditService
	log   *zap.Logger
}

// NewAccountService validates dependencies and builds the service.
func NewAccountService(db *gorm.DB, otpSvc *OTPService, audit *AuditService) (*AccountService, error) {
	if db == nil {
		return nil, errors.New("account service: db is required")
	}
	if otpSvc == nil {
		return nil, errors.New("account service: otp service is required")
	}

	return &AccountService{
		db:    db,
		otp:   otpSvc,
		audit: audit,
		log:   logger.WithModule("accounts"),
	}, nil
}

// RegisterInput captures a self-service registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// Register creates a standard account with a hashed password. The email
// stays unverified until a verification code is confirmed.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*models.Account, error) {
	email := otp.NormalizeEmail(input.Email)
	if email == "" {
		return nil, appErrors.NewBadRequest("Email is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, appErrors.NewBadRequest("Password must be at least 8 characters")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, appErrors.ErrInternalServer
	}
	if count > 0 {
		return nil, appErrors.NewBadRequest("Email already registered")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		s.log.Error("hash password", zap.Error(err))
		return nil, appErrors.ErrInternalServer
	}

	account := &models.Account{
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		Phone:        strings.TrimSpace(input.Phone),
		PasswordHash: hash,
		Role:         models.RoleStandard,
		Provider:     models.ProviderLocal,
		Active:       true,
	}
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, appErrors.ErrInternalServer
	}

	s.auditEvent(ctx, account.ID, email, models.AuditAccountCreated, "self registration")
	return account, nil
}

// Get returns the account by id.
func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Take(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, appErrors.ErrInternalServer
	}
	return &account, nil
}

// ProfileUpdate carries the mutable profile fields.
type ProfileUpdate struct {
	Name  string
	Phone string
}

// UpdateProfile changes the mutable profile fields.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, input ProfileUpdate) (*models.Account, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, appErrors.NewBadRequest("Name is required")
	}
	phone := strings.TrimSpace(input.Phone)

	updates := map[string]any{"name": name, "phone": phone}
	if err := s.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return nil, appErrors.ErrInternalServer
	}
	account.Name = name
	account.Phone = phone
	return account, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *AccountService) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return appErrors.NewBadRequest("Password must be at least 8 characters")
	}

	account, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if !account.HasPassword() || !crypto.VerifyPassword(account.PasswordHash, currentPassword) {
		return appErrors.ErrInvalidCredentials
	}

	return s.storePassword(ctx, account, newPassword, models.AuditPasswordChanged)
}

// ResetPassword replaces the password after a password-reset code is
// verified. The code is the sole proof of control; no session needed.
func (s *AccountService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return appErrors.NewBadRequest("Password must be at least 8 characters")
	}

	account, err := s.otp.Verify(ctx, email, code, models.PurposePasswordReset)
	if err != nil {
		return err
	}
	if account == nil {
		// Same failure as a wrong code so the endpoint cannot confirm
		// whether the email is registered.
		return appErrors.ErrOTPNotFound
	}

	return s.storePassword(ctx, account, newPassword, models.AuditPasswordReset)
}

func (s *AccountService) storePassword(ctx context.Context, account *models.Account, newPassword, auditEvent string) error {
	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		s.log.Error("hash password", zap.Error(err))
		return appErrors.ErrInternalServer
	}

	updates := map[string]any{
		"password_hash": hash,
		"failed_logins": 0,
		"locked_until":  nil,
	}
	if err := s.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return appErrors.ErrInternalServer
	}

	s.auditEvent(ctx, account.ID, account.Email, auditEvent, "")
	return nil
}

func (s *AccountService) auditEvent(ctx context.Context, accountID, email, event, detail string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		AccountID: accountID,
		Email:     email,
		Event:     event,
		Detail:    detail,
	})
}
