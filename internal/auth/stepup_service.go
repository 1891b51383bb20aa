package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rajkayal/hubauth/internal/auth/providers"
	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/internal/services"
	appErrors "github.com/rajkayal/hubauth/pkg/errors"
	"github.com/rajkayal/hubauth/pkg/logger"
	"github.com/rajkayal/hubauth/pkg/metrics"
)

// AuthPolicy captures the operator switches for the login flow. It is
// injected so the flow never reads ambient environment state.
type AuthPolicy struct {
	// RequireStepUpForPrivileged demands a verified code before
	// privileged accounts receive a token. Disabling it is the
	// operator override for development and incident recovery.
	RequireStepUpForPrivileged bool
	// AllowMockIdentity accepts the fixed mock provider tokens.
	// Development only.
	AllowMockIdentity bool
	// FederatedEmailDomain is the domain used when synthesizing
	// addresses for providers that withhold the email.
	FederatedEmailDomain string
}

// LoginInput carries a password login request.
type LoginInput struct {
	Email    string
	Password string
	Code     string
	IP       string
}

// FederatedInput carries a provider token login request.
type FederatedInput struct {
	Provider string
	Token    string
	Code     string
	IP       string
}

// LoginResult is the outcome of a login transition. Either Token is set
// (session issued) or RequiresOTP is true (step-up pending).
type LoginResult struct {
	Token       string
	Account     *models.Account
	RequiresOTP bool
	Email       string
	PreviewURL  string
}

// StepUpService drives the login state machine: credentials first, then
// a one-time code for privileged accounts, then a session token.
type StepUpService struct {
	db       *gorm.DB
	local    *providers.LocalProvider
	registry *providers.Registry
	otp      *services.OTPService
	jwt      *JWTService
	audit    *services.AuditService
	policy   AuthPolicy
	log      *zap.Logger
}

// NewStepUpService validates dependencies and builds the service.
func NewStepUpService(
	db *gorm.DB,
	local *providers.LocalProvider,
	registry *providers.Registry,
	otpSvc *services.OTPService,
	jwtSvc *JWTService,
	audit *services.AuditService,
	policy AuthPolicy,
) (*StepUpService, error) {
	if db == nil {
		return nil, errors.New("stepup service: db is required")
	}
	if local == nil {
		return nil, errors.New("stepup service: local provider is required")
	}
	if registry == nil {
		return nil, errors.New("stepup service: provider registry is required")
	}
	if otpSvc == nil {
		return nil, errors.New("stepup service: otp service is required")
	}
	if jwtSvc == nil {
		return nil, errors.New("stepup service: jwt service is required")
	}

	return &StepUpService{
		db:       db,
		local:    local,
		registry: registry,
		otp:      otpSvc,
		jwt:      jwtSvc,
		audit:    audit,
		policy:   policy,
		log:      logger.WithModule("stepup"),
	}, nil
}

// Login performs a password login, demanding a verified code for
// privileged accounts when step-up is enabled.
func (s *StepUpService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	account, err := s.local.Authenticate(ctx, input.Email, input.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(models.ProviderLocal, "failure").Inc()
		s.auditEvent(ctx, "", input.Email, models.AuditLoginFailure, models.ProviderLocal, input.IP, "")
		return nil, s.mapCredentialError(ctx, input, err)
	}

	if !s.stepUpRequired(account) {
		return s.issueSession(ctx, account, models.ProviderLocal, input.IP)
	}

	if input.Code == "" {
		return s.beginStepUp(ctx, account)
	}

	return s.completeStepUp(ctx, account, input.Code, input.IP, models.ProviderLocal)
}

// FederatedLogin verifies a provider token, provisioning a local account
// on first sign-in. Privilege is re-evaluated on every login, so a
// promoted federated account is gated from its next sign-in onward.
func (s *StepUpService) FederatedLogin(ctx context.Context, input FederatedInput) (*LoginResult, error) {
	identity, err := s.verifyFederatedToken(ctx, input)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(input.Provider, "failure").Inc()
		return nil, err
	}

	account, err := s.findOrProvision(ctx, identity)
	if err != nil {
		return nil, err
	}

	if !s.stepUpRequired(account) {
		return s.issueSession(ctx, account, identity.Provider, input.IP)
	}

	if input.Code == "" {
		return s.beginStepUp(ctx, account)
	}

	return s.completeStepUp(ctx, account, input.Code, input.IP, identity.Provider)
}

func (s *StepUpService) verifyFederatedToken(ctx context.Context, input FederatedInput) (*providers.FederatedIdentity, error) {
	if s.policy.AllowMockIdentity {
		if identity, err := providers.NewMockVerifier(input.Provider).VerifyToken(ctx, input.Token); err == nil {
			return identity, nil
		}
	}

	verifier, err := s.registry.Lookup(input.Provider)
	if errors.Is(err, providers.ErrNotConfigured) {
		return nil, appErrors.ErrDependencyFailed
	}
	if err != nil {
		return nil, appErrors.ErrInternalServer
	}

	identity, err := verifier.VerifyToken(ctx, input.Token)
	if errors.Is(err, providers.ErrEmailUnverified) {
		return nil, appErrors.ErrUnauthorized
	}
	if err != nil {
		s.log.Warn("federated token rejected", zap.String("provider", input.Provider), zap.Error(err))
		return nil, appErrors.ErrUnauthorized
	}
	return identity, nil
}

func (s *StepUpService) findOrProvision(ctx context.Context, identity *providers.FederatedIdentity) (*models.Account, error) {
	email := providers.ResolveEmail(identity, s.policy.FederatedEmailDomain)

	var account models.Account
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&account).Error
	if err == nil {
		if !account.Active {
			return nil, appErrors.ErrForbidden
		}
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrInternalServer
	}

	// First federated sign-in: provision a standard account without a
	// usable password.
	account = models.Account{
		Email:         email,
		Name:          providers.ResolveName(identity, "User"),
		Role:          models.RoleStandard,
		Provider:      identity.Provider,
		ProviderID:    identity.Subject,
		EmailVerified: identity.EmailVerified,
		Active:        true,
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, appErrors.ErrInternalServer
	}

	s.auditEvent(ctx, account.ID, email, models.AuditAccountCreated, identity.Provider, "", "federated provision")
	return &account, nil
}

func (s *StepUpService) stepUpRequired(account *models.Account) bool {
	return s.policy.RequireStepUpForPrivileged && account.IsPrivileged()
}

// beginStepUp ensures a code able to complete the login is live and
// reports the pending state. An outstanding login code is reused so
// repeated login attempts do not trip the resend cooldown; a live code
// bound to another purpose is replaced, as it could never satisfy the
// login verification.
func (s *StepUpService) beginStepUp(ctx context.Context, account *models.Account) (*LoginResult, error) {
	sent, err := s.otp.EnsureLoginChallenge(ctx, account.Email)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		RequiresOTP: true,
		Email:       services.MaskEmail(account.Email),
		PreviewURL:  sent.PreviewURL,
	}, nil
}

func (s *StepUpService) completeStepUp(ctx context.Context, account *models.Account, code, ip, provider string) (*LoginResult, error) {
	if _, err := s.otp.Verify(ctx, account.Email, code, models.PurposeLogin); err != nil {
		metrics.AuthAttempts.WithLabelValues(provider, "otp_failure").Inc()
		return nil, err
	}
	return s.issueSession(ctx, account, provider, ip)
}

func (s *StepUpService) issueSession(ctx context.Context, account *models.Account, provider, ip string) (*LoginResult, error) {
	token, err := s.jwt.GenerateToken(TokenInput{
		UserID:   account.ID,
		Email:    account.Email,
		Role:     account.Role,
		Provider: provider,
	})
	if err != nil {
		s.log.Error("token issuance failed", zap.Error(err))
		return nil, appErrors.ErrInternalServer
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(account).Update("last_login_at", now).Error; err != nil {
		s.log.Warn("record last login", zap.Error(err))
	}
	account.LastLoginAt = &now

	metrics.AuthAttempts.WithLabelValues(provider, "success").Inc()
	s.auditEvent(ctx, account.ID, account.Email, models.AuditLoginSuccess, provider, ip, "")

	return &LoginResult{Token: token, Account: account}, nil
}

func (s *StepUpService) mapCredentialError(ctx context.Context, input LoginInput, err error) error {
	switch {
	case errors.Is(err, providers.ErrAccountLocked):
		s.auditEvent(ctx, "", input.Email, models.AuditLoginLocked, models.ProviderLocal, input.IP, "")
		return appErrors.ErrRateLimit
	case errors.Is(err, providers.ErrInvalidCredentials), errors.Is(err, providers.ErrAccountDisabled):
		// One indistinguishable message for missing accounts, wrong
		// passwords and disabled accounts.
		return appErrors.ErrInvalidCredentials
	default:
		s.log.Error("credential check failed", zap.Error(err))
		return appErrors.ErrInternalServer
	}
}

func (s *StepUpService) auditEvent(ctx context.Context, accountID, email, event, provider, ip, detail string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, services.AuditEntry{
		AccountID: accountID,
		Email:     email,
		Event:     event,
		Provider:  provider,
		IP:        ip,
		Detail:    detail,
	})
}
