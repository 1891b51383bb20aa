package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rajkayal/hubauth/internal/auth/otp"
	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/internal/notify"
	appErrors "github.com/rajkayal/hubauth/pkg/errors"
	"github.com/rajkayal/hubauth/pkg/logger"
	"github.com/rajkayal/hubauth/pkg/metrics"
)

// OTPService implements the standalone one-time code flows: send,
// verify, resend and status. The step-up login flow reuses Verify
// through the same service so both paths share one policy.
type OTPService struct {
	db         *gorm.DB
	store      *otp.Store
	policy     otp.Policy
	dispatcher notify.Dispatcher
	audit      *AuditService
	now        func() time.Time
	log        *zap.Logger

	// ExposePreview returns delivery preview URLs in responses.
	// Never enable outside development.
	ExposePreview bool
}

// OTPOption customises OTPService construction.
type OTPOption func(*OTPService)

// WithOTPClock overrides the time source. Used by tests.
func WithOTPClock(now func() time.Time) OTPOption {
	return func(s *OTPService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewOTPService validates dependencies and builds the service.
func NewOTPService(db *gorm.DB, store *otp.Store, policy otp.Policy, dispatcher notify.Dispatcher, audit *AuditService, opts ...OTPOption) (*OTPService, error) {
	if db == nil {
		return nil, errors.New("otp service: db is required")
	}
	if store == nil {
		return nil, errors.New("otp service: store is required")
	}
	if dispatcher == nil {
		return nil, errors.New("otp service: dispatcher is required")
	}

	svc := &OTPService{
		db:         db,
		store:      store,
		policy:     policy,
		dispatcher: dispatcher,
		audit:      audit,
		now:        time.Now,
		log:        logger.WithModule("otp"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SendResult describes an issued (or pretended) code delivery.
type SendResult struct {
	Email      string `json:"email"`
	ExpiresIn  int    `json:"expires_in"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// Send issues a code for the email and purpose. Unknown emails receive
// the same success shape without any record being created, so the
// endpoint cannot be used to probe which accounts exist. Registration
// is the exception: the account does not exist yet by definition.
func (s *OTPService) Send(ctx context.Context, email, purpose string) (*SendResult, error) {
	email = otp.NormalizeEmail(email)
	if email == "" {
		return nil, appErrors.NewBadRequest("Email is required")
	}

	masked := MaskEmail(email)
	result := &SendResult{Email: masked, ExpiresIn: int(s.policy.ExpiryWindow.Seconds())}

	if purpose != models.PurposeRegistration {
		known, err := s.accountExists(ctx, email)
		if err != nil {
			return nil, appErrors.ErrInternalServer
		}
		if !known {
			// Same shape as the success path, no record created.
			return result, nil
		}
	}

	if err := s.checkCooldown(ctx, email); err != nil {
		return nil, err
	}

	return s.issue(ctx, email, purpose)
}

// issue replaces any live record with a fresh code and dispatches it.
// Callers are responsible for cooldown enforcement.
func (s *OTPService) issue(ctx context.Context, email, purpose string) (*SendResult, error) {
	masked := MaskEmail(email)
	result := &SendResult{Email: masked, ExpiresIn: int(s.policy.ExpiryWindow.Seconds())}

	code, err := otp.GenerateCode()
	if err != nil {
		s.log.Error("code generation failed", zap.Error(err))
		return nil, appErrors.ErrInternalServer
	}

	record, err := s.store.Replace(ctx, email, code, purpose)
	if err != nil {
		s.log.Error("store code failed", zap.Error(err))
		return nil, appErrors.ErrInternalServer
	}

	delivery, err := s.dispatcher.Send(ctx, email, code, purpose)
	if err != nil {
		// No live record may outlast a failed delivery, or the
		// cooldown would block the user's retry.
		if delErr := s.store.Consume(ctx, record.ID); delErr != nil && !errors.Is(delErr, otp.ErrConflict) {
			s.log.Error("rollback after delivery failure", zap.Error(delErr))
		}
		s.log.Error("code delivery failed", zap.String("email", masked), zap.Error(err))
		return nil, appErrors.ErrDependencyFailed
	}

	metrics.OTPIssued.WithLabelValues(purposeLabel(purpose)).Inc()
	s.auditEvent(ctx, "", email, models.AuditOTPIssued, purpose)

	if s.ExposePreview {
		result.PreviewURL = delivery.PreviewURL
	}
	return result, nil
}

// Resend re-issues a code, subject to the same cooldown as Send.
func (s *OTPService) Resend(ctx context.Context, email, purpose string) (*SendResult, error) {
	return s.Send(ctx, email, purpose)
}

// EnsureLoginChallenge makes sure a code able to complete a login
// step-up is live for the email. An outstanding login-purpose code is
// reused so repeated pending logins do not reissue; a live record bound
// to any other purpose is replaced with a fresh login code, since a
// password-reset code must never be the only way to finish a login.
// Replacement skips the resend cooldown: it invalidates the foreign
// record, so no extra live code results.
func (s *OTPService) EnsureLoginChallenge(ctx context.Context, email string) (*SendResult, error) {
	email = otp.NormalizeEmail(email)
	if email == "" {
		return nil, appErrors.NewBadRequest("Email is required")
	}

	record, err := s.store.FindLatest(ctx, email)
	if err != nil && !errors.Is(err, otp.ErrNotFound) {
		return nil, appErrors.ErrInternalServer
	}

	if err == nil {
		now := s.now()
		usable := !record.Verified &&
			record.MatchesPurpose(models.PurposeLogin) &&
			!s.policy.IsExpired(record.CreatedAt, now) &&
			record.Attempts < s.policy.MaxAttempts
		if usable {
			return &SendResult{
				Email:     MaskEmail(email),
				ExpiresIn: s.policy.RemainingSeconds(record.CreatedAt, now),
			}, nil
		}
	}

	return s.issue(ctx, email, models.PurposeLogin)
}

// Verify checks a submitted code against the live record for the email.
// A correct code consumes the record; the returned account is nil when
// no account exists for the email (registration flows).
func (s *OTPService) Verify(ctx context.Context, email, code, purpose string) (*models.Account, error) {
	email = otp.NormalizeEmail(email)
	if email == "" {
		return nil, appErrors.NewBadRequest("Email is required")
	}
	if !otp.ValidFormat(code) {
		return nil, appErrors.NewBadRequest("Code must be 6 digits")
	}

	if s.policy.MatchesSkip(code) {
		_ = s.store.DeleteForEmail(ctx, email)
		return s.completeVerification(ctx, email, purpose)
	}

	record, err := s.store.FindLatest(ctx, email)
	if errors.Is(err, otp.ErrNotFound) {
		metrics.OTPRejected.WithLabelValues(metrics.ReasonNotFound).Inc()
		return nil, appErrors.ErrOTPNotFound
	}
	if err != nil {
		return nil, appErrors.ErrInternalServer
	}

	if record.Verified {
		metrics.OTPRejected.WithLabelValues(metrics.ReasonAlreadyUsed).Inc()
		return nil, appErrors.ErrOTPAlreadyUsed
	}

	if !record.MatchesPurpose(purpose) {
		// A code issued for one purpose never satisfies another.
		metrics.OTPRejected.WithLabelValues(metrics.ReasonNotFound).Inc()
		return nil, appErrors.ErrOTPNotFound
	}

	now := s.now()
	if s.policy.IsExpired(record.CreatedAt, now) {
		// Delete eagerly so a stale record cannot be retried.
		_ = s.store.DeleteForEmail(ctx, email)
		metrics.OTPRejected.WithLabelValues(metrics.ReasonExpired).Inc()
		s.auditEvent(ctx, "", email, models.AuditOTPRejected, "expired")
		return nil, appErrors.ErrOTPExpired
	}

	if record.Attempts >= s.policy.MaxAttempts {
		_ = s.store.DeleteForEmail(ctx, email)
		metrics.OTPRejected.WithLabelValues(metrics.ReasonMaxAttempts).Inc()
		return nil, appErrors.ErrTooManyAttempts
	}

	if record.Code != code {
		return nil, s.handleMismatch(ctx, email, record)
	}

	if err := s.store.Consume(ctx, record.ID); err != nil {
		if errors.Is(err, otp.ErrConflict) {
			// A concurrent verification won the race.
			metrics.OTPRejected.WithLabelValues(metrics.ReasonAlreadyUsed).Inc()
			return nil, appErrors.ErrOTPAlreadyUsed
		}
		return nil, appErrors.ErrInternalServer
	}

	metrics.OTPVerified.WithLabelValues(purposeLabel(record.Purpose)).Inc()
	s.auditEvent(ctx, "", email, models.AuditOTPVerified, record.Purpose)

	return s.completeVerification(ctx, email, purpose)
}

func (s *OTPService) handleMismatch(ctx context.Context, email string, record *models.OTPRecord) error {
	attempts, applied, err := s.store.RecordFailedAttempt(ctx, record.ID, s.policy.MaxAttempts)
	if err != nil {
		if errors.Is(err, otp.ErrNotFound) {
			metrics.OTPRejected.WithLabelValues(metrics.ReasonNotFound).Inc()
			return appErrors.ErrOTPNotFound
		}
		return appErrors.ErrInternalServer
	}

	if !applied || attempts >= s.policy.MaxAttempts {
		_ = s.store.DeleteForEmail(ctx, email)
		metrics.OTPRejected.WithLabelValues(metrics.ReasonMaxAttempts).Inc()
		s.auditEvent(ctx, "", email, models.AuditOTPRejected, "max attempts")
		return appErrors.ErrTooManyAttempts
	}

	metrics.OTPRejected.WithLabelValues(metrics.ReasonMismatch).Inc()
	remaining := s.policy.MaxAttempts - attempts
	return appErrors.ErrOTPInvalid.WithDetails(map[string]any{"attempts_left": remaining})
}

// completeVerification resolves the account for post-verification side
// effects. Verification purposes mark the account email as confirmed.
func (s *OTPService) completeVerification(ctx context.Context, email, purpose string) (*models.Account, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, appErrors.ErrInternalServer
	}

	if (purpose == models.PurposeVerification || purpose == models.PurposeRegistration) && !account.EmailVerified {
		if err := s.db.WithContext(ctx).Model(&account).Update("email_verified", true).Error; err != nil {
			return nil, appErrors.ErrInternalServer
		}
		account.EmailVerified = true
	}

	return &account, nil
}

// StatusResult reports the state of the live code for an email.
type StatusResult struct {
	Active        bool `json:"has_active_otp"`
	RemainingTime int  `json:"remaining_time,omitempty"`
	AttemptsLeft  int  `json:"attempts_left,omitempty"`
}

// Status reports whether a live code exists and how long it remains valid.
func (s *OTPService) Status(ctx context.Context, email string) (*StatusResult, error) {
	email = otp.NormalizeEmail(email)
	if email == "" {
		return nil, appErrors.NewBadRequest("Email is required")
	}

	record, err := s.store.FindLatest(ctx, email)
	if errors.Is(err, otp.ErrNotFound) {
		return &StatusResult{}, nil
	}
	if err != nil {
		return nil, appErrors.ErrInternalServer
	}

	now := s.now()
	if record.Verified || s.policy.IsExpired(record.CreatedAt, now) || record.Attempts >= s.policy.MaxAttempts {
		return &StatusResult{}, nil
	}

	return &StatusResult{
		Active:        true,
		RemainingTime: s.policy.RemainingSeconds(record.CreatedAt, now),
		AttemptsLeft:  s.policy.MaxAttempts - record.Attempts,
	}, nil
}

// Policy exposes the active policy for collaborating services.
func (s *OTPService) Policy() otp.Policy { return s.policy }

func (s *OTPService) checkCooldown(ctx context.Context, email string) error {
	record, err := s.store.FindLatest(ctx, email)
	if errors.Is(err, otp.ErrNotFound) {
		return nil
	}
	if err != nil {
		return appErrors.ErrInternalServer
	}

	now := s.now()
	if !s.policy.CanResend(record.CreatedAt, now) {
		wait := s.policy.ResendWaitSeconds(record.CreatedAt, now)
		return appErrors.ErrRateLimit.WithDetails(map[string]any{"wait_seconds": wait})
	}
	return nil
}

func (s *OTPService) accountExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Account{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}

func (s *OTPService) auditEvent(ctx context.Context, accountID, email, event, detail string) {
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

func purposeLabel(purpose string) string {
	if purpose == "" {
		return "legacy"
	}
	return purpose
}

// MaskEmail hides most of the local part so responses can confirm the
// destination without exposing the full address.
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return email
	}

	local, domain := email[:at], email[at:]
	switch {
	case len(local) <= 2:
		return local[:1] + "***" + domain
	default:
		return local[:2] + strings.Repeat("*", len(local)-2) + domain
	}
}
