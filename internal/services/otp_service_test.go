package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rajkayal/hubauth/internal/auth/otp"
	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/internal/notify"
	appErrors "github.com/rajkayal/hubauth/pkg/errors"
)

// testDSN names each in-memory database uniquely so pooled connections
// share one database without leaking state between tests.
func testDSN() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1",
		strings.ReplaceAll(uuid.NewString(), "-", ""))
}

type recordingDispatcher struct {
	emails  []string
	codes   []string
	failing bool
}

func (d *recordingDispatcher) Send(_ context.Context, email, code, _ string) (*notify.Delivery, error) {
	if d.failing {
		return nil, errors.New("smtp: connection refused")
	}
	d.emails = append(d.emails, email)
	d.codes = append(d.codes, code)
	return &notify.Delivery{MessageID: "msg-1", PreviewURL: "log://msg-1"}, nil
}

func (d *recordingDispatcher) lastCode() string {
	if len(d.codes) == 0 {
		return ""
	}
	return d.codes[len(d.codes)-1]
}

type otpFixture struct {
	svc        *OTPService
	db         *gorm.DB
	dispatcher *recordingDispatcher
	now        *time.Time
}

func newOTPFixture(t *testing.T) *otpFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(testDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Account{}, &models.OTPRecord{}, &models.AuditLog{}))

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	store, err := otp.NewStore(db, otp.WithClock(clock))
	require.NoError(t, err)

	audit, err := NewAuditService(db)
	require.NoError(t, err)

	dispatcher := &recordingDispatcher{}
	svc, err := NewOTPService(db, store, otp.DefaultPolicy(), dispatcher, audit, WithOTPClock(clock))
	require.NoError(t, err)

	return &otpFixture{svc: svc, db: db, dispatcher: dispatcher, now: &current}
}

func (f *otpFixture) seedAccount(t *testing.T, email, role string) *models.Account {
	t.Helper()
	account := &models.Account{
		Email:    email,
		Name:     "Test Account",
		Role:     role,
		Provider: models.ProviderLocal,
		Active:   true,
	}
	require.NoError(t, f.db.Create(account).Error)
	return account
}

func (f *otpFixture) recordCount(t *testing.T, email string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.OTPRecord{}).Where("email = ?", email).Count(&count).Error)
	return count
}

func TestSendIssuesCode(t *testing.T) {
	f := newOTPFixture(t)
	f.seedAccount(t, "alice@x.com", models.RoleStandard)

	result, err := f.svc.Send(context.Background(), "Alice@X.com", models.PurposeLogin)
	require.NoError(t, err)
	require.Equal(t, "al***@x.com", result.Email)
	require.Equal(t, 300, result.ExpiresIn)
	require.Empty(t, result.PreviewURL)

	require.Equal(t, []string{"alice@x.com"}, f.dispatcher.emails)
	require.Len(t, f.dispatcher.lastCode(), 6)
	require.Equal(t, int64(1), f.recordCount(t, "alice@x.com"))
}

func TestSendUnknownEmailSucceedsWithoutRecord(t *testing.T) {
	f := newOTPFixture(t)

	result, err := f.svc.Send(context.Background(), "ghost@x.com", models.PurposeLogin)
	require.NoError(t, err)
	require.NotEmpty(t, result.Email)

	require.Empty(t, f.dispatcher.emails)
	require.Zero(t, f.recordCount(t, "ghost@x.com"))
}

func TestSendRegistrationAllowsUnknownEmail(t *testing.T) {
	f := newOTPFixture(t)

	_, err := f.svc.Send(context.Background(), "new@x.com", models.PurposeRegistration)
	require.NoError(t, err)
	require.Equal(t, int64(1), f.recordCount(t, "new@x.com"))
}

func TestSendCooldown(t *testing.T) {
	f := newOTPFixture(t)
	f.seedAccount(t, "alice@x.com", models.RoleStandard)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "alice@x.com", models.PurposeLogin)
	require.NoError(t, err)

	*f.now = f.now.Add(10 * time.Second)
	_, err = f.svc.Resend(ctx, "alice@x.com", models.PurposeLogin)
	appErr := appErrors.FromError(err)
	require.Equal(t, 429, appErr.StatusCode)
	require.Equal(t, 50, appErr.Details["wait_seconds"])

	*f.now = f.now.Add(51 * time.Second)
	_, err = f.svc.Resend(ctx, "alice@x.com", models.PurposeLogin)
	require.NoError(t, err)
	require.Len(t, f.dispatcher.codes, 2)
	require.Equal(t, int64(1), f.recordCount(t, "alice@x.com"))
}

func TestEnsureLoginChallengeIssuesAndReuses(t *testing.T) {
	f := newOTPFixture(t)
	f.seedAccount(t, "alice@x.com", models.RoleStandard)
	ctx := context.Background()

	// No live record: a login code is issued.
	result, err := f.svc.EnsureLoginChallenge(ctx, "alice@x.com")
	require.NoError(t, err)
	require.Equal(t, 300, result.ExpiresIn)
	require.Len(t, f.dispatcher.lastCode(), 6)

	// The live login code is reused; nothing new is dispatched.
	*f.now = f.now.Add(10 * time.Second)
	result, err = f.svc.EnsureLoginChallenge(ctx, "alice@x.com")
	require.NoError(t, err)
	require.Equal(t, 290, result.ExpiresIn)
	require.Len(t, f.dispatcher.codes, 1)
	require.Equal(t, int64(1), f.recordCount(t, "alice@x.com"))
}

func TestEnsureLoginChallengeReplacesForeignPurpose(t *testing.T) {
	f := newOTPFixture(t)
	f.seedAccount(t, "alice@x.com", models.RoleStandard)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "alice@x.com", models.PurposePasswordReset)
	require.NoError(t, err)

	// A reset code can never complete a login, so even inside the
	// resend cooldown it is replaced with a fresh login code.
	*f.now = f.now.Add(10 * time.Second)
	result, err := f.svc.EnsureLoginChallenge(ctx, "alice@x.com")
	require.NoError(t, err)
	require.Equal(t, 300, result.ExpiresIn)
	require.Len(t, f.dispatcher.codes, 2)
	require.Equal(t, int64(1), f.recordCount(t, "alice@x.com"))

	var record models.OTPRecord
	require.NoError(t, f.db.Where("email = ?", "alice@x.com").Take(&record).Error)
	require.Equal(t, models.PurposeLogin, record.Purpose)

	account, err := f.svc.Verify(ctx, "alice@x.com", f.dispatcher.lastCode(), models.PurposeLogin)
	require.NoError(t, err)
	require.NotNil(t, account)
}

func TestSendDeliveryFailureRollsBack(t *testing.T) {
	f := newOTPFixture(t)
	f.seedAccount(t, "alice@x.com", models.RoleStandard)
	f.dispatcher.failing = true

	_, err := f.svc.Send(context.Background(), "alice@x.com", models.PurposeLogin)
	appErr := appErrors.FromError(err)
	require.Equal(t, 500, appErr.StatusCode)

	// No orphaned record may block the retry.
	require.Zero(t, f.recordCount(t, "alice@x.com"))

	f.dispatcher.failing = false
	_, err = f.svc.Send(context.Background(), "alice@x.com", models.PurposeLogin)
	require.NoError(t, err)
}

func TestVerifySuccessIsSingleUse(t *testing.T) {
	f := newOTPFixture(t)
	f.seedAccount(t, "alice@x.com", models.RoleStandard)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "alice@x.com", models.PurposeLogin)
	require.NoError(t, err)
	code := f.dispatcher.lastCode()

	*f.now = f.now.Add(299 * time.Second)
	account, err := f.svc.Verify(ctx, "alice@x.com", code, models.PurposeLogin)
	require.NoError(t, err)
	require.NotNil(t, account)
	require.Equal(t, "alice@x.com", account.Email)

	_, err = f.svc.Verify(ctx, "alice@x.com", code, models.PurposeLogin)
	require.ErrorIs(t, err, appErrors.ErrOTPNotFound)
}

func TestVerifyExpiredCode(t *testing.T) {
	f := newOTPFixture(t)
	f.seedAccount(t, "alice@x.com", models.RoleStandard)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "alice@x.com", models.PurposeLogin)
	require.NoError(t, err)
	code := f.dispatcher.lastCode()

	*f.now = f.now.Add(301 * time.Second)
	_, err = f.svc.Verify(ctx, "alice@x.com", code, models.PurposeLogin)
	require.ErrorIs(t, err, appErrors.ErrOTPExpired)

	// Stale record is gone; the next attempt sees no code at all.
	require.Zero(t, f.recordCount(t, "alice@x.com"))
	_, err = f.svc.Verify(ctx, "alice@x.com", code, models.PurposeLogin)
	require.ErrorIs(t, err, appErrors.ErrOTPNotFound)
}

func TestVerifyAttemptCeiling(t *testing.T) {
	f := newOTPFixture(t)
	f.seedAccount(t, "alice@x.com", models.RoleStandard)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "alice@x.com", models.PurposeLogin)
	require.NoError(t, err)
	code := f.dispatcher.lastCode()

	wrong := "000001"
	if wrong == code {
		wrong = "000002"
	}

	*f.now = f.now.Add(10 * time.Second)
	_, err = f.svc.Verify(ctx, "alice@x.com", wrong, models.PurposeLogin)
	appErr := appErrors.FromError(err)
	require.Equal(t, 401, appErr.StatusCode)
	require.Equal(t, 2, appErr.Details["attempts_left"])

	*f.now = f.now.Add(10 * time.Second)
	_, err = f.svc.Verify(ctx, "alice@x.com", wrong, models.PurposeLogin)
	require.Equal(t, 1, appErrors.FromError(err).Details["attempts_left"])

	*f.now = f.now.Add(10 * time.Second)
	_, err = f.svc.Verify(ctx, "alice@x.com", wrong, models.PurposeLogin)
	require.ErrorIs(t, err, appErrors.ErrTooManyAttempts)
	require.Zero(t, f.recordCount(t, "alice@x.com"))

	// Even the correct code fails once the record has burned.
	_, err = f.svc.Verify(ctx, "alice@x.com", code, models.PurposeLogin)
	require.ErrorIs(t, err, appErrors.ErrOTPNotFound)
}

func TestVerifyPurposeBinding(t *testing.T) {
	f := newOTPFixture(t)
	f.seedAccount(t, "alice@x.com", models.RoleStandard)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "alice@x.com", models.PurposePasswordReset)
	require.NoError(t, err)
	code := f.dispatcher.lastCode()

	_, err = f.svc.Verify(ctx, "alice@x.com", code, models.PurposeLogin)
	require.ErrorIs(t, err, appErrors.ErrOTPNotFound)

	_, err = f.svc.Verify(ctx, "alice@x.com", code, models.PurposePasswordReset)
	require.NoError(t, err)
}

func TestVerifyLegacyPurposeWildcard(t *testing.T) {
	f := newOTPFixture(t)
	f.seedAccount(t, "alice@x.com", models.RoleStandard)
	ctx := context.Background()

	record := &models.OTPRecord{Email: "alice@x.com", Code: "123456"}
	record.CreatedAt = *f.now
	require.NoError(t, f.db.Create(record).Error)

	_, err := f.svc.Verify(ctx, "alice@x.com", "123456", models.PurposeLogin)
	require.NoError(t, err)

	record2 := &models.OTPRecord{Email: "alice@x.com", Code: "654321"}
	record2.CreatedAt = *f.now
	require.NoError(t, f.db.Create(record2).Error)

	_, err = f.svc.Verify(ctx, "alice@x.com", "654321", models.PurposePasswordReset)
	require.ErrorIs(t, err, appErrors.ErrOTPNotFound)
}

func TestVerifyRejectsBadFormat(t *testing.T) {
	f := newOTPFixture(t)

	_, err := f.svc.Verify(context.Background(), "alice@x.com", "12345", models.PurposeLogin)
	require.Equal(t, 400, appErrors.FromError(err).StatusCode)

	_, err = f.svc.Verify(context.Background(), "alice@x.com", "abcdef", models.PurposeLogin)
	require.Equal(t, 400, appErrors.FromError(err).StatusCode)
}

func TestVerifySkipCode(t *testing.T) {
	f := newOTPFixture(t)
	f.seedAccount(t, "alice@x.com", models.RoleStandard)
	ctx := context.Background()

	// Disabled by default.
	_, err := f.svc.Verify(ctx, "alice@x.com", "000000", models.PurposeLogin)
	require.ErrorIs(t, err, appErrors.ErrOTPNotFound)

	f.svc.policy.SkipEnabled = true
	account, err := f.svc.Verify(ctx, "alice@x.com", "000000", models.PurposeLogin)
	require.NoError(t, err)
	require.NotNil(t, account)
}

func TestVerificationPurposeMarksEmailVerified(t *testing.T) {
	f := newOTPFixture(t)
	seeded := f.seedAccount(t, "alice@x.com", models.RoleStandard)
	require.False(t, seeded.EmailVerified)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "alice@x.com", models.PurposeVerification)
	require.NoError(t, err)

	account, err := f.svc.Verify(ctx, "alice@x.com", f.dispatcher.lastCode(), models.PurposeVerification)
	require.NoError(t, err)
	require.True(t, account.EmailVerified)
}

func TestStatus(t *testing.T) {
	f := newOTPFixture(t)
	f.seedAccount(t, "alice@x.com", models.RoleStandard)
	ctx := context.Background()

	status, err := f.svc.Status(ctx, "alice@x.com")
	require.NoError(t, err)
	require.False(t, status.Active)

	_, err = f.svc.Send(ctx, "alice@x.com", models.PurposeLogin)
	require.NoError(t, err)

	*f.now = f.now.Add(100 * time.Second)
	status, err = f.svc.Status(ctx, "alice@x.com")
	require.NoError(t, err)
	require.True(t, status.Active)
	require.Equal(t, 200, status.RemainingTime)
	require.Equal(t, 3, status.AttemptsLeft)

	*f.now = f.now.Add(300 * time.Second)
	status, err = f.svc.Status(ctx, "alice@x.com")
	require.NoError(t, err)
	require.False(t, status.Active)
}

func TestMaskEmail(t *testing.T) {
	require.Equal(t, "al***@x.com", MaskEmail("alice@x.com"))
	require.Equal(t, "a***@x.com", MaskEmail("ab@x.com"))
	require.Equal(t, "jo******@example.com", MaskEmail("johndoe1@example.com"))
	require.Equal(t, "nodomain", MaskEmail("nodomain"))
}
