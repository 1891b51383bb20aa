package otp

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rajkayal/hubauth/internal/models"
)

// Store errors surfaced to the verification services.
var (
	ErrNotFound     = errors.New("otp: no code on record")
	ErrConflict     = errors.New("otp: record changed concurrently")
	ErrInvalidInput = errors.New("otp: invalid input")
)

// Store persists one-time code records. At most one live record exists
// per email address.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// StoreOption customises Store construction.
type StoreOption func(*Store)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore builds a Store backed by the provided database handle.
func NewStore(db *gorm.DB, opts ...StoreOption) (*Store, error) {
	if db == nil {
		return nil, errors.New("otp: database handle is required")
	}
	store := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Replace deletes any existing record for the email and inserts a fresh
// one, returning the stored record. Re-issuing always invalidates the
// previous code.
func (s *Store) Replace(ctx context.Context, email, code, purpose string) (*models.OTPRecord, error) {
	email = NormalizeEmail(email)
	if email == "" || code == "" {
		return nil, ErrInvalidInput
	}

	record := &models.OTPRecord{
		Email:   email,
		Code:    code,
		Purpose: purpose,
	}
	record.CreatedAt = s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", email).Delete(&models.OTPRecord{}).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// FindLatest returns the newest record for the email, or ErrNotFound.
func (s *Store) FindLatest(ctx context.Context, email string) (*models.OTPRecord, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidInput
	}

	var record models.OTPRecord
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// RecordFailedAttempt increments the attempt counter if it is still
// below ceiling. It returns the attempts value after the update and
// whether the increment was applied; a false result means the ceiling
// was already reached by a concurrent request.
func (s *Store) RecordFailedAttempt(ctx context.Context, id string, ceiling int) (int, bool, error) {
	if id == "" {
		return 0, false, ErrInvalidInput
	}

	res := s.db.WithContext(ctx).
		Model(&models.OTPRecord{}).
		Where("id = ? AND attempts < ?", id, ceiling).
		UpdateColumn("attempts", gorm.Expr("attempts + 1"))
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected == 0 {
		return ceiling, false, nil
	}

	var record models.OTPRecord
	if err := s.db.WithContext(ctx).Select("attempts").First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, ErrNotFound
		}
		return 0, false, err
	}
	return record.Attempts, true, nil
}

// Consume deletes the record if it has not already been consumed by a
// concurrent verification. ErrConflict means another request won.
func (s *Store) Consume(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidInput
	}

	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.OTPRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// DeleteForEmail removes any record for the email. Used when a code
// burns out or a flow is abandoned.
func (s *Store) DeleteForEmail(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}
	return s.db.WithContext(ctx).Where("email = ?", email).Delete(&models.OTPRecord{}).Error
}

// PurgeExpired removes records issued before the expiry window started.
// It returns the number of rows removed.
func (s *Store) PurgeExpired(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := s.now().Add(-window)
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.OTPRecord{})
	return res.RowsAffected, res.Error
}

// NormalizeEmail lower-cases and trims an email address so lookups are
// case insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
